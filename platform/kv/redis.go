package kv

import (
	"github.com/gomodule/redigo/redis"

	predis "github.com/gatekeeperhq/gatekeeper/platform/redis"
)

type redisStore struct {
	pool   *redis.Pool
	prefix string
}

// RedisStore returns a Redis backed Store implementation.
func RedisStore(pool *redis.Pool, prefix string) Store {
	return &redisStore{
		pool:   pool,
		prefix: prefix,
	}
}

func (s *redisStore) Del(key string) error {
	con := s.pool.Get()
	defer con.Close()

	_, err := con.Do(predis.CommandDel, s.prefix+key)
	return err
}

func (s *redisStore) Get(key string) (string, error) {
	con := s.pool.Get()
	defer con.Close()

	res, err := con.Do(predis.CommandGet, s.prefix+key)
	if err != nil {
		return "", err
	}

	if res == nil {
		return "", wrapError(ErrKeyNotFound, "%s", key)
	}

	return redis.String(res, nil)
}

func (s *redisStore) Put(key, value string) error {
	con := s.pool.Get()
	defer con.Close()

	_, err := con.Do(predis.CommandSet, s.prefix+key, value)
	return err
}
