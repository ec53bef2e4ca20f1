package kv

import "sync"

type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

// MemStore returns a memory based Store implementation.
func MemStore() Store {
	return &memStore{
		values: map[string]string{},
	}
}

func (s *memStore) Del(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)

	return nil
}

func (s *memStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return "", wrapError(ErrKeyNotFound, "%s", key)
	}

	return v, nil
}

func (s *memStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value

	return nil
}
