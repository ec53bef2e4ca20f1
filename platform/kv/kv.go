package kv

// Store abstracts durable key-value persistence for small pieces of local
// state like the installation device id or scheduler bookkeeping.
type Store interface {
	Del(key string) error
	Get(key string) (string, error)
	Put(key, value string) error
}
