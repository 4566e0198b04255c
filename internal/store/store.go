package store

type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, expiresAtMs int64)
	Del(key string) bool
	Expire(key string, expiresAtMs int64) bool
	// TTL returns remaining whole seconds rounded up, -1 for no expiration
	// and -2 for an absent key.
	TTL(key string) int64
}
