package assetcache

// Storage holds the cached responses of one partition, keyed by request path.
type Storage interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, data []byte) error
	Delete(key string) error
	ForEach(fn func(key string, data []byte) bool) error
	Close() error
}

// StorageProvider manages named cache partitions.
type StorageProvider interface {
	Open(partition string) (Storage, error)
	Partitions() ([]string, error)
	Drop(partition string) error
}
