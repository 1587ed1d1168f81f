package assetcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Fetcher retrieves an asset from its origin.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Cache is a versioned offline cache for a fixed list of asset paths. Name
// is the version tag; changing it orphans every older partition, which
// Activate then deletes.
type Cache struct {
	name     string
	urls     []string
	provider StorageProvider
	origin   Fetcher
	logger   *slog.Logger

	mu      sync.Mutex
	storage Storage
}

func New(name string, urls []string, provider StorageProvider, origin Fetcher, logger *slog.Logger) (*Cache, error) {
	if name == "" {
		return nil, errors.New("assetcache: name must be set")
	}
	if provider == nil {
		provider = NewMemoryProvider()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		name:     name,
		urls:     append([]string(nil), urls...),
		provider: provider,
		origin:   origin,
		logger:   logger.With("component", "assetcache", "cache", name),
	}, nil
}

func (c *Cache) Name() string { return c.name }

func (c *Cache) open() (Storage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storage != nil {
		return c.storage, nil
	}
	s, err := c.provider.Open(c.name)
	if err != nil {
		return nil, fmt.Errorf("open cache partition %s: %w", c.name, err)
	}
	c.storage = s
	return s, nil
}

// Install fetches every listed path from the origin and stores them. Nothing
// is stored unless every fetch succeeds.
func (c *Cache) Install(ctx context.Context) error {
	fetched := make(map[string][]byte, len(c.urls))
	for _, url := range c.urls {
		data, err := c.origin.Fetch(ctx, url)
		if err != nil {
			return fmt.Errorf("install %s: %w", url, err)
		}
		fetched[url] = data
	}
	s, err := c.open()
	if err != nil {
		return err
	}
	for _, url := range c.urls {
		if err := s.Save(url, fetched[url]); err != nil {
			return fmt.Errorf("store %s: %w", url, err)
		}
	}
	c.logger.Info("cache installed", "entries", len(c.urls))
	return nil
}

// Activate deletes every partition other than the current one.
func (c *Cache) Activate() error {
	names, err := c.provider.Partitions()
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if name == c.name {
			continue
		}
		if err := c.provider.Drop(name); err != nil {
			errs = append(errs, err)
			continue
		}
		c.logger.Info("stale cache deleted", "partition", name)
	}
	return errors.Join(errs...)
}

// Fetch serves path from the cache when present and from the origin
// otherwise. Origin responses are not added to the cache.
func (c *Cache) Fetch(ctx context.Context, path string) ([]byte, error) {
	s, err := c.open()
	if err != nil {
		return nil, err
	}
	data, ok, err := s.Load(path)
	if err != nil {
		c.logger.Warn("cache read failed, falling back to origin", "path", path, "err", err)
	} else if ok {
		c.logger.Debug("cache hit", "path", path)
		return data, nil
	}
	if c.origin == nil {
		return nil, fmt.Errorf("%s: not cached and no origin configured", path)
	}
	return c.origin.Fetch(ctx, path)
}

// Refresh re-fetches one cached path from the origin, replacing the stored
// copy only on success.
func (c *Cache) Refresh(ctx context.Context, path string) error {
	if !c.Covers(path) {
		return fmt.Errorf("%s is not a cached path", path)
	}
	data, err := c.origin.Fetch(ctx, path)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", path, err)
	}
	s, err := c.open()
	if err != nil {
		return err
	}
	return s.Save(path, data)
}

// Covers reports whether path is one of the cached paths.
func (c *Cache) Covers(path string) bool {
	for _, url := range c.urls {
		if url == path {
			return true
		}
	}
	return false
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storage == nil {
		return nil
	}
	err := c.storage.Close()
	c.storage = nil
	return err
}
