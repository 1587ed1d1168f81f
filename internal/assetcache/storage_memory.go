package assetcache

import (
	"sort"
	"sync"
)

type MemoryProvider struct {
	mu         sync.Mutex
	partitions map[string]*memoryStorage
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{partitions: make(map[string]*memoryStorage)}
}

func (p *MemoryProvider) Open(partition string) (Storage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.partitions[partition]
	if !ok {
		s = &memoryStorage{entries: make(map[string][]byte)}
		p.partitions[partition] = s
	}
	return s, nil
}

func (p *MemoryProvider) Partitions() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.partitions))
	for name := range p.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (p *MemoryProvider) Drop(partition string) error {
	p.mu.Lock()
	delete(p.partitions, partition)
	p.mu.Unlock()
	return nil
}

type memoryStorage struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func (m *memoryStorage) Load(key string) ([]byte, bool, error) {
	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	dup := make([]byte, len(data))
	copy(dup, data)
	return dup, true, nil
}

func (m *memoryStorage) Save(key string, data []byte) error {
	m.mu.Lock()
	dup := make([]byte, len(data))
	copy(dup, data)
	m.entries[key] = dup
	m.mu.Unlock()
	return nil
}

func (m *memoryStorage) Delete(key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStorage) ForEach(fn func(key string, data []byte) bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, data := range m.entries {
		dup := make([]byte, len(data))
		copy(dup, data)
		if !fn(key, dup) {
			break
		}
	}
	return nil
}

func (m *memoryStorage) Close() error {
	return nil
}
