package assetcache

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	diskOpDelete byte = 0
	diskOpSet    byte = 1

	diskHeaderSize = 7
	diskLogName    = "entries.log"
)

// DiskProvider keeps each partition in its own directory beneath basePath as
// an append-only log of set and delete records.
type DiskProvider struct {
	basePath string
}

func NewDiskProvider(basePath string) *DiskProvider {
	return &DiskProvider{basePath: basePath}
}

func (p *DiskProvider) partitionDir(partition string) (string, error) {
	if partition == "" || partition == "." || partition == ".." || strings.ContainsAny(partition, `/\`) {
		return "", fmt.Errorf("invalid cache partition name %q", partition)
	}
	return filepath.Join(p.basePath, partition), nil
}

func (p *DiskProvider) Open(partition string) (Storage, error) {
	dir, err := p.partitionDir(partition)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition directory: %w", err)
	}
	return newDiskStorage(filepath.Join(dir, diskLogName))
}

func (p *DiskProvider) Partitions() ([]string, error) {
	entries, err := os.ReadDir(p.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (p *DiskProvider) Drop(partition string) error {
	dir, err := p.partitionDir(partition)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove partition %s: %w", partition, err)
	}
	return nil
}

type diskRecordMeta struct {
	offset int64
	keyLen uint16
	size   uint32
}

type diskStorage struct {
	file    *os.File
	mu      sync.RWMutex
	records map[string]diskRecordMeta
}

func newDiskStorage(path string) (*diskStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open cache log: %w", err)
	}
	s := &diskStorage{
		file:    f,
		records: make(map[string]diskRecordMeta),
	}
	if err := s.loadIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// loadIndex replays the log so that the last record per key wins.
func (s *diskStorage) loadIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind cache log: %w", err)
	}

	header := make([]byte, diskHeaderSize)
	var offset int64
	for {
		if _, err := io.ReadFull(s.file, header); err != nil {
			if err == io.EOF {
				break
			}
			if err == io.ErrUnexpectedEOF {
				return fmt.Errorf("truncated cache record header: %w", err)
			}
			return fmt.Errorf("read cache record header: %w", err)
		}
		op := header[0]
		keyLen := binary.LittleEndian.Uint16(header[1:3])
		size := binary.LittleEndian.Uint32(header[3:7])
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(s.file, key); err != nil {
			return fmt.Errorf("read cache record key: %w", err)
		}
		recordOffset := offset
		offset += diskHeaderSize + int64(keyLen) + int64(size)

		if _, err := s.file.Seek(int64(size), io.SeekCurrent); err != nil {
			return fmt.Errorf("seek past payload: %w", err)
		}
		if op == diskOpSet {
			s.records[string(key)] = diskRecordMeta{offset: recordOffset, keyLen: keyLen, size: size}
		} else {
			delete(s.records, string(key))
		}
	}
	return nil
}

func (s *diskStorage) Load(key string) ([]byte, bool, error) {
	s.mu.RLock()
	meta, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	payload := make([]byte, meta.size)
	at := meta.offset + diskHeaderSize + int64(meta.keyLen)
	if _, err := s.file.ReadAt(payload, at); err != nil {
		return nil, false, fmt.Errorf("read payload for %s: %w", key, err)
	}
	return payload, true, nil
}

func (s *diskStorage) append(op byte, key string, payload []byte) (int64, error) {
	if len(key) > 0xffff {
		return 0, fmt.Errorf("cache key too long: %d bytes", len(key))
	}
	header := make([]byte, diskHeaderSize)
	header[0] = op
	binary.LittleEndian.PutUint16(header[1:3], uint16(len(key)))
	binary.LittleEndian.PutUint32(header[3:7], uint32(len(payload)))

	offset, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek cache log end: %w", err)
	}
	record := make([]byte, 0, len(header)+len(key)+len(payload))
	record = append(record, header...)
	record = append(record, key...)
	record = append(record, payload...)
	if _, err := s.file.Write(record); err != nil {
		return 0, fmt.Errorf("write cache record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return 0, fmt.Errorf("sync cache log: %w", err)
	}
	return offset, nil
}

func (s *diskStorage) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset, err := s.append(diskOpSet, key, data)
	if err != nil {
		return err
	}
	s.records[key] = diskRecordMeta{offset: offset, keyLen: uint16(len(key)), size: uint32(len(data))}
	return nil
}

func (s *diskStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.append(diskOpDelete, key, nil); err != nil {
		return err
	}
	delete(s.records, key)
	return nil
}

func (s *diskStorage) ForEach(fn func(key string, data []byte) bool) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		data, ok, err := s.Load(key)
		if err != nil {
			slog.Warn("cache log load failed", "key", key, "err", err)
			continue
		}
		if !ok {
			continue
		}
		if !fn(key, data) {
			break
		}
	}
	return nil
}

func (s *diskStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
