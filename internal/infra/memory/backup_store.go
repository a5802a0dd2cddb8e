package memory

import (
	"context"
	"sync"
)

// BackupStore is a process-local key/value store for session backups.
type BackupStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewBackupStore() *BackupStore {
	return &BackupStore{data: make(map[string][]byte)}
}

func (s *BackupStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *BackupStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *BackupStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
