package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adaptive-test-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// BackupStore keeps session backups in Redis. Records expire after ttl so abandoned
// attempts do not pile up; the recovery controller still checks age itself.
type BackupStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBackupStore(client *redis.Client, ttl time.Duration) *BackupStore {
	return &BackupStore{client: client, ttl: ttl}
}

func (s *BackupStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return data, true, nil
}

func (s *BackupStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *BackupStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}
