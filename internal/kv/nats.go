package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/nats-io/nats.go"
)

// NatsStore keeps local state in a JetStream key-value bucket.
type NatsStore struct {
	bucket string
	kv     nats.KeyValue
}

// NewNatsStore creates the bucket, binding to it when it already exists. One
// revision per key is kept since every write replaces the whole collection.
func NewNatsStore(jetstreamContext nats.JetStreamContext, bucket string) (*NatsStore, error) {
	store, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Voice studio local state (%s).", bucket),
		History:     1,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		existing, bindErr := jetstreamContext.KeyValue(bucket)
		if bindErr != nil {
			return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", bucket, err)
		}

		store = existing
	}

	return &NatsStore{bucket: bucket, kv: store}, nil
}

// Get returns the latest value under key or core.ErrKeyNotFound.
func (s *NatsStore) Get(_ context.Context, key string) ([]byte, error) {
	err := ValidateKey(key)
	if err != nil {
		return nil, err
	}

	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, core.ErrKeyNotFound
		}

		return nil, fmt.Errorf("failed to get key '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	return entry.Value(), nil
}

// Put replaces the value under key.
func (s *NatsStore) Put(_ context.Context, key string, value []byte) error {
	err := ValidateKey(key)
	if err != nil {
		return err
	}

	_, err = s.kv.Put(key, value)
	if err != nil {
		return fmt.Errorf("failed to put key '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}
