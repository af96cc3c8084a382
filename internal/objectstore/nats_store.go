// Package objectstore stores exported audio artifacts, either as files in a
// directory or as objects in a NATS JetStream object store bucket, and
// announces completed exports.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const headerContentType = "Content-Type"

// NatsObjectStore keeps artifacts in a JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// NewNatsObjectStore creates the bucket, binding to it if it already exists.
func NewNatsObjectStore(jetstreamContext nats.JetStreamContext, bucket string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Exported voice studio audio (%s).", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucket, err)
		}

		store, err = jetstreamContext.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucket, err)
		}
	}

	return &NatsObjectStore{bucket: bucket, store: store}, nil
}

// Location names the bucket and key for log and CLI output.
func (n *NatsObjectStore) Location(key string) string {
	return fmt.Sprintf("nats://%s/%s", n.bucket, key)
}

// Download reads an object back.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload stores data under key with an audio/mpeg content type.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	return n.UploadWithType(ctx, key, data, contentTypeMPEG)
}

// UploadWithType stores data under key, recording contentType in the object
// headers.
func (n *NatsObjectStore) UploadWithType(_ context.Context, key string, data []byte, contentType string) error {
	headers := nats.Header{}
	headers.Set(headerContentType, contentType)

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:    key,
		Headers: headers,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}
