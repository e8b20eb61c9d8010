// Package objectstore implements the pipeline blob store on NATS JetStream.
// The worker uses it to fetch text jobs and deliver synthesized audio.
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

// AudioBucket is a core.ObjectStore backed by a JetStream object store
// bucket. Creation is create-first: the bucket is created if absent, bound
// otherwise, so the first worker to start owns provisioning.
type AudioBucket struct {
	bucket string
	store  nats.ObjectStore
}

// New creates or binds the named bucket.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*AudioBucket, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Synthesized audio and job text for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &AudioBucket{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves a blob by key.
func (b *AudioBucket) Download(ctx context.Context, key string) ([]byte, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("download of '%s' aborted: %w", key, ctxErr)
	}

	obj, err := b.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, b.bucket, err)
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

// Upload saves a blob under the given key.
func (b *AudioBucket) Upload(ctx context.Context, key string, data []byte) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("upload of '%s' aborted: %w", key, ctxErr)
	}

	_, err := b.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, b.bucket, err)
	}

	return nil
}
