package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
)

// Provider deletes uploaded post assets. Folder paths follow
// {user_id}/{page_id}/{images_folder}.
type Provider interface {
	DeleteFolder(ctx context.Context, path string) error
}

type GCSProvider struct {
	client *gcs.Client
	bucket string
	log    *zap.Logger
}

func NewGCS(client *gcs.Client, bucket string, log *zap.Logger) *GCSProvider {
	return &GCSProvider{
		client: client,
		bucket: bucket,
		log:    log.Named("storage.gcs"),
	}
}

// DeleteFolder removes every object under the given prefix. Objects that
// vanish mid-iteration are ignored.
func (p *GCSProvider) DeleteFolder(ctx context.Context, path string) error {
	prefix := strings.Trim(path, "/")
	if prefix == "" {
		return errors.New("storage: empty folder path")
	}
	prefix += "/"

	bucket := p.client.Bucket(p.bucket)
	it := bucket.Objects(ctx, &gcs.Query{Prefix: prefix})

	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			if errors.Is(err, gcs.ErrObjectNotExist) {
				continue
			}
			return fmt.Errorf("delete %s: %w", attrs.Name, err)
		}
		deleted++
	}

	p.log.Info("deleted folder",
		zap.String("prefix", prefix),
		zap.Int("objects", deleted),
	)
	return nil
}

type NoOpProvider struct{}

func (p *NoOpProvider) DeleteFolder(ctx context.Context, path string) error {
	return nil
}
