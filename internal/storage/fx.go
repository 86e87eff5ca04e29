package storage

import (
	"context"

	gcs "cloud.google.com/go/storage"
	"github.com/changespage/changespage/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Provider, error) {
	if cfg.Storage.Bucket == "" {
		log.Warn("storage bucket not configured, image cleanup disabled")
		return &NoOpProvider{}, nil
	}

	client, err := gcs.NewClient(context.Background())
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewGCS(client, cfg.Storage.Bucket, log), nil
}
