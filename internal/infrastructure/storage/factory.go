package storage

import (
	"context"
	"fmt"

	listingapp "github.com/openground/backend/internal/application/listing"
	"github.com/openground/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Store is ObjectStorage plus direct uploads
type Store interface {
	listingapp.ObjectStorage
	Upload(ctx context.Context, storageKey string, data []byte, contentType string) error
}

// New returns S3 storage when enabled (creating the bucket if needed), or an
// in-memory store otherwise.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	if !cfg.Enabled {
		logger.Warn("Object storage disabled, using in-memory store")
		return NewMemoryObjectStorage(cfg.PublicBaseURL), nil
	}
	s, err := NewS3ObjectStorage(cfg, WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("storage bucket %s: %w", cfg.Bucket, err)
	}
	logger.Info("Object storage ready", zap.String("bucket", s.Bucket()), zap.String("endpoint", cfg.Endpoint))
	return s, nil
}
