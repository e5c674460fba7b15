package storage

import (
	"context"
	"fmt"
	"strings"

	"companion/internal/domain"
	"companion/internal/infra"
)

// Open builds the object store selected by cfg.Driver.
func Open(ctx context.Context, cfg infra.StorageConfig) (domain.ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "filesystem":
		fs, err := NewFileStore(cfg.Path, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "minio":
		ms, err := NewMinioStore(ctx, MinioOptions{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return ms, nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
