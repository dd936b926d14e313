package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/tripreport/backend/internal/config"
)

// Open builds the FileStore selected by cfg.StorageProvider. Stores that
// hold connections also implement io.Closer.
func Open(ctx context.Context, cfg *config.Config) (FileStore, error) {
	var (
		fs  FileStore
		err error
	)
	switch cfg.StorageProvider {
	case config.StorageCloudinary:
		fs, err = NewCloudinaryStore(cfg.CloudinaryURL)
	case config.StorageGCS:
		fs, err = NewGCSStore(ctx, cfg.GCSBucket)
	case config.StorageDisk:
		fs, err = NewDiskStore(cfg.UploadDir, strings.TrimRight(cfg.PublicBaseURL, "/")+"/uploads")
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.StorageProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.StorageProvider, err)
	}
	return fs, nil
}
