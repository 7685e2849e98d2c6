package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/minikern/minikern/pkg/content"
	contentfs "github.com/minikern/minikern/pkg/content/fs"
	contentmem "github.com/minikern/minikern/pkg/content/memory"
	contents3 "github.com/minikern/minikern/pkg/content/s3"
	"github.com/minikern/minikern/pkg/fs"
	storebadger "github.com/minikern/minikern/pkg/store/badger"
	storemem "github.com/minikern/minikern/pkg/store/memory"
)

// CreateContentStore creates a content store from configuration. The Type
// field selects the implementation; only the matching type-specific map is
// decoded.
func CreateContentStore(ctx context.Context, cfg *ContentConfig) (content.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "memory":
		return contentmem.NewMemoryStore(ctx)
	case "s3":
		return createS3ContentStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

// createFilesystemContentStore creates a filesystem-backed content store.
func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	type FilesystemContentStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg FilesystemContentStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	store, err := contentfs.NewFSStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}
	return store, nil
}

// createS3ContentStore creates an S3-backed content store.
func createS3ContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	type S3ContentStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
	}

	var storeCfg S3ContentStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}

	store, err := contents3.NewS3Store(ctx, contents3.S3Config{
		Bucket:          storeCfg.Bucket,
		Region:          storeCfg.Region,
		Endpoint:        storeCfg.Endpoint,
		AccessKeyID:     storeCfg.AccessKeyID,
		SecretAccessKey: storeCfg.SecretAccessKey,
		KeyPrefix:       storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}
	return store, nil
}

// CreateMetadataStore creates a metadata store from configuration.
func CreateMetadataStore(ctx context.Context, cfg *MetadataConfig) (fs.Store, error) {
	switch cfg.Type {
	case "memory":
		return storemem.NewMemoryStore(ctx)
	case "badger":
		return createBadgerMetadataStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Type)
	}
}

// createBadgerMetadataStore creates a badger-backed metadata store.
func createBadgerMetadataStore(ctx context.Context, options map[string]any) (fs.Store, error) {
	type BadgerMetadataStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg BadgerMetadataStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger metadata store config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("badger metadata store: path is required")
	}

	store, err := storebadger.NewBadgerStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
	}
	return store, nil
}
