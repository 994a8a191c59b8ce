package config

import (
	"context"
	"fmt"

	"github.com/lyhellcat/TinyWebServer/internal/logger"
	"github.com/lyhellcat/TinyWebServer/pkg/docroot"
	"github.com/lyhellcat/TinyWebServer/pkg/metrics"
	"github.com/lyhellcat/TinyWebServer/pkg/store/credential"
	"github.com/lyhellcat/TinyWebServer/pkg/store/credential/badger"
	"github.com/lyhellcat/TinyWebServer/pkg/store/credential/memory"
	"github.com/mitchellh/mapstructure"
)

// CreateCredentialStore creates a credential store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/store/credential/memory (ephemeral)
//   - "badger": Uses pkg/store/credential/badger (BadgerDB, persistent)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Credential store configuration
//
// Returns:
//   - credential.Store: Initialized credential store (caller closes it)
//   - error: Configuration or initialization error
func CreateCredentialStore(ctx context.Context, cfg *CredentialsConfig) (credential.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return createMemoryCredentialStore(cfg.Memory)
	case "badger":
		return createBadgerCredentialStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown credential store type: %q (supported: memory, badger)", cfg.Type)
	}
}

// createMemoryCredentialStore creates an in-memory credential store.
func createMemoryCredentialStore(options map[string]any) (credential.Store, error) {
	var storeCfg memory.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory credential store config: %w", err)
	}
	if err := validate.Struct(&storeCfg); err != nil {
		return nil, fmt.Errorf("memory credential store: %w", formatValidationError(err))
	}

	store, err := memory.New(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory credential store: %w", err)
	}

	logger.Debug("Memory credential store initialized with %d seed user(s)", store.Len())
	return store, nil
}

// createBadgerCredentialStore creates a BadgerDB-backed credential store.
func createBadgerCredentialStore(ctx context.Context, options map[string]any) (credential.Store, error) {
	var storeCfg badger.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger credential store config: %w", err)
	}
	if err := validate.Struct(&storeCfg); err != nil {
		return nil, fmt.Errorf("badger credential store: %w", formatValidationError(err))
	}

	store, err := badger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger credential store: %w", err)
	}

	logger.Info("Badger credential store initialized: path=%s in_memory=%v", storeCfg.DBPath, storeCfg.InMemory)
	return store, nil
}

// PrepareDocumentRoot makes the configured document root ready to serve.
//
// A local root is created if missing. An s3 root is additionally filled from
// the configured bucket prefix; this blocks until every object is on disk.
//
// Parameters:
//   - ctx: Context for cancellation of the download
//   - cfg: Document root configuration
//   - m: Metrics for object storage calls (nil for none)
func PrepareDocumentRoot(ctx context.Context, cfg *DocumentRootConfig, m metrics.DocrootMetrics) error {
	switch cfg.Source {
	case "local":
		return docroot.Prepare(ctx, cfg.Path)
	case "s3":
		var s3Cfg docroot.S3Config
		if err := decodeOptions(cfg.S3, &s3Cfg); err != nil {
			return fmt.Errorf("failed to decode document_root.s3 config: %w", err)
		}

		client, err := docroot.NewS3Client(ctx, s3Cfg)
		if err != nil {
			return err
		}

		logger.Info("Syncing document root %s from s3://%s/%s (region %s)",
			cfg.Path, s3Cfg.Bucket, s3Cfg.KeyPrefix, s3Cfg.Region)
		syncer := docroot.NewSyncer(client, s3Cfg.Bucket, s3Cfg.KeyPrefix, m, logger.Default())
		_, err = syncer.Sync(ctx, cfg.Path)
		return err
	default:
		return fmt.Errorf("unknown document root source: %q (supported: local, s3)", cfg.Source)
	}
}

// decodeOptions decodes a type-specific config map into out, accepting
// YAML scalars of the wrong kind (a numeric password, a quoted port).
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}
