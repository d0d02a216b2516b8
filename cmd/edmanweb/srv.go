package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"edmanweb/internal/blobstore"
	"edmanweb/internal/config"
	"edmanweb/internal/preview"
	"edmanweb/internal/server"
	"edmanweb/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the edmanweb API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			content, err := openContentStore(cfg)
			if err != nil {
				return err
			}
			logger.Info("blob store ready", "backend", content.Backend())

			bucket := blobstore.NewBucket(content, st, logger)
			srv := server.New(addr, st, bucket, serverOptions(cfg, content.Backend()), logger)
			return srv.ListenAndServe()
		},
	}
}

func openContentStore(cfg *config.Config) (blobstore.ContentStore, error) {
	switch cfg.Blobs.Backend {
	case config.BlobBackendS3:
		return blobstore.NewS3Store(blobstore.S3Config{
			Endpoint:  cfg.Blobs.S3Endpoint,
			Region:    cfg.Blobs.S3Region,
			Bucket:    cfg.Blobs.S3Bucket,
			AccessKey: cfg.Blobs.S3AccessKey,
			SecretKey: cfg.Blobs.S3SecretKey,
		})
	case config.BlobBackendLocal, "":
		if cfg.Blobs.Root == "" {
			return nil, fmt.Errorf("blob root is required")
		}
		return blobstore.NewLocalCAS(cfg.Blobs.Root)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blobs.Backend)
	}
}

func serverOptions(cfg *config.Config, backend string) server.Options {
	return server.Options{
		MaxUploadBytes:     cfg.Attachments.MaxUploadBytes,
		MultipartMaxMemory: cfg.Attachments.MultipartMaxMemory,
		Compress:           cfg.Attachments.Compress,
		GCBatchSize:        cfg.Attachments.GCBatchSize,
		PreviewExtensions:  cfg.Previews.AllowedExtensions,
		PreviewSize:        preview.Size{Width: cfg.Previews.Width, Height: cfg.Previews.Height},
		PreviewConcurrency: cfg.Previews.Concurrency,
		PreviewQuality:     cfg.Previews.JPEGQuality,
		TokenHash:          cfg.Auth.TokenHash,
		BlobBackend:        backend,
	}
}
