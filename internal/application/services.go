package application

import (
	"context"
	"fmt"
	"log/slog"

	"thirdcoast.systems/mediaportal/internal/blobstore"
	"thirdcoast.systems/mediaportal/internal/config"
	"thirdcoast.systems/mediaportal/internal/db"
	"thirdcoast.systems/mediaportal/internal/gateway"
	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/internal/presets"
	"thirdcoast.systems/mediaportal/pkg/mediaservices"
)

// Services are the long lived dependencies shared by every batch.
type Services struct {
	Config  *config.Config
	Store   media.AssetRecordStore
	Blobs   *blobstore.Store
	Gateway *gateway.Gateway
	Presets *presets.Catalog

	closers []func()
}

// NewServices connects the record store, blob storage and the media services
// client described by conf.
func NewServices(ctx context.Context, conf *config.Config) (*Services, error) {
	s := &Services{Config: conf}

	catalog, err := presets.Load(conf.PresetCatalog, conf.PresetConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load preset catalog: %w", err)
	}
	s.Presets = catalog

	if err := s.openStore(ctx); err != nil {
		return nil, err
	}

	blobs, err := blobstore.New(ctx, blobstore.Config{
		Bucket:   conf.S3Bucket,
		Region:   conf.S3Region,
		Endpoint: conf.S3Endpoint,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	s.Blobs = blobs

	client := mediaservices.NewClient(mediaservices.Options{
		BaseURL: conf.MediaServicesURL,
		Account: conf.MediaServicesAccount,
		Key:     conf.MediaServicesKey,
	})
	gw, err := gateway.New(gateway.Options{
		API:          client,
		Blobs:        blobs,
		UploadPrefix: conf.S3UploadPrefix,
		PollInterval: conf.MediaServicesPollInterval,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Gateway = gw

	return s, nil
}

func (s *Services) openStore(ctx context.Context) error {
	if s.Config.RecordStore == config.RecordStoreMemory {
		slog.Warn("using the in-memory record store, records are lost on restart")
		s.Store = media.NewMemoryStore()
		return nil
	}

	pool, err := OpenDBPoolWithRetry(ctx, *s.Config)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		pool.Close()
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	s.closers = append(s.closers, dbc.Close)
	s.Store = db.NewAssetStore(dbc)
	return nil
}

// NewOrchestrator creates the orchestrator for one batch.
func (s *Services) NewOrchestrator(logger *slog.Logger) (*media.Orchestrator, error) {
	return media.NewOrchestrator(media.Options{
		Store:       s.Store,
		Gateway:     s.Gateway,
		Cleaner:     s.Gateway,
		Presets:     s.Presets,
		CopyTimeout: s.Config.CopyTimeout(),
		Logger:      logger,
	})
}

// UploadKey is the blob key an uploaded file is stored under.
func (s *Services) UploadKey(batchID, fileName string) string {
	return s.Config.S3UploadPrefix + batchID + "/" + fileName
}

func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
