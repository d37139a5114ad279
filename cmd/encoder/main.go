package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"thirdcoast.systems/mediaportal/internal/application"
	"thirdcoast.systems/mediaportal/internal/config"
	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/internal/presets"
	"thirdcoast.systems/mediaportal/pkg/utils/filename"
	"thirdcoast.systems/mediaportal/pkg/utils/format"
)

func main() {
	pflag.StringSlice("file", nil, "local media file to encode (repeatable)")
	pflag.String("presets", "H264 Broadband 720p", "encoder presets, separated by --delimiter")
	pflag.String("delimiter", ",", "separator of the --presets list")
	pflag.String("processor", "", "media processor, DEFAULT_PROCESSOR when empty")
	pflag.String("protection", "0", "protection code: 0 none, 1 storage, 2 common, 3 envelope")
	pflag.Duration("expiration", media.DefaultExpiration, "lifetime of the published assets")
	pflag.Duration("max-poll", 10*time.Second, "longest wait between batch steps")
	pflag.Parse()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		slog.Error("failed to bind flags", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting encoder")

	if err := run(ctx); err != nil {
		slog.Error("encoding failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	files := viper.GetStringSlice("file")
	if len(files) == 0 {
		return fmt.Errorf("at least one --file is required")
	}

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc, err := application.NewServices(ctx, conf)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svc.Close()

	batchID := uuid.NewString()
	log := slog.With("batch_id", batchID)

	o, err := svc.NewOrchestrator(log)
	if err != nil {
		return err
	}
	defer o.Dispose()

	for _, path := range files {
		src, err := uploadSource(ctx, svc, batchID, path)
		if err != nil {
			return err
		}
		if err := o.AddInputFile(src); err != nil {
			return err
		}
		log.Info("uploaded source", "file", src.Name, "size", format.Size(src.Size), "key", src.Ref)
	}

	processor := viper.GetString("processor")
	if processor == "" {
		processor = conf.DefaultProcessor
	}
	err = o.Configure(ctx, media.BatchOptions{
		Files:       o.InputFiles(),
		Encoders:    presets.ParseList(viper.GetString("presets"), viper.GetString("delimiter")),
		ProcessorID: processor,
		Protection:  media.ParseProtectionCode(viper.GetString("protection")),
		Expiration:  viper.GetDuration("expiration"),
	})
	if err != nil {
		return err
	}

	r := &runner{batch: o, maxWait: viper.GetDuration("max-poll"), log: log}
	start := time.Now()
	if _, err := r.run(ctx); err != nil {
		return err
	}
	log.Info("Encoding completed", "files", len(files), "elapsed", format.JobDuration(time.Since(start)))
	return nil
}

func uploadSource(ctx context.Context, svc *application.Services, batchID, path string) (media.SourceFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return media.SourceFile{}, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return media.SourceFile{}, fmt.Errorf("stat source: %w", err)
	}

	name := filepath.Base(path)
	key := svc.UploadKey(batchID, filename.Sanitize(name, filename.DefaultMaxLen))
	if err := svc.Blobs.Put(ctx, key, f, "application/octet-stream"); err != nil {
		return media.SourceFile{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return media.SourceFile{Name: name, Size: info.Size(), Ref: key}, nil
}
