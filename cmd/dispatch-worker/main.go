package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/smsfleet/smsfleet-api/internal/config"
	"github.com/smsfleet/smsfleet-api/internal/domain/campaign"
	"github.com/smsfleet/smsfleet-api/internal/domain/credit"
	"github.com/smsfleet/smsfleet-api/internal/domain/dispatch"
	"github.com/smsfleet/smsfleet-api/internal/domain/hlr"
	"github.com/smsfleet/smsfleet-api/internal/pkg/database"
	"github.com/smsfleet/smsfleet-api/internal/pkg/logger"
	"github.com/smsfleet/smsfleet-api/internal/pkg/smsgateway"
	"github.com/smsfleet/smsfleet-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Dur("tick_interval", cfg.TickInterval).
		Int("chunk_size", cfg.ChunkSize).
		Msg("Starting dispatch worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	files := newStorage(cfg)
	sender := newSender(cfg)

	campaignRepo := campaign.NewRepository(db)
	hlrRepo := hlr.NewRepository(db)
	creditService := credit.NewService(credit.NewRepository(db))
	hlrService := hlr.NewService(db, hlrRepo, creditService, files, cfg.HLRNumbersPerCredit, cfg.HLRRetention)

	worker := dispatch.NewWorker(dispatch.Config{
		ChunkSize:     cfg.ChunkSize,
		Concurrency:   cfg.Concurrency,
		WavePause:     cfg.WavePause,
		LeaseDuration: cfg.LeaseDuration,
		RetryCap:      cfg.RetryCap,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
	}, campaignRepo, files, sender)

	processor := hlr.NewProcessor(hlr.ProcessorConfig{
		ChunkSize:     cfg.ChunkSize,
		Concurrency:   cfg.Concurrency,
		LeaseDuration: cfg.LeaseDuration,
		RetryCap:      cfg.RetryCap,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
	}, hlrRepo, files, smsgateway.NewMockHLRClient())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatchTick := func() {
		if _, err := worker.Tick(ctx); err != nil {
			log.Error().Err(err).Msg("Dispatch tick failed")
		}
	}
	lookupTick := func() {
		if _, err := processor.Tick(ctx); err != nil {
			log.Error().Err(err).Msg("Lookup tick failed")
		}
	}

	scheduler := cron.New()
	scheduler.AddFunc("@every "+cfg.TickInterval.String(), dispatchTick)
	scheduler.AddFunc("@every "+cfg.TickInterval.String(), lookupTick)
	scheduler.AddFunc("@daily", func() {
		if _, err := hlrService.Cleanup(ctx); err != nil {
			log.Error().Err(err).Msg("Lookup cleanup failed")
		}
	})
	scheduler.Start()

	// Redis wake-up shortens the latency between admission and first chunk;
	// the cron schedule alone is enough for correctness.
	if rdb != nil {
		go func() {
			sub := rdb.Subscribe(ctx, campaign.WakeChannel)
			defer sub.Close()

			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-sub.Channel():
					if !ok {
						return
					}
					dispatchTick()
				}
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")
	cancel()
	<-scheduler.Stop().Done()
	log.Info().Msg("Worker exited properly")
}

func newStorage(cfg *config.Config) storage.Storage {
	if cfg.StorageDriver == "s3" {
		s3, err := storage.NewS3Storage(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 storage")
		}
		return s3
	}

	local, err := storage.NewLocalStorage(cfg.LocalStorage, "/files")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create local storage")
	}
	return local
}

func newSender(cfg *config.Config) smsgateway.Sender {
	if cfg.SMSSendURL == "" {
		log.Warn().Msg("SMS gateway not configured, using mock sender")
		return smsgateway.NewMockSender()
	}

	sender, err := smsgateway.NewBeenetClient(smsgateway.BeenetConfig{
		SendURL:  cfg.SMSSendURL,
		Username: cfg.SMSUsername,
		Password: cfg.SMSPassword,
		Timeout:  cfg.SMSTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create SMS gateway client")
	}
	return sender
}
