package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/smsfleet/smsfleet-api/internal/config"
	"github.com/smsfleet/smsfleet-api/internal/domain/campaign"
	"github.com/smsfleet/smsfleet-api/internal/domain/credit"
	"github.com/smsfleet/smsfleet-api/internal/domain/dispatch"
	"github.com/smsfleet/smsfleet-api/internal/domain/hlr"
	"github.com/smsfleet/smsfleet-api/internal/middleware"
	"github.com/smsfleet/smsfleet-api/internal/pkg/database"
	"github.com/smsfleet/smsfleet-api/internal/pkg/logger"
	"github.com/smsfleet/smsfleet-api/internal/pkg/response"
	"github.com/smsfleet/smsfleet-api/internal/pkg/smsgateway"
	"github.com/smsfleet/smsfleet-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting SMSFleet API")

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

	// ---------- Repositories ----------
	creditRepo := credit.NewRepository(db)
	campaignRepo := campaign.NewRepository(db)
	hlrRepo := hlr.NewRepository(db)

	// ---------- Services ----------
	creditService := credit.NewService(creditRepo)
	campaignService := campaign.NewService(db, campaignRepo, creditService, files, rdb)
	hlrService := hlr.NewService(db, hlrRepo, creditService, files, cfg.HLRNumbersPerCredit, cfg.HLRRetention)

	// Workers are also reachable over HTTP so an external scheduler can
	// drive ticks without the standalone worker process.
	workerCfg := dispatch.Config{
		ChunkSize:     cfg.ChunkSize,
		Concurrency:   cfg.Concurrency,
		WavePause:     cfg.WavePause,
		LeaseDuration: cfg.LeaseDuration,
		RetryCap:      cfg.RetryCap,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
	}
	worker := dispatch.NewWorker(workerCfg, campaignRepo, files, sender)
	processor := hlr.NewProcessor(hlr.ProcessorConfig{
		ChunkSize:     cfg.ChunkSize,
		Concurrency:   cfg.Concurrency,
		LeaseDuration: cfg.LeaseDuration,
		RetryCap:      cfg.RetryCap,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
	}, hlrRepo, files, smsgateway.NewMockHLRClient())

	// ---------- Handlers ----------
	creditHandler := credit.NewHandler(creditService)
	campaignHandler := campaign.NewHandler(campaignService)
	hlrHandler := hlr.NewHandler(hlrService)

	accountMiddleware := middleware.AccountID
	adminMiddleware := middleware.AdminSecret(cfg.AdminSecret)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/campaigns", campaignHandler.Routes(accountMiddleware))
		r.Mount("/credits", creditHandler.Routes(accountMiddleware))
		r.Mount("/hlr", hlrHandler.Routes(accountMiddleware))

		// External trigger entry points
		r.Route("/worker", func(r chi.Router) {
			r.Use(adminMiddleware)

			r.Post("/tick", func(w http.ResponseWriter, req *http.Request) {
				result, err := worker.Tick(req.Context())
				if err != nil {
					log.Error().Err(err).Msg("Dispatch tick failed")
					response.InternalError(w)
					return
				}
				response.OK(w, result)
			})

			r.Post("/hlr-tick", func(w http.ResponseWriter, req *http.Request) {
				result, err := processor.Tick(req.Context())
				if err != nil {
					log.Error().Err(err).Msg("Lookup tick failed")
					response.InternalError(w)
					return
				}
				response.OK(w, result)
			})

			r.Post("/hlr-cleanup", func(w http.ResponseWriter, req *http.Request) {
				purged, err := hlrService.Cleanup(req.Context())
				if err != nil {
					log.Error().Err(err).Msg("Lookup cleanup failed")
					response.InternalError(w)
					return
				}
				response.OK(w, map[string]int{"purged": purged})
			})
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Mount("/credits", creditHandler.AdminRoutes(adminMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
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
