package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/akshayp/chirpmedia/internal/config"
	"github.com/akshayp/chirpmedia/internal/handlers"
	"github.com/akshayp/chirpmedia/internal/models"
	"github.com/akshayp/chirpmedia/internal/storage"
	"github.com/akshayp/chirpmedia/internal/tracing"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	log.Info().Msg("starting chirpmedia service")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log.Info().Str("service", cfg.ServiceName).Str("port", cfg.ServicePort).Msg("config loaded")

	shutdownTracer, err := tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Warn().Err(err).Msg("error shutting down tracer")
		}
	}()

	objects, err := storage.NewObjectStore(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucketName,
		cfg.MinIOUseSSL,
		log,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object store")
	}
	log.Info().Str("endpoint", cfg.MinIOEndpoint).Msg("object store ready")

	assets, err := storage.NewAssetStore(cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize asset store")
	}
	defer assets.Close()
	log.Info().Msg("asset store ready")

	sessions, err := storage.NewSessionStore(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session store")
	}
	defer sessions.Close()
	log.Info().Msg("session store ready")

	upload := handlers.NewUploadHandler(objects, sessions, assets, cfg.MaxVideoSize(), log)
	media := handlers.NewMediaHandler(objects, assets, log)

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.Handle("/upload/config",
		otelhttp.NewHandler(handlers.Limits(models.UploadLimits{
			PostChunkSize:       cfg.PostChunkSize(),
			StandaloneChunkSize: cfg.StandaloneChunkSize(),
			MaxImageSize:        cfg.MaxImageSize(),
			MaxVideoSize:        cfg.MaxVideoSize(),
		}), "GET /upload/config")).Methods("GET")
	router.Handle("/upload/initialize",
		otelhttp.NewHandler(http.HandlerFunc(upload.Initialize), "POST /upload/initialize")).Methods("POST")
	router.Handle("/upload/chunk",
		otelhttp.NewHandler(http.HandlerFunc(upload.Chunk), "POST /upload/chunk")).Methods("POST")
	router.Handle("/upload/complete",
		otelhttp.NewHandler(http.HandlerFunc(upload.Complete), "POST /upload/complete")).Methods("POST")
	router.Handle("/media/{media_id}",
		otelhttp.NewHandler(media, "GET /media/{media_id}")).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.ServicePort).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
