package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-receptionist/internal/audit"
	"voice-receptionist/internal/auth"
	"voice-receptionist/internal/calls"
	"voice-receptionist/internal/config"
	"voice-receptionist/internal/events"
	"voice-receptionist/internal/gemini"
	"voice-receptionist/internal/knowledge"
	"voice-receptionist/internal/prompts"
	"voice-receptionist/internal/storage"
	"voice-receptionist/pkg/logger"
	"voice-receptionist/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	script, err := prompts.Load(cfg.VoiceScriptPath)
	if err != nil {
		log.Error("voice script load failed", "err", err)
		os.Exit(1)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, cfg.RedisAddr())
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	objects, err := openObjectStore(cfg, log)
	if err != nil {
		log.Error("object storage init failed", "err", err)
		os.Exit(1)
	}

	publisher, err := events.New(events.Config{
		Driver:        cfg.Events.Driver,
		KafkaBrokers:  cfg.Events.KafkaBrokers,
		KafkaTopic:    cfg.Events.KafkaTopic,
		NATSURL:       cfg.Events.NATSURL,
		SubjectPrefix: cfg.Events.SubjectPrefix,
	}, log)
	if err != nil {
		log.Error("events init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("events close failed", "err", err)
		}
	}()

	ai, err := gemini.NewClient(context.Background(), gemini.Options{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.Model,
	})
	if err != nil {
		log.Error("gemini init failed", "err", err)
		os.Exit(1)
	}

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	callRepo := calls.NewPostgresRepo(db)
	botRepo := knowledge.NewPostgresRepo(db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.MaxMultipartMemory = knowledge.MaxFileBytes * 2

	registerRoutes(r, deps{
		cfg:       cfg,
		script:    script,
		auth:      authManager,
		db:        db,
		calls:     callRepo,
		bots:      botRepo,
		audit:     auditSvc,
		ai:        ai,
		objects:   objects,
		publisher: publisher,
		limiter: knowledge.RedisLimiter{
			Client: rdb,
			Limit:  cfg.Knowledge.MaxConcurrentUploads,
			TTL:    cfg.Knowledge.PollTimeout + time.Minute,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Uploads poll the index for up to KB_POLL_TIMEOUT before responding.
		WriteTimeout: cfg.Knowledge.PollTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "events", cfg.Events.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// openObjectStore falls back to process memory outside production when no S3
// credentials are configured, so the upload flow can be exercised locally.
func openObjectStore(cfg config.Config, log *slog.Logger) (storage.ObjectStore, error) {
	if cfg.Storage.AccessKey == "" && !cfg.IsProduction() {
		log.Warn("S3 credentials not set; knowledge files are kept in memory")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewS3Store(storage.Config{
		Bucket:    cfg.Storage.Bucket,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	})
}
