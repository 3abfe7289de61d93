package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/cartwise/internal/backup"
	"github.com/dukerupert/cartwise/internal/config"
	"github.com/dukerupert/cartwise/internal/database"
	"github.com/dukerupert/cartwise/internal/events"
	"github.com/dukerupert/cartwise/internal/extract"
	"github.com/dukerupert/cartwise/internal/feed"
	"github.com/dukerupert/cartwise/internal/logging"
	"github.com/dukerupert/cartwise/internal/metrics"
	"github.com/dukerupert/cartwise/internal/middleware"
	"github.com/dukerupert/cartwise/internal/receipts"
	"github.com/dukerupert/cartwise/internal/server"
	"github.com/dukerupert/cartwise/internal/shopping"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cartwise: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	m := metrics.New()

	hub := feed.NewHub(logger.With("component", "feed"))
	hub.OnDrop(func(feed.Snapshot) { m.FeedDropped.Inc() })

	var images receipts.Store = receipts.NewMemoryStore()
	s3cfg := receipts.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		PathStyle: cfg.S3PathStyle,
	}
	if s3cfg.Enabled() {
		client, err := receipts.NewS3Client(ctx, s3cfg)
		if err != nil {
			return fmt.Errorf("s3 client: %w", err)
		}
		s3store, err := receipts.NewS3Store(s3cfg, client)
		if err != nil {
			return fmt.Errorf("receipt storage: %w", err)
		}
		images = s3store
		logger.Info("receipt images stored in S3", "bucket", cfg.S3Bucket)

		if cfg.BackupInterval > 0 {
			backups, err := backup.NewManager(backup.Config{
				Bucket:    cfg.S3Bucket,
				Retention: cfg.BackupRetention,
			}, db, client, cfg.BackupPassphrase, logger.With("component", "backup"))
			if err != nil {
				return fmt.Errorf("backups: %w", err)
			}
			backups.OnStatus(func(_ backup.Status, err error) {
				if err != nil {
					m.Backups.WithLabelValues(metrics.OutcomeError).Inc()
					return
				}
				m.Backups.WithLabelValues(metrics.OutcomeOK).Inc()
			})
			go backups.Run(ctx, cfg.BackupInterval)
			logger.Info("database backups enabled", "interval", cfg.BackupInterval)
		}
	} else {
		logger.Warn("no S3 bucket configured, receipt images kept in memory")
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqp, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger.With("component", "events"))
		if err != nil {
			return fmt.Errorf("connect AMQP: %w", err)
		}
		defer amqp.Close()
		publisher = amqp
	}

	if cfg.ExtractURL == "" {
		logger.Warn("no extraction service configured, receipt analysis disabled")
	}
	extractor := extract.NewHTTPClient(extract.Config{
		URL:     cfg.ExtractURL,
		APIKey:  cfg.ExtractAPIKey,
		Timeout: cfg.ExtractTimeout,
	})

	svc, err := shopping.NewService(shopping.Deps{
		DB:        db,
		Hub:       hub,
		Extractor: extractor,
		Receipts:  images,
		Events:    publisher,
		Metrics:   m,
		Logger:    logger.With("component", "shopping"),
		CacheSize: cfg.CacheSize,
		Currency:  cfg.Currency,
	})
	if err != nil {
		return err
	}

	limiter := middleware.NewLimiter(cfg.ReceiptRateLimit, time.Minute)
	go limiter.Run(ctx)

	srv := server.New(db, svc, m, server.Options{Locale: cfg.Locale, Limiter: limiter}, logger)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cartwise running", "addr", "http://localhost:"+cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
