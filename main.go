package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/skin-check/internal/classifier"
	"github.com/example/skin-check/internal/config"
	"github.com/example/skin-check/internal/docstore"
	"github.com/example/skin-check/internal/handlers"
	"github.com/example/skin-check/internal/imageprocessor"
	"github.com/example/skin-check/internal/logging"
	"github.com/example/skin-check/internal/repository"
	"github.com/example/skin-check/internal/usecase"
)

func main() {
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}

	// run owns every resource so its defers complete before the fatal exit.
	if err := run(cfg, logger); err != nil {
		logger.Fatal("prediction API stopped", zap.Error(err))
	}
	logger.Sync() //nolint:errcheck
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	modelPath, err := classifier.FetchModel(ctx, cfg.ModelURL, cfg.ModelCacheDir, logger)
	if err != nil {
		return fmt.Errorf("fetch model from %s: %w", cfg.ModelURL, err)
	}
	model, err := classifier.NewONNXClassifier(modelPath, classifier.Options{
		SharedLibraryPath: cfg.OnnxLibraryPath,
		InputName:         cfg.ModelInputName,
		OutputName:        cfg.ModelOutputName,
		OutputShape:       cfg.ModelOutputShape,
		IntraOpThreads:    cfg.ModelIntraThreads,
	}, logger)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer model.Close()

	store, closeStore, err := initStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	repo := repository.NewPredictionRepository(store, cfg.Collection, logger)
	decoder := imageprocessor.NewDecoder(cfg.ImageHeight, cfg.ImageWidth, imageprocessor.WithMaxPixels(cfg.MaxImagePixels))
	uc := usecase.NewPredictionUseCase(repo, decoder, model, logger, usecase.WithMaxUploadBytes(cfg.MaxUploadBytes))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	handlers.RegisterRoutes(r, uc, logger, cfg.MaxUploadBytes)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("prediction API listening",
		zap.String("addr", cfg.Addr()),
		zap.String("store", cfg.StoreBackend),
		zap.Int64("max_upload_bytes", cfg.MaxUploadBytes))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func initStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (docstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client, err := initRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return docstore.NewRedisStore(client, logger), func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", zap.Error(err))
			}
		}, nil
	case config.BackendPostgres, config.BackendSQLite:
		db, err := initDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close() //nolint:errcheck
			}
		}
		store := docstore.NewGormStore(db, logger)
		if err := store.AutoMigrate(ctx); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
		return store, closeDB, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func initDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if cfg.StoreBackend == config.BackendSQLite {
		dialector = sqlite.Open(fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.SQLitePath))
	} else {
		dialector = postgres.Open(cfg.DatabaseDSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck
		return nil, fmt.Errorf("database ping: %w", err)
	}

	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
