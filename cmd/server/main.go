// @title           File Tree API
// @version         1.0
// @description     Multi-tenant virtual file tree with sharing, edit locks and a per-owner Recycle Bin.
// @host            localhost:8080
// @schemes         http https
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
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

	"filetree-server/internal/api"
	"filetree-server/internal/auth"
	"filetree-server/internal/clock"
	"filetree-server/internal/config"
	"filetree-server/internal/database"
	"filetree-server/internal/database/memory"
	"filetree-server/internal/filetree"
	"filetree-server/internal/storage"
	"filetree-server/internal/websocket"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}

type backend struct {
	nodes  filetree.NodeStore
	users  interface {
		filetree.UserDirectory
		api.UserStore
		auth.UserCreator
	}
	events interface {
		filetree.EventSink
		api.EventReader
	}
	close func()
}

func openBackend(ctx context.Context, cfg *config.Config, hub *websocket.Hub, logger *zap.Logger) (*backend, error) {
	c := clock.System()

	if cfg.DB.Driver == "memory" {
		logger.Warn("using the in-memory store; data is lost on restart")
		return &backend{
			nodes:  memory.NewStore(c),
			users:  memory.NewUsers(),
			events: memory.NewJournal(c, hub),
			close:  func() {},
		}, nil
	}

	dbpool, err := pgxpool.New(ctx, cfg.DB.Source)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("cannot ping database: %w", err)
	}
	logger.Info("connected to database")

	store := database.NewStore(dbpool, hub, c)
	return &backend{nodes: store, users: store, events: store, close: dbpool.Close}, nil
}

func openBlobs(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (filetree.BlobStore, error) {
	if cfg.Driver == "s3" {
		logger.Info("blobs stored in S3", zap.String("bucket", cfg.S3.Bucket))
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Prefix:          cfg.S3.KeyPrefix,
		}, logger)
	}
	logger.Info("blobs stored on disk", zap.String("path", cfg.Path))
	return storage.NewLocalStorage(cfg.Path, logger)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("cannot load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("cannot build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsHub := websocket.NewHub(logger.Named("ws"))
	go wsHub.Run(ctx.Done())

	be, err := openBackend(ctx, cfg, wsHub, logger)
	if err != nil {
		return err
	}
	defer be.close()

	seeds := make([]auth.Seed, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		seeds = append(seeds, auth.Seed{Username: u.Username, PasswordHash: u.PasswordHash})
	}
	created, err := auth.SeedUsers(ctx, be.users, seeds)
	if err != nil {
		return fmt.Errorf("cannot seed users: %w", err)
	}
	if created > 0 {
		logger.Info("seeded users from configuration", zap.Int("created", created))
	}

	blobs, err := openBlobs(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("cannot initialize blob storage: %w", err)
	}

	svc, err := filetree.NewService(be.nodes, be.users, blobs,
		filetree.WithLogger(logger.Named("filetree")),
		filetree.WithEventSink(be.events),
		filetree.WithLimits(filetree.Limits{
			MaxInlineContentBytes: cfg.Limits.MaxInlineContentBytes,
			MaxUploadBytes:        cfg.Limits.MaxUploadBytes,
		}),
	)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg, svc, be.users, be.events, wsHub, logger.Named("http"))
	httpServer := server.NewHTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
