// Package server initializes and runs the application: database, blob
// backend, domain services, orphan sweeper and the HTTP server, with
// graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/filedrop/filedrop/internal/logging"
	"github.com/filedrop/filedrop/internal/server/accounts"
	"github.com/filedrop/filedrop/internal/server/archive"
	"github.com/filedrop/filedrop/internal/server/blob"
	"github.com/filedrop/filedrop/internal/server/config"
	"github.com/filedrop/filedrop/internal/server/db"
	"github.com/filedrop/filedrop/internal/server/files"
	"github.com/filedrop/filedrop/internal/server/httpapi"
	"github.com/filedrop/filedrop/internal/server/policy"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	server  *httpapi.Server
	sweeper *files.Sweeper
	conn    *sql.DB
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	conn, err := db.Open(context.Background(), c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	store, err := newBlobStore(c)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	pol := &policy.Policy{
		MinUsernameLen: c.MinUsernameLen,
		MinPasswordLen: c.MinPasswordLen,
		MaxBatchFiles:  c.MaxFilesPerBatch,
		MaxFileSize:    c.MaxFileSize,
	}

	accSvc := accounts.NewService(accounts.NewPostgresRepository(conn), logger)

	fileRepo := files.NewPostgresRepository(conn)
	fileSvc := files.NewService(fileRepo, store, pol, logger)
	assembler := archive.NewAssembler(fileSvc, logger)

	sweeper := files.NewSweeper(fileRepo, store, c.SweepInterval, c.SweepGrace, logger)

	handler := httpapi.NewHandler(accSvc, fileSvc, assembler, pol,
		[]byte(c.SecretKey), c.TokenValidity, logger)
	server := httpapi.New(c.EndpointAddr, handler, logger)

	return &App{
		config:  c,
		logger:  logger,
		server:  server,
		sweeper: sweeper,
		conn:    conn,
	}, nil
}

func newBlobStore(c *config.Config) (blob.Store, error) {
	switch c.BlobBackend {
	case config.BackendS3:
		return blob.NewS3Store(context.Background(), blob.S3Config{
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			Region:       c.S3Region,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	case config.BackendDisk:
		return blob.NewDiskStore(c.DataDir)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", c.BlobBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.sweeper.Start(ctx)
	defer app.sweeper.Stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.conn.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
