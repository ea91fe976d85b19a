package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/sync/errgroup"

	"kestrel/internal/blobstorage"
	"kestrel/internal/conf"
	"kestrel/internal/db"
	"kestrel/internal/logging"
	"kestrel/internal/mailstore"
	"kestrel/internal/metrics"
	"kestrel/internal/server"
	"kestrel/internal/tlsutil"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: search /etc/kestrel, ./config, .)")
	envFile := flag.String("env", ".env", "Path to .env file with secrets")
	mailRoot := flag.String("root", "", "Override mail_root from the configuration")
	flag.Parse()

	cfg, err := conf.LoadConfig(*configPath)
	if err != nil {
		logger := logging.New(os.Stderr, "info", "logfmt")
		level.Error(logger).Log("msg", "failed to load configuration", "err", err)
		os.Exit(1)
	}
	if *mailRoot != "" {
		cfg.MailRoot = *mailRoot
	}

	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if err := conf.LoadEnv(cfg, *envFile); err != nil {
		level.Error(logger).Log("msg", "failed to load environment", "file", *envFile, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		level.Error(logger).Log("msg", "server stopped", "err", err)
		os.Exit(2)
	}
	level.Info(logger).Log("msg", "server stopped")
}

// run wires the store, subscription database and TLS material into the IMAP
// server and serves every configured listener until ctx ends or one fails.
func run(ctx context.Context, cfg *conf.Config, logger log.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			level.Warn(logger).Log("msg", "error closing database", "err", err)
		}
	}()

	imapServer := server.NewIMAPServer(cfg, store, db.NewSubscriptions(database), logger)

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled() {
		tlsConfig, err = tlsutil.LoadServerConfig(cfg.TLS)
		if err != nil {
			return err
		}
		imapServer.SetTLSConfig(tlsConfig)
	} else {
		level.Warn(logger).Log("msg", "no TLS certificate configured, STARTTLS disabled")
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Listen != "" {
		ln, err := net.Listen("tcp", cfg.Listen) // #nosec G102 -- IMAP binds to the configured interface
		if err != nil {
			return err
		}
		g.Go(func() error { return imapServer.Serve(ctx, ln, "imap") })
	}

	if cfg.ListenTLS != "" {
		ln, err := net.Listen("tcp", cfg.ListenTLS) // #nosec G102 -- IMAPS binds to the configured interface
		if err != nil {
			return err
		}
		g.Go(func() error { return imapServer.Serve(ctx, tls.NewListener(ln, tlsConfig), "imaps") })
	}

	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.Metrics.Listen, logger) })
	}

	level.Info(logger).Log("msg", "kestrel started", "backend", cfg.Store.Backend, "inbox", cfg.InboxFolder)
	return g.Wait()
}

func openStore(ctx context.Context, cfg *conf.Config, logger log.Logger) (mailstore.Store, error) {
	switch cfg.Store.Backend {
	case "s3":
		level.Info(logger).Log("msg", "using S3 message store", "endpoint", cfg.BlobStorage.Endpoint, "bucket", cfg.BlobStorage.Bucket)
		return blobstorage.NewS3Store(ctx, cfg.BlobStorage, logger)
	default:
		level.Info(logger).Log("msg", "using filesystem message store", "root", cfg.MailRoot)
		return mailstore.NewFSStore(cfg.MailRoot, logger), nil
	}
}

func serveMetrics(ctx context.Context, addr string, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	level.Info(logger).Log("msg", "serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
