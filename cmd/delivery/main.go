package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-kit/kit/log/level"

	"kestrel/internal/blobstorage"
	"kestrel/internal/conf"
	"kestrel/internal/delivery"
	"kestrel/internal/logging"
	"kestrel/internal/mailstore"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: search /etc/kestrel, ./config, .)")
	recipient := flag.String("to", "", "Recipient username or email address")
	folder := flag.String("folder", "", "Target folder (default: inbox_folder from the configuration)")
	input := flag.String("file", "-", "Message file, - for stdin")
	flag.Parse()

	cfg, err := conf.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if *recipient == "" {
		level.Error(logger).Log("msg", "missing -to recipient")
		os.Exit(1)
	}
	if *folder == "" {
		*folder = cfg.InboxFolder
	}

	raw, err := readMessage(*input)
	if err != nil {
		level.Error(logger).Log("msg", "failed to read message", "file", *input, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink delivery.Sink
	if cfg.Store.Backend == "s3" {
		sink, err = blobstorage.NewS3Store(ctx, cfg.BlobStorage, logger)
		if err != nil {
			level.Error(logger).Log("msg", "failed to open S3 store", "err", err)
			os.Exit(1)
		}
	} else {
		sink = mailstore.NewFSStore(cfg.MailRoot, logger)
	}

	name, err := delivery.NewWriter(sink, *folder, logger).Deliver(ctx, *recipient, raw)
	if err != nil {
		level.Error(logger).Log("msg", "delivery failed", "to", *recipient, "err", err)
		os.Exit(2)
	}
	fmt.Println(name)
}

func readMessage(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filepath.Clean(path))
}
