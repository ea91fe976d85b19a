// Package delivery writes incoming messages into a user's folder using the
// timestamped filenames the IMAP server derives UIDs from.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"kestrel/internal/mailstore"
	"kestrel/internal/parser"
)

var (
	// ErrEmptyMessage is returned when there is nothing to deliver
	ErrEmptyMessage = errors.New("empty message")
	// ErrNoFreeName is returned when every candidate filename is taken
	ErrNoFreeName = errors.New("no free message filename")
)

// maxAttempts bounds the search for a free filename, 0.1s apart each
const maxAttempts = 100

// Sink is implemented by the message backends that accept new messages
type Sink interface {
	Exists(ctx context.Context, user, folder, name string) (bool, error)
	Put(ctx context.Context, user, folder, name string, raw []byte) error
}

// Writer delivers messages to one folder of each recipient
type Writer struct {
	sink   Sink
	folder string
	logger log.Logger

	// Now is the clock used to name messages
	Now func() time.Time
}

// NewWriter creates a writer storing into folder of each recipient
func NewWriter(sink Sink, folder string, logger log.Logger) *Writer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Writer{
		sink:   sink,
		folder: folder,
		logger: logger,
		Now:    time.Now,
	}
}

// Deliver stores raw for recipient (a username or an email address) and
// returns the filename it was stored under. When the name for the current
// time is taken the timestamp advances by 0.1s, so every delivered message
// gets its own UID. Concurrent writers to one folder are not coordinated.
func (w *Writer) Deliver(ctx context.Context, recipient string, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", ErrEmptyMessage
	}

	user := parser.ExtractLocalPart(recipient)
	if err := mailstore.CheckName(user); err != nil {
		return "", fmt.Errorf("invalid recipient: %w", err)
	}

	logger := log.With(w.logger, "user", user, "folder", w.folder)
	if domain, err := parser.ExtractDomain(recipient); err == nil {
		logger = log.With(logger, "domain", domain)
	}
	if from, err := parser.From(string(raw)); err == nil {
		logger = log.With(logger, "from", from.Email())
	} else if errors.Is(err, parser.ErrFieldMissing) {
		level.Debug(logger).Log("msg", "message has no From header")
	}

	t := w.Now()
	for i := 0; i < maxAttempts; i++ {
		name := mailstore.FormatFilename(t)

		taken, err := w.sink.Exists(ctx, user, w.folder, name)
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", name, err)
		}
		if taken {
			t = t.Add(100 * time.Millisecond)
			continue
		}

		if err := w.sink.Put(ctx, user, w.folder, name, raw); err != nil {
			return "", err
		}
		level.Info(logger).Log("msg", "message delivered", "file", name, "size", len(raw))
		return name, nil
	}

	return "", fmt.Errorf("%s/%s: %w", user, w.folder, ErrNoFreeName)
}
