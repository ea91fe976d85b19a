// Package logging builds the go-kit logger shared by the server components.
package logging

import (
	"io"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// New returns a logger writing to w in the given format ("json" or "logfmt")
// that drops records below lvl. Every record carries a UTC timestamp.
func New(w io.Writer, lvl, format string) log.Logger {
	var logger log.Logger
	if strings.EqualFold(format, "json") {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	return level.NewFilter(logger, Allow(lvl))
}

// Allow maps a level name onto a go-kit level option, defaulting to info
func Allow(lvl string) level.Option {
	switch strings.ToLower(lvl) {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
