package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"runtime/debug"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"kestrel/internal/conf"
	"kestrel/internal/mailstore"
	"kestrel/internal/metrics"
	"kestrel/internal/models"
	"kestrel/internal/server/mailbox"
)

// Greeting is the untagged line sent when a connection is accepted
const Greeting = "* OK IMAP4 Service Ready."

type IMAPServer struct {
	cfg       *conf.Config
	store     mailstore.Store
	subs      mailbox.Subscriptions
	tlsConfig *tls.Config
	logger    log.Logger
}

// NewIMAPServer creates a server reading messages from store. subs may be nil,
// in which case SUBSCRIBE and LSUB answer NO.
func NewIMAPServer(cfg *conf.Config, store mailstore.Store, subs mailbox.Subscriptions, logger log.Logger) *IMAPServer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &IMAPServer{
		cfg:    cfg,
		store:  store,
		subs:   subs,
		logger: logger,
	}
}

// SetTLSConfig enables STARTTLS with the given server configuration
func (s *IMAPServer) SetTLSConfig(c *tls.Config) {
	s.tlsConfig = c
}

// Store returns the message backend
func (s *IMAPServer) Store() mailstore.Store {
	return s.store
}

// InboxFolder returns the directory name reported as INBOX
func (s *IMAPServer) InboxFolder() string {
	return s.cfg.InboxFolder
}

// TLSConfig returns the STARTTLS configuration, nil when TLS is not configured
func (s *IMAPServer) TLSConfig() *tls.Config {
	return s.tlsConfig
}

// Subscriptions returns the subscription store, possibly nil
func (s *IMAPServer) Subscriptions() mailbox.Subscriptions {
	return s.subs
}

// Serve accepts connections on ln until ctx is cancelled. service labels the
// listener in logs and metrics ("imap", "imaps").
func (s *IMAPServer) Serve(ctx context.Context, ln net.Listener, service string) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-done:
		}
	}()

	level.Info(s.logger).Log("msg", "listening", "service", service, "addr", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				level.Warn(s.logger).Log("msg", "accept timeout", "service", service, "err", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}
		go s.HandleConnection(ctx, conn, service)
	}
}

// HandleConnection serves one client until it logs out, fails or the context
// ends. A panic only takes down this connection.
func (s *IMAPServer) HandleConnection(ctx context.Context, conn net.Conn, service string) {
	logger := log.With(s.logger, "service", service, "remote", remoteAddr(conn))

	state := &models.ClientState{
		Conn: conn,
		TLS:  isTLS(conn),
	}

	defer func() {
		if r := recover(); r != nil {
			level.Error(logger).Log("msg", "connection panic", "panic", r, "stack", string(debug.Stack()))
		}
		_ = state.Conn.Close()
		level.Debug(logger).Log("msg", "connection closed")
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	metrics.Connections.WithLabelValues(service).Inc()
	level.Debug(logger).Log("msg", "connection accepted", "tls", state.TLS)

	sess := newSession(s, state, logger)
	sess.SendResponse(conn, Greeting)
	if sess.writeErr != nil {
		return
	}
	sess.serve(ctx)
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// isTLS reports whether conn is encrypted. Test doubles signal TLS through IsTLS.
func isTLS(conn net.Conn) bool {
	if _, ok := conn.(*tls.Conn); ok {
		return true
	}
	type tlsAware interface{ IsTLS() bool }
	if ta, ok := conn.(tlsAware); ok {
		return ta.IsTLS()
	}
	return false
}
