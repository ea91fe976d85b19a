package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"kestrel/internal/mailstore"
	"kestrel/internal/models"
	"kestrel/internal/parser"
)

// HandshakeTimeout bounds the TLS negotiation after STARTTLS
const HandshakeTimeout = 30 * time.Second

// ServerDeps defines the dependencies that auth handlers need from the server
type ServerDeps interface {
	SendResponse(conn net.Conn, response string)
	Logger() log.Logger
	Store() mailstore.Store
	InboxFolder() string
	TLSConfig() *tls.Config
}

// ===== CAPABILITY =====

func HandleCapability(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	capabilities := []string{"IMAP4", "IMAP4rev1", "AUTH=PLAIN"}

	// STARTTLS is only offered while the channel is still plaintext
	if deps.TLSConfig() != nil && !state.TLS {
		capabilities = append(capabilities, "STARTTLS")
	}

	deps.SendResponse(conn, "* CAPABILITY "+strings.Join(capabilities, " "))
	deps.SendResponse(conn, fmt.Sprintf("%s OK CAPABILITY completed.", cmd.Tag))
}

// ===== LOGIN =====

// HandleLogin accepts any credentials. The password is the last argument and
// the login name the one before it; the mailbox owner is the local part of
// the login name.
func HandleLogin(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	fields := cmd.Fields()
	if len(fields) < 2 {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD LOGIN requires username and password", cmd.Tag))
		return
	}

	email := fields[len(fields)-2]
	username := parser.ExtractLocalPart(email)
	if err := mailstore.CheckName(username); err != nil {
		level.Info(deps.Logger()).Log("msg", "login rejected", "user", email, "err", err)
		deps.SendResponse(conn, fmt.Sprintf("%s BAD LOGIN failed.", cmd.Tag))
		return
	}

	count, err := mailstore.Count(ctx, deps.Store(), username, deps.InboxFolder())
	if err != nil {
		if !errors.Is(err, mailstore.ErrFolderNotFound) {
			level.Error(deps.Logger()).Log("msg", "failed to count inbox", "user", username, "err", err)
			deps.SendResponse(conn, fmt.Sprintf("%s NO LOGIN failed.", cmd.Tag))
			return
		}
		level.Info(deps.Logger()).Log("msg", "inbox missing, counting as empty", "user", username, "folder", deps.InboxFolder())
	}

	state.Login(username, email, count)
	level.Info(deps.Logger()).Log("msg", "login", "user", username, "messages", count)
	deps.SendResponse(conn, fmt.Sprintf("%s OK LOGIN completed.", cmd.Tag))
}

// ===== AUTHENTICATE =====

func HandleAuthenticate(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	deps.SendResponse(conn, fmt.Sprintf("%s NO AUTHENTICATE not implemented", cmd.Tag))
}

// ===== STARTTLS =====

// HandleStartTLS upgrades the connection in place. On success state.Conn is
// the TLS connection and the caller continues reading from it; on a failed
// handshake the connection is closed.
func HandleStartTLS(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	if strings.TrimSpace(cmd.Args) != "" {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD STARTTLS command does not accept arguments", cmd.Tag))
		return
	}

	if state.TLS {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD TLS already active", cmd.Tag))
		return
	}

	if state.Authenticated {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD STARTTLS not permitted after LOGIN", cmd.Tag))
		return
	}

	tlsConfig := deps.TLSConfig()
	if tlsConfig == nil {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD TLS not available", cmd.Tag))
		return
	}

	deps.SendResponse(conn, fmt.Sprintf("%s OK Begin TLS negotiation now", cmd.Tag))

	tlsConn := tls.Server(conn, tlsConfig)
	_ = conn.SetDeadline(time.Now().Add(HandshakeTimeout))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		level.Info(deps.Logger()).Log("msg", "TLS handshake failed", "err", err)
		_ = conn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})

	state.Conn = tlsConn
	state.TLS = true
	level.Debug(deps.Logger()).Log("msg", "TLS established", "version", tls.VersionName(tlsConn.ConnectionState().Version))
}

// ===== LOGOUT =====

func HandleLogout(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	deps.SendResponse(conn, "* BYE IMAP4 Server logging out")
	deps.SendResponse(conn, fmt.Sprintf("%s OK LOGOUT completed.", cmd.Tag))
}
