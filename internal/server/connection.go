package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"kestrel/internal/metrics"
	"kestrel/internal/models"
	"kestrel/internal/server/auth"
	"kestrel/internal/server/extension"
	"kestrel/internal/server/mailbox"
	"kestrel/internal/server/message"
	"kestrel/internal/server/middleware"
	"kestrel/internal/server/selection"
	"kestrel/internal/server/uid"
)

var (
	// ErrMalformedInput is returned when a request line is not valid UTF-8
	ErrMalformedInput = errors.New("malformed input")
	// ErrTooManyBadCommands ends a connection after consecutive unrecognised commands
	ErrTooManyBadCommands = errors.New("too many unrecognised commands")
)

// session carries one connection through the command loop. It implements the
// ServerDeps interfaces of the handler packages.
type session struct {
	*IMAPServer
	state    *models.ClientState
	logger   log.Logger
	reader   *bufio.Reader
	handlers map[models.Verb]middleware.HandlerFunc

	tag      string // tag of the command being handled
	status   string // completion of the command being handled: OK, NO or BAD
	writeErr error
}

func newSession(s *IMAPServer, state *models.ClientState, logger log.Logger) *session {
	sess := &session{
		IMAPServer: s,
		state:      state,
		logger:     logger,
		reader:     bufio.NewReader(state.Conn),
	}
	sess.handlers = sess.buildHandlers()
	return sess
}

func (s *session) buildHandlers() map[models.Verb]middleware.HandlerFunc {
	authed := func(h middleware.HandlerFunc) middleware.HandlerFunc {
		return middleware.RequireAuth(s, h)
	}
	selected := func(h middleware.HandlerFunc) middleware.HandlerFunc {
		return middleware.RequireAuthAndMailbox(s, h)
	}

	return map[models.Verb]middleware.HandlerFunc{
		models.Unrecognised: s.handleUnrecognised,
		models.Capability: func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			auth.HandleCapability(ctx, s, conn, cmd, state)
		},
		models.Noop: func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			extension.HandleNoop(ctx, s, conn, cmd, state)
		},
		models.Login: middleware.ValidateMinArgs(s, 2, "LOGIN requires username and password", func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			auth.HandleLogin(ctx, s, conn, cmd, state)
		}),
		models.Authenticate: func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			auth.HandleAuthenticate(ctx, s, conn, cmd, state)
		},
		models.StartTLS: func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			auth.HandleStartTLS(ctx, s, conn, cmd, state)
		},
		models.Logout: func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			auth.HandleLogout(ctx, s, conn, cmd, state)
		},
		models.List: authed(func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			mailbox.HandleList(ctx, s, conn, cmd, state)
		}),
		models.Lsub: authed(func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			mailbox.HandleLsub(ctx, s, conn, cmd, state)
		}),
		models.Subscribe: authed(func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			mailbox.HandleSubscribe(ctx, s, conn, cmd, state)
		}),
		models.Create: authed(func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			mailbox.HandleCreate(ctx, s, conn, cmd, state)
		}),
		models.Status: authed(func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			mailbox.HandleStatus(ctx, s, conn, cmd, state)
		}),
		models.Select: authed(middleware.ValidateMinArgs(s, 1, "SELECT requires mailbox name", func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			selection.HandleSelect(ctx, s, conn, cmd, state)
		})),
		models.Fetch: selected(func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			message.HandleFetch(ctx, s, conn, cmd, state)
		}),
		models.UID: selected(func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
			uid.HandleUID(ctx, s, conn, cmd, state)
		}),
	}
}

// serve runs the read/dispatch loop until the session ends
func (s *session) serve(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		line, err := s.readLine()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				level.Debug(s.logger).Log("msg", "client went away")
			case errors.Is(err, ErrMalformedInput):
				level.Warn(s.logger).Log("msg", "closing connection", "err", err)
			default:
				level.Info(s.logger).Log("msg", "read failed", "err", err)
			}
			return
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		if !s.dispatch(ctx, models.ParseCommand(line)) {
			return
		}
	}
}

// readLine reads one CRLF (or LF) terminated request line
func (s *session) readLine() (string, error) {
	_ = s.state.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout()))

	line, err := s.reader.ReadString('\n')
	if err != nil {
		// a final line without terminator is still served
		if !errors.Is(err, io.EOF) || line == "" {
			return "", err
		}
	}

	if !utf8.ValidString(line) {
		return "", ErrMalformedInput
	}
	return line, nil
}

// dispatch runs one command and reports whether the session continues
func (s *session) dispatch(ctx context.Context, cmd *models.Command) bool {
	level.Debug(s.logger).Log("msg", "command", "tag", cmd.Tag, "cmd", cmd.Verb, "args", loggableArgs(cmd))

	s.tag = cmd.Tag
	s.status = ""
	start := time.Now()

	if cmd.Verb != models.Unrecognised {
		s.state.BadAttempts = 0
	}

	conn := s.state.Conn
	s.handlers[cmd.Verb](ctx, conn, cmd, s.state)

	metrics.Commands.WithLabelValues(strings.ToLower(cmd.Verb.String()), s.result()).Observe(time.Since(start).Seconds())

	if s.writeErr != nil {
		return false
	}

	// STARTTLS replaced the connection
	if s.state.Conn != conn {
		s.reader = bufio.NewReader(s.state.Conn)
	}

	if cmd.Verb == models.Logout {
		return false
	}

	if s.state.BadAttempts >= s.cfg.MaxBadAttempts {
		metrics.BadCommandDisconnects.Inc()
		level.Info(s.logger).Log("msg", "closing connection", "err", ErrTooManyBadCommands, "attempts", s.state.BadAttempts)
		return false
	}
	return true
}

func (s *session) handleUnrecognised(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	state.BadAttempts++
	remaining := s.cfg.MaxBadAttempts - state.BadAttempts
	if remaining < 0 {
		remaining = 0
	}
	level.Debug(s.logger).Log("msg", "unrecognised command", "name", cmd.Name, "attempts", state.BadAttempts)
	s.SendResponse(conn, fmt.Sprintf("%s BAD Command unrecognised, attempts remaining: %d", cmd.Tag, remaining))
}

// result labels the command outcome for metrics
func (s *session) result() string {
	if s.writeErr != nil || s.status == "" {
		return "error"
	}
	return strings.ToLower(s.status)
}

// SendResponse writes one response line, appending CRLF unless the response
// already ends with it. After the first write error further writes are
// dropped and the session ends once the handler returns.
func (s *session) SendResponse(conn net.Conn, response string) {
	if s.writeErr != nil {
		return
	}
	if !strings.HasSuffix(response, "\r\n") {
		response += "\r\n"
	}

	level.Debug(s.logger).Log("msg", "response", "line", sanitizeResponseForLogging(strings.TrimSuffix(response, "\r\n")))

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout()))
	if _, err := io.WriteString(conn, response); err != nil {
		s.writeErr = err
		level.Info(s.logger).Log("msg", "write failed", "err", err)
		return
	}

	if s.tag != "" && strings.HasPrefix(response, s.tag+" ") {
		status, _, _ := strings.Cut(response[len(s.tag)+1:], " ")
		s.status = strings.TrimSpace(status)
	}
}

// Logger returns the connection scoped logger
func (s *session) Logger() log.Logger {
	return s.logger
}

// loggableArgs hides LOGIN passwords
func loggableArgs(cmd *models.Command) string {
	if cmd.Verb == models.Login {
		fields := cmd.Fields()
		if len(fields) > 0 {
			return fields[0] + " ****"
		}
	}
	return cmd.Args
}

// sanitizeResponseForLogging removes or masks large message bodies from responses
func sanitizeResponseForLogging(response string) string {
	if strings.Contains(response, "FETCH (") &&
		(strings.Contains(response, "BODY") || strings.Contains(response, "RFC822")) {

		idx := strings.Index(response, "{")
		if idx != -1 {
			closeIdx := strings.Index(response[idx:], "}")
			if closeIdx != -1 {
				closeIdx += idx
				literalSizeStr := response[idx+1 : closeIdx]

				var literalSize int
				if _, err := fmt.Sscanf(literalSizeStr, "%d", &literalSize); err == nil && literalSize > 100 {
					return response[:closeIdx+1] + " [MESSAGE CONTENT OMITTED - " + literalSizeStr + " bytes]"
				}
			}
		}
	}

	if len(response) > 2000 {
		return response[:2000] + fmt.Sprintf("... [TRUNCATED - %d total bytes]", len(response))
	}

	return response
}
