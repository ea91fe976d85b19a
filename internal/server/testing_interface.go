package server

import (
	"context"
	"crypto/tls"
	"net"

	"kestrel/internal/models"
)

// TestInterface provides access to internal methods for testing
// This interface should only be used in tests
type TestInterface struct {
	server *IMAPServer
}

// NewTestInterface creates a new test interface wrapper
// This function should only be used in tests
func NewTestInterface(server *IMAPServer) *TestInterface {
	return &TestInterface{server: server}
}

// Server returns the wrapped server
func (t *TestInterface) Server() *IMAPServer {
	return t.server
}

// MailRoot returns the directory the test store reads from
func (t *TestInterface) MailRoot() string {
	return t.server.cfg.MailRoot
}

// SetTLSConfig replaces the STARTTLS configuration, nil disables STARTTLS
func (t *TestInterface) SetTLSConfig(c *tls.Config) {
	t.server.SetTLSConfig(c)
}

// RunLine parses and dispatches one request line as the command loop would,
// including the state checks. It reports whether the session would continue.
func (t *TestInterface) RunLine(conn net.Conn, line string, state *models.ClientState) bool {
	return t.session(conn, state).dispatch(context.Background(), models.ParseCommand(line))
}

func (t *TestInterface) run(verb models.Verb, conn net.Conn, tag, args string, state *models.ClientState) {
	cmd := &models.Command{Tag: tag, Verb: verb, Name: verb.String(), Args: args}
	t.session(conn, state).dispatch(context.Background(), cmd)
}

func (t *TestInterface) session(conn net.Conn, state *models.ClientState) *session {
	state.Conn = conn
	return newSession(t.server, state, t.server.logger)
}

// HandleCapability exposes the capability handler for testing
func (t *TestInterface) HandleCapability(conn net.Conn, tag string, state *models.ClientState) {
	t.run(models.Capability, conn, tag, "", state)
}

// HandleLogin exposes the login handler for testing
func (t *TestInterface) HandleLogin(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.Login, conn, tag, args, state)
}

// HandleAuthenticate exposes the authenticate handler for testing
func (t *TestInterface) HandleAuthenticate(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.Authenticate, conn, tag, args, state)
}

// HandleStartTLS exposes the starttls handler for testing
func (t *TestInterface) HandleStartTLS(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.StartTLS, conn, tag, args, state)
}

// HandleLogout exposes the logout handler for testing
func (t *TestInterface) HandleLogout(conn net.Conn, tag string, state *models.ClientState) {
	t.run(models.Logout, conn, tag, "", state)
}

// HandleList exposes the list handler for testing
func (t *TestInterface) HandleList(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.List, conn, tag, args, state)
}

// HandleLsub exposes the lsub handler for testing
func (t *TestInterface) HandleLsub(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.Lsub, conn, tag, args, state)
}

// HandleSubscribe exposes the subscribe handler for testing
func (t *TestInterface) HandleSubscribe(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.Subscribe, conn, tag, args, state)
}

// HandleCreate exposes the create handler for testing
func (t *TestInterface) HandleCreate(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.Create, conn, tag, args, state)
}

// HandleStatus exposes the status handler for testing
func (t *TestInterface) HandleStatus(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.Status, conn, tag, args, state)
}

// HandleSelect exposes the select handler for testing
func (t *TestInterface) HandleSelect(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.Select, conn, tag, args, state)
}

// HandleFetch exposes the fetch handler for testing
func (t *TestInterface) HandleFetch(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.Fetch, conn, tag, args, state)
}

// HandleUID exposes the uid handler for testing
func (t *TestInterface) HandleUID(conn net.Conn, tag, args string, state *models.ClientState) {
	t.run(models.UID, conn, tag, args, state)
}

// HandleNoop exposes the noop handler for testing
func (t *TestInterface) HandleNoop(conn net.Conn, tag string, state *models.ClientState) {
	t.run(models.Noop, conn, tag, "", state)
}
