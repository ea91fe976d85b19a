package auth_test

import (
	"bufio"
	"crypto/tls"
	"net"
	"strings"
	"testing"
	"time"

	"kestrel/internal/models"
	"kestrel/internal/server"
)

// ===== CAPABILITY =====

func TestCapabilityCommand_PlaintextOffersStartTLS(t *testing.T) {
	srv := server.SetupTestServer(t)
	conn := server.NewMockConn()

	srv.HandleCapability(conn, "A001", &models.ClientState{})

	lines := conn.GetWrittenLines()
	if len(lines) != 2 {
		t.Fatalf("Expected 2 response lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "* CAPABILITY IMAP4 IMAP4rev1 AUTH=PLAIN STARTTLS" {
		t.Errorf("Unexpected capability line: '%s'", lines[0])
	}
	if lines[1] != "A001 OK CAPABILITY completed." {
		t.Errorf("Unexpected completion: '%s'", lines[1])
	}
}

func TestCapabilityCommand_TLSActive(t *testing.T) {
	srv := server.SetupTestServer(t)
	conn := server.NewMockTLSConn()

	srv.HandleCapability(conn, "A002", &models.ClientState{TLS: true})

	lines := conn.GetWrittenLines()
	if len(lines) != 2 || lines[0] != "* CAPABILITY IMAP4 IMAP4rev1 AUTH=PLAIN" {
		t.Errorf("Expected STARTTLS to be withheld on TLS, got: %v", lines)
	}
}

func TestCapabilityCommand_NoTLSConfigured(t *testing.T) {
	srv := server.SetupTestServer(t)
	srv.SetTLSConfig(nil)
	conn := server.NewMockConn()

	srv.HandleCapability(conn, "A003", &models.ClientState{})

	if strings.Contains(conn.GetWrittenData(), "STARTTLS") {
		t.Errorf("Expected no STARTTLS without TLS material, got: %s", conn.GetWrittenData())
	}
}

// ===== LOGIN =====

func TestLoginCommand_Success(t *testing.T) {
	srv := server.SetupTestServer(t)
	server.WriteTestMessage(t, srv, "test", "Inbox", "1638316800.0s.eml", "Subject: one\r\n\r\n")
	server.WriteTestMessage(t, srv, "test", "Inbox", "1638316900.0s.eml", "Subject: two\r\n\r\n")
	conn := server.NewMockConn()
	state := &models.ClientState{}

	srv.HandleLogin(conn, "A001", "test@example.com secret", state)

	if got := conn.GetWrittenData(); got != "A001 OK LOGIN completed.\r\n" {
		t.Errorf("Unexpected response: %q", got)
	}
	if !state.Authenticated {
		t.Error("Expected state to be authenticated")
	}
	if state.Username != "test" {
		t.Errorf("Expected username 'test', got '%s'", state.Username)
	}
	if state.Email != "test@example.com" {
		t.Errorf("Expected email 'test@example.com', got '%s'", state.Email)
	}
	if state.MessageCount != 2 {
		t.Errorf("Expected 2 messages counted at login, got %d", state.MessageCount)
	}
}

func TestLoginCommand_QuotedArguments(t *testing.T) {
	srv := server.SetupTestServer(t)
	conn := server.NewMockConn()
	state := &models.ClientState{}

	srv.HandleLogin(conn, "A002", `"test" "pass word"`, state)

	if !strings.HasPrefix(conn.GetWrittenData(), "A002 OK") {
		t.Fatalf("Expected OK, got: %s", conn.GetWrittenData())
	}
	if state.Username != "test" {
		t.Errorf("Expected username 'test', got '%s'", state.Username)
	}
}

func TestLoginCommand_MissingInboxCountsAsEmpty(t *testing.T) {
	srv := server.SetupTestServer(t)
	conn := server.NewMockConn()
	state := &models.ClientState{}

	srv.HandleLogin(conn, "A003", "nobody secret", state)

	if !strings.HasPrefix(conn.GetWrittenData(), "A003 OK") {
		t.Fatalf("Expected OK, got: %s", conn.GetWrittenData())
	}
	if state.MessageCount != 0 {
		t.Errorf("Expected 0 messages, got %d", state.MessageCount)
	}
}

func TestLoginCommand_MissingArguments(t *testing.T) {
	srv := server.SetupTestServer(t)

	for _, args := range []string{"", "onlyuser"} {
		conn := server.NewMockConn()
		state := &models.ClientState{}

		srv.HandleLogin(conn, "A004", args, state)

		if !strings.HasPrefix(conn.GetWrittenData(), "A004 BAD") {
			t.Errorf("%q: expected BAD, got: %s", args, conn.GetWrittenData())
		}
		if state.Authenticated || state.Username != "" {
			t.Errorf("%q: expected state to stay unauthenticated", args)
		}
	}
}

func TestLoginCommand_RejectsPathNames(t *testing.T) {
	srv := server.SetupTestServer(t)
	conn := server.NewMockConn()
	state := &models.ClientState{}

	srv.HandleLogin(conn, "A005", "../etc secret", state)

	if !strings.HasPrefix(conn.GetWrittenData(), "A005 BAD LOGIN failed.") {
		t.Errorf("Expected BAD LOGIN failed., got: %s", conn.GetWrittenData())
	}
	if state.Authenticated {
		t.Error("Expected state to stay unauthenticated")
	}
}

// ===== AUTHENTICATE =====

func TestAuthenticateCommand_NotImplemented(t *testing.T) {
	srv := server.SetupTestServer(t)
	conn := server.NewMockConn()

	srv.HandleAuthenticate(conn, "A001", "PLAIN", &models.ClientState{})

	if got := conn.GetWrittenData(); got != "A001 NO AUTHENTICATE not implemented\r\n" {
		t.Errorf("Unexpected response: %q", got)
	}
}

// ===== LOGOUT =====

func TestLogoutCommand_Order(t *testing.T) {
	srv := server.SetupTestServer(t)
	conn := server.NewMockConn()

	keepGoing := srv.RunLine(conn, "L001 LOGOUT", &models.ClientState{})

	lines := conn.GetWrittenLines()
	if len(lines) != 2 {
		t.Fatalf("Expected 2 response lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "* BYE IMAP4 Server logging out" {
		t.Errorf("Expected BYE first, got: '%s'", lines[0])
	}
	if lines[1] != "L001 OK LOGOUT completed." {
		t.Errorf("Expected tagged OK second, got: '%s'", lines[1])
	}
	if keepGoing {
		t.Error("Expected the session to end after LOGOUT")
	}
}

// ===== STARTTLS =====

func TestStartTLSCommand_Rejections(t *testing.T) {
	srv := server.SetupTestServer(t)

	authenticated := &models.ClientState{}
	authenticated.Login("test", "test", 0)

	tests := []struct {
		name  string
		args  string
		state *models.ClientState
		want  string
	}{
		{"arguments", "now", &models.ClientState{}, "T1 BAD STARTTLS command does not accept arguments"},
		{"already tls", "", &models.ClientState{TLS: true}, "T1 BAD TLS already active"},
		{"after login", "", authenticated, "T1 BAD STARTTLS not permitted after LOGIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := server.NewMockConn()
			srv.HandleStartTLS(conn, "T1", tt.args, tt.state)
			if got := strings.TrimSpace(conn.GetWrittenData()); got != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}

func TestStartTLSCommand_NotConfigured(t *testing.T) {
	srv := server.SetupTestServer(t)
	srv.SetTLSConfig(nil)
	conn := server.NewMockConn()

	srv.HandleStartTLS(conn, "T2", "", &models.ClientState{})

	if got := strings.TrimSpace(conn.GetWrittenData()); got != "T2 BAD TLS not available" {
		t.Errorf("Unexpected response: '%s'", got)
	}
}

func TestStartTLSCommand_UpgradesConnection(t *testing.T) {
	srv := server.SetupTestServer(t)
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	state := &models.ClientState{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.HandleStartTLS(serverConn, "T3", "", state)
	}()

	_ = clientConn.SetDeadline(time.Now().Add(10 * time.Second))
	line, err := bufio.NewReader(clientConn).ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read STARTTLS response: %v", err)
	}
	if line != "T3 OK Begin TLS negotiation now\r\n" {
		t.Fatalf("Unexpected STARTTLS response: %q", line)
	}

	tlsClient := tls.Client(clientConn, &tls.Config{InsecureSkipVerify: true, ServerName: "localhost"})
	if err := tlsClient.Handshake(); err != nil {
		t.Fatalf("TLS handshake failed: %v", err)
	}
	<-done

	if !state.TLS {
		t.Error("Expected state to record TLS")
	}
	if _, ok := state.Conn.(*tls.Conn); !ok {
		t.Errorf("Expected state.Conn to be a *tls.Conn, got %T", state.Conn)
	}
}
