package selection_test

import (
	"reflect"
	"strings"
	"testing"

	"kestrel/internal/models"
	"kestrel/internal/server"
)

func TestSelectCommand_Unauthenticated(t *testing.T) {
	srv := server.SetupTestServer(t)
	conn := server.NewMockConn()
	state := &models.ClientState{}

	srv.HandleSelect(conn, "A001", "INBOX", state)

	if got := strings.TrimSpace(conn.GetWrittenData()); got != "A001 BAD Please authenticate first" {
		t.Errorf("Expected authentication error, got: %s", got)
	}
	if state.SelectedFolder != "" {
		t.Error("Expected no folder to be selected")
	}
}

func TestSelectCommand_Inbox(t *testing.T) {
	srv := server.SetupTestServer(t)
	server.WriteTestMessage(t, srv, "test", "Inbox", "1638316800.0s.eml", "a")
	server.WriteTestMessage(t, srv, "test", "Inbox", "1638316900.0s.eml", "b")
	server.WriteTestMessage(t, srv, "test", "Inbox", "1638317000.0s.eml", "c")
	state := server.SetupAuthenticatedState(t, srv, "test")
	conn := server.NewMockConn()

	srv.HandleSelect(conn, "A002", "INBOX", state)

	want := []string{
		"* 3 EXISTS",
		"* 3 RECENT",
		`* FLAGS (\Seen \Answered \Flagged \Deleted \Draft)`,
		`* OK [PERMANENTFLAGS (\Seen \Answered \Flagged \Deleted \Draft)] Permanent flags`,
		"* OK [UIDVALIDITY 1] UIDs valid",
		"* OK [UNSEEN 3] Unseen messages",
		"A002 OK [READ-WRITE] SELECT completed.",
	}
	if lines := conn.GetWrittenLines(); !reflect.DeepEqual(lines, want) {
		t.Errorf("Unexpected SELECT response:\nwant %v\ngot  %v", want, lines)
	}

	if state.SelectedFolder != "Inbox" {
		t.Errorf("Expected folder 'Inbox' selected, got '%s'", state.SelectedFolder)
	}
	if state.MessageCount != 3 {
		t.Errorf("Expected message count 3, got %d", state.MessageCount)
	}
}

func TestSelectCommand_InboxIsCaseInsensitive(t *testing.T) {
	srv := server.SetupTestServer(t)
	state := server.SetupAuthenticatedState(t, srv, "test")

	for _, arg := range []string{"inbox", `"Inbox"`, `"INBOX"`} {
		conn := server.NewMockConn()
		srv.HandleSelect(conn, "A003", arg, state)
		if !strings.Contains(conn.GetWrittenData(), "A003 OK [READ-WRITE] SELECT completed.") {
			t.Errorf("%s: expected SELECT to succeed, got: %s", arg, conn.GetWrittenData())
		}
	}
}

func TestSelectCommand_MissingInboxIsEmpty(t *testing.T) {
	srv := server.SetupTestServer(t)
	state := server.SetupAuthenticatedState(t, srv, "nobody")
	conn := server.NewMockConn()

	srv.HandleSelect(conn, "A004", "INBOX", state)

	lines := conn.GetWrittenLines()
	if len(lines) == 0 || lines[0] != "* 0 EXISTS" {
		t.Errorf("Expected 0 EXISTS, got %v", lines)
	}
	if !state.HasSelection() {
		t.Error("Expected the empty inbox to be selected")
	}
}

func TestSelectCommand_OtherMailbox(t *testing.T) {
	srv := server.SetupTestServer(t)
	server.CreateTestFolder(t, srv, "test", "Sent")
	state := server.SetupSelectedState(t, srv, "test")
	conn := server.NewMockConn()

	srv.HandleSelect(conn, "A005", "Sent", state)

	if got := strings.TrimSpace(conn.GetWrittenData()); got != "A005 NO Mailbox does not exist" {
		t.Errorf("Unexpected response: %s", got)
	}
	if state.HasSelection() {
		t.Error("Expected a failed SELECT to deselect the previous mailbox")
	}
}

func TestSelectCommand_MissingArgument(t *testing.T) {
	srv := server.SetupTestServer(t)
	state := server.SetupAuthenticatedState(t, srv, "test")
	conn := server.NewMockConn()

	srv.HandleSelect(conn, "A006", "", state)

	if got := strings.TrimSpace(conn.GetWrittenData()); got != "A006 BAD SELECT requires mailbox name" {
		t.Errorf("Unexpected response: %s", got)
	}
}
