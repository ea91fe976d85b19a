package models

import "net"

// ClientState is the per-connection session
type ClientState struct {
	Authenticated  bool
	Username       string // local part of Email, empty until LOGIN
	Email          string // login name as supplied by the client
	SelectedFolder string // store folder name, empty until SELECT
	MessageCount   int    // folder size at the last LOGIN or SELECT
	BadAttempts    int    // consecutive unrecognised commands
	Conn           net.Conn
	TLS            bool
}

// Login marks the session authenticated. Username and Authenticated only
// change together.
func (s *ClientState) Login(username, email string, messageCount int) {
	s.Username = username
	s.Email = email
	s.Authenticated = username != ""
	s.MessageCount = messageCount
}

// Select records the selected folder and its size
func (s *ClientState) Select(folder string, messageCount int) {
	s.SelectedFolder = folder
	s.MessageCount = messageCount
}

// HasSelection reports whether a folder is selected
func (s *ClientState) HasSelection() bool {
	return s.Authenticated && s.SelectedFolder != ""
}
