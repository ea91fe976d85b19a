package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrFieldMissing is returned when a message has no line for the requested header field.
var ErrFieldMissing = errors.New("header field missing")

// NIL is the display name reported for addresses written without one.
const NIL = "NIL"

var (
	toLine      = regexp.MustCompile(`(?mi)^TO:.*`)
	fromLine    = regexp.MustCompile(`(?mi)^FROM:.*`)
	dateLine    = regexp.MustCompile(`(?mi)^DATE:.*`)
	subjectLine = regexp.MustCompile(`(?mi)^SUBJECT:.*`)

	addressStrip = strings.NewReplacer("\r", "", "<", "", ">", "")
)

// Address is an address header split into its envelope parts
type Address struct {
	User        string
	Domain      string
	DisplayName string
}

// Email returns the address in user@domain form
func (a Address) Email() string {
	if a.Domain == "" {
		return a.User
	}
	return a.User + "@" + a.Domain
}

// HasDisplayName reports whether the header carried a display name
func (a Address) HasDisplayName() bool {
	return a.DisplayName != "" && a.DisplayName != NIL
}

// To extracts the first To: header of a raw message
func To(raw string) (Address, error) {
	return extractAddress(raw, toLine, "To")
}

// From extracts the first From: header of a raw message
func From(raw string) (Address, error) {
	return extractAddress(raw, fromLine, "From")
}

// Date returns the Date: header value verbatim (RFC 2822 form, not parsed)
func Date(raw string) (string, error) {
	return extractValue(raw, dateLine, "Date")
}

// Subject returns the Subject: header value verbatim
func Subject(raw string) (string, error) {
	return extractValue(raw, subjectLine, "Subject")
}

// Header returns the value of the first line starting with "name:",
// compared case-insensitively. Used for the envelope fields beyond the four above.
func Header(raw, name string) (string, error) {
	re, err := regexp.Compile(`(?mi)^` + regexp.QuoteMeta(name) + `:.*`)
	if err != nil {
		return "", err
	}
	value, err := extractValue(raw, re, name)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(value, " \t"), nil
}

// findField returns the text after "Field:" on the first matching line
func findField(raw string, re *regexp.Regexp, field string) (string, error) {
	line := re.FindString(raw)
	if line == "" {
		return "", fmt.Errorf("%s: %w", field, ErrFieldMissing)
	}
	colon := strings.IndexByte(line, ':')
	return line[colon+1:], nil
}

func extractValue(raw string, re *regexp.Regexp, field string) (string, error) {
	value, err := findField(raw, re, field)
	if err != nil {
		return "", err
	}
	value = strings.ReplaceAll(value, "\r", "")
	return strings.TrimLeft(value, " \t"), nil
}

func extractAddress(raw string, re *regexp.Regexp, field string) (Address, error) {
	value, err := findField(raw, re, field)
	if err != nil {
		return Address{}, err
	}
	return ParseAddress(value), nil
}

// ParseAddress splits "[display name] local@domain" at its last whitespace.
// Angle brackets and carriage returns are dropped first; a missing display name is NIL.
func ParseAddress(value string) Address {
	value = strings.TrimSpace(addressStrip.Replace(value))

	address := value
	display := NIL
	if idx := strings.LastIndexAny(value, " \t"); idx != -1 {
		address = value[idx+1:]
		if name := strings.TrimSpace(value[:idx]); name != "" {
			display = strings.Trim(name, "\"")
		}
	}

	user, domain, _ := strings.Cut(address, "@")
	return Address{
		User:        user,
		Domain:      domain,
		DisplayName: display,
	}
}

// ExtractLocalPart extracts the local part (username) from an email address.
// Input without an @ is returned unchanged.
func ExtractLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// ExtractDomain extracts the domain from an email address
func ExtractDomain(email string) (string, error) {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return "", fmt.Errorf("invalid email format: %s", email)
	}
	return parts[1], nil
}
