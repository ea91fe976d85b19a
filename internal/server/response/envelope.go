package response

import (
	"fmt"
	"strings"

	"kestrel/internal/parser"
)

// BuildEnvelope builds an ENVELOPE structure from a raw message
// ENVELOPE format: (date subject from sender reply-to to cc bcc in-reply-to message-id)
// Missing fields render as NIL; sender and reply-to default to from.
func BuildEnvelope(raw string) string {
	date, _ := parser.Date(raw)
	subject, _ := parser.Subject(raw)

	from := "NIL"
	if addr, err := parser.From(raw); err == nil {
		from = "(" + formatAddress(addr) + ")"
	}
	to := "NIL"
	if addr, err := parser.To(raw); err == nil {
		to = "(" + formatAddress(addr) + ")"
	}

	sender := addressListOr(raw, "Sender", from)
	replyTo := addressListOr(raw, "Reply-To", from)
	cc := addressListOr(raw, "Cc", "NIL")
	bcc := addressListOr(raw, "Bcc", "NIL")

	inReplyTo, _ := parser.Header(raw, "In-Reply-To")
	messageID, _ := parser.Header(raw, "Message-ID")

	return fmt.Sprintf("ENVELOPE (%s %s %s %s %s %s %s %s %s %s)",
		QuoteOrNIL(strings.TrimRight(date, " \t")),
		QuoteOrNIL(strings.TrimRight(subject, " \t")),
		from,
		sender,
		replyTo,
		to,
		cc,
		bcc,
		QuoteOrNIL(inReplyTo),
		QuoteOrNIL(messageID),
	)
}

// QuoteOrNIL quotes a string for IMAP response or returns NIL if empty
func QuoteOrNIL(str string) string {
	if str == "" {
		return "NIL"
	}
	str = strings.ReplaceAll(str, "\\", "\\\\")
	str = strings.ReplaceAll(str, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", str)
}

// addressListOr renders a comma separated address header, or fallback when absent
func addressListOr(raw, field, fallback string) string {
	value, err := parser.Header(raw, field)
	if err != nil || strings.TrimSpace(value) == "" {
		return fallback
	}

	var addrs []string
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		addrs = append(addrs, formatAddress(parser.ParseAddress(part)))
	}
	if len(addrs) == 0 {
		return fallback
	}
	return "(" + strings.Join(addrs, " ") + ")"
}

// formatAddress renders (name route mailbox host); route is always NIL
func formatAddress(addr parser.Address) string {
	name := "NIL"
	if addr.HasDisplayName() {
		name = QuoteOrNIL(addr.DisplayName)
	}
	return fmt.Sprintf("(%s NIL %s %s)", name, QuoteOrNIL(addr.User), QuoteOrNIL(addr.Domain))
}
