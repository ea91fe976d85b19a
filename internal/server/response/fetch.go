package response

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kestrel/internal/mailstore"
)

// ErrUnknownAttribute is returned for FETCH data items that are not served
var ErrUnknownAttribute = errors.New("unknown fetch attribute")

// InternalDateLayout renders INTERNALDATE values, always in UTC
const InternalDateLayout = "2006-Jan-02 15:04:05 -0700"

// Item is one FETCH data item
type Item int

const (
	ItemUID Item = iota
	ItemFlags
	ItemSize
	ItemBody   // BODY[], BODY.PEEK[]
	ItemRFC822 // RFC822
	ItemInternalDate
	ItemEnvelope
)

var itemsByName = map[string][]Item{
	"UID":          {ItemUID},
	"FLAGS":        {ItemFlags},
	"RFC822.SIZE":  {ItemSize},
	"BODY[]":       {ItemBody},
	"BODY.PEEK[]":  {ItemBody},
	"RFC822":       {ItemRFC822},
	"INTERNALDATE": {ItemInternalDate},
	"ENVELOPE":     {ItemEnvelope},
	"FAST":         {ItemFlags, ItemInternalDate, ItemSize},
	"ALL":          {ItemFlags, ItemInternalDate, ItemSize, ItemEnvelope},
	"FULL":         {ItemFlags, ItemInternalDate, ItemSize, ItemEnvelope},
}

// ParseItems parses "(UID FLAGS ...)" or a single item name. Order is kept.
func ParseItems(s string) ([]Item, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = s[1 : len(s)-1]
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("no attributes: %w", ErrUnknownAttribute)
	}

	var items []Item
	for _, f := range fields {
		expanded, ok := itemsByName[strings.ToUpper(f)]
		if !ok {
			return nil, fmt.Errorf("%s: %w", f, ErrUnknownAttribute)
		}
		items = append(items, expanded...)
	}
	return items, nil
}

// WithUID returns items with UID first when it was not requested
func WithUID(items []Item) []Item {
	for _, it := range items {
		if it == ItemUID {
			return items
		}
	}
	return append([]Item{ItemUID}, items...)
}

// NeedsContent reports whether rendering items requires the message file
func NeedsContent(items []Item) bool {
	for _, it := range items {
		switch it {
		case ItemSize, ItemBody, ItemRFC822, ItemInternalDate, ItemEnvelope:
			return true
		}
	}
	return false
}

func wantsBody(items []Item) bool {
	for _, it := range items {
		if it == ItemBody || it == ItemRFC822 {
			return true
		}
	}
	return false
}

// RenderFetch renders the untagged FETCH response for one message, CRLF
// terminated. msg may be nil when NeedsContent(items) is false.
//
// A body literal is sent as {len+2} followed by the raw bytes and a CRLF
// counted inside the literal.
func RenderFetch(entry mailstore.Entry, msg *mailstore.Message, items []Item) string {
	var b strings.Builder
	b.WriteString("* ")
	b.WriteString(strconv.Itoa(entry.Seq))
	b.WriteString(" FETCH (")

	flags := `(\Seen)`
	if wantsBody(items) {
		flags = `(\Recent)`
	}

	for i, it := range items {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch it {
		case ItemUID:
			b.WriteString("UID ")
			b.WriteString(strconv.FormatUint(entry.UID, 10))
		case ItemFlags:
			b.WriteString("FLAGS ")
			b.WriteString(flags)
		case ItemSize:
			b.WriteString("RFC822.SIZE ")
			b.WriteString(strconv.Itoa(msg.Size()))
		case ItemBody:
			writeLiteral(&b, "BODY[]", msg.Raw)
		case ItemRFC822:
			writeLiteral(&b, "RFC822", msg.Raw)
		case ItemInternalDate:
			b.WriteString(`INTERNALDATE "`)
			b.WriteString(FormatInternalDate(msg.CreatedAt))
			b.WriteByte('"')
		case ItemEnvelope:
			b.WriteString(BuildEnvelope(string(msg.Raw)))
		}
	}

	b.WriteString(")\r\n")
	return b.String()
}

func writeLiteral(b *strings.Builder, name string, raw []byte) {
	fmt.Fprintf(b, "%s {%d}\r\n", name, len(raw)+2)
	b.Write(raw)
	b.WriteString("\r\n")
}

// FormatInternalDate renders t in UTC as INTERNALDATE text
func FormatInternalDate(t time.Time) string {
	return t.UTC().Format(InternalDateLayout)
}
