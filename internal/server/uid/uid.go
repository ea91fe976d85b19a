package uid

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"kestrel/internal/mailstore"
	"kestrel/internal/models"
	"kestrel/internal/server/message"
	"kestrel/internal/server/response"
	"kestrel/internal/server/utils"
)

var (
	// ErrNotAMonth is returned for a search date whose month is not a three letter English abbreviation
	ErrNotAMonth = errors.New("not a month")
	// ErrBadDate is returned for a search date that is not DD-Mon-YYYY
	ErrBadDate = errors.New("invalid date")
)

// ServerDeps defines the dependencies that UID handlers need from the server
type ServerDeps interface {
	message.ServerDeps
}

var months = map[string]time.Month{
	"JAN": time.January,
	"FEB": time.February,
	"MAR": time.March,
	"APR": time.April,
	"MAY": time.May,
	"JUN": time.June,
	"JUL": time.July,
	"AUG": time.August,
	"SEP": time.September,
	"OCT": time.October,
	"NOV": time.November,
	"DEC": time.December,
}

// ===== UID (Main Dispatcher) =====

// HandleUID implements the UID command (RFC 3501 Section 6.4.8)
// Syntax: UID <command> <arguments>
// Supports: UID FETCH, UID SEARCH; UID COPY answers NO
func HandleUID(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	subCmd, rest := utils.SplitFirst(cmd.Args)
	if subCmd == "" {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD UID requires sub-command", cmd.Tag))
		return
	}

	switch strings.ToUpper(subCmd) {
	case "FETCH":
		handleUIDFetch(ctx, deps, conn, cmd.Tag, rest, state)
	case "SEARCH":
		handleUIDSearch(ctx, deps, conn, cmd.Tag, rest, state)
	case "COPY":
		deps.SendResponse(conn, fmt.Sprintf("%s NO COPY not implemented", cmd.Tag))
	default:
		deps.SendResponse(conn, fmt.Sprintf("%s BAD Unknown UID command: %s", cmd.Tag, subCmd))
	}
}

// ===== UID FETCH =====

// handleUIDFetch addresses messages by UID. UIDs that are not in the folder
// are skipped, and UID is always part of the response.
func handleUIDFetch(ctx context.Context, deps ServerDeps, conn net.Conn, tag, args string, state *models.ClientState) {
	set, itemArgs := utils.SplitFirst(args)
	if set == "" || itemArgs == "" {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD UID FETCH requires UID sequence and items", tag))
		return
	}

	uidSet, err := utils.ParseSequenceSet(set)
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD Invalid UID sequence set", tag))
		return
	}

	items, err := response.ParseItems(itemArgs)
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD %v", tag, err))
		return
	}
	items = response.WithUID(items)

	snap, err := message.Snapshot(ctx, deps, state)
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s NO FETCH failed.", tag))
		return
	}

	if err := message.SendFetch(ctx, deps, conn, utils.ResolveUID(uidSet, snap), items); err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s NO FETCH failed.", tag))
		return
	}

	deps.SendResponse(conn, fmt.Sprintf("%s OK FETCH completed.", tag))
}

// ===== UID SEARCH =====

// handleUIDSearch supports ALL and SINCE <date>, optionally after CHARSET
// UTF-8 or US-ASCII. SINCE compares the
// timestamp encoded in each filename against midnight UTC of the date.
func handleUIDSearch(ctx context.Context, deps ServerDeps, conn net.Conn, tag, args string, state *models.ClientState) {
	fields := strings.Fields(args)
	if len(fields) >= 2 && strings.EqualFold(fields[0], "CHARSET") {
		switch strings.ToUpper(utils.ParseQuotedString(fields[1])) {
		case "UTF-8", "US-ASCII":
			fields = fields[2:]
		default:
			deps.SendResponse(conn, fmt.Sprintf("%s NO [BADCHARSET (UTF-8 US-ASCII)] Unsupported charset", tag))
			return
		}
	}
	if len(fields) == 0 {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD UID SEARCH requires search criteria", tag))
		return
	}

	snap, err := message.Snapshot(ctx, deps, state)
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s NO SEARCH failed.", tag))
		return
	}

	var matches []mailstore.Entry
	switch key := strings.ToUpper(fields[0]); {
	case key == "ALL" && len(fields) == 1:
		matches = snap
	case key == "SINCE" && len(fields) == 2:
		since, err := ParseSearchDate(fields[1])
		if err != nil {
			deps.SendResponse(conn, fmt.Sprintf("%s BAD %v", tag, err))
			return
		}
		matches = snap.Since(since)
	default:
		deps.SendResponse(conn, fmt.Sprintf("%s BAD Unsupported search criteria", tag))
		return
	}

	var b strings.Builder
	b.WriteString("* SEARCH")
	for _, e := range matches {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(e.UID, 10))
	}
	deps.SendResponse(conn, b.String())
	deps.SendResponse(conn, fmt.Sprintf("%s OK SEARCH completed.", tag))
}

// ParseSearchDate parses an IMAP search date (DD-Mon-YYYY, optionally quoted)
// as midnight UTC. The month is matched case-insensitively.
func ParseSearchDate(s string) (time.Time, error) {
	s = utils.ParseQuotedString(s)

	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrBadDate)
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrBadDate)
	}

	month, ok := months[strings.ToUpper(parts[1])]
	if !ok {
		return time.Time{}, fmt.Errorf("%q: %w", parts[1], ErrNotAMonth)
	}

	if len(parts[2]) != 4 {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrBadDate)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrBadDate)
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// 31-Feb and friends
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrBadDate)
	}
	return t, nil
}
