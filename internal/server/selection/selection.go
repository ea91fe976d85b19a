package selection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"kestrel/internal/mailstore"
	"kestrel/internal/models"
)

// Flags lists the flags announced by SELECT
const Flags = `(\Seen \Answered \Flagged \Deleted \Draft)`

// ServerDeps defines the dependencies that selection handlers need from the server
type ServerDeps interface {
	SendResponse(conn net.Conn, response string)
	Logger() log.Logger
	Store() mailstore.Store
	InboxFolder() string
}

// ===== SELECT =====

// HandleSelect selects the inbox, the only mailbox served. The folder is
// counted again; the count is a point-in-time value.
func HandleSelect(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	fields := cmd.Fields()
	if len(fields) < 1 {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD SELECT requires mailbox name", cmd.Tag))
		return
	}

	// a failed SELECT leaves no mailbox selected
	state.SelectedFolder = ""

	// RFC 3501: INBOX is case-insensitive
	if !strings.EqualFold(fields[len(fields)-1], "INBOX") {
		deps.SendResponse(conn, fmt.Sprintf("%s NO Mailbox does not exist", cmd.Tag))
		return
	}

	folder := deps.InboxFolder()
	count, err := mailstore.Count(ctx, deps.Store(), state.Username, folder)
	if err != nil {
		if !errors.Is(err, mailstore.ErrFolderNotFound) {
			level.Error(deps.Logger()).Log("msg", "failed to count folder", "user", state.Username, "folder", folder, "err", err)
			deps.SendResponse(conn, fmt.Sprintf("%s NO SELECT failed.", cmd.Tag))
			return
		}
		level.Info(deps.Logger()).Log("msg", "inbox missing, counting as empty", "user", state.Username, "folder", folder)
	}

	state.Select(folder, count)

	deps.SendResponse(conn, fmt.Sprintf("* %d EXISTS", count))
	deps.SendResponse(conn, fmt.Sprintf("* %d RECENT", count))
	deps.SendResponse(conn, "* FLAGS "+Flags)
	deps.SendResponse(conn, "* OK [PERMANENTFLAGS "+Flags+"] Permanent flags")
	deps.SendResponse(conn, "* OK [UIDVALIDITY 1] UIDs valid")
	deps.SendResponse(conn, fmt.Sprintf("* OK [UNSEEN %d] Unseen messages", count))
	deps.SendResponse(conn, fmt.Sprintf("%s OK [READ-WRITE] SELECT completed.", cmd.Tag))
}
