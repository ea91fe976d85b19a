package extension

import (
	"context"
	"fmt"
	"net"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"kestrel/internal/mailstore"
	"kestrel/internal/models"
)

// ServerDeps defines the dependencies that extension handlers need from the server
type ServerDeps interface {
	SendResponse(conn net.Conn, response string)
	Logger() log.Logger
	Store() mailstore.Store
}

// ===== NOOP =====

// HandleNoop always succeeds. With a folder selected it recounts the folder
// and reports a changed size with an untagged EXISTS.
func HandleNoop(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	if state.HasSelection() {
		count, err := mailstore.Count(ctx, deps.Store(), state.Username, state.SelectedFolder)
		if err != nil {
			level.Debug(deps.Logger()).Log("msg", "noop recount failed", "folder", state.SelectedFolder, "err", err)
		} else if count != state.MessageCount {
			state.Select(state.SelectedFolder, count)
			deps.SendResponse(conn, fmt.Sprintf("* %d EXISTS", count))
		}
	}

	deps.SendResponse(conn, fmt.Sprintf("%s OK NOOP completed.", cmd.Tag))
}
