package message

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"kestrel/internal/mailstore"
	"kestrel/internal/models"
	"kestrel/internal/server/response"
	"kestrel/internal/server/utils"
)

// ServerDeps defines the dependencies that message handlers need from the server
type ServerDeps interface {
	SendResponse(conn net.Conn, response string)
	Logger() log.Logger
	Store() mailstore.Store
}

// ===== FETCH =====

// HandleFetch addresses messages by sequence number in a fresh snapshot of
// the selected folder. A selector that matches nothing is answered with NO
// unless it used "*".
func HandleFetch(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	set, itemArgs := utils.SplitFirst(cmd.Args)
	if set == "" || itemArgs == "" {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD FETCH requires sequence set and data items", cmd.Tag))
		return
	}

	seqSet, err := utils.ParseSequenceSet(set)
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD Invalid sequence set", cmd.Tag))
		return
	}

	items, err := response.ParseItems(itemArgs)
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD %v", cmd.Tag, err))
		return
	}

	snap, err := Snapshot(ctx, deps, state)
	if err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s NO FETCH failed.", cmd.Tag))
		return
	}

	entries := utils.ResolveSeq(seqSet, snap)
	if len(entries) == 0 && !seqSet.HasStar() {
		deps.SendResponse(conn, fmt.Sprintf("%s NO No matching messages", cmd.Tag))
		return
	}

	if err := SendFetch(ctx, deps, conn, entries, items); err != nil {
		deps.SendResponse(conn, fmt.Sprintf("%s NO FETCH failed.", cmd.Tag))
		return
	}

	deps.SendResponse(conn, fmt.Sprintf("%s OK FETCH completed.", cmd.Tag))
}

// Snapshot enumerates the selected folder. A folder that vanished since
// SELECT is treated as empty.
func Snapshot(ctx context.Context, deps ServerDeps, state *models.ClientState) (mailstore.Snapshot, error) {
	snap, err := deps.Store().Snapshot(ctx, state.Username, state.SelectedFolder)
	if err != nil {
		if errors.Is(err, mailstore.ErrFolderNotFound) {
			return mailstore.Snapshot{}, nil
		}
		level.Error(deps.Logger()).Log("msg", "failed to read folder", "user", state.Username, "folder", state.SelectedFolder, "err", err)
		return nil, err
	}
	return snap, nil
}

// SendFetch writes one untagged FETCH response per entry. Message files are
// only read when an item needs their contents. It stops at the first entry
// that cannot be loaded.
func SendFetch(ctx context.Context, deps ServerDeps, conn net.Conn, entries []mailstore.Entry, items []response.Item) error {
	needsContent := response.NeedsContent(items)

	for _, entry := range entries {
		var msg *mailstore.Message
		if needsContent {
			m, err := deps.Store().Load(ctx, entry)
			if err != nil {
				level.Error(deps.Logger()).Log("msg", "failed to load message", "file", entry.Name, "err", err)
				return err
			}
			msg = m
		}
		deps.SendResponse(conn, response.RenderFetch(entry, msg, items))
	}
	return nil
}
