package mailbox

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
	"kestrel/internal/server/utils"
)

// Subscriptions persists SUBSCRIBE requests for LSUB
type Subscriptions interface {
	Subscribe(ctx context.Context, username, mailboxName string) error
	List(ctx context.Context, username string) ([]string, error)
}

// ServerDeps defines the dependencies that mailbox handlers need from the server
type ServerDeps interface {
	SendResponse(conn net.Conn, response string)
	Logger() log.Logger
	Store() mailstore.Store
	InboxFolder() string
	Subscriptions() Subscriptions
}

// ===== LIST =====

// HandleList only looks at the mailbox pattern, the last argument. "" and
// "%/%" describe the hierarchy root, "%" and "*" every folder, anything else
// matches one folder name case-insensitively.
func HandleList(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	pattern := utils.LastArgument(cmd.Args)

	if pattern == "" || pattern == "%/%" {
		deps.SendResponse(conn, `* LIST (\Noselect \HasChildren) "/" ""`)
		deps.SendResponse(conn, fmt.Sprintf("%s OK LIST completed.", cmd.Tag))
		return
	}

	folders, err := deps.Store().Folders(ctx, state.Username)
	if err != nil && !errors.Is(err, mailstore.ErrFolderNotFound) {
		level.Error(deps.Logger()).Log("msg", "failed to list folders", "user", state.Username, "err", err)
		deps.SendResponse(conn, fmt.Sprintf("%s NO LIST failed.", cmd.Tag))
		return
	}

	names := make([]string, len(folders))
	for i, f := range folders {
		names[i] = DisplayName(f, deps.InboxFolder())
	}

	for _, name := range Match(names, pattern) {
		deps.SendResponse(conn, fmt.Sprintf(`* LIST (\Marked \HasNoChildren) "/" %s`, Quote(name)))
	}
	deps.SendResponse(conn, fmt.Sprintf("%s OK LIST completed.", cmd.Tag))
}

// ===== LSUB =====

func HandleLsub(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	subs := deps.Subscriptions()
	if subs == nil {
		deps.SendResponse(conn, fmt.Sprintf("%s NO LSUB not available", cmd.Tag))
		return
	}

	names, err := subs.List(ctx, state.Username)
	if err != nil {
		level.Error(deps.Logger()).Log("msg", "failed to list subscriptions", "user", state.Username, "err", err)
		deps.SendResponse(conn, fmt.Sprintf("%s NO LSUB failed.", cmd.Tag))
		return
	}

	pattern := utils.LastArgument(cmd.Args)
	for _, name := range Match(names, pattern) {
		deps.SendResponse(conn, fmt.Sprintf(`* LSUB () "/" %s`, Quote(name)))
	}
	deps.SendResponse(conn, fmt.Sprintf("%s OK LSUB completed.", cmd.Tag))
}

// ===== SUBSCRIBE =====

func HandleSubscribe(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	fields := cmd.Fields()
	if len(fields) < 1 || strings.TrimSpace(fields[len(fields)-1]) == "" {
		deps.SendResponse(conn, fmt.Sprintf("%s BAD SUBSCRIBE requires mailbox name", cmd.Tag))
		return
	}

	subs := deps.Subscriptions()
	if subs == nil {
		deps.SendResponse(conn, fmt.Sprintf("%s NO SUBSCRIBE not available", cmd.Tag))
		return
	}

	mailboxName := fields[len(fields)-1]
	if err := subs.Subscribe(ctx, state.Username, mailboxName); err != nil {
		level.Error(deps.Logger()).Log("msg", "failed to subscribe", "user", state.Username, "mailbox", mailboxName, "err", err)
		deps.SendResponse(conn, fmt.Sprintf("%s NO SUBSCRIBE failed.", cmd.Tag))
		return
	}

	deps.SendResponse(conn, fmt.Sprintf("%s OK SUBSCRIBE completed.", cmd.Tag))
}

// ===== CREATE =====

// HandleCreate acknowledges without touching the store
func HandleCreate(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	deps.SendResponse(conn, fmt.Sprintf("%s OK CREATE completed.", cmd.Tag))
}

// ===== STATUS =====

func HandleStatus(ctx context.Context, deps ServerDeps, conn net.Conn, cmd *models.Command, state *models.ClientState) {
	deps.SendResponse(conn, fmt.Sprintf("%s NO STATUS not implemented", cmd.Tag))
}

// ===== helpers =====

// DisplayName maps the configured inbox directory to INBOX
func DisplayName(folder, inbox string) string {
	if folder == inbox {
		return "INBOX"
	}
	return folder
}

// Match returns the names selected by a LIST/LSUB pattern. "%" and "*" match
// everything, other patterns match one name case-insensitively.
func Match(names []string, pattern string) []string {
	if pattern == "%" || pattern == "*" {
		return names
	}

	var out []string
	for _, name := range names {
		if strings.EqualFold(name, pattern) {
			out = append(out, name)
		}
	}
	return out
}

// Quote wraps a mailbox name in double quotes when it is not a plain atom
func Quote(name string) string {
	if name == "" || strings.ContainsAny(name, " \t(){%*\"\\") {
		return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name) + `"`
	}
	return name
}
