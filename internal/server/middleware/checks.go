package middleware

import (
	"context"
	"fmt"
	"net"

	"kestrel/internal/models"
)

// ServerInterface defines methods needed from IMAPServer for middleware
type ServerInterface interface {
	SendResponse(conn net.Conn, response string)
}

// HandlerFunc is the standard handler function signature
type HandlerFunc func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState)

// RequireAuth ensures the client is authenticated before proceeding
func RequireAuth(server ServerInterface, handler HandlerFunc) HandlerFunc {
	return func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
		if !state.Authenticated {
			server.SendResponse(conn, fmt.Sprintf("%s BAD Please authenticate first", cmd.Tag))
			return
		}
		handler(ctx, conn, cmd, state)
	}
}

// RequireMailboxSelected ensures a mailbox is selected before proceeding
func RequireMailboxSelected(server ServerInterface, handler HandlerFunc) HandlerFunc {
	return func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
		if !state.HasSelection() {
			server.SendResponse(conn, fmt.Sprintf("%s NO No mailbox selected", cmd.Tag))
			return
		}
		handler(ctx, conn, cmd, state)
	}
}

// RequireAuthAndMailbox combines authentication and mailbox selection checks
func RequireAuthAndMailbox(server ServerInterface, handler HandlerFunc) HandlerFunc {
	return RequireAuth(server, RequireMailboxSelected(server, handler))
}

// ValidateMinArgs ensures the command has the minimum required number of arguments
func ValidateMinArgs(server ServerInterface, minArgs int, errorMsg string, handler HandlerFunc) HandlerFunc {
	return func(ctx context.Context, conn net.Conn, cmd *models.Command, state *models.ClientState) {
		if len(cmd.Fields()) < minArgs {
			server.SendResponse(conn, fmt.Sprintf("%s BAD %s", cmd.Tag, errorMsg))
			return
		}
		handler(ctx, conn, cmd, state)
	}
}
