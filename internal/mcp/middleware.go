package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shangji-io/shangji/internal/domain/user"
)

type contextKey int

const actorKey contextKey = iota

func actorFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(actorKey).(*user.User)
	return u, ok
}

// UserResolver resolves an authenticated user from a bearer token.
type UserResolver interface {
	Authenticate(ctx context.Context, token string) (*user.User, error)
}

// authMiddleware implements bearer token authentication as MCP middleware.
// The token is read from the transport headers of each request.
func authMiddleware(resolver UserResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("unauthorized: missing headers")
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				return nil, fmt.Errorf("unauthorized: missing bearer token")
			}

			u, err := resolver.Authenticate(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("unauthorized: %w", err)
			}

			ctx = context.WithValue(ctx, actorKey, u)
			return next(ctx, method, req)
		}
	}
}

// noAuthMiddleware injects a fixed actor when auth is disabled.
func noAuthMiddleware(actor *user.User) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			ctx = context.WithValue(ctx, actorKey, actor)
			return next(ctx, method, req)
		}
	}
}

func localAdmin() *user.User {
	return &user.User{ID: "local", Username: "local", Role: user.RoleAdmin, Active: true}
}

// loggingMiddleware logs each dispatched method.
func loggingMiddleware(logger *slog.Logger) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			result, err := next(ctx, method, req)
			if err != nil {
				logger.Warn("mcp method failed", "method", method, "error", err)
			} else {
				logger.Debug("mcp method handled", "method", method)
			}
			return result, err
		}
	}
}
