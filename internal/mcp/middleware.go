package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrUnauthorized rejects a request whose caller could not be tied to a user.
var ErrUnauthorized = errors.New("unauthorized")

type contextKey int

const (
	userIDKey contextKey = iota
	sessionIDKey
)

// Every tool call works on one practitioner's data. The middlewares below
// bind that user to the request context before any tool runs, and tools read
// it back with getUserID. An empty user never reaches a tool: Handle rejects it.

func getUserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func getSessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// UserResolver maps an issued API key to the user it belongs to.
// sqlite.APIKeyRepository is the production implementation.
type UserResolver interface {
	ResolveUser(ctx context.Context, token string) (string, error)
}

// handshake methods carry no user data and run before a client can present
// credentials on every transport.
var handshakeMethods = map[string]bool{
	"initialize":                true,
	"notifications/initialized": true,
	"ping":                      true,
}

// bearerToken returns the API key from an Authorization header.
func bearerToken(h http.Header) (string, error) {
	if h == nil {
		return "", fmt.Errorf("%w: request carries no http headers", ErrUnauthorized)
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(h.Get("Authorization")), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	return token, nil
}

// authMiddleware resolves the API key on each HTTP request to a user.
func authMiddleware(resolver UserResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if handshakeMethods[method] {
				return next(ctx, method, req)
			}

			var header http.Header
			if extra := req.GetExtra(); extra != nil {
				header = extra.Header
			}
			token, err := bearerToken(header)
			if err != nil {
				return nil, err
			}

			userID, err := resolver.ResolveUser(ctx, token)
			switch {
			case err != nil:
				return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
			case userID == "":
				return nil, fmt.Errorf("%w: api key has no user", ErrUnauthorized)
			}
			return next(context.WithValue(ctx, userIDKey, userID), method, req)
		}
	}
}

// noAuthMiddleware serves a single local practitioner: stdio, or HTTP with
// auth disabled.
func noAuthMiddleware(userID string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(context.WithValue(ctx, userIDKey, userID), method, req)
		}
	}
}

// sessionMiddleware tags the context with the client session for traffic
// logs. HTTP clients send Mcp-Session-Id; stdio clients may put session_id
// in the request _meta.
func sessionMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if id := requestSessionID(req); id != "" {
				ctx = context.WithValue(ctx, sessionIDKey, id)
			}
			return next(ctx, method, req)
		}
	}
}

func requestSessionID(req sdkmcp.Request) (id string) {
	if extra := req.GetExtra(); extra != nil && extra.Header != nil {
		if id = extra.Header.Get("Mcp-Session-Id"); id != "" {
			return id
		}
	}
	params := req.GetParams()
	if params == nil {
		return ""
	}
	// GetMeta panics on a typed nil params value, as sent with
	// notifications/initialized.
	defer func() {
		if recover() != nil {
			id = ""
		}
	}()
	id, _ = params.GetMeta()["session_id"].(string)
	return id
}
