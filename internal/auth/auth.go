package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// KeyPrefix starts every client API key.
const KeyPrefix = "aik_"

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("authentication backend unavailable")
)

// Client is the authenticated caller.
type Client struct {
	ClientID string
	Name     string
}

// Authenticator validates an API key and returns the calling client.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*Client, error)
}

// ParseBearer extracts an aik_ key from an Authorization header value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAPIKey
	}
	token := header
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = token[7:]
	}
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, KeyPrefix) {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}

// APIKeyFromRequest reads the key from the Authorization header.
func APIKeyFromRequest(r *http.Request) (string, error) {
	return ParseBearer(r.Header.Get("Authorization"))
}

// APIKeyFromMetadata reads the key from incoming gRPC metadata.
func APIKeyFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrMissingAPIKey
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrMissingAPIKey
	}
	return ParseBearer(values[0])
}

type clientKey struct{}

// WithClient attaches the authenticated client to ctx.
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFromContext returns the client attached by WithClient.
func ClientFromContext(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*Client)
	return c, ok && c != nil
}
