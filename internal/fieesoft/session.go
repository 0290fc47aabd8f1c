package fieesoft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ainventory/ainventory-server/internal/config"
	"github.com/ainventory/ainventory-server/internal/envelope"
	"golang.org/x/net/publicsuffix"
)

const loginPath = "/api/auth/login"

var (
	// ErrNoBaseURL is returned when FIEESOFT_API_BASE_URL is not configured.
	ErrNoBaseURL = errors.New("inventory API base URL is not configured")
	// ErrNoCookies is returned when a login succeeds but issues no session cookie.
	ErrNoCookies = errors.New("login did not yield cookies; cannot authenticate to API")
)

// LoginError is a login attempt rejected with a non-success status.
type LoginError struct {
	StatusCode int
	Body       string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("Login failed (%d): %s", e.StatusCode, e.Body)
}

// Session is an authenticated, cookie-carrying handle to the inventory API.
// It belongs to the call that created it and is not shared.
type Session struct {
	client  *http.Client
	baseURL string
}

// Response is the buffered result of a session request.
type Response struct {
	StatusCode int
	Status     string // "<code> <reason>"
	Body       []byte
}

// OK reports whether the status is below 400.
func (r *Response) OK() bool {
	return r.StatusCode < http.StatusBadRequest
}

// SessionOption customizes session construction.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	transport http.RoundTripper
}

// WithTransport sets the round tripper used by sessions. Nil keeps
// http.DefaultTransport.
func WithTransport(rt http.RoundTripper) SessionOption {
	return func(o *sessionOptions) {
		o.transport = rt
	}
}

// NewSession logs in with cfg and returns a session holding the issued
// cookies. Success requires a status below 400 and cookie evidence, either
// in the jar or as a Set-Cookie header on the login response.
func NewSession(ctx context.Context, cfg config.FieesoftConfig, opts ...SessionOption) (*Session, error) {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrNoBaseURL
	}
	loginURL, err := url.Parse(base + loginPath)
	if err != nil {
		return nil, fmt.Errorf("NewSession: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("NewSession: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultFieesoftTimeout
	}
	client := &http.Client{
		Timeout:   timeout,
		Jar:       jar,
		Transport: o.transport,
	}

	payload, err := json.Marshal(map[string]string{
		"username": cfg.Username,
		"password": cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("NewSession: encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("NewSession: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("NewSession: read login response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &LoginError{
			StatusCode: resp.StatusCode,
			Body:       envelope.Truncate(string(body), envelope.RawLength),
		}
	}

	if !hasCookies(jar, loginURL) && resp.Header.Get("Set-Cookie") == "" {
		return nil, ErrNoCookies
	}

	return &Session{client: client, baseURL: base}, nil
}

func hasCookies(jar http.CookieJar, loginURL *url.URL) bool {
	if len(jar.Cookies(loginURL)) > 0 {
		return true
	}
	root := *loginURL
	root.Path = "/"
	return len(jar.Cookies(&root)) > 0
}

// BaseURL returns the API root without a trailing slash.
func (s *Session) BaseURL() string {
	return s.baseURL
}

// URL joins path onto the API root.
func (s *Session) URL(path string) string {
	return s.baseURL + path
}

// Get issues a GET for path with optional query parameters. A non-nil error
// means no response was received.
func (s *Session) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	target := s.URL(path)
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     statusLine(resp),
		Body:       body,
	}, nil
}

// Timeout returns the per-request timeout of the session.
func (s *Session) Timeout() time.Duration {
	return s.client.Timeout
}

func statusLine(resp *http.Response) string {
	if s := strings.TrimSpace(resp.Status); s != "" {
		return s
	}
	return strings.TrimSpace(fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
}
