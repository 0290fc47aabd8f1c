package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment keys read by the tool clients on every call.
const (
	EnvFieesoftBaseURL  = "FIEESOFT_API_BASE_URL"
	EnvFieesoftUser     = "FIEESOFT_USER"
	EnvFieesoftPass     = "FIEESOFT_PASS"
	EnvFieesoftTimeout  = "FIEESOFT_TIMEOUT"
	EnvGmailUser        = "GMAIL_USER"
	EnvGmailAppPassword = "GMAIL_APP_PASSWORD"
)

// DefaultFieesoftTimeout applies when FIEESOFT_TIMEOUT is unset or unparsable.
const DefaultFieesoftTimeout = 10 * time.Second

// FieesoftConfig holds the inventory backend endpoint and credentials.
type FieesoftConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// GmailConfig holds the SMTP account used by the email tool.
type GmailConfig struct {
	User        string
	AppPassword string
}

// Provider resolves tool configuration. Implementations are consulted at
// call time so that credential or endpoint changes apply to the next call.
type Provider interface {
	Fieesoft() FieesoftConfig
	Gmail() GmailConfig
}

// EnvProvider reads configuration from the process environment.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider returns a Provider backed by os.LookupEnv.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

// NewLookupProvider returns a Provider backed by an arbitrary lookup function.
func NewLookupProvider(lookup func(string) (string, bool)) *EnvProvider {
	return &EnvProvider{lookup: lookup}
}

func (p *EnvProvider) get(key string) string {
	v, _ := p.lookup(key)
	return v
}

// Fieesoft implements Provider.
func (p *EnvProvider) Fieesoft() FieesoftConfig {
	return FieesoftConfig{
		BaseURL:  p.get(EnvFieesoftBaseURL),
		Username: p.get(EnvFieesoftUser),
		Password: p.get(EnvFieesoftPass),
		Timeout:  ParseSeconds(p.get(EnvFieesoftTimeout), DefaultFieesoftTimeout),
	}
}

// Gmail implements Provider.
func (p *EnvProvider) Gmail() GmailConfig {
	return GmailConfig{
		User:        p.get(EnvGmailUser),
		AppPassword: p.get(EnvGmailAppPassword),
	}
}

// StaticProvider returns fixed values. Used by tests and the CLI.
type StaticProvider struct {
	FieesoftConfig FieesoftConfig
	GmailConfig    GmailConfig
}

// Fieesoft implements Provider.
func (p StaticProvider) Fieesoft() FieesoftConfig {
	cfg := p.FieesoftConfig
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFieesoftTimeout
	}
	return cfg
}

// Gmail implements Provider.
func (p StaticProvider) Gmail() GmailConfig { return p.GmailConfig }

// ParseSeconds parses a (possibly fractional) number of seconds.
// Empty, invalid and non-positive values yield def.
func ParseSeconds(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}
