package auth

import (
	"context"
	"crypto/subtle"
	"strings"
)

// StaticAuthenticator accepts a fixed set of keys, typically from
// AINVENTORY_API_KEYS.
type StaticAuthenticator struct {
	keys []string
}

// NewStaticAuthenticator keeps the aik_ keys from keys and drops the rest.
func NewStaticAuthenticator(keys []string) *StaticAuthenticator {
	a := &StaticAuthenticator{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if strings.HasPrefix(k, KeyPrefix) {
			a.keys = append(a.keys, k)
		}
	}
	return a
}

// ParseKeyList splits a comma-separated key list.
func ParseKeyList(list string) []string {
	var out []string
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Len returns the number of accepted keys.
func (a *StaticAuthenticator) Len() int {
	return len(a.keys)
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, apiKey string) (*Client, error) {
	// Compare against every key so timing does not reveal which one matched.
	matched := 0
	for _, k := range a.keys {
		matched |= subtle.ConstantTimeCompare([]byte(k), []byte(apiKey))
	}
	if matched != 1 {
		return nil, ErrInvalidAPIKey
	}
	return &Client{
		ClientID: "static-" + keyPrefix(apiKey),
		Name:     "static",
	}, nil
}
