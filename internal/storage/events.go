package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// EventWriter is the interface for writing tool call events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ToolCallEvent)
	Close()
}

// Call outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeErrorEnvelope = "error_envelope"
	OutcomeFailed        = "failed"
)

// ToolCallEvent records one tool invocation.
type ToolCallEvent struct {
	RequestID     string
	Timestamp     time.Time
	ToolName      string
	Source        string // "mcp", "http", "grpc" or "cli"
	Arguments     string // redacted, first 500 chars
	ArgumentsHash string // SHA256 of the redacted arguments
	Outcome       string
	ErrorKind     string
	ErrorMessage  string
	LatencyMs     float32
}

// ArgumentsPreviewLength is the max chars stored in arguments.
const ArgumentsPreviewLength = 500

const redacted = "[REDACTED]"

var sensitiveKeyParts = []string{"pass", "secret", "token"}

// TruncatePayload returns the first N characters (runes) of a payload for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncatePayload(payload string, maxLen int) string {
	runes := []rune(payload)
	if len(runes) <= maxLen {
		return payload
	}
	return string(runes[:maxLen])
}

// PreviewArguments serializes args with sensitive values masked and
// returns the truncated preview together with the hash of the full text.
func PreviewArguments(args map[string]any) (preview, hash string) {
	masked := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			masked[k] = redacted
			continue
		}
		masked[k] = v
	}

	raw, err := json.Marshal(masked)
	if err != nil {
		// Unserializable values only list their keys.
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		raw = []byte(strings.Join(keys, ","))
	}

	sum := sha256.Sum256(raw)
	return TruncatePayload(string(raw), ArgumentsPreviewLength), hex.EncodeToString(sum[:])
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}
