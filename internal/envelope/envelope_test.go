package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestLogin_Message(t *testing.T) {
	e := Login(errors.New("Login failed (401): bad credentials"))
	m := e.Map()
	if m["error"] != "Login error: Login failed (401): bad credentials" {
		t.Errorf("unexpected message: %v", m["error"])
	}
	if _, ok := m["status"]; ok {
		t.Error("login errors must not carry status fields")
	}
	if e.Kind != KindLogin {
		t.Errorf("expected login kind, got %s", e.Kind)
	}
}

func TestHTTPStatus_BodySnippetBounded(t *testing.T) {
	body := strings.Repeat("x", 2000)
	e := WithStatusFields(HTTPStatus("http://api/bienes/7", "404 Not Found", []byte(body)))
	m := e.Map()

	if m["status"] != "404 Not Found" {
		t.Errorf("expected compact status, got %v", m["status"])
	}
	snippet, ok := m["body_snippet"].(string)
	if !ok {
		t.Fatalf("expected string snippet, got %T", m["body_snippet"])
	}
	if len(snippet) != BodySnippetLength {
		t.Errorf("expected %d chars, got %d", BodySnippetLength, len(snippet))
	}
	if !strings.Contains(m["error"].(string), "http://api/bienes/7") {
		t.Errorf("expected url in message, got %v", m["error"])
	}
}

func TestWithStatusFields_NullWhenUnknown(t *testing.T) {
	e := WithStatusFields(Transport("http://api/bienes/1", errors.New("connection refused")))
	m := e.Map()

	status, ok := m["status"]
	if !ok || status != nil {
		t.Errorf("expected status key with nil value, got %v (present=%v)", status, ok)
	}
	snippet, ok := m["body_snippet"]
	if !ok || snippet != nil {
		t.Errorf("expected body_snippet key with nil value, got %v (present=%v)", snippet, ok)
	}
}

func TestHTTPStatus_EmptyBodyIsNull(t *testing.T) {
	m := WithStatusFields(HTTPStatus("u", "500 Internal Server Error", nil)).Map()
	if m["body_snippet"] != nil {
		t.Errorf("expected nil snippet for empty body, got %v", m["body_snippet"])
	}
}

func TestDecode_RawBounded(t *testing.T) {
	raw := strings.Repeat("ñ", 1500)
	m := Decode([]byte(raw), errors.New("invalid character")).Map()

	if m["error"] != "Respuesta no es JSON válido" {
		t.Errorf("unexpected message: %v", m["error"])
	}
	got := m["raw"].(string)
	if n := len([]rune(got)); n != RawLength {
		t.Errorf("expected %d runes, got %d", RawLength, n)
	}
}

func TestDecode_EmptyRawKept(t *testing.T) {
	m := Decode(nil, errors.New("EOF")).Map()
	raw, ok := m["raw"]
	if !ok || raw != "" {
		t.Errorf("expected empty raw text, got %v (present=%v)", raw, ok)
	}
}

func TestMap_NeverLeaksCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: %w", errors.New("secret internals"))
	m := Transport("http://x", cause).Map()

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("map must be serializable: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 1 {
		t.Errorf("expected only the error key, got %v", decoded)
	}
}

func TestFrom(t *testing.T) {
	wrapped := fmt.Errorf("GetAsset: %w", MissingArgument("id es requerido"))
	if m := From(wrapped); m["error"] != "id es requerido" {
		t.Errorf("expected envelope message, got %v", m)
	}
	if m := From(errors.New("boom")); m["error"] != "boom" {
		t.Errorf("expected plain message, got %v", m)
	}
}

func TestUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	e := Login(sentinel)
	if !errors.Is(e, sentinel) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
