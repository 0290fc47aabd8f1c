package toolset

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ainventory/ainventory-server/internal/config"
	"github.com/ainventory/ainventory-server/internal/fieesoft"
	"github.com/ainventory/ainventory-server/internal/mail"
	"github.com/ainventory/ainventory-server/internal/storage"
	"github.com/ainventory/ainventory-server/internal/tools"
	"go.uber.org/zap"
)

type nopWriter struct{}

func (nopWriter) Write(*storage.ToolCallEvent) {}
func (nopWriter) Close()                       {}

// stubInventory records the arguments it receives.
type stubInventory struct {
	lastQuery fieesoft.SearchQuery
	lastID    *int64
	calls     int
}

func (s *stubInventory) SearchAssets(_ context.Context, q fieesoft.SearchQuery) (*fieesoft.Page, error) {
	s.calls++
	s.lastQuery = q
	return fieesoft.Classify([]any{}), nil
}

func (s *stubInventory) GetAsset(_ context.Context, id *int64) (any, error) {
	s.calls++
	s.lastID = id
	return map[string]any{"id": *id}, nil
}

func (s *stubInventory) AssetLocationHistory(context.Context, *int64) (any, error) {
	return nil, fieesoft.ErrHistoryNotImplemented
}

type stubMailer struct {
	last mail.Message
}

func (m *stubMailer) Send(_ context.Context, msg mail.Message) mail.Result {
	m.last = msg
	to := msg.To
	return mail.Result{Success: true, Message: "Email enviado", To: &to, Subject: msg.Subject}
}

func newRegistry(t *testing.T, inv Inventory, mailer Mailer) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(nopWriter{}, zap.NewNop())
	if err := Register(reg, inv, mailer); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRegister_AllTools(t *testing.T) {
	reg := newRegistry(t, &stubInventory{}, &stubMailer{})
	var names []string
	for _, tool := range reg.List() {
		names = append(names, tool.Name)
	}
	want := []string{SearchAssets, GetAsset, AssetLocationChange, SendGmailEmail}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %s at %d, got %s", want[i], i, names[i])
		}
	}
	if tool, _ := reg.Get(SendGmailEmail); tool.ReadOnly() {
		t.Error("expected email tool to be a write tool")
	}
}

func TestSearch_DefaultPagination(t *testing.T) {
	inv := &stubInventory{}
	reg := newRegistry(t, inv, &stubMailer{})

	if _, err := reg.Call(context.Background(), SearchAssets, map[string]any{"texto": "osci"}, tools.SourceMCP); err != nil {
		t.Fatal(err)
	}
	q := inv.lastQuery
	if q.Page == nil || *q.Page != 0 || q.Size == nil || *q.Size != 50 {
		t.Errorf("expected page=0 size=50, got %v %v", q.Page, q.Size)
	}
	if q.Text == nil || *q.Text != "osci" {
		t.Errorf("expected texto forwarded, got %v", q.Text)
	}
	if q.BrandName != nil || q.Location != nil || q.Status != nil {
		t.Error("expected absent filters to stay nil")
	}
}

func TestSearch_ExplicitNullOmitsPagination(t *testing.T) {
	inv := &stubInventory{}
	reg := newRegistry(t, inv, &stubMailer{})

	args := map[string]any{"page": nil, "size": 0, "estado": nil}
	if _, err := reg.Call(context.Background(), SearchAssets, args, tools.SourceMCP); err != nil {
		t.Fatal(err)
	}
	q := inv.lastQuery
	if q.Page != nil {
		t.Errorf("expected page omitted, got %d", *q.Page)
	}
	if q.Size == nil || *q.Size != 0 {
		t.Errorf("expected size=0 forwarded, got %v", q.Size)
	}
	if q.Status != nil {
		t.Error("expected null estado omitted")
	}
}

func TestSearch_RejectsWrongTypes(t *testing.T) {
	inv := &stubInventory{}
	reg := newRegistry(t, inv, &stubMailer{})

	_, err := reg.Call(context.Background(), SearchAssets, map[string]any{"page": "first"}, tools.SourceMCP)
	if !errors.Is(err, tools.ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
	if inv.calls != 0 {
		t.Error("expected no backend call")
	}
}

func TestGetAsset_MissingID(t *testing.T) {
	// Real client with an unreachable base URL: the missing id must fail first.
	client := fieesoft.NewClient(config.StaticProvider{FieesoftConfig: config.FieesoftConfig{
		BaseURL: "http://127.0.0.1:1",
	}}, zap.NewNop())
	reg := newRegistry(t, client, &stubMailer{})

	for _, args := range []map[string]any{{}, {"id": nil}} {
		got, err := reg.Call(context.Background(), GetAsset, args, tools.SourceMCP)
		if err != nil {
			t.Fatal(err)
		}
		m := got.(map[string]any)
		if m["error"] != "id es requerido" {
			t.Errorf("expected id es requerido, got %v", m)
		}
	}
}

func TestGetAsset_ForwardsID(t *testing.T) {
	inv := &stubInventory{}
	reg := newRegistry(t, inv, &stubMailer{})

	if _, err := reg.Call(context.Background(), GetAsset, map[string]any{"id": 17}, tools.SourceHTTP); err != nil {
		t.Fatal(err)
	}
	if inv.lastID == nil || *inv.lastID != 17 {
		t.Errorf("expected id 17, got %v", inv.lastID)
	}
}

func TestLocationHistory_NotImplemented(t *testing.T) {
	reg := newRegistry(t, &stubInventory{}, &stubMailer{})

	for _, args := range []map[string]any{
		nil,
		{"id": 1},
		{"id": nil},
		{"id": "7"},
		{"bien_id": 7},
	} {
		_, err := reg.Call(context.Background(), AssetLocationChange, args, tools.SourceMCP)
		if !errors.Is(err, tools.ErrNotImplemented) {
			t.Errorf("args %v: expected ErrNotImplemented, got %v", args, err)
		}
	}
}

func TestSendGmailEmail_MapsArguments(t *testing.T) {
	mailer := &stubMailer{}
	reg := newRegistry(t, &stubInventory{}, mailer)

	got, err := reg.Call(context.Background(), SendGmailEmail, map[string]any{
		"to":        "a@b.c",
		"subject":   "Hola",
		"body":      "texto",
		"html_body": "<b>texto</b>",
		"cc":        nil,
		"bcc":       "x@y.z",
	}, tools.SourceMCP)
	if err != nil {
		t.Fatal(err)
	}
	if r := got.(mail.Result); !r.Success {
		t.Errorf("expected success, got %+v", r)
	}
	want := mail.Message{To: "a@b.c", Subject: "Hola", Body: "texto", HTMLBody: "<b>texto</b>", Bcc: "x@y.z"}
	if mailer.last != want {
		t.Errorf("expected %+v, got %+v", want, mailer.last)
	}
}

func TestSearch_EndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/bienes", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("texto") != "osci" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"id":1}],"number":0,"size":50,"totalElements":1}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := fieesoft.NewClient(config.StaticProvider{FieesoftConfig: config.FieesoftConfig{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "admin123",
	}}, zap.NewNop())
	reg := newRegistry(t, client, &stubMailer{})

	got, err := reg.Call(context.Background(), SearchAssets, map[string]any{"texto": "osci"}, tools.SourceCLI)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"content":[{"id":1}],"number":0,"size":50,"totalElements":1}`
	if string(raw) != want {
		t.Errorf("expected %s, got %s", want, raw)
	}
}
