package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/frontdesk/internal/app"
	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/store/memstore"
)

// testConfig returns a config that uses the in-memory store.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":0", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "mock"},
			LLM: config.ProviderEntry{Name: "mock"},
			TTS: config.ProviderEntry{Name: "mock"},
		},
		Store: config.StoreConfig{Driver: config.StoreMemory},
		Agent: testAgent(),
	}
}

type closeTracking struct {
	*memstore.Store
	closed atomic.Bool
}

func (s *closeTracking) Close() error {
	s.closed.Store(true)
	return s.Store.Close()
}

func newApp(t *testing.T, opts ...app.Option) *app.App {
	t.Helper()
	p, _ := testProviders()
	a, err := app.New(context.Background(), testConfig(), p, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()
	p, _ := testProviders()
	p.LLM = nil
	if _, err := app.New(context.Background(), testConfig(), p); err == nil {
		t.Fatal("expected error without an LLM provider")
	}
	if _, err := app.New(context.Background(), testConfig(), nil); err == nil {
		t.Fatal("expected error with nil providers")
	}
}

func TestNew_StoreDrivers(t *testing.T) {
	t.Parallel()

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Store = config.StoreConfig{Driver: config.StoreSQLite, DSN: filepath.Join(t.TempDir(), "salon.db")}
		p, _ := testProviders()
		a, err := app.New(context.Background(), cfg, p)
		if err != nil {
			t.Fatalf("New() returned error: %v", err)
		}
		defer func() { _ = a.Shutdown(context.Background()) }()

		kb, err := a.Store().GetKnowledgeBase(context.Background())
		if err != nil || len(kb) == 0 {
			t.Errorf("sqlite store should be seeded, got %d entries, err %v", len(kb), err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Store.Driver = "mysql"
		p, _ := testProviders()
		if _, err := app.New(context.Background(), cfg, p); err == nil {
			t.Fatal("expected error for unknown store driver")
		}
	})
}

func TestApp_Routes(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(newApp(t).Handler())
	defer srv.Close()

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/readyz", http.StatusOK, `"llm":"ok"`},
		{"/api/requests", http.StatusOK, "["},
		{"/api/knowledge", http.StatusOK, "what are your hours"},
		{"/api/stats", http.StatusOK, "{"},
		{"/metrics", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body %q does not contain %q", body, tt.wantBody)
			}
		})
	}
}

func TestApp_CallOverWebSocket(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/calls", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	start := map[string]any{"event": "start", "call_id": "ws-1", "phone_number": "5550002222", "caller_name": "Robin"}
	if err := wsjson.Write(ctx, conn, start); err != nil {
		t.Fatalf("write start: %v", err)
	}

	// The greeting arrives as binary PCM frames.
	typ, frame, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if typ != websocket.MessageBinary || len(frame) == 0 {
		t.Errorf("got %v message of %d bytes, want binary audio", typ, len(frame))
	}
	if a.Calls().Active() != 1 {
		t.Errorf("Active() = %d, want 1", a.Calls().Active())
	}

	if err := wsjson.Write(ctx, conn, map[string]string{"event": "stop"}); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	// Keep reading so the server's close handshake completes.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	if err := a.Calls().Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	cust, err := a.Store().GetOrCreateCustomer(ctx, "5550002222", "")
	if err != nil {
		t.Fatalf("GetOrCreateCustomer: %v", err)
	}
	if cust.Name != "Robin" {
		t.Errorf("customer name = %q, want Robin", cust.Name)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()
	a := newApp(t)

	newCfg := testConfig()
	newCfg.Agent.Greeting = "Welcome back!"
	newCfg.Server.ListenAddr = ":9999"
	a.ApplyConfig(newCfg)

	if got := a.Calls().Agent().Greeting; got != "Welcome back!" {
		t.Errorf("greeting = %q, want reloaded value", got)
	}
}

func TestApp_ShutdownClosesStore(t *testing.T) {
	t.Parallel()
	st := &closeTracking{Store: memstore.New()}
	p, _ := testProviders()
	a, err := app.New(context.Background(), testConfig(), p, app.WithStore(st))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !st.closed.Load() {
		t.Error("store was not closed")
	}
	// A second Shutdown is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestApp_ReadyzReportsStore(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(newApp(t).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, name := range []string{"store", "stt", "llm", "tts"} {
		if body.Checks[name] != "ok" {
			t.Errorf("check %q = %q, want ok", name, body.Checks[name])
		}
	}
}
