package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"marketsched/internal/scheduler"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	srv := New(func() scheduler.Snapshot {
		return scheduler.Snapshot{Running: true, Tasks: 3, Enabled: 2}
	}, zerolog.Nop())
	srv.Apply(context.Background(), Config{Enabled: true, Address: "127.0.0.1:0"})
	if srv.Addr() == "" {
		t.Fatal("server did not start")
	}
	t.Cleanup(func() { srv.Close(context.Background()) })
	return srv
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	resp, err := http.Get("http://" + srv.Addr() + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var snap scheduler.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !snap.Running || snap.Tasks != 3 || snap.Enabled != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestStatusMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	resp, err := http.Post("http://"+srv.Addr()+"/status", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestApplyDisabledStops(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	srv.Apply(context.Background(), Config{Enabled: false})
	if srv.Addr() != "" {
		t.Fatal("server still listening after disable")
	}
}
