package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ASHISH26940/cocoabot/internal/store"
)

// brokenTable is a TableReader whose every call fails, like a closed table.
type brokenTable struct{}

func (brokenTable) Get(string) (string, bool, error) { return "", false, store.ErrClosed }
func (brokenTable) Size() (int, error)               { return 0, store.ErrClosed }
func (brokenTable) Serialize() (string, error)       { return "", store.ErrClosed }

func newTable(t *testing.T) *store.Table {
	t.Helper()
	table, err := store.Open(filepath.Join(t.TempDir(), "members.dt"))
	if err != nil {
		t.Fatalf("failed to open table: %v", err)
	}
	t.Cleanup(func() { table.Close() })
	return table
}

func TestStatusHandlers(t *testing.T) {
	table := newTable(t)
	if err := table.Put("689225599990104071", "1"); err != nil {
		t.Fatal(err)
	}
	if err := table.Put("689225599990104070", "2"); err != nil {
		t.Fatal(err)
	}
	srv := New(table)

	// --- Test Case 1: Health ---
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Errorf("unexpected health response %d %q", rr.Code, rr.Body.String())
	}

	// --- Test Case 2: Stats ---
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var stats Stats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Size != 2 {
		t.Errorf("expected size 2, got %d", stats.Size)
	}

	// --- Test Case 3: All members, sorted like the file ---
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members", nil))
	want := "689225599990104070 2\n689225599990104071 1\n"
	if rr.Body.String() != want {
		t.Errorf("expected body %q, got %q", want, rr.Body.String())
	}

	// --- Test Case 4: One member ---
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/689225599990104070", nil))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "2" {
		t.Errorf("unexpected member response %d %q", rr.Code, rr.Body.String())
	}

	// --- Test Case 5: Unknown member ---
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/42", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}

	// --- Test Case 6: Missing id ---
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}

	// --- Test Case 7: Writes are rejected ---
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/members/42", strings.NewReader("5")))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
	if _, ok, _ := table.Get("42"); ok {
		t.Error("expected POST not to create a member")
	}
}

func TestStatusHandlers_TableUnavailable(t *testing.T) {
	srv := New(brokenTable{})
	for _, path := range []string{"/stats", "/members", "/members/1"} {
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusServiceUnavailable, rr.Code)
		}
	}
}

func TestListenAndServe_Shutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	srv := New(newTable(t))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- ListenAndServe(ctx, addr, srv) }()

	// Wait for the server to come up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenAndServe_BadAddress(t *testing.T) {
	err := ListenAndServe(context.Background(), "256.0.0.1:-1", New(brokenTable{}))
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("expected a listen error, got %v", err)
	}
}
