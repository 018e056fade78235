package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, body
}

func TestHealthz_IgnoresCheckers(t *testing.T) {
	code, body := serve(t, New(Checker{Name: "database", Check: failing("down")}), "/healthz")
	if code != http.StatusOK || body.Status != "ok" || body.Checks != nil {
		t.Errorf("got %d %+v, want 200 ok without checks", code, body)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "database and schema ready",
			checkers:   []Checker{{Name: "database", Check: ok}, {Name: "schema", Check: ok}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"database": "ok", "schema": "ok"},
		},
		{
			name: "schema behind",
			checkers: []Checker{
				{Name: "database", Check: ok},
				{Name: "schema", Check: failing("schema has pending migrations")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"database": "ok", "schema": "fail: schema has pending migrations"},
		},
		{
			name: "everything down",
			checkers: []Checker{
				{Name: "database", Check: failing("connection refused")},
				{Name: "schema", Check: failing("connection refused")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"database": "fail: connection refused", "schema": "fail: connection refused"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := serve(t, New(tc.checkers...), "/readyz")
			if code != tc.wantCode || body.Status != tc.wantStatus {
				t.Errorf("got %d %q, want %d %q", code, body.Status, tc.wantCode, tc.wantStatus)
			}
			if len(body.Checks) != len(tc.wantChecks) {
				t.Errorf("checks: got %v, want %v", body.Checks, tc.wantChecks)
			}
			for name, want := range tc.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("check %s: got %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPing(t *testing.T) {
	c := Ping("database", pinger{})
	if c.Name != "database" || c.Check(context.Background()) != nil {
		t.Errorf("healthy pinger: got %q %v", c.Name, c.Check(context.Background()))
	}
	down := errors.New("no route to host")
	if err := Ping("database", pinger{err: down}).Check(context.Background()); !errors.Is(err, down) {
		t.Errorf("failing pinger: got %v", err)
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	var running, peak atomic.Int32
	slow := func(ctx context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		select {
		case <-time.After(50 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Checker{Name: "database", Check: slow}, Checker{Name: "schema", Check: slow})

	if code, _ := serve(t, h, "/readyz"); code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if peak.Load() != 2 {
		t.Errorf("peak concurrent checks: got %d, want 2", peak.Load())
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	h := New(Checker{Name: "database", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
}
