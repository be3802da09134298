package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/server/config"
	"github.com/yndnr/tidekv/internal/server/respserver"
	"github.com/yndnr/tidekv/internal/storage"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
	"github.com/yndnr/tidekv/internal/storage/snapshot"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeKeyspace struct{ stats keyspace.Stats }

func (f fakeKeyspace) Stats() keyspace.Stats { return f.stats }

type fakeClients struct{ stats respserver.Stats }

func (f fakeClients) Stats() respserver.Stats { return f.stats }

type fakePersistence struct {
	saveErr error
	snaps   []*snapshot.Info
	saves   int
}

func (f *fakePersistence) Save(context.Context) (*snapshot.Info, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saves++
	info := &snapshot.Info{ID: "snap-1", Backend: "file", KeyCount: 3}
	f.snaps = append([]*snapshot.Info{info}, f.snaps...)
	return info, nil
}

func (f *fakePersistence) Snapshots(context.Context) ([]*snapshot.Info, error) {
	return f.snaps, nil
}

func (f *fakePersistence) Status() storage.Status {
	return storage.Status{Backend: "file", WALEnabled: true, LastSaveOK: true}
}

func newTestHandler(p Persistence) *Handler {
	deps := Deps{
		Keyspace: fakeKeyspace{keyspace.Stats{Keys: 5, Volatile: 2, Expired: 9}},
		Clients:  fakeClients{respserver.Stats{ConnectedClients: 3}},
		Config: func() *config.ServerConfig {
			cfg := config.Default()
			cfg.Server.RESP.RequirePass = "supersecret"
			return cfg
		},
	}
	if p != nil {
		deps.Persistence = p
	}
	return New(deps, nil)
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return rec, resp
}

// ============================================================================
// Probes
// ============================================================================

func TestHealth(t *testing.T) {
	rec, resp := do(t, newTestHandler(nil), http.MethodGet, "/health")
	if rec.Code != http.StatusOK || resp.Code != CodeOK {
		t.Fatalf("health = %d %s", rec.Code, resp.Code)
	}
}

func TestReady(t *testing.T) {
	h := newTestHandler(nil)

	rec, resp := do(t, h, http.MethodGet, "/ready")
	if rec.Code != http.StatusServiceUnavailable || resp.Code != CodeNotReady {
		t.Fatalf("before SetReady = %d %s", rec.Code, resp.Code)
	}
	if rec.Header().Get("X-Error-Code") != CodeNotReady {
		t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
	}

	h.SetReady(true)
	if rec, _ := do(t, h, http.MethodGet, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("after SetReady = %d", rec.Code)
	}
}

// ============================================================================
// Admin
// ============================================================================

func TestStatus(t *testing.T) {
	h := newTestHandler(&fakePersistence{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Data StatusResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Keyspace.Keys != 5 || body.Data.Keyspace.VolatileKeys != 2 || body.Data.Keyspace.ExpiredKeys != 9 {
		t.Errorf("keyspace = %+v", body.Data.Keyspace)
	}
	if body.Data.Clients == nil || body.Data.Clients.ConnectedClients != 3 {
		t.Errorf("clients = %+v", body.Data.Clients)
	}
	if body.Data.Persistence == nil || body.Data.Persistence.Backend != "file" {
		t.Errorf("persistence = %+v", body.Data.Persistence)
	}
}

func TestSnapshots(t *testing.T) {
	p := &fakePersistence{}
	h := newTestHandler(p)

	rec, resp := do(t, h, http.MethodPost, "/admin/v1/snapshots")
	if rec.Code != http.StatusCreated || resp.Code != CodeOK {
		t.Fatalf("create = %d %s", rec.Code, resp.Code)
	}
	if p.saves != 1 {
		t.Errorf("saves = %d", p.saves)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/snapshots", nil))
	var body struct {
		Data SnapshotList `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Total != 1 || body.Data.Snapshots[0].ID != "snap-1" {
		t.Errorf("list = %+v", body.Data)
	}
}

func TestSnapshots_Errors(t *testing.T) {
	tests := []struct {
		name       string
		p          Persistence
		method     string
		wantStatus int
		wantCode   string
	}{
		{"disabled list", nil, http.MethodGet, http.StatusNotFound, CodePersistenceDisabled},
		{"disabled create", nil, http.MethodPost, http.StatusNotFound, CodePersistenceDisabled},
		{"in progress", &fakePersistence{saveErr: domain.ErrSaveInProgress}, http.MethodPost, http.StatusConflict, CodeSaveInProgress},
		{"failure", &fakePersistence{saveErr: errors.New("disk full")}, http.MethodPost, http.StatusInternalServerError, CodeSnapshotFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, newTestHandler(tt.p), tt.method, "/admin/v1/snapshots")
			if rec.Code != tt.wantStatus || resp.Code != tt.wantCode {
				t.Errorf("got %d %s, want %d %s", rec.Code, resp.Code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestConfig_Sanitized(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/config", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "supersecret") {
		t.Error("password leaked in config output")
	}
	if !strings.Contains(body, "6379") {
		t.Error("config output missing resp address")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/v1/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
