package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pulsecorr/internal/alerts"
	"pulsecorr/internal/config"
	"pulsecorr/internal/query"
	"pulsecorr/internal/store"
	"pulsecorr/internal/vectorstore"
)

// fakeAlertKV is a minimal in-memory stand-in for alerts.KV, just enough to
// exercise the alerts handlers without a real Redis instance.
type fakeAlertKV struct {
	hashes    map[string]map[string]string
	persisted map[string]bool
	sets      map[string]map[string]bool
}

func newFakeKV() *fakeAlertKV {
	return &fakeAlertKV{
		hashes:    make(map[string]map[string]string),
		persisted: make(map[string]bool),
		sets:      make(map[string]map[string]bool),
	}
}

func (f *fakeAlertKV) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeAlertKV) RevRange(ctx context.Context, stream string, count int64) ([]store.StreamEntry, error) {
	return nil, nil
}

func (f *fakeAlertKV) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return f.hashes[key], nil
}

func (f *fakeAlertKV) HSet(ctx context.Context, key string, fields map[string]any) error {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = toStringValue(v)
	}
	return nil
}

func (f *fakeAlertKV) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.hashes[key]
	return ok, nil
}

func (f *fakeAlertKV) Persist(ctx context.Context, key string) error {
	f.persisted[key] = true
	return nil
}

func (f *fakeAlertKV) SAdd(ctx context.Context, key, member string) error {
	s, ok := f.sets[key]
	if !ok {
		s = make(map[string]bool)
		f.sets[key] = s
	}
	s[member] = true
	return nil
}

func (f *fakeAlertKV) SRem(ctx context.Context, key, member string) error {
	if s, ok := f.sets[key]; ok {
		delete(s, member)
	}
	return nil
}

func (f *fakeAlertKV) XRangeOne(ctx context.Context, stream, id string) (store.StreamEntry, bool, error) {
	return store.StreamEntry{}, false, nil
}

func toStringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logs := map[string]*vectorstore.MemStore{
		"linux": vectorstore.NewMemStore(),
	}
	logsFn := func(os string) vectorstore.Store {
		s, ok := logs[os]
		if !ok {
			return vectorstore.NewMemStore()
		}
		return s
	}
	protos := map[string]*vectorstore.MemStore{
		"linux": vectorstore.NewMemStore(),
	}
	protoFn := func(os string) vectorstore.Store {
		s, ok := protos[os]
		if !ok {
			return vectorstore.NewMemStore()
		}
		return s
	}

	env := &query.Environments{
		Logs:                    logsFn,
		DiscoveryTimeout:        time.Second,
		DisableGlobalClustering: false,
		FallbackEnvIDs:          []string{"env-001", "env-002"},
	}

	alertKV := newFakeKV()
	store := alerts.New(alertKV)

	return NewServer(Deps{
		AlertStore:   store,
		Environments: env,
		Logs:         logsFn,
		Prototypes:   protoFn,
		KV:           nil,
		Config:       config.Config{},
		Logger:       zerolog.Nop(),
	})
}

func TestHealthzReturnsOK(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListAlertsReturnsEmptyItems(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"items"`)
}

func TestPersistUnknownAlertReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/alerts/does-not-exist/persist", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddFeedbackRejectsInvalidValue(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/alerts/some-id/feedback?feedback=maybe", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEnvironmentsReturnsFallbackIDs(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/environments", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "env-001")
}

func TestEnvironmentDetailUnknownIDReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/environments/env-999", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGlobalCorrelationWithNoDataReturnsEmptyClusters(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/correlation/global", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"clusters"`)
}

func TestCorrelationGraphWithNoDataReturnsEmptyGraph(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/correlation/graph", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"nodes"`)
}

func TestGlobalCorrelationDisabledReportsDisabled(t *testing.T) {
	logsFn := func(os string) vectorstore.Store { return vectorstore.NewMemStore() }
	srv := NewServer(Deps{
		AlertStore:   alerts.New(newFakeKV()),
		Environments: &query.Environments{Logs: logsFn, FallbackEnvIDs: []string{"env-001"}},
		Logs:         logsFn,
		Prototypes:   logsFn,
		Config:       config.Config{DisableGlobalClustering: true},
		Logger:       zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodGet, "/correlation/global", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"disabled":true`)
}
