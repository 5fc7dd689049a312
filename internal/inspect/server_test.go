package inspect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/lazymod/internal/testutil/testlog"
	"github.com/danmuck/lazymod/pkg/host"
	"github.com/danmuck/lazymod/pkg/lazy"
	"github.com/danmuck/lazymod/pkg/registry"
	"github.com/danmuck/lazymod/pkg/unit"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func newTestServer(t *testing.T) (*Server, *lazy.Importer) {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	catalog := host.NewCatalog()
	catalog.MustProvide("edge", host.Namespace("edge"))
	catalog.MustProvide("edge.kv", func() (unit.Unit, error) {
		return unit.NewModule("edge.kv", map[string]any{"get": unit.Func(func(args ...any) (any, error) { return nil, nil })}), nil
	})
	imp := lazy.New(registry.New(), catalog)
	s := New("inspect-test", ":0", nil, imp)
	s.RegisterRoutes()
	return s, imp
}

func do(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v body=%s", err, rr.Body.String())
		}
	}
	log.Debug().Str("method", method).Str("path", path).Int("status", rr.Code).Msg("inspect test request")
	return rr, body
}

func TestHealthReadyAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	rr, body := do(t, s, http.MethodGet, "/health")
	if rr.Code != http.StatusOK || body["status"] != "ok" || body["service"] != "inspect-test" {
		t.Fatalf("unexpected health: %d %#v", rr.Code, body)
	}
	rr, body = do(t, s, http.MethodGet, "/ready")
	if rr.Code != http.StatusOK || body["ready"] != true {
		t.Fatalf("unexpected ready: %d %#v", rr.Code, body)
	}
	rr, _ = do(t, s, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "lazymod_http_requests_total") {
		t.Fatalf("metrics missing http counter: %d", rr.Code)
	}
}

func TestUnitsListingDoesNotLoad(t *testing.T) {
	s, imp := newTestServer(t)
	if _, err := imp.Module("edge.kv"); err != nil {
		t.Fatalf("module: %v", err)
	}

	rr, body := do(t, s, http.MethodGet, "/units")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	units, _ := body["units"].([]any)
	if len(units) != 2 {
		t.Fatalf("expected two entries, got %#v", body["units"])
	}
	first := units[0].(map[string]any)
	if first["name"] != "edge" || first["state"] != "pending" || first["kind"] != "placeholder" {
		t.Fatalf("unexpected entry %#v", first)
	}

	rr, body = do(t, s, http.MethodGet, "/units/edge.kv")
	if rr.Code != http.StatusOK || body["state"] != "pending" {
		t.Fatalf("describe changed state: %d %#v", rr.Code, body)
	}
	if imp.Registry().Loaded("edge.kv") {
		t.Fatalf("describe loaded the unit")
	}
}

func TestLoadRouteForcesUnit(t *testing.T) {
	s, imp := newTestServer(t)
	ref, _ := imp.Module("edge.kv")

	rr, body := do(t, s, http.MethodPost, "/units/edge.kv/load")
	if rr.Code != http.StatusOK || body["state"] != "loaded" {
		t.Fatalf("unexpected load response: %d %#v", rr.Code, body)
	}
	attrs, _ := body["attrs"].([]any)
	if len(attrs) != 1 || attrs[0] != "get" {
		t.Fatalf("unexpected attrs %#v", body["attrs"])
	}
	if ph := ref.(*lazy.Placeholder); ph.State() != unit.Loaded {
		t.Fatalf("placeholder not loaded: %s", ph.State())
	}
}

func TestLoadRouteStatusMapping(t *testing.T) {
	s, imp := newTestServer(t)
	if _, err := imp.Module("edge.missing"); err != nil {
		t.Fatalf("module: %v", err)
	}

	rr, body := do(t, s, http.MethodPost, "/units/edge.missing/load")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d %#v", rr.Code, body)
	}
	view, _ := body["unit"].(map[string]any)
	if view["state"] != "failed" || view["error"] == nil {
		t.Fatalf("failed unit view missing error: %#v", view)
	}

	if rr, _ := do(t, s, http.MethodPost, "/units/nobody/load"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr, _ := do(t, s, http.MethodGet, "/units/bad..name"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if rr, _ := do(t, s, http.MethodGet, "/units/nobody"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
