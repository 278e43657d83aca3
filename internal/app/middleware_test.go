package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trailview/trailview/internal/shared"
)

func TestRequireTenantMissingHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a tenant header")
	})
	rec := httptest.NewRecorder()
	RequireTenant(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit-logs", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
}

func TestRequireTenantStoresTenant(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.TenantFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/api/audit-logs", nil)
	req.Header.Set(shared.TenantHeader, "  tenant-42  ")
	rec := httptest.NewRecorder()
	RequireTenant(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got != "tenant-42" {
		t.Errorf("tenant = %q, want tenant-42", got)
	}
}

func TestRequestIDMiddlewareAssignsID(t *testing.T) {
	stack := MiddlewareStack(MiddlewareConfig{})
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.RequestIDFromContext(r.Context()) == "" {
			t.Error("request id missing from context")
		}
	})
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id response header not set")
	}
}

func TestRequestIDMiddlewarePreservesInbound(t *testing.T) {
	stack := MiddlewareStack(MiddlewareConfig{})
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-inbound")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-inbound" {
		t.Errorf("X-Request-Id = %q, want req-inbound", got)
	}
}
