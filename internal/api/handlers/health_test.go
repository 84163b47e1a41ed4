package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockChecker struct {
	status, message string
}

func (m mockChecker) CheckReady() (string, string) { return m.status, m.message }

type mockDeps map[string]bool

func (m mockDeps) Health() map[string]bool { return m }

type mockJWKS struct{}

func (mockJWKS) JWKS() json.RawMessage { return json.RawMessage(`{"keys":[]}`) }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		deps       DependencyReporter
		wantCode   int
		wantStatus string
	}{
		{"всё доступно", mockChecker{status: "ok"}, mockDeps{"filestore": true}, http.StatusOK, "ok"},
		{"зависимость недоступна", mockChecker{status: "ok"}, mockDeps{"idp": false}, http.StatusOK, "degraded"},
		{"PostgreSQL недоступен", mockChecker{status: "fail", message: "timeout"}, nil, http.StatusServiceUnavailable, "fail"},
		{"нет проверки PostgreSQL", nil, nil, http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checker, tt.deps, mockJWKS{})
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantCode)
			}
			var resp healthReadyResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("ответ не JSON: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, хотели %q", resp.Status, tt.wantStatus)
			}
			if _, ok := resp.Checks["postgresql"]; !ok {
				t.Error("в checks нет postgresql")
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil, mockJWKS{})
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	var resp healthLiveResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "blockevidence" {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestJWKS(t *testing.T) {
	h := NewHealthHandler(nil, nil, mockJWKS{})
	rec := httptest.NewRecorder()
	h.JWKS(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != `{"keys":[]}` {
		t.Errorf("тело = %s", rec.Body.String())
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"ok", "ok"}, "ok"},
		{[]string{"ok", "degraded"}, "degraded"},
		{[]string{"degraded", "fail"}, "fail"},
		{nil, "ok"},
	}
	for _, tt := range tests {
		if got := overallStatus(tt.in...); got != tt.want {
			t.Errorf("overallStatus(%v) = %q, хотели %q", tt.in, got, tt.want)
		}
	}
}
