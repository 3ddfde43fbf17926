package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"ccd/internal/completion"
	"ccd/internal/config"
	"ccd/internal/dispatch"
	"ccd/internal/flags"
	"ccd/internal/frontend"
	"ccd/internal/frontend/frontendtest"
	"ccd/internal/logging"
	"ccd/internal/tucache"
)

func newTestServer(t *testing.T, cfg config.ServerConfig) (*Server, *frontendtest.Stub) {
	t.Helper()

	stub := frontendtest.New()
	stub.Candidates = []frontend.RawCandidate{
		{Display: "alpha", Kind: frontend.KindVariable},
	}

	logger := logging.Discard()
	resolver, err := flags.NewResolver([]string{"-std=c11"}, 16, logger)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	cache := tucache.New(stub, 16, logger)
	engine := completion.NewEngine(100, logger)
	d := dispatch.New(stub, resolver, cache, engine, dispatch.Options{}, logger)
	t.Cleanup(func() {
		d.Close()
		cache.Close()
	})

	return New(cfg, d, cache, nil, nil, logger), stub
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q, want healthy", health.Status)
	}
}

func TestCompleteEndpoint(t *testing.T) {
	s, stub := newTestServer(t, config.ServerConfig{})

	file := filepath.Join(t.TempDir(), "main.c")
	rec := postJSON(t, s.Handler(), "/api/v1/complete", completeRequest{
		File:   file,
		Line:   1,
		Column: 3,
		Limit:  10,
		Buffers: []requestBuffer{
			{Path: file, Content: "al\n"},
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if !resp.Success {
		t.Fatalf("success = false, error %+v", resp.Error)
	}

	data, _ := json.Marshal(resp.Data)
	var result dispatch.CompletionResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Display != "alpha" {
		t.Errorf("candidates = %+v", result.Candidates)
	}
	if stub.ParseCalls() != 1 {
		t.Errorf("parse calls = %d, want 1", stub.ParseCalls())
	}
}

func TestCompleteInvalidPosition(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{})

	file := filepath.Join(t.TempDir(), "main.c")
	rec := postJSON(t, s.Handler(), "/api/v1/complete", completeRequest{
		File:   file,
		Line:   50,
		Column: 1,
		Buffers: []requestBuffer{
			{Path: file, Content: "int x;\n"},
		},
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "INVALID_POSITION" {
		t.Errorf("error = %+v, want INVALID_POSITION", resp.Error)
	}
}

func TestCompleteMissingFile(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{})

	rec := postJSON(t, s.Handler(), "/api/v1/complete", completeRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	s, stub := newTestServer(t, config.ServerConfig{})
	stub.ParseDiags = []frontend.Diagnostic{
		{Severity: frontend.SeverityWarning, File: "main.c", Line: 1, Column: 5, Message: "unused variable"},
	}

	file := filepath.Join(t.TempDir(), "main.c")
	rec := postJSON(t, s.Handler(), "/api/v1/diagnostics", diagnosticsRequest{
		File: file,
		Buffers: []requestBuffer{
			{Path: file, Content: "int x;\n"},
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if !resp.Success {
		t.Fatalf("success = false, error %+v", resp.Error)
	}

	data, _ := json.Marshal(resp.Data)
	var result dispatch.DiagnosticsResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Message != "unused variable" {
		t.Errorf("diagnostics = %+v", result.Diagnostics)
	}
}

func TestFileCloseEndpoint(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{})

	file := filepath.Join(t.TempDir(), "main.c")
	rec := postJSON(t, s.Handler(), "/api/v1/files/close", fileRequest{File: file})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if resp := decodeEnvelope(t, rec); !resp.Success {
		t.Errorf("success = false, error %+v", resp.Error)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if !resp.Success {
		t.Fatalf("success = false, error %+v", resp.Error)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Setenv(DaemonTokenEnvVar, "secret-token")
	s, _ := newTestServer(t, config.ServerConfig{Auth: config.AuthConfig{Enabled: true}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set(AuthHeader, AuthScheme+"wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with wrong token = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set(AuthHeader, AuthScheme+"secret-token")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with token = %d, want 200", rec.Code)
	}

	// Health stays open without a token.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health = %d, want 200", rec.Code)
	}
}
