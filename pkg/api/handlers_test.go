package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ssargent/aora/pkg/config"
	"github.com/ssargent/aora/pkg/metrics"
	"github.com/ssargent/aora/pkg/storage"
)

type testServer struct {
	server  *Server
	service *Service
	handler http.Handler
}

func setupTestServer(t *testing.T, serverConfig ServerConfig) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg)

	service, err := OpenService(storage.NewMemory(nil), config.DefaultConfig(), ServiceOptions{Observer: recorder})
	if err != nil {
		t.Fatalf("Failed to open service: %v", err)
	}
	t.Cleanup(func() { service.Close() })

	server := NewServer(service, serverConfig, recorder, nil)
	return &testServer{server: server, service: service, handler: server.Router(reg)}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var response struct {
		Success bool   `json:"success"`
		Data    T      `json:"data"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !response.Success {
		t.Fatalf("Expected success, got error %q", response.Error)
	}
	return response.Data
}

func TestServer_handleHealth(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{})

	w := ts.do(t, "GET", "/api/v1/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	data := decodeData[map[string]string](t, w)
	if data["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", data)
	}
}

func TestServer_AppendAndGet(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{})

	values := []string{"a", "b", "a"}
	for i, v := range values {
		w := ts.do(t, "POST", "/api/v1/records", []byte(v), nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		resp := decodeData[AppendResponse](t, w)
		if want := []string{"0", "1", "2"}[i]; resp.Key != want {
			t.Errorf("Expected key %s, got %s", want, resp.Key)
		}
	}

	for i, want := range values {
		w := ts.do(t, "GET", "/api/v1/records/"+[]string{"0", "1", "2"}[i], nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if got := w.Body.String(); got != want {
			t.Errorf("Expected value %q, got %q", want, got)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
			t.Errorf("Expected octet-stream content type, got %s", ct)
		}
	}
}

func TestServer_handleGetErrors(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{})

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"missing key", "/api/v1/records/42", http.StatusNotFound},
		{"malformed key", "/api/v1/records/abc", http.StatusBadRequest},
		{"negative key", "/api/v1/records/-1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, "GET", tt.path, nil, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestServer_AppendTooLarge(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{MaxBodyBytes: 8})

	w := ts.do(t, "POST", "/api/v1/records", []byte("more than eight bytes"), nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}
	if ts.service.Stats().Records != 0 {
		t.Error("Expected nothing to be appended")
	}
}

func TestServer_handleList(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{})
	for i := 0; i < 5; i++ {
		if _, err := ts.service.Append([]byte{byte(i)}); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	w := ts.do(t, "GET", "/api/v1/records?offset=1&limit=3", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	page := decodeData[ListResponse](t, w)
	if strings.Join(page.Keys, ",") != "1,2,3" {
		t.Errorf("Expected keys 1,2,3, got %v", page.Keys)
	}
	if page.Total != 5 || page.Offset != 1 || page.Limit != 3 {
		t.Errorf("Unexpected page metadata: %+v", page)
	}

	w = ts.do(t, "GET", "/api/v1/records?offset=10", nil, nil)
	page = decodeData[ListResponse](t, w)
	if page.Keys == nil || len(page.Keys) != 0 {
		t.Errorf("Expected an empty key list, got %v", page.Keys)
	}

	for _, query := range []string{"?limit=0", "?limit=x", "?offset=-1"} {
		w := ts.do(t, "GET", "/api/v1/records"+query, nil, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", query, w.Code)
		}
	}
}

func TestServer_handleStats(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{})
	if _, err := ts.service.Append([]byte("record")); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	w := ts.do(t, "GET", "/api/v1/stats", nil, nil)
	stats := decodeData[StatsResponse](t, w)

	if stats.KeyMode != config.KeysSequence || stats.Keys != 1 || stats.Records != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.DataSize != ts.service.Stats().DataSize {
		t.Errorf("Expected data size %d, got %d", ts.service.Stats().DataSize, stats.DataSize)
	}
	if stats.Recovery.State != "ready" || strings.Join(stats.Recovery.Path, ">") != "scanning>ready" {
		t.Errorf("Unexpected recovery summary: %+v", stats.Recovery)
	}
}

func TestServer_APIKey(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{APIKey: "secret"})

	if w := ts.do(t, "GET", "/api/v1/health", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without key, got %d", w.Code)
	}
	if w := ts.do(t, "GET", "/api/v1/health", nil, map[string]string{"X-API-Key": "secret"}); w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with key, got %d", w.Code)
	}
	if w := ts.do(t, "GET", "/metrics", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Expected metrics to stay unprotected, got %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{})
	ts.do(t, "POST", "/api/v1/records", []byte("counted"), nil)
	ts.do(t, "GET", "/api/v1/records/0", nil, nil)

	w := ts.do(t, "GET", "/metrics", nil, nil)
	body := w.Body.String()
	for _, want := range []string{
		`aora_store_appends_total{status="success"} 1`,
		`aora_store_gets_total{result="hit"} 1`,
		`aora_http_requests_total{endpoint="/api/v1/records",method="POST",status_code="201"} 1`,
		`aora_store_keys 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics to contain %q", want)
		}
	}
}

func TestServer_SwaggerDoc(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{APIKey: "secret"})

	w := ts.do(t, "GET", "/swagger/doc.json", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	info, _ := doc["info"].(map[string]interface{})
	if info["title"] != "AORA REST API" {
		t.Errorf("Unexpected info: %v", info)
	}
	paths, _ := doc["paths"].(map[string]interface{})
	if _, ok := paths["/records/{key}"]; !ok {
		t.Error("Expected the record lookup path to be documented")
	}
}

func TestServer_CORS(t *testing.T) {
	ts := setupTestServer(t, ServerConfig{AllowedOrigins: []string{"https://console.example"}})

	w := ts.do(t, "OPTIONS", "/api/v1/records", nil, map[string]string{
		"Origin":                        "https://console.example",
		"Access-Control-Request-Method": "POST",
	})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}

	w = ts.do(t, "GET", "/api/v1/health", nil, map[string]string{"Origin": "https://elsewhere.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS header for an unknown origin, got %q", got)
	}
}
