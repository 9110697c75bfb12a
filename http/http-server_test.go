package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	apihttp "github.com/programme-lv/anytime/http"
	"github.com/programme-lv/anytime/selector"
	"github.com/programme-lv/anytime/submsrvc"
	"github.com/programme-lv/anytime/submstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	srvc *submsrvc.SubmSrvc
}

func newTestServer(t *testing.T, store submstore.Store, backup bool) *testServer {
	t.Helper()
	reg := submstore.NewRegistry(submstore.Descriptor{
		Kind: submstore.KindMemory,
		Open: func(ctx context.Context, _ submstore.Credentials) (submstore.Store, error) {
			return store, nil
		},
	})
	sel := selector.New(selector.Config{Preferred: "memory", Registry: reg})
	_, err := sel.Select(context.Background())
	require.NoError(t, err)

	srvc := submsrvc.NewSubmSrvc(sel, nil)
	api, err := apihttp.NewHttpServer(srvc, apihttp.Options{
		Environment:      "test",
		AllowedOrigins:   []string{"https://contest.example.org"},
		AllowOriginRegex: `https://.*\.vercel\.app`,
		BackupEnabled:    backup,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api)
	t.Cleanup(func() {
		srv.Close()
		api.Close()
	})
	return &testServer{Server: srv, srvc: srvc}
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

var validSubmission = map[string]string{
	"name":   "Ada Lovelace",
	"email":  "Ada@Example.com",
	"answer": "the analytical engine",
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["storage"])
	assert.Equal(t, "5.0.0", body["version"])
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	body := decode(t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, "memory", body["storage_method"])
	assert.Equal(t, "test", body["environment"])
	assert.Equal(t, []any{"https://contest.example.org"}, body["cors_origins"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotContains(t, body, "last_error")
}

func TestSubmitJSONThenCount(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	// prime the count cache
	resp, err := http.Get(srv.URL + "/submissions/count")
	require.NoError(t, err)
	assert.Equal(t, float64(0), decode(t, resp)["total_submissions"])

	resp = postJSON(t, srv.URL+"/submit", validSubmission)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Submission recorded successfully using memory!", body["message"])
	assert.True(t, strings.HasPrefix(body["submission_id"].(string), "sub_"))

	resp, err = http.Get(srv.URL + "/submissions/count")
	require.NoError(t, err)
	body = decode(t, resp)
	assert.Equal(t, float64(1), body["total_submissions"])
	assert.Equal(t, "memory", body["storage_method"])
}

func TestCountIsCachedBriefly(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	resp, err := http.Get(srv.URL + "/submissions/count")
	require.NoError(t, err)
	assert.Equal(t, float64(0), decode(t, resp)["total_submissions"])

	// a write that bypasses the HTTP layer does not invalidate the cache
	_, err = srv.srvc.CreateSubm(context.Background(), submsrvc.CreateSubmParams{
		Name: "Grace", Email: "grace@example.com", Answer: "compilers",
	})
	require.NoError(t, err)

	resp, err = http.Get(srv.URL + "/submissions/count")
	require.NoError(t, err)
	assert.Equal(t, float64(0), decode(t, resp)["total_submissions"])
}

func TestSubmitForms(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), true)

	form := url.Values{}
	for k, v := range validSubmission {
		form.Set(k, v)
	}
	resp, err := http.PostForm(srv.URL+"/submit", form)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["success"])

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range validSubmission {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	resp, err = http.Post(srv.URL+"/submit", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	raw, err := json.Marshal(validSubmission)
	require.NoError(t, err)
	resp, err = http.Post(srv.URL+"/submit", "text/plain", bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/submissions/backup")
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Equal(t, float64(3), body["total_submissions"])
	subms := body["submissions"].([]any)
	require.Len(t, subms, 3)
	first := subms[0].(map[string]any)
	assert.Equal(t, "ada@example.com", first["email"])
	assert.NotEmpty(t, first["timestamp"])
}

func TestSubmitValidationErrors(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"short name", `{"name":"A","email":"a@b.co","answer":"long enough"}`, submsrvc.ErrCodeNameInvalid},
		{"bad email", `{"name":"Ada","email":"nope","answer":"long enough"}`, submsrvc.ErrCodeEmailInvalid},
		{"short answer", `{"name":"Ada","email":"a@b.co","answer":"hi"}`, submsrvc.ErrCodeAnswerInvalid},
		{"empty body", ``, submsrvc.ErrCodeNameInvalid},
		{"json array", `["Ada"]`, submsrvc.ErrCodeNameInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/submit", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			body := decode(t, resp)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestSubmitBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	big := `{"name":"Ada","email":"a@b.co","answer":"` + strings.Repeat("x", 70<<10) + `"}`
	resp, err := http.Post(srv.URL+"/submit", "application/json", strings.NewReader(big))
	require.NoError(t, err)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "request_too_large", decode(t, resp)["code"])
}

type brokenStore struct {
	*submstore.MemStore
}

func (s *brokenStore) Create(ctx context.Context, in submstore.NewSubmission) (submstore.Submission, error) {
	return submstore.Submission{}, &submstore.WriteError{
		Backend: submstore.KindMemory,
		Reason:  submstore.ErrTransient,
		Err:     errors.New("dial tcp db.internal:5432: password=hunter2 refused"),
	}
}

func TestSubmitStorageUnavailable(t *testing.T) {
	srv := newTestServer(t, &brokenStore{MemStore: submstore.NewMemStore()}, false)

	resp := postJSON(t, srv.URL+"/submit", validSubmission)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, submsrvc.ErrCodeStorageUnavailable, body["code"])
	assert.NotContains(t, body["message"], "hunter2")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body = decode(t, resp)
	lastErr, ok := body["last_error"].(string)
	require.True(t, ok)
	assert.NotContains(t, lastErr, "hunter2")
}

func TestBackupDisabled(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	resp, err := http.Get(srv.URL + "/submissions/backup")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/submit", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "content-type")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := preflight("https://contest.example.org")
	assert.Equal(t, "https://contest.example.org", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	resp = preflight("https://preview-123.vercel.app")
	assert.Equal(t, "https://preview-123.vercel.app", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = preflight("https://evil.example.com")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = preflight("https://evil.vercel.app.example.com")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestOptionsSubmitWithoutPreflight(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/submit", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", resp.Header.Get("Referrer-Policy"))
	assert.Equal(t, "same-origin", resp.Header.Get("Cross-Origin-Opener-Policy"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "default-src 'self'")
	assert.Empty(t, resp.Header.Get("Cache-Control"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, submstore.NewMemStore(), false)

	resp := postJSON(t, srv.URL+"/submit", validSubmission)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `contest_storage_ops_total{backend="memory",op="create",result="success"}`)
	assert.Contains(t, string(raw), `contest_storage_active_backend{backend="memory"} 1`)
}
