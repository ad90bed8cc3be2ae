package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JonMunkholm/drupalmigrate/internal/config"
	"github.com/JonMunkholm/drupalmigrate/internal/core"
	_ "github.com/JonMunkholm/drupalmigrate/internal/drupal"
	"github.com/JonMunkholm/drupalmigrate/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postsCSV = "nid,title,body,created,blog_path,blog_title,dst\n" +
	"5,Hello,<p>Hi</p>,2008-01-02 03:04:05,blog/7,Ann's blog,node/5\n" +
	",No nid,<p>x</p>,2008-01-02 03:04:05,blog/7,Ann's blog,node/6\n"

func newTestServer(t *testing.T, security config.SecurityConfig) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	cfg := &config.Config{
		Import:   config.ImportConfig{MaxFileSize: 1 << 20},
		Security: security,
	}
	svc := core.NewService(store, store, core.ServiceConfig{})
	return NewServer(svc, cfg, nil), store
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, config.SecurityConfig{})
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Runs.MaxConcurrent)
}

func TestListImporters(t *testing.T) {
	s, _ := newTestServer(t, config.SecurityConfig{})
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/importers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var infos []core.ImporterInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&infos))

	var keys []string
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	assert.Subset(t, keys, []string{"comments", "posts", "users"})
}

func TestStartRun_RawBody(t *testing.T) {
	s, store := newTestServer(t, config.SecurityConfig{})
	req := httptest.NewRequest(http.MethodPost, "/api/importers/posts/runs", strings.NewReader(postsCSV))
	req.Header.Set("Content-Type", "text/csv")
	rec := do(t, s, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var report core.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 1, report.Counts.Created)
	assert.Equal(t, 1, report.Counts.Failed)
	assert.Equal(t, "upload", report.Source)
	assert.Len(t, store.All("BlogEntry"), 1)

	// The run is in history with its failure and rules.
	runs := do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, runs.Code)
	var records []core.RunRecord
	require.NoError(t, json.NewDecoder(runs.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, report.RunID, records[0].ID)
	assert.Equal(t, "http", records[0].RequestedBy.Source)
	assert.Len(t, records[0].Failures, 1)

	rules := do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+report.RunID+"/rewrite-rules", nil))
	require.Equal(t, http.StatusOK, rules.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rules.Header().Get("Content-Type"))
	assert.Contains(t, rules.Body.String(), "RewriteRule ^node/5 ")
}

func TestStartRun_MultipartPreview(t *testing.T) {
	s, store := newTestServer(t, config.SecurityConfig{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "posts.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(postsCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/importers/posts/runs?preview=true", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report core.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.True(t, report.Preview)
	assert.Equal(t, "posts.csv", report.Source)
	assert.Equal(t, 1, report.Counts.Created)
	assert.Zero(t, store.Stats().Total(), "preview must not write")

	runs, err := store.ListRuns(req.Context(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "preview runs are not recorded")
}

func TestStartRun_Errors(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown importer", "/api/importers/nodes/runs", postsCSV, http.StatusNotFound, "CFG002"},
		{"empty body", "/api/importers/posts/runs", "", http.StatusBadRequest, "SRC002"},
		{"bad preview flag", "/api/importers/posts/runs?preview=maybe", postsCSV, http.StatusBadRequest, "ERR000"},
		{"drupal source not configured", "/api/importers/posts/runs?from=drupal", "", http.StatusBadRequest, "SRC003"},
		{"comments need capability", "/api/importers/comments/runs", "nid,cid\n1,1\n", http.StatusBadRequest, "CFG001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, config.SecurityConfig{})
			rec := do(t, s, httptest.NewRequest(http.MethodPost, tt.url, strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestStartRun_TooLarge(t *testing.T) {
	s, _ := newTestServer(t, config.SecurityConfig{})
	s.cfg.Import.MaxFileSize = 16

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/importers/posts/runs", strings.NewReader(postsCSV)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
}

func TestGetRun_NotFound(t *testing.T) {
	s, _ := newTestServer(t, config.SecurityConfig{})

	for _, path := range []string{"/api/runs/missing", "/api/runs/missing/rewrite-rules"} {
		rec := do(t, s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "RUN003", resp.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	s, _ := newTestServer(t, config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/importers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/importers", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, do(t, s, req).Code)

	// Health stays open for load balancers.
	assert.Equal(t, http.StatusOK, do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyRuns, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: x", core.ErrRunNotFound), http.StatusNotFound},
		{&core.ConfigurationError{Importer: "users", Reason: "x"}, http.StatusBadRequest},
		{fmt.Errorf("run cancelled: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
