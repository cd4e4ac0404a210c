package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexagent/codexagent/pkg/pipeline"
)

// mockPipeline implements Pipeline with canned responses.
type mockPipeline struct {
	ran    bool
	gotReq pipeline.Request
	result *pipeline.Result
	err    error
}

func (m *mockPipeline) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	m.ran = true
	m.gotReq = req
	return m.result, m.err
}

// fixRequest builds a multipart POST /fix request.
func fixRequest(t *testing.T, repoURL, description string, image []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if repoURL != "" {
		require.NoError(t, mw.WriteField("repo_url", repoURL))
	}
	if description != "" {
		require.NoError(t, mw.WriteField("bug_description", description))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "screenshot.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/fix", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	s, err := New(&mockPipeline{})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decodeBody(t, w))
}

func TestHandleFix(t *testing.T) {
	tests := []struct {
		name       string
		pipeline   *mockPipeline
		request    func(t *testing.T) *http.Request
		wantStatus int
		check      func(t *testing.T, w *httptest.ResponseRecorder, m *mockPipeline)
	}{
		{
			name: "success returns PR URL",
			pipeline: &mockPipeline{result: &pipeline.Result{
				Status: "ok",
				PRURL:  "https://github.com/acme/widgets/pull/7",
				Branch: "auto/fix-1700000000",
			}},
			request: func(t *testing.T) *http.Request {
				return fixRequest(t, "https://github.com/acme/widgets", "Fix off-by-one in pagination", nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, w *httptest.ResponseRecorder, m *mockPipeline) {
				body := decodeBody(t, w)
				assert.Equal(t, "ok", body["status"])
				assert.Equal(t, "https://github.com/acme/widgets/pull/7", body["pr_url"])
				assert.Equal(t, "auto/fix-1700000000", body["branch"])
			},
		},
		{
			name: "no changes variant",
			pipeline: &mockPipeline{result: &pipeline.Result{
				Status: "no_changes",
				Branch: "auto/fix-1700000000",
			}},
			request: func(t *testing.T) *http.Request {
				return fixRequest(t, "https://github.com/acme/widgets", "Fix off-by-one in pagination", nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, w *httptest.ResponseRecorder, m *mockPipeline) {
				body := decodeBody(t, w)
				assert.Equal(t, "no_changes", body["status"])
				assert.Empty(t, body["pr_url"])
			},
		},
		{
			name: "validation failure maps to 422",
			pipeline: &mockPipeline{err: &pipeline.Error{
				Kind: pipeline.KindValidation,
				Err:  errors.New(`invalid or unsupported repo URL: "ftp://github.com/acme/widgets"`),
			}},
			request: func(t *testing.T) *http.Request {
				return fixRequest(t, "ftp://github.com/acme/widgets", "x", nil)
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "size limit maps to 422",
			pipeline: &mockPipeline{err: &pipeline.Error{
				Kind: pipeline.KindSizeLimit,
				Err:  errors.New("repository size 900.0 MB exceeds limit of 500 MB"),
			}},
			request: func(t *testing.T) *http.Request {
				return fixRequest(t, "https://github.com/acme/huge", "x", nil)
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "execution failure maps to 500",
			pipeline: &mockPipeline{err: &pipeline.Error{
				Kind: pipeline.KindExecution,
				Err:  errors.New("push: exit status 128"),
			}},
			request: func(t *testing.T) *http.Request {
				return fixRequest(t, "https://github.com/acme/widgets", "x", nil)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:     "unclassified failure maps to generic 500",
			pipeline: &mockPipeline{err: errors.New("wat")},
			request: func(t *testing.T) *http.Request {
				return fixRequest(t, "https://github.com/acme/widgets", "x", nil)
			},
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, w *httptest.ResponseRecorder, m *mockPipeline) {
				assert.Equal(t, "internal agent error", decodeBody(t, w)["error"])
			},
		},
		{
			name:     "missing fields rejected without running pipeline",
			pipeline: &mockPipeline{},
			request: func(t *testing.T) *http.Request {
				return fixRequest(t, "https://github.com/acme/widgets", "", nil)
			},
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, w *httptest.ResponseRecorder, m *mockPipeline) {
				assert.False(t, m.ran)
			},
		},
		{
			name:     "GET not allowed",
			pipeline: &mockPipeline{},
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/fix", nil)
			},
			wantStatus: http.StatusMethodNotAllowed,
			check: func(t *testing.T, w *httptest.ResponseRecorder, m *mockPipeline) {
				assert.False(t, m.ran)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.pipeline)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			s.handleFix(w, tt.request(t))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.check != nil {
				tt.check(t, w, tt.pipeline)
			}
		})
	}
}

func TestHandleFixImageHandling(t *testing.T) {
	t.Run("image bytes reach the pipeline", func(t *testing.T) {
		m := &mockPipeline{result: &pipeline.Result{Status: "no_changes", Branch: "b"}}
		s, err := New(m)
		require.NoError(t, err)

		image := []byte{0x89, 0x50, 0x4e, 0x47}
		w := httptest.NewRecorder()
		s.handleFix(w, fixRequest(t, "https://github.com/acme/widgets", "desc", image))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, image, m.gotReq.Image)
	})

	t.Run("empty upload treated as absent", func(t *testing.T) {
		m := &mockPipeline{result: &pipeline.Result{Status: "no_changes", Branch: "b"}}
		s, err := New(m)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		s.handleFix(w, fixRequest(t, "https://github.com/acme/widgets", "desc", []byte{}))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, m.gotReq.Image)
	})
}

func TestNewRequiresPipeline(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
