package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/httpapi/middleware"
)

var testSecret = []byte("test-secret")

type apiClient struct {
	t     *testing.T
	r     *gin.Engine
	token string
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := collab.NewInMemoryService(nil, nil, nil, nil, nil, collab.ServiceOptions{})
	r := NewRouter(svc, RouterOptions{JWTSecret: testSecret})
	token, err := middleware.SignAccessToken(testSecret, 7, "alice", time.Minute)
	require.NoError(t, err)
	return &apiClient{t: t, r: r, token: token}
}

func (a *apiClient) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestDocumentLifecycle(t *testing.T) {
	api := newAPI(t)

	w, body := api.do(http.MethodPost, "/v1/documents", gin.H{"title": "notes", "content": "Hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docID := body["docId"].(string)
	base := "/v1/documents/" + docID

	op := json.RawMessage(`{"components":[{"kind":"retain","count":5},{"kind":"insert","text":" World"}],"base_len":5,"target_len":11}`)
	w, body = api.do(http.MethodPost, base+"/ops", gin.H{"baseRevision": 0, "clientId": "c1", "clientSeq": 1, "op": op})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), body["revision"])

	// 同一 clientSeq 重放
	w, body = api.do(http.MethodPost, base+"/ops", gin.H{"baseRevision": 0, "clientId": "c1", "clientSeq": 1, "op": op})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_OR_OUT_OF_ORDER", body["code"])

	w, body = api.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello World", body["content"])

	w, body = api.do(http.MethodGet, base+"/revision", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["revision"])

	w, body = api.do(http.MethodGet, base+"/ops?from=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["ops"], 1)

	w, body = api.do(http.MethodGet, base+"/versions/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello", body["content"])

	w, _ = api.do(http.MethodGet, base+"/versions/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = api.do(http.MethodPost, base+"/undo", gin.H{"targetRevision": 0, "clientId": "c1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), body["revision"])

	_, body = api.do(http.MethodGet, base, nil)
	assert.Equal(t, "Hello", body["content"])

	// 未配置快照存储
	w, _ = api.do(http.MethodPost, base+"/snapshot", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w, body = api.do(http.MethodGet, base+"/presence", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["members"])
}

func TestSubmitErrors(t *testing.T) {
	api := newAPI(t)
	_, body := api.do(http.MethodPost, "/v1/documents", gin.H{"title": "t", "content": "abc"})
	base := "/v1/documents/" + body["docId"].(string)

	bad := json.RawMessage(`{"components":[{"kind":"retain","count":7}],"base_len":7,"target_len":7}`)
	w, body := api.do(http.MethodPost, base+"/ops", gin.H{"clientId": "c1", "clientSeq": 1, "op": bad})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "STALE_OPERATION", body["code"])

	w, _ = api.do(http.MethodPost, base+"/ops", gin.H{"clientId": "c1", "clientSeq": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = api.do(http.MethodGet, "/v1/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "DOCUMENT_NOT_FOUND", body["code"])

	req := httptest.NewRequest(http.MethodGet, base, nil)
	rec := httptest.NewRecorder()
	api.r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFieldMerge(t *testing.T) {
	api := newAPI(t)
	_, body := api.do(http.MethodPost, "/v1/documents", gin.H{"title": "t"})
	base := "/v1/documents/" + body["docId"].(string)

	w, _ := api.do(http.MethodGet, base+"/fields/views", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = api.do(http.MethodPut, base+"/fields/views",
		json.RawMessage(`{"kind":"g_counter","state":{"r1":5}}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(5), body["value"])

	w, body = api.do(http.MethodPut, base+"/fields/views",
		json.RawMessage(`{"kind":"g_counter","state":{"r1":2,"r2":10}}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(15), body["value"])

	w, body = api.do(http.MethodPut, base+"/fields/views",
		json.RawMessage(`{"kind":"g_set","state":["a"]}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CRDT_KIND_MISMATCH", body["code"])

	w, body = api.do(http.MethodGet, base+"/fields/views", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(15), body["value"])
}

func TestHealthz(t *testing.T) {
	api := newAPI(t)
	w := httptest.NewRecorder()
	api.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
