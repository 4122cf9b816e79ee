package api_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segscope/backend/internal/api"
	"github.com/segscope/backend/internal/config"
	"github.com/segscope/backend/internal/engine"
	"github.com/segscope/backend/internal/segment"
	"github.com/segscope/backend/internal/storage"
)

const exampleProject = `{
	"name": "example",
	"segments": [
		{"tokens": [{"original": "the"}, {"original": "cat"}, {"original": "sat"}]},
		{"tokens": [{"original": "the"}, {"original": "cat"}, {"original": "sat"}]},
		{"tokens": [{"original": "dog"}, {"original": "ran"}, {"original": "fast"}]},
		{"tokens": [{"original": "cat"}, {"original": "sat"}, {"original": "here"}]},
		{"tokens": [{"original": "unrelated"}, {"original": "text"}, {"original": "only"}]},
		{"tokens": [{"original": "zzz"}, {"original": "qqq"}]}
	]
}`

func setupServer(t *testing.T) *api.Server {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	entry := logger.WithField("test", "api")

	store, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	eng := engine.NewEngine(config.SimilarityConfig{TopK: 5}, entry, store)
	return api.NewServer(eng, entry)
}

func do(server *api.Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)
	return rr
}

func loadExample(t *testing.T, server *api.Server) {
	rr := do(server, http.MethodPut, "/api/v1/project", exampleProject)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestHandleStatus(t *testing.T) {
	server := setupServer(t)

	rr := do(server, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp api.StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "", resp.Project)
	assert.False(t, resp.HasResult)
}

func TestHandlePutProject(t *testing.T) {
	server := setupServer(t)

	rr := do(server, http.MethodPut, "/api/v1/project", exampleProject)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp api.ProjectResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "example", resp.Name)
	assert.Equal(t, 6, resp.Segments)

	rr = do(server, http.MethodPut, "/api/v1/project", "{bad")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(server, http.MethodPut, "/api/v1/project", `{"segments": []}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleProjects(t *testing.T) {
	server := setupServer(t)
	loadExample(t, server)

	rr := do(server, http.MethodGet, "/api/v1/projects", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp api.ProjectsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"example"}, resp.Projects)
	assert.Equal(t, "example", resp.Active)
}

func TestHandleOpenProject(t *testing.T) {
	server := setupServer(t)
	loadExample(t, server)

	rr := do(server, http.MethodPost, "/api/v1/project/open", `{"name": "example"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(server, http.MethodPost, "/api/v1/project/open", `{"name": "nope"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(server, http.MethodPost, "/api/v1/project/open", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleGetSegment(t *testing.T) {
	server := setupServer(t)

	rr := do(server, http.MethodGet, "/api/v1/segments/0", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	loadExample(t, server)

	rr = do(server, http.MethodGet, "/api/v1/segments/3", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp api.SegmentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "cat sat here", resp.Text)
	assert.Equal(t, 3, resp.Tokens)

	rr = do(server, http.MethodGet, "/api/v1/segments/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleComputeSimilar(t *testing.T) {
	server := setupServer(t)

	rr := do(server, http.MethodPost, "/api/v1/segments/0/similar", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	loadExample(t, server)

	rr = do(server, http.MethodPost, "/api/v1/segments/0/similar", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp api.SimilarResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Target)
	assert.Equal(t, "example", resp.Project)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].Index)
	assert.Equal(t, "the cat sat", resp.Results[0].Text)
	assert.Equal(t, 3, resp.Results[1].Index)

	// The stored result is readable afterwards
	rr = do(server, http.MethodGet, "/api/v1/similar", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stored api.SimilarResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	assert.Equal(t, resp.QueryID, stored.QueryID)
}

func TestHandleComputeSimilar_OutOfRangeKeepsResult(t *testing.T) {
	server := setupServer(t)
	loadExample(t, server)

	rr := do(server, http.MethodPost, "/api/v1/segments/0/similar", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var first api.SimilarResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))

	rr = do(server, http.MethodPost, "/api/v1/segments/6/similar", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(server, http.MethodGet, "/api/v1/similar", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stored api.SimilarResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	assert.Equal(t, first.QueryID, stored.QueryID)
}

func TestHandleComputeSimilar_VectorizationFailure(t *testing.T) {
	server := setupServer(t)

	rr := do(server, http.MethodPut, "/api/v1/project", `{"name": "blank", "segments": [{"tokens": []}, {"tokens": []}]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(server, http.MethodPost, "/api/v1/segments/0/similar", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(server, http.MethodGet, "/api/v1/similar", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleMetrics(t *testing.T) {
	server := setupServer(t)
	loadExample(t, server)
	do(server, http.MethodPost, "/api/v1/segments/0/similar", "")

	rr := do(server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "segscope_similarity_queries_total")
}

func TestHandleComputeSimilar_SnippetKeepsRunesWhole(t *testing.T) {
	server := setupServer(t)

	// 301 bytes: one ASCII byte then 150 two-byte runes, so byte 200 is mid-rune
	long := "x" + strings.Repeat("é", 150)
	body, err := json.Marshal(segment.Project{
		Name:     "accents",
		Segments: segment.FromStrings(long, long),
	})
	require.NoError(t, err)

	rr := do(server, http.MethodPut, "/api/v1/project", string(body))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(server, http.MethodPost, "/api/v1/segments/0/similar", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp api.SimilarResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)

	snippet := resp.Results[0].Text
	assert.True(t, utf8.ValidString(snippet))
	assert.NotContains(t, snippet, "\uFFFD")
	assert.True(t, strings.HasSuffix(snippet, "é..."), snippet)
	assert.LessOrEqual(t, len(strings.TrimSuffix(snippet, "...")), 200)
}

func TestServer_ShutdownDrainsInFlightRequests(t *testing.T) {
	server := setupServer(t)

	started := make(chan struct{})
	handlerDone := make(chan struct{})
	server.Router.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(300 * time.Millisecond)
		close(handlerDone)
		w.WriteHeader(http.StatusNoContent)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ln) }()

	clientDone := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
		if err != nil {
			clientDone <- 0
			return
		}
		resp.Body.Close()
		clientDone <- resp.StatusCode
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow handler never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = server.Shutdown(ctx) }()

	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	select {
	case <-handlerDone:
	default:
		t.Fatal("Serve returned while a request was still in flight")
	}
	assert.Equal(t, http.StatusNoContent, <-clientDone)
}
