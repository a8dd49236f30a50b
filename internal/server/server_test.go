package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnix/learnix-server/internal/answer"
	"github.com/learnix/learnix-server/internal/embedding"
	"github.com/learnix/learnix-server/internal/history"
	"github.com/learnix/learnix-server/internal/retrieval"
	"github.com/learnix/learnix-server/internal/storage"
)

// fakeEmbedder hashes words into vector buckets so related texts score close
// without a real model.
type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?")
		var h uint32
		for _, r := range word {
			h = h*31 + uint32(r)
		}
		vec[h%uint32(f.dim)]++
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i], _ = f.Embed(ctx, text)
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

var _ embedding.Embedder = (*fakeEmbedder)(nil)

// failingIndex simulates an unreachable backend.
type failingIndex struct{}

func (failingIndex) EnsureCollection(ctx context.Context) error { return storage.ErrBackendUnavailable }
func (failingIndex) Upsert(ctx context.Context, points []*storage.Point) (int, error) {
	return 0, &storage.UpsertError{Attempted: len(points), Err: storage.ErrBackendUnavailable}
}
func (failingIndex) Search(ctx context.Context, vector []float32, topK int, filter *storage.Filter) ([]storage.SearchHit, error) {
	return nil, fmt.Errorf("search: %w", storage.ErrBackendUnavailable)
}
func (failingIndex) DeleteByFilename(ctx context.Context, filename string) error {
	return storage.ErrBackendUnavailable
}
func (failingIndex) ListFilenames(ctx context.Context) ([]string, error) {
	return nil, storage.ErrBackendUnavailable
}
func (failingIndex) Stats(ctx context.Context) (*storage.CollectionStats, error) {
	return nil, storage.ErrBackendUnavailable
}
func (failingIndex) Close() error { return nil }

var _ storage.Index = failingIndex{}

func newTestServer(t *testing.T, index storage.Index) *httptest.Server {
	t.Helper()
	embed := &fakeEmbedder{dim: 256}
	if index == nil {
		index = storage.NewMemoryIndex(embed.Dimension())
	}
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := New(&Config{
		Pipeline:  retrieval.NewPipeline(embed, index, nil, retrieval.Options{ChunkSize: 50, Overlap: 10}),
		Generator: answer.NewTemplateGenerator(),
		History:   store,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func uploadFile(t *testing.T, ts *httptest.Server, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func ask(t *testing.T, ts *httptest.Server, question string, topK string) *http.Response {
	t.Helper()
	form := url.Values{"question": {question}}
	if topK != "" {
		form.Set("top_k", topK)
	}
	resp, err := http.PostForm(ts.URL+"/api/ask", form)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestUploadAndAsk(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := uploadFile(t, ts, "notes.txt", "Cats are mammals. Dogs are mammals too. Fish are not.")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	upload := decode[uploadResponse](t, resp)
	assert.Equal(t, "success", upload.Status)
	assert.Equal(t, "notes.txt", upload.Filename)
	assert.Greater(t, upload.ChunksStored, 0)

	resp = ask(t, ts, "What are mammals?", "2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	answered := decode[askResponse](t, resp)
	assert.Contains(t, answered.Sources, "notes.txt")
	assert.Contains(t, answered.Answer, "mammals")
	assert.NotEmpty(t, answered.Chunks)
}

func TestUpload_UnsupportedFormat(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := uploadFile(t, ts, "report.pdf", "%PDF-1.4")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_EmptyDocument(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := uploadFile(t, ts, "empty.txt", "   \n\t  ")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	upload := decode[uploadResponse](t, resp)
	assert.Equal(t, "error", upload.Status)
}

func TestUpload_MissingFile(t *testing.T) {
	ts := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())
	resp, err := http.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsk_MissingQuestion(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ask(t, ts, "   ", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsk_InvalidTopK(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ask(t, ts, "anything", "-1")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsk_EmptyIndex(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ask(t, ts, "anything at all?", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	answered := decode[askResponse](t, resp)
	assert.Contains(t, answered.Answer, "couldn't find any relevant information")
	assert.Empty(t, answered.Sources)
	assert.Empty(t, answered.Chunks)
}

// forbiddenGenerator fails the test when invoked. Used to assert the ask
// handler never generates an answer over empty context.
type forbiddenGenerator struct {
	t *testing.T
}

func (g *forbiddenGenerator) Generate(ctx context.Context, question string, contexts []string) (string, error) {
	g.t.Errorf("Generate called with %d contexts for %q; no-hit queries must not reach the generator", len(contexts), question)
	return "", nil
}

func TestAsk_NoHitsSkipsGenerator(t *testing.T) {
	embed := &fakeEmbedder{dim: 256}
	srv := New(&Config{
		Pipeline:  retrieval.NewPipeline(embed, storage.NewMemoryIndex(embed.Dimension()), nil, retrieval.Options{}),
		Generator: &forbiddenGenerator{t: t},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := ask(t, ts, "what does the empty index know?", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	answered := decode[askResponse](t, resp)
	assert.Contains(t, answered.Answer, "couldn't find any relevant information")
}

func TestAsk_BackendFailure(t *testing.T) {
	ts := newTestServer(t, failingIndex{})

	resp := ask(t, ts, "anything?", "")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.NotContains(t, body.Error, "No relevant content")
}

func TestDocuments_ListAndDelete(t *testing.T) {
	ts := newTestServer(t, nil)

	uploadFile(t, ts, "a.txt", "Alpha document text.").Body.Close()
	uploadFile(t, ts, "b.txt", "Beta document text.").Body.Close()

	resp, err := http.Get(ts.URL + "/api/documents")
	require.NoError(t, err)
	listed := decode[struct {
		Documents []string `json:"documents"`
		Count     int      `json:"count"`
	}](t, resp)
	assert.Equal(t, 2, listed.Count)
	assert.Equal(t, []string{"a.txt", "b.txt"}, listed.Documents)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/documents/a.txt", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/documents")
	require.NoError(t, err)
	listed = decode[struct {
		Documents []string `json:"documents"`
		Count     int      `json:"count"`
	}](t, resp)
	assert.Equal(t, []string{"b.txt"}, listed.Documents)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[healthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Index)
	require.NotNil(t, health.Stats)
}

func TestHealth_BackendDown(t *testing.T) {
	ts := newTestServer(t, failingIndex{})

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestChatHistoryFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	uploadFile(t, ts, "notes.txt", "Cats are mammals.").Body.Close()
	ask(t, ts, "What are mammals?", "").Body.Close()

	resp, err := http.Get(ts.URL + "/api/chat/history")
	require.NoError(t, err)
	hist := decode[struct {
		Messages []history.Message `json:"messages"`
	}](t, resp)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "What are mammals?", hist.Messages[0].Question)
	msgID := hist.Messages[0].ID

	resp, err = http.Get(ts.URL + "/api/chat/stats")
	require.NoError(t, err)
	stats := decode[history.Stats](t, resp)
	assert.Equal(t, 1, stats.TotalMessages)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/chat/message/"+msgID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodDelete, ts.URL+"/api/chat/message/"+msgID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ask(t, ts, "Another question?", "").Body.Close()
	req, err = http.NewRequest(http.MethodDelete, ts.URL+"/api/chat/history", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/chat/stats")
	require.NoError(t, err)
	stats = decode[history.Stats](t, resp)
	assert.Equal(t, 0, stats.TotalMessages)
}
