package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshayp/chirpmedia/internal/models"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) PutObject(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memObjects) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return append([]byte(nil), data...), nil
}

func (m *memObjects) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]models.UploadSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]models.UploadSession{}}
}

func (m *memSessions) Put(_ context.Context, s *models.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*models.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copy := s
	return &copy, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type memAssets struct {
	mu     sync.Mutex
	assets map[string]models.MediaAsset
	chunks map[string][]*models.ChunkRecord
}

func newMemAssets() *memAssets {
	return &memAssets{assets: map[string]models.MediaAsset{}, chunks: map[string][]*models.ChunkRecord{}}
}

func (m *memAssets) CreateAsset(_ context.Context, a *models.MediaAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[a.ID] = *a
	return nil
}

func (m *memAssets) CreateChunk(_ context.Context, c *models.ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[c.AssetID] = append(m.chunks[c.AssetID], c)
	return nil
}

func (m *memAssets) GetAsset(_ context.Context, id string) (*models.MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, nil
	}
	copy := a
	return &copy, nil
}

func (m *memAssets) GetChunks(_ context.Context, id string) ([]*models.ChunkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[id], nil
}

type testEnv struct {
	srv      *httptest.Server
	objects  *memObjects
	sessions *memSessions
	assets   *memAssets
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		objects:  newMemObjects(),
		sessions: newMemSessions(),
		assets:   newMemAssets(),
	}

	upload := NewUploadHandler(env.objects, env.sessions, env.assets, 1<<30, zerolog.Nop())
	media := NewMediaHandler(env.objects, env.assets, zerolog.Nop())

	router := mux.NewRouter()
	router.HandleFunc("/upload/initialize", upload.Initialize).Methods("POST")
	router.HandleFunc("/upload/chunk", upload.Chunk).Methods("POST")
	router.HandleFunc("/upload/complete", upload.Complete).Methods("POST")
	router.Handle("/media/{media_id}", media).Methods("GET")

	env.srv = httptest.NewServer(router)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) initialize(t *testing.T, filename string, size int64, totalChunks int) string {
	t.Helper()
	body, _ := json.Marshal(models.InitializeRequest{Filename: filename, FileSize: size, TotalChunks: totalChunks})
	resp, err := http.Post(e.srv.URL+"/upload/initialize", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out models.InitializeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.UploadID)
	return out.UploadID
}

func (e *testEnv) sendChunk(t *testing.T, uploadID string, chunkNumber int, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("upload_id", uploadID))
	require.NoError(t, w.WriteField("chunk_number", strconv.Itoa(chunkNumber)))
	part, err := w.CreateFormFile("chunk", "clip.mp4")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := http.Post(e.srv.URL+"/upload/chunk", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) complete(t *testing.T, uploadID string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(models.CompleteRequest{UploadID: uploadID})
	resp, err := http.Post(e.srv.URL+"/upload/complete", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestUploadProtocolEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	payload := make([]byte, 2560)
	for i := range payload {
		payload[i] = byte(i % 199)
	}
	chunks := [][]byte{payload[:1024], payload[1024:2048], payload[2048:]}

	uploadID := env.initialize(t, "clip.mp4", int64(len(payload)), len(chunks))

	for i, chunk := range chunks {
		resp := env.sendChunk(t, uploadID, i, chunk)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out models.ChunkResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		resp.Body.Close()
		assert.Equal(t, i+1, out.ReceivedChunks)
	}

	resp := env.complete(t, uploadID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.CompleteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "clip.mp4", out.Name)
	assert.Equal(t, int64(len(payload)), out.Size)

	// The session is gone once completed.
	s, err := env.sessions.Get(context.Background(), uploadID)
	require.NoError(t, err)
	assert.Nil(t, s)

	// The assembled media round-trips through the download endpoint.
	dl, err := http.Get(env.srv.URL + "/media/" + out.MediaID)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestChunkOutOfOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	uploadID := env.initialize(t, "clip.mp4", 2048, 2)

	resp := env.sendChunk(t, uploadID, 1, make([]byte, 1024))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	s, err := env.sessions.Get(context.Background(), uploadID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Zero(t, s.ReceivedChunks, "a rejected chunk must not advance the session")
}

func TestChunkRepeatRejected(t *testing.T) {
	env := newTestEnv(t)
	uploadID := env.initialize(t, "clip.mp4", 2048, 2)

	resp := env.sendChunk(t, uploadID, 0, make([]byte, 1024))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.sendChunk(t, uploadID, 0, make([]byte, 1024))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestChunkForUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.sendChunk(t, "no-such-upload", 0, []byte("data"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompleteWithMissingChunksRejected(t *testing.T) {
	env := newTestEnv(t)
	uploadID := env.initialize(t, "clip.mp4", 2048, 2)

	resp := env.sendChunk(t, uploadID, 0, make([]byte, 1024))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	done := env.complete(t, uploadID)
	defer done.Body.Close()
	assert.Equal(t, http.StatusConflict, done.StatusCode)
}

func TestCompleteSizeMismatchFailsSession(t *testing.T) {
	env := newTestEnv(t)
	uploadID := env.initialize(t, "clip.mp4", 4096, 1)

	resp := env.sendChunk(t, uploadID, 0, make([]byte, 1024))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	done := env.complete(t, uploadID)
	defer done.Body.Close()
	assert.Equal(t, http.StatusConflict, done.StatusCode)

	s, err := env.sessions.Get(context.Background(), uploadID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, models.SessionFailed, s.Status)
}

func TestInitializeValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  models.InitializeRequest
		want int
	}{
		{"missing filename", models.InitializeRequest{FileSize: 10, TotalChunks: 1}, http.StatusBadRequest},
		{"zero size", models.InitializeRequest{Filename: "a.mp4", TotalChunks: 1}, http.StatusBadRequest},
		{"zero chunks", models.InitializeRequest{Filename: "a.mp4", FileSize: 10}, http.StatusBadRequest},
		{"over size cap", models.InitializeRequest{Filename: "a.mp4", FileSize: 2 << 30, TotalChunks: 1}, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.req)
			resp, err := http.Post(env.srv.URL+"/upload/initialize", "application/json", bytes.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestLimitsAdvertisesProfiles(t *testing.T) {
	handler := Limits(models.UploadLimits{
		PostChunkSize:       1 << 20,
		StandaloneChunkSize: 5 << 20,
		MaxImageSize:        10 << 20,
		MaxVideoSize:        1 << 30,
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/upload/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out models.UploadLimits
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(1<<20), out.PostChunkSize)
	assert.Equal(t, int64(1<<30), out.MaxVideoSize)
}

func TestMediaNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/media/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
