package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChunkSize int64 = 1024

// fakeBackend records the upload protocol traffic it receives.
type fakeBackend struct {
	mu            sync.Mutex
	initRequests  int
	chunkNumbers  []int
	chunkSizes    []int64
	completeCalls int

	failInit     bool
	failChunkAt  int // -1 disables
	failComplete bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failChunkAt: -1}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/initialize", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.initRequests++
		fail := b.failInit
		b.mu.Unlock()
		if fail {
			http.Error(w, "backend unavailable", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"upload_id": "upload-123"})
	})
	mux.HandleFunc("/upload/chunk", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n, _ := strconv.Atoi(r.FormValue("chunk_number"))
		file, header, err := r.FormFile("chunk")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file.Close()

		b.mu.Lock()
		b.chunkNumbers = append(b.chunkNumbers, n)
		b.chunkSizes = append(b.chunkSizes, header.Size)
		fail := b.failChunkAt == n
		b.mu.Unlock()

		if r.FormValue("upload_id") != "upload-123" {
			http.Error(w, "unknown upload", http.StatusNotFound)
			return
		}
		if fail {
			http.Error(w, "chunk store failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/upload/complete", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.completeCalls++
		fail := b.failComplete
		b.mu.Unlock()
		if fail {
			http.Error(w, "assembly failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func testFile(size int64) File {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return File{Name: "clip.mp4", Size: size, Data: bytes.NewReader(data)}
}

func newTestSession(t *testing.T, backend *fakeBackend, size int64, onProgress func(int)) *Session {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, testChunkSize, srv.Client(), zerolog.Nop())
	return client.NewSession(testFile(size), onProgress)
}

func TestUploadHappyPath(t *testing.T) {
	backend := newFakeBackend()
	var progress []int
	s := newTestSession(t, backend, testChunkSize*5/2, func(p int) { progress = append(progress, p) })

	require.Equal(t, 3, s.TotalChunks())
	require.Equal(t, StateIdle, s.State())

	err := s.Upload(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, "upload-123", s.UploadID())
	assert.Equal(t, 1, backend.initRequests)
	assert.Equal(t, []int{0, 1, 2}, backend.chunkNumbers)
	assert.Equal(t, []int64{testChunkSize, testChunkSize, testChunkSize / 2}, backend.chunkSizes)
	assert.Equal(t, 1, backend.completeCalls)
	assert.Equal(t, []int{33, 67, 100}, progress)
}

func TestChunksSentInStrictAscendingOrder(t *testing.T) {
	backend := newFakeBackend()
	s := newTestSession(t, backend, testChunkSize*10, nil)

	require.NoError(t, s.Upload(context.Background()))

	require.Len(t, backend.chunkNumbers, 10)
	for i, n := range backend.chunkNumbers {
		assert.Equal(t, i, n, "chunk numbers must ascend with no repeats")
	}
}

func TestProgressReaches100OnlyAfterFinalChunk(t *testing.T) {
	backend := newFakeBackend()
	var progress []int
	s := newTestSession(t, backend, testChunkSize*10, func(p int) { progress = append(progress, p) })

	require.NoError(t, s.Upload(context.Background()))

	require.Len(t, progress, 10)
	for i := 0; i < len(progress)-1; i++ {
		assert.Less(t, progress[i], 100, "progress must not reach 100 before the final chunk")
		assert.LessOrEqual(t, progress[i], progress[i+1], "progress must be non-decreasing")
	}
	assert.Equal(t, 100, progress[len(progress)-1])
	assert.Equal(t, 100, s.Progress())
}

func TestInitializeFailureSendsNoChunks(t *testing.T) {
	backend := newFakeBackend()
	backend.failInit = true
	s := newTestSession(t, backend, testChunkSize*3, nil)

	err := s.Upload(context.Background())
	require.ErrorIs(t, err, ErrInitializationFailed)

	assert.Equal(t, StateFailed, s.State())
	assert.Empty(t, backend.chunkNumbers)
	assert.Zero(t, backend.completeCalls)
}

func TestChunkFailureAbortsRemainingChunks(t *testing.T) {
	backend := newFakeBackend()
	backend.failChunkAt = 1
	var progress []int
	s := newTestSession(t, backend, testChunkSize*5/2, func(p int) { progress = append(progress, p) })

	err := s.Upload(context.Background())

	var chunkErr *ChunkUploadError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)

	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, []int{0, 1}, backend.chunkNumbers, "no chunk after the failing one may be sent")
	assert.Zero(t, backend.completeCalls)
	assert.Equal(t, []int{33}, progress)
}

func TestCompleteFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.failComplete = true
	s := newTestSession(t, backend, testChunkSize*2, nil)

	err := s.Upload(context.Background())
	require.ErrorIs(t, err, ErrCompletionFailed)

	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, []int{0, 1}, backend.chunkNumbers)
	assert.Equal(t, 1, backend.completeCalls)
}

func TestSessionsAreSingleUse(t *testing.T) {
	backend := newFakeBackend()
	s := newTestSession(t, backend, testChunkSize, nil)

	require.NoError(t, s.Upload(context.Background()))
	assert.Equal(t, 1, backend.initRequests)

	_, err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	err = s.Upload(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, backend.initRequests, "terminal sessions must not touch the network again")
}

func TestCompleteRequiresAllChunksSent(t *testing.T) {
	backend := newFakeBackend()
	s := newTestSession(t, backend, testChunkSize*3, nil)

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	err = s.Complete(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, backend.completeCalls)
}
