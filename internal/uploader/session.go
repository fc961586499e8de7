package uploader

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/akshayp/chirpmedia/internal/chunker"
)

// State is the lifecycle stage of an upload session. Completed and Failed are
// terminal; a fresh upload requires a brand-new session.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateUploading    State = "uploading"
	StateCompleting   State = "completing"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

var (
	// ErrInitializationFailed marks a failed /upload/initialize request. No
	// chunks were sent; the whole upload must be retried from the start.
	ErrInitializationFailed = errors.New("upload initialization failed")

	// ErrCompletionFailed marks a failed /upload/complete request.
	ErrCompletionFailed = errors.New("upload completion failed")

	// ErrInvalidState is returned when an operation is invoked out of order,
	// or on a session that already reached a terminal state.
	ErrInvalidState = errors.New("upload session in invalid state")
)

// ChunkUploadError reports the failing chunk of an aborted transfer. No chunk
// after Index was sent.
type ChunkUploadError struct {
	Index int
	Err   error
}

func (e *ChunkUploadError) Error() string {
	return fmt.Sprintf("chunk %d upload failed: %v", e.Index, e.Err)
}

func (e *ChunkUploadError) Unwrap() error { return e.Err }

// File is the immutable source selected by the user: its declared name, fixed
// size, and random-access contents.
type File struct {
	Name string
	Size int64
	Data io.ReaderAt
}

// Session tracks one chunked upload of one file. Sessions are single-use and
// owned by a single goroutine; they are not safe for concurrent use.
type Session struct {
	client *Client
	file   File

	uploadID    string
	totalChunks int
	nextChunk   int
	progress    int
	state       State

	// onProgress, when set, is invoked after each acknowledged chunk with the
	// new whole-number percentage. It reaches 100 only after the final chunk.
	onProgress func(percent int)
}

// NewSession creates an idle session for one file. onProgress may be nil.
func (c *Client) NewSession(file File, onProgress func(percent int)) *Session {
	return &Session{
		client:      c,
		file:        file,
		totalChunks: chunker.Count(file.Size, c.chunkSize),
		state:       StateIdle,
		onProgress:  onProgress,
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State { return s.state }

// UploadID returns the backend-assigned id, empty until initialization
// succeeds.
func (s *Session) UploadID() string { return s.uploadID }

// TotalChunks returns the fixed chunk count computed from the file size.
func (s *Session) TotalChunks() int { return s.totalChunks }

// Progress returns the last emitted percentage, 0-100.
func (s *Session) Progress() int { return s.progress }

func (s *Session) fail(err error) error {
	s.state = StateFailed
	return err
}

func (s *Session) emitProgress() {
	s.progress = int(math.Round(float64(s.nextChunk) / float64(s.totalChunks) * 100))
	if s.onProgress != nil {
		s.onProgress(s.progress)
	}
}
