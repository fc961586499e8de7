package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akshayp/chirpmedia/internal/chunker"
)

var tracer = otel.Tracer("chirpmedia-uploader")

// PostVideoChunkSize is the fixed chunk size for videos attached to a post.
const PostVideoChunkSize int64 = 1 * 1024 * 1024

// StandaloneChunkSize is the fixed chunk size for the standalone uploader.
const StandaloneChunkSize int64 = 5 * 1024 * 1024

// Client issues the chunked upload protocol against one backend. The chunk
// size is fixed per client, never derived at runtime.
type Client struct {
	baseURL   string
	chunkSize int64
	http      *http.Client
	log       zerolog.Logger
}

// NewClient creates an upload client. httpClient may be nil to use
// http.DefaultClient.
func NewClient(baseURL string, chunkSize int64, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if chunkSize <= 0 {
		chunkSize = PostVideoChunkSize
	}
	return &Client{
		baseURL:   baseURL,
		chunkSize: chunkSize,
		http:      httpClient,
		log:       logger.With().Str("component", "uploader").Logger(),
	}
}

// ChunkSize returns the client's fixed chunk size in bytes.
func (c *Client) ChunkSize() int64 { return c.chunkSize }

// Upload runs the full protocol for the session: initialize, every chunk in
// strict ascending order, then complete. The first failure aborts all
// remaining work and leaves the session Failed.
func (s *Session) Upload(ctx context.Context) error {
	if _, err := s.Initialize(ctx); err != nil {
		return err
	}
	if err := s.uploadChunks(ctx); err != nil {
		return err
	}
	return s.Complete(ctx)
}

// Initialize registers the upload with the backend and returns the assigned
// upload id. On failure the session is terminal: no chunks are sent and the
// caller must retry the whole upload with a new session.
func (s *Session) Initialize(ctx context.Context) (string, error) {
	if s.state != StateIdle {
		return "", fmt.Errorf("%w: initialize called in state %s", ErrInvalidState, s.state)
	}
	s.state = StateInitializing

	ctx, span := tracer.Start(ctx, "upload.initialize",
		trace.WithAttributes(
			attribute.String("file_name", s.file.Name),
			attribute.Int64("file_size", s.file.Size),
			attribute.Int("total_chunks", s.totalChunks),
		),
	)
	defer span.End()

	body, err := json.Marshal(map[string]any{
		"filename":     s.file.Name,
		"filesize":     s.file.Size,
		"total_chunks": s.totalChunks,
	})
	if err != nil {
		span.RecordError(err)
		return "", s.fail(fmt.Errorf("%w: %v", ErrInitializationFailed, err))
	}

	resp, err := s.client.postJSON(ctx, "/upload/initialize", body)
	if err != nil {
		span.RecordError(err)
		return "", s.fail(fmt.Errorf("%w: %v", ErrInitializationFailed, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: backend returned %s", ErrInitializationFailed, resp.Status)
		span.RecordError(err)
		return "", s.fail(err)
	}

	var out struct {
		UploadID string `json:"upload_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		span.RecordError(err)
		return "", s.fail(fmt.Errorf("%w: decoding response: %v", ErrInitializationFailed, err))
	}
	if out.UploadID == "" {
		return "", s.fail(fmt.Errorf("%w: backend returned empty upload_id", ErrInitializationFailed))
	}

	s.uploadID = out.UploadID
	s.state = StateUploading
	span.SetAttributes(attribute.String("upload_id", s.uploadID))
	s.client.log.Debug().Str("upload_id", s.uploadID).Str("file", s.file.Name).
		Int("total_chunks", s.totalChunks).Msg("upload session initialized")
	return s.uploadID, nil
}

// uploadChunks transfers every chunk sequentially. Chunk i+1 is never issued
// until chunk i has been acknowledged; the backend session is keyed by
// cumulative chunk count and reordering would corrupt the reassembled file.
func (s *Session) uploadChunks(ctx context.Context) error {
	if s.state != StateUploading {
		return fmt.Errorf("%w: uploadChunks called in state %s", ErrInvalidState, s.state)
	}

	ctx, span := tracer.Start(ctx, "upload.chunks",
		trace.WithAttributes(
			attribute.String("upload_id", s.uploadID),
			attribute.Int("total_chunks", s.totalChunks),
		),
	)
	defer span.End()

	for _, r := range chunker.Plan(s.file.Size, s.client.chunkSize) {
		data, err := chunker.Slice(s.file.Data, r)
		if err != nil {
			chunkErr := &ChunkUploadError{Index: r.Index, Err: err}
			span.RecordError(chunkErr)
			return s.fail(chunkErr)
		}
		if err := s.client.postChunk(ctx, s.uploadID, r.Index, s.file.Name, data); err != nil {
			chunkErr := &ChunkUploadError{Index: r.Index, Err: err}
			span.RecordError(chunkErr)
			s.client.log.Warn().Err(err).Str("upload_id", s.uploadID).
				Int("chunk", r.Index).Msg("chunk upload failed, aborting remaining chunks")
			return s.fail(chunkErr)
		}
		s.nextChunk = r.Index + 1
		s.emitProgress()
	}

	span.SetAttributes(attribute.Bool("all_chunks_sent", true))
	return nil
}

// Complete finalizes the upload. On success the session is Completed and the
// progress stays pinned at 100.
func (s *Session) Complete(ctx context.Context) error {
	if s.state != StateUploading || s.nextChunk != s.totalChunks {
		return fmt.Errorf("%w: complete called in state %s with %d/%d chunks sent",
			ErrInvalidState, s.state, s.nextChunk, s.totalChunks)
	}
	s.state = StateCompleting

	ctx, span := tracer.Start(ctx, "upload.complete",
		trace.WithAttributes(attribute.String("upload_id", s.uploadID)),
	)
	defer span.End()

	body, _ := json.Marshal(map[string]string{"upload_id": s.uploadID})
	resp, err := s.client.postJSON(ctx, "/upload/complete", body)
	if err != nil {
		span.RecordError(err)
		return s.fail(fmt.Errorf("%w: %v", ErrCompletionFailed, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: backend returned %s", ErrCompletionFailed, resp.Status)
		span.RecordError(err)
		return s.fail(err)
	}

	s.state = StateCompleted
	s.client.log.Info().Str("upload_id", s.uploadID).Str("file", s.file.Name).
		Msg("upload completed")
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func (c *Client) postChunk(ctx context.Context, uploadID string, chunkNumber int, filename string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("upload_id", uploadID); err != nil {
		return fmt.Errorf("writing upload_id field: %w", err)
	}
	if err := w.WriteField("chunk_number", strconv.Itoa(chunkNumber)); err != nil {
		return fmt.Errorf("writing chunk_number field: %w", err)
	}
	part, err := w.CreateFormFile("chunk", filename)
	if err != nil {
		return fmt.Errorf("creating chunk part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("writing chunk data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/chunk", &buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	return nil
}
