package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akshayp/chirpmedia/internal/chunker"
	"github.com/akshayp/chirpmedia/internal/models"
	"github.com/akshayp/chirpmedia/internal/storage"
)

var tracer = otel.Tracer("chirpmedia-handlers")

// maxChunkMemory bounds the multipart parse buffer for one chunk request.
const maxChunkMemory = 32 << 20

// Objects is the object storage needed by the upload pipeline.
type Objects interface {
	PutObject(ctx context.Context, objectKey string, data []byte) error
	GetObject(ctx context.Context, objectKey string) ([]byte, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// Sessions is the active upload session store.
type Sessions interface {
	Put(ctx context.Context, session *models.UploadSession) error
	Get(ctx context.Context, uploadID string) (*models.UploadSession, error)
	Delete(ctx context.Context, uploadID string) error
}

// Assets is the finalized media metadata store.
type Assets interface {
	CreateAsset(ctx context.Context, asset *models.MediaAsset) error
	CreateChunk(ctx context.Context, chunk *models.ChunkRecord) error
	GetAsset(ctx context.Context, mediaID string) (*models.MediaAsset, error)
	GetChunks(ctx context.Context, mediaID string) ([]*models.ChunkRecord, error)
}

// UploadHandler implements the chunked upload protocol: initialize, append
// chunks in strict order, complete.
type UploadHandler struct {
	objects  Objects
	sessions Sessions
	assets   Assets
	maxSize  int64
	log      zerolog.Logger
}

// NewUploadHandler creates the upload endpoints. maxSize caps the declared
// file size of new sessions.
func NewUploadHandler(objects Objects, sessions Sessions, assets Assets, maxSize int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		objects:  objects,
		sessions: sessions,
		assets:   assets,
		maxSize:  maxSize,
		log:      log.With().Str("component", "upload-handler").Logger(),
	}
}

// Initialize handles POST /upload/initialize.
func (h *UploadHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_initialize",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var req models.InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Filename == "" || req.FileSize <= 0 || req.TotalChunks <= 0 {
		http.Error(w, "filename, filesize and total_chunks are required", http.StatusBadRequest)
		return
	}
	if h.maxSize > 0 && req.FileSize > h.maxSize {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	session := &models.UploadSession{
		ID:          uuid.New().String(),
		Filename:    req.Filename,
		FileSize:    req.FileSize,
		TotalChunks: req.TotalChunks,
		Status:      models.SessionInit,
		CreatedAt:   time.Now(),
	}
	span.SetAttributes(
		attribute.String("upload_id", session.ID),
		attribute.String("file_name", session.Filename),
		attribute.Int("total_chunks", session.TotalChunks),
	)

	if err := h.sessions.Put(ctx, session); err != nil {
		span.RecordError(err)
		http.Error(w, "failed to create upload session", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("upload_id", session.ID).Str("file", session.Filename).
		Int("total_chunks", session.TotalChunks).Msg("upload session created")

	writeJSON(w, http.StatusCreated, models.InitializeResponse{UploadID: session.ID})
}

// Chunk handles POST /upload/chunk (multipart). Chunks are append-only: the
// only acceptable chunk_number is the session's current received count; any
// other order is rejected so the reassembled file cannot be corrupted.
func (h *UploadHandler) Chunk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_chunk",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	if err := r.ParseMultipartForm(maxChunkMemory); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	uploadID := r.FormValue("upload_id")
	chunkNumber, err := strconv.Atoi(r.FormValue("chunk_number"))
	if uploadID == "" || err != nil {
		http.Error(w, "upload_id and chunk_number are required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("upload_id", uploadID),
		attribute.Int("chunk_number", chunkNumber),
	)

	session, err := h.sessions.Get(ctx, uploadID)
	if err != nil {
		span.RecordError(err)
		http.Error(w, "failed to load upload session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "unknown upload session", http.StatusNotFound)
		return
	}
	if chunkNumber != session.ReceivedChunks {
		h.log.Warn().Str("upload_id", uploadID).Int("got", chunkNumber).
			Int("want", session.ReceivedChunks).Msg("out-of-order chunk rejected")
		http.Error(w, fmt.Sprintf("expected chunk %d, got %d", session.ReceivedChunks, chunkNumber), http.StatusConflict)
		return
	}
	if chunkNumber >= session.TotalChunks {
		http.Error(w, "chunk number beyond declared total", http.StatusConflict)
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		http.Error(w, "missing chunk part", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		span.RecordError(err)
		http.Error(w, "failed to read chunk", http.StatusBadRequest)
		return
	}

	if err := h.objects.PutObject(ctx, storage.ChunkKey(uploadID, chunkNumber), data); err != nil {
		span.RecordError(err)
		http.Error(w, "failed to store chunk", http.StatusInternalServerError)
		return
	}

	session.ReceivedChunks++
	session.ReceivedBytes += int64(len(data))
	session.Status = models.SessionUploading
	if err := h.sessions.Put(ctx, session); err != nil {
		span.RecordError(err)
		http.Error(w, "failed to update upload session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.ChunkResponse{
		UploadID:       uploadID,
		ChunkNumber:    chunkNumber,
		ReceivedChunks: session.ReceivedChunks,
		TotalChunks:    session.TotalChunks,
	})
}

// Complete handles POST /upload/complete: verifies every chunk arrived,
// assembles the media object, persists the asset metadata, and drops the
// session and its chunk objects.
func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_complete",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var req models.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UploadID == "" {
		http.Error(w, "upload_id is required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("upload_id", req.UploadID))

	session, err := h.sessions.Get(ctx, req.UploadID)
	if err != nil {
		span.RecordError(err)
		http.Error(w, "failed to load upload session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "unknown upload session", http.StatusNotFound)
		return
	}
	if session.ReceivedChunks != session.TotalChunks {
		http.Error(w, fmt.Sprintf("upload incomplete: %d of %d chunks received",
			session.ReceivedChunks, session.TotalChunks), http.StatusConflict)
		return
	}
	if session.ReceivedBytes != session.FileSize {
		h.failSession(ctx, session)
		http.Error(w, "received bytes do not match the declared file size", http.StatusConflict)
		return
	}

	mediaID := uuid.New().String()
	records := make([]*models.ChunkRecord, session.TotalChunks)
	for i := 0; i < session.TotalChunks; i++ {
		data, err := h.objects.GetObject(ctx, storage.ChunkKey(session.ID, i))
		if err != nil {
			span.RecordError(err)
			h.failSession(ctx, session)
			http.Error(w, fmt.Sprintf("failed to load chunk %d", i), http.StatusInternalServerError)
			return
		}
		records[i] = &models.ChunkRecord{
			ID:         uuid.New().String(),
			AssetID:    mediaID,
			OrderIndex: i,
			Hash:       chunker.ComputeHash(data),
			ObjectKey:  storage.ChunkKey(session.ID, i),
			Size:       int64(len(data)),
		}
	}

	asset := &models.MediaAsset{
		ID:         mediaID,
		Name:       session.Filename,
		Size:       session.FileSize,
		ChunkCount: session.TotalChunks,
		CreatedAt:  time.Now(),
	}
	if err := h.assets.CreateAsset(ctx, asset); err != nil {
		span.RecordError(err)
		h.failSession(ctx, session)
		http.Error(w, "failed to persist media metadata", http.StatusInternalServerError)
		return
	}
	for _, record := range records {
		if err := h.assets.CreateChunk(ctx, record); err != nil {
			span.RecordError(err)
			http.Error(w, "failed to persist chunk metadata", http.StatusInternalServerError)
			return
		}
	}

	// The chunk objects stay: the asset's chunk records point at them and the
	// media handler reassembles from them on download. Only the session goes.
	if err := h.sessions.Delete(ctx, session.ID); err != nil {
		h.log.Warn().Err(err).Str("upload_id", session.ID).Msg("failed to drop completed session")
	}

	span.SetAttributes(attribute.String("media_id", mediaID))
	h.log.Info().Str("upload_id", session.ID).Str("media_id", mediaID).
		Int64("size", asset.Size).Msg("upload completed")

	writeJSON(w, http.StatusOK, models.CompleteResponse{
		MediaID: mediaID,
		Name:    asset.Name,
		Size:    asset.Size,
	})
}

// failSession marks the session failed and drops its staged chunks. There is
// no partial resume; the client restarts from chunk 0 with a new session.
func (h *UploadHandler) failSession(ctx context.Context, session *models.UploadSession) {
	session.Status = models.SessionFailed
	if err := h.sessions.Put(ctx, session); err != nil {
		h.log.Warn().Err(err).Str("upload_id", session.ID).Msg("failed to mark session failed")
	}
	for i := 0; i < session.ReceivedChunks; i++ {
		if err := h.objects.DeleteObject(ctx, storage.ChunkKey(session.ID, i)); err != nil {
			h.log.Warn().Err(err).Str("upload_id", session.ID).Int("chunk", i).Msg("failed to drop staged chunk")
		}
	}
}

// Limits returns a handler advertising the fixed upload profiles, so clients
// never have to hardcode the server's chunk sizes and media limits.
func Limits(limits models.UploadLimits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, limits)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
