package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akshayp/chirpmedia/internal/chunker"
	"github.com/akshayp/chirpmedia/internal/models"
)

// MediaHandler serves finalized media assets.
type MediaHandler struct {
	objects Objects
	assets  Assets
	log     zerolog.Logger
}

// NewMediaHandler creates the media download endpoint.
func NewMediaHandler(objects Objects, assets Assets, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		objects: objects,
		assets:  assets,
		log:     log.With().Str("component", "media-handler").Logger(),
	}
}

// ServeHTTP handles GET /media/{media_id}.
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "media_download",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	mediaID := mux.Vars(r)["media_id"]
	if mediaID == "" {
		http.Error(w, "missing media_id in path", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("media_id", mediaID))

	asset, err := h.assets.GetAsset(ctx, mediaID)
	if err != nil {
		span.RecordError(err)
		http.Error(w, "failed to load media metadata", http.StatusInternalServerError)
		return
	}
	if asset == nil {
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}

	records, err := h.assets.GetChunks(ctx, mediaID)
	if err != nil {
		span.RecordError(err)
		http.Error(w, "failed to load chunk metadata", http.StatusInternalServerError)
		return
	}

	data, err := h.fetchChunksParallel(ctx, records)
	if err != nil {
		span.RecordError(err)
		http.Error(w, "failed to fetch media chunks", http.StatusInternalServerError)
		return
	}

	body := chunker.Reassemble(data)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", asset.Name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)

	h.log.Debug().Str("media_id", mediaID).Int("bytes", len(body)).Msg("media served")
}

// fetchChunksParallel downloads every chunk concurrently; the chunks are
// independent objects, so the fetch order does not matter as long as the
// result slice stays indexed by order.
func (h *MediaHandler) fetchChunksParallel(ctx context.Context, records []*models.ChunkRecord) ([][]byte, error) {
	ctx, span := tracer.Start(ctx, "fetch_chunks_parallel",
		trace.WithAttributes(attribute.Int("chunk_count", len(records))),
	)
	defer span.End()

	data := make([][]byte, len(records))
	var wg sync.WaitGroup
	errChan := make(chan error, len(records))

	for i, record := range records {
		wg.Add(1)
		go func(idx int, rec *models.ChunkRecord) {
			defer wg.Done()

			_, chunkSpan := tracer.Start(ctx, fmt.Sprintf("fetch_chunk_%d", idx),
				trace.WithAttributes(
					attribute.Int("chunk_index", idx),
					attribute.String("object_key", rec.ObjectKey),
				),
			)
			defer chunkSpan.End()

			chunk, err := h.objects.GetObject(ctx, rec.ObjectKey)
			if err != nil {
				chunkSpan.RecordError(err)
				errChan <- fmt.Errorf("fetching chunk %d: %w", idx, err)
				return
			}
			if !chunker.VerifyHash(chunk, rec.Hash) {
				err := fmt.Errorf("hash mismatch for chunk %d", idx)
				chunkSpan.RecordError(err)
				errChan <- err
				return
			}
			data[idx] = chunk
		}(i, record)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		span.RecordError(err)
		return nil, err
	}
	return data, nil
}
