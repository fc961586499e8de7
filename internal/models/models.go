package models

import "time"

// SessionStatus tracks a server-side upload session through its lifecycle.
type SessionStatus string

const (
	SessionInit      SessionStatus = "INIT"
	SessionUploading SessionStatus = "UPLOADING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionFailed    SessionStatus = "FAILED"
)

// UploadSession is the server-tracked context accumulating chunks for one
// file. Chunks are accepted append-only: the next acceptable chunk number is
// always ReceivedChunks.
type UploadSession struct {
	ID             string        `json:"id"`
	Filename       string        `json:"filename"`
	FileSize       int64         `json:"file_size"`
	ChunkSize      int64         `json:"chunk_size"`
	TotalChunks    int           `json:"total_chunks"`
	ReceivedChunks int           `json:"received_chunks"`
	ReceivedBytes  int64         `json:"received_bytes"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}

// MediaAsset represents a finalized media file persisted after a completed
// upload.
type MediaAsset struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkRecord is the persisted metadata for one stored chunk of an asset.
type ChunkRecord struct {
	ID         string `json:"id"`
	AssetID    string `json:"asset_id"`
	OrderIndex int    `json:"order_index"`
	Hash       string `json:"hash"`
	ObjectKey  string `json:"object_key"`
	Size       int64  `json:"size"`
}

// UploadLimits are the fixed upload profiles advertised to clients at
// GET /upload/config.
type UploadLimits struct {
	PostChunkSize       int64 `json:"post_chunk_size"`
	StandaloneChunkSize int64 `json:"standalone_chunk_size"`
	MaxImageSize        int64 `json:"max_image_size"`
	MaxVideoSize        int64 `json:"max_video_size"`
}

// InitializeRequest is the body of POST /upload/initialize.
type InitializeRequest struct {
	Filename    string `json:"filename"`
	FileSize    int64  `json:"filesize"`
	TotalChunks int    `json:"total_chunks"`
}

// InitializeResponse returns the opaque id for the new upload session.
type InitializeResponse struct {
	UploadID string `json:"upload_id"`
}

// ChunkResponse is returned after each accepted chunk.
type ChunkResponse struct {
	UploadID       string `json:"upload_id"`
	ChunkNumber    int    `json:"chunk_number"`
	ReceivedChunks int    `json:"received_chunks"`
	TotalChunks    int    `json:"total_chunks"`
}

// CompleteRequest is the body of POST /upload/complete.
type CompleteRequest struct {
	UploadID string `json:"upload_id"`
}

// CompleteResponse returns the id of the assembled media asset.
type CompleteResponse struct {
	MediaID string `json:"media_id"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
}
