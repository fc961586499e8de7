package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akshayp/chirpmedia/internal/models"
)

// AssetStore persists finalized media assets and their chunk metadata in
// MySQL.
type AssetStore struct {
	db *sql.DB
}

// NewAssetStore initializes a MySQL-backed asset store.
func NewAssetStore(dsn string) (*AssetStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &AssetStore{db: db}, nil
}

// Close closes the database connection.
func (s *AssetStore) Close() error {
	return s.db.Close()
}

// CreateAsset inserts a finalized media asset.
func (s *AssetStore) CreateAsset(ctx context.Context, asset *models.MediaAsset) error {
	ctx, span := tracer.Start(ctx, "mysql.create_asset",
		trace.WithAttributes(
			attribute.String("media_id", asset.ID),
			attribute.String("name", asset.Name),
			attribute.Int64("size", asset.Size),
		),
	)
	defer span.End()

	query := `INSERT INTO media_assets (id, name, size, chunk_count, created_at)
			  VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, asset.ID, asset.Name, asset.Size, asset.ChunkCount, asset.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("inserting asset: %w", err)
	}
	return nil
}

// CreateChunk inserts the metadata of one stored chunk.
func (s *AssetStore) CreateChunk(ctx context.Context, chunk *models.ChunkRecord) error {
	ctx, span := tracer.Start(ctx, "mysql.create_chunk",
		trace.WithAttributes(
			attribute.String("media_id", chunk.AssetID),
			attribute.Int("order_index", chunk.OrderIndex),
		),
	)
	defer span.End()

	query := `INSERT INTO media_chunks (id, asset_id, order_index, hash, object_key, size)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, chunk.ID, chunk.AssetID, chunk.OrderIndex, chunk.Hash, chunk.ObjectKey, chunk.Size)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("inserting chunk record: %w", err)
	}
	return nil
}

// GetAsset retrieves a media asset by id. A missing asset returns (nil, nil).
func (s *AssetStore) GetAsset(ctx context.Context, mediaID string) (*models.MediaAsset, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_asset",
		trace.WithAttributes(attribute.String("media_id", mediaID)),
	)
	defer span.End()

	query := `SELECT id, name, size, chunk_count, created_at FROM media_assets WHERE id = ?`

	var asset models.MediaAsset
	err := s.db.QueryRowContext(ctx, query, mediaID).Scan(
		&asset.ID,
		&asset.Name,
		&asset.Size,
		&asset.ChunkCount,
		&asset.CreatedAt,
	)
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying asset: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &asset, nil
}

// GetChunks retrieves all chunk records for an asset ordered by index.
func (s *AssetStore) GetChunks(ctx context.Context, mediaID string) ([]*models.ChunkRecord, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_chunks",
		trace.WithAttributes(attribute.String("media_id", mediaID)),
	)
	defer span.End()

	query := `SELECT id, asset_id, order_index, hash, object_key, size
			  FROM media_chunks
			  WHERE asset_id = ?
			  ORDER BY order_index ASC`

	rows, err := s.db.QueryContext(ctx, query, mediaID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.ChunkRecord
	for rows.Next() {
		var chunk models.ChunkRecord
		err := rows.Scan(
			&chunk.ID,
			&chunk.AssetID,
			&chunk.OrderIndex,
			&chunk.Hash,
			&chunk.ObjectKey,
			&chunk.Size,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scanning chunk record: %w", err)
		}
		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("iterating chunk records: %w", err)
	}

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))
	return chunks, nil
}
