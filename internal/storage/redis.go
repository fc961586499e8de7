package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akshayp/chirpmedia/internal/models"
)

// DefaultSessionTTL is the fallback expiration for upload sessions when no
// TTL is configured. An abandoned upload simply ages out.
const DefaultSessionTTL = 60 * time.Minute

// SessionStore keeps active upload sessions in Redis. Sessions are
// short-lived by design; finalized assets move to the SQL store.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore initializes a Redis-backed session store.
func NewSessionStore(addr, password string, db int, ttl time.Duration) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (s *SessionStore) Close() error {
	return s.client.Close()
}

func sessionKey(uploadID string) string {
	return fmt.Sprintf("upload:%s", uploadID)
}

// Put stores a session, refreshing its TTL.
func (s *SessionStore) Put(ctx context.Context, session *models.UploadSession) error {
	ctx, span := tracer.Start(ctx, "redis.put_session",
		trace.WithAttributes(
			attribute.String("upload_id", session.ID),
			attribute.String("status", string(session.Status)),
		),
	)
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshaling session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// Get retrieves a session. A missing session returns (nil, nil).
func (s *SessionStore) Get(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	ctx, span := tracer.Start(ctx, "redis.get_session",
		trace.WithAttributes(attribute.String("upload_id", uploadID)),
	)
	defer span.End()

	data, err := s.client.Get(ctx, sessionKey(uploadID)).Result()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("getting session: %w", err)
	}

	var session models.UploadSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &session, nil
}

// Delete removes a session once the upload completes or fails.
func (s *SessionStore) Delete(ctx context.Context, uploadID string) error {
	ctx, span := tracer.Start(ctx, "redis.delete_session",
		trace.WithAttributes(attribute.String("upload_id", uploadID)),
	)
	defer span.End()

	if err := s.client.Del(ctx, sessionKey(uploadID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
