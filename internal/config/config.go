package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all media-service configuration.
type Config struct {
	// Service configuration
	ServicePort string
	ServiceName string

	// Upload profiles. Chunk sizes are fixed configuration constants, never
	// derived at runtime: 1 MiB for post-attached video, 5 MiB for the
	// standalone uploader.
	PostChunkSizeMB       int
	StandaloneChunkSizeMB int
	MaxImageSizeMB        int
	MaxVideoSizeMB        int
	SessionTTLMinutes     int

	// MinIO configuration (chunk and media object storage)
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// MySQL configuration (finalized media metadata)
	MySQLHost     string
	MySQLPort     string
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	// Redis configuration (active upload sessions)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// OTLP trace collector
	OTLPEndpoint string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServicePort: getEnv("SERVICE_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "chirpmedia"),

		PostChunkSizeMB:       getEnvAsInt("POST_CHUNK_SIZE_MB", 1),
		StandaloneChunkSizeMB: getEnvAsInt("STANDALONE_CHUNK_SIZE_MB", 5),
		MaxImageSizeMB:        getEnvAsInt("MAX_IMAGE_SIZE_MB", 10),
		MaxVideoSizeMB:        getEnvAsInt("MAX_VIDEO_SIZE_MB", 1024),
		SessionTTLMinutes:     getEnvAsInt("SESSION_TTL_MINUTES", 60),

		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "chirpmedia"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		MySQLHost:     getEnv("MYSQL_HOST", "localhost"),
		MySQLPort:     getEnv("MYSQL_PORT", "3306"),
		MySQLUser:     getEnv("MYSQL_USER", "root"),
		MySQLPassword: getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase: getEnv("MYSQL_DATABASE", "chirpmedia"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "http://localhost:4318"),
	}

	if cfg.PostChunkSizeMB <= 0 || cfg.StandaloneChunkSizeMB <= 0 {
		return nil, fmt.Errorf("chunk sizes must be positive")
	}
	return cfg, nil
}

// DSN returns the MySQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.MySQLUser,
		c.MySQLPassword,
		c.MySQLHost,
		c.MySQLPort,
		c.MySQLDatabase,
	)
}

// RedisAddr returns the Redis address.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// PostChunkSize returns the post-video chunk size in bytes.
func (c *Config) PostChunkSize() int64 {
	return int64(c.PostChunkSizeMB) * 1024 * 1024
}

// StandaloneChunkSize returns the standalone-uploader chunk size in bytes.
func (c *Config) StandaloneChunkSize() int64 {
	return int64(c.StandaloneChunkSizeMB) * 1024 * 1024
}

// MaxImageSize returns the image size limit in bytes.
func (c *Config) MaxImageSize() int64 {
	return int64(c.MaxImageSizeMB) * 1024 * 1024
}

// MaxVideoSize returns the video size limit in bytes.
func (c *Config) MaxVideoSize() int64 {
	return int64(c.MaxVideoSizeMB) * 1024 * 1024
}

// SessionTTL returns how long an idle upload session survives.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
