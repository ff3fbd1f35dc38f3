// Package config loads process configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds settings shared by the api and worker binaries
type Config struct {
	HTTPPort       string
	AllowedOrigins []string
	LogLevel       string

	QueueDBPath string

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsChannel string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string
	PublicBaseURL  string
	ExportFolder   string
	PhotoFolder    string

	TempDir string

	MaxAttempts    int
	BackoffBase    time.Duration
	LeaseDuration  time.Duration
	PollInterval   time.Duration
	RetentionAge   time.Duration
	RetentionCount int
	PruneInterval  time.Duration

	SubmissionsPerMinute int
}

// Load reads configuration from environment variables with defaults
// suitable for local development.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("QUEUE_DB_PATH", "exports.db")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "survey")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("EVENTS_CHANNEL", "export:events")

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minio")
	v.SetDefault("MINIO_SECRET_KEY", "minio123")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_BUCKET", "survey-exports")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:9000")
	v.SetDefault("EXPORT_FOLDER", "exports")
	v.SetDefault("PHOTO_FOLDER", "photos")

	v.SetDefault("EXPORT_TMP_DIR", "")

	v.SetDefault("EXPORT_MAX_ATTEMPTS", 2)
	v.SetDefault("EXPORT_BACKOFF_BASE", 5*time.Second)
	v.SetDefault("EXPORT_LEASE_DURATION", 5*time.Minute)
	v.SetDefault("WORKER_POLL_INTERVAL", time.Second)
	v.SetDefault("JOB_RETENTION_AGE", 7*24*time.Hour)
	v.SetDefault("JOB_RETENTION_COUNT", 10)
	v.SetDefault("JOB_PRUNE_INTERVAL", time.Hour)

	v.SetDefault("EXPORT_SUBMISSIONS_PER_MINUTE", 10)

	return &Config{
		HTTPPort:       v.GetString("HTTP_PORT"),
		AllowedOrigins: splitOrigins(v.GetString("ALLOWED_ORIGINS")),
		LogLevel:       v.GetString("LOG_LEVEL"),

		QueueDBPath: v.GetString("QUEUE_DB_PATH"),

		MongoURI:      v.GetString("MONGO_URI"),
		MongoDatabase: v.GetString("MONGO_DATABASE"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		EventsChannel: v.GetString("EVENTS_CHANNEL"),

		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),
		MinioBucket:    v.GetString("MINIO_BUCKET"),
		PublicBaseURL:  strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		ExportFolder:   v.GetString("EXPORT_FOLDER"),
		PhotoFolder:    v.GetString("PHOTO_FOLDER"),

		TempDir: v.GetString("EXPORT_TMP_DIR"),

		MaxAttempts:    v.GetInt("EXPORT_MAX_ATTEMPTS"),
		BackoffBase:    v.GetDuration("EXPORT_BACKOFF_BASE"),
		LeaseDuration:  v.GetDuration("EXPORT_LEASE_DURATION"),
		PollInterval:   v.GetDuration("WORKER_POLL_INTERVAL"),
		RetentionAge:   v.GetDuration("JOB_RETENTION_AGE"),
		RetentionCount: v.GetInt("JOB_RETENTION_COUNT"),
		PruneInterval:  v.GetDuration("JOB_PRUNE_INTERVAL"),

		SubmissionsPerMinute: v.GetInt("EXPORT_SUBMISSIONS_PER_MINUTE"),
	}
}

func splitOrigins(s string) []string {
	parts := strings.Split(s, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
