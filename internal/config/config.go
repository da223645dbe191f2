package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"ragdesk-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	ChatModel           string `envconfig:"CHAT_MODEL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	// Retrieval tuning. MinSimilarity gates answer generation; the tier
	// threshold decides when the secondary knowledge base is consulted.
	MinSimilarity       float32 `envconfig:"MIN_SIMILARITY" default:"0.6"`
	SimilarityThreshold float32 `envconfig:"SIMILARITY_THRESHOLD" default:"0.7"`
	HybridAlpha         float32 `envconfig:"HYBRID_ALPHA" default:"0.7"`

	SessionCapacity int           `envconfig:"SESSION_CAPACITY" default:"512"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"30m"`

	// Optional drop-folder ingestion. Files under WatchDir/<department>/
	// are ingested into that department's primary knowledge base.
	WatchDir string `envconfig:"WATCH_DIR"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("RAGDESK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasWatcher() bool {
	return c.WatchDir != ""
}
