package config

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"refbook"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"refbook"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	ChatModel      string `envconfig:"CHAT_MODEL" default:"gemini-1.5-flash"`

	// Ingestion
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	// Retrieval
	SearchTopK int `envconfig:"SEARCH_TOP_K" default:"5"`

	// External call timeouts (seconds)
	FetchTimeoutSeconds    int `envconfig:"FETCH_TIMEOUT_SECONDS" default:"30"`
	EmbedTimeoutSeconds    int `envconfig:"EMBED_TIMEOUT_SECONDS" default:"60"`
	GenerateTimeoutSeconds int `envconfig:"GENERATE_TIMEOUT_SECONDS" default:"60"`

	// Server
	ServerPort    int    `envconfig:"SERVER_PORT" default:"8080"`
	QueryLogPath  string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may come from the shell instead, so a missing .env is fine.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrMissingRequired)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrMissingRequired)
	}
	if c.SearchTopK <= 0 {
		return fmt.Errorf("%w: SEARCH_TOP_K must be positive", ErrMissingRequired)
	}
	return nil
}
