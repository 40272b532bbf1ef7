package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"refbook/internal/adapter/gemini"
	wstore "refbook/internal/adapter/weaviate"
	"refbook/internal/config"
)

type Dependencies struct {
	DB          *sql.DB
	VectorStore VectorStore
	NSQProducer *nsq.Producer
	Embedder    *gemini.Embedder
	Generator   *gemini.Generator
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	// Weaviate
	wCfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
	wClient, err := weaviate.NewClient(wCfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}
	vecStore := wstore.NewStore(wClient)

	if err := EnsureSchemaWithRetry(ctx, vecStore, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return nil, fmt.Errorf("weaviate schema error: %w", err)
	}

	// Gemini
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder error: %w", err)
	}
	generator, err := gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.ChatModel)
	if err != nil {
		return nil, fmt.Errorf("gemini generator error: %w", err)
	}

	// NSQ Producer
	nsqCfg := nsq.NewConfig()
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	createTopics(cfg.NSQDHTTP)

	return &Dependencies{
		DB:          db,
		VectorStore: vecStore,
		NSQProducer: producer,
		Embedder:    embedder,
		Generator:   generator,
	}, nil
}

// createTopics pre-creates NSQ topics so consumers querying lookupd do not
// 404 before the first publish.
func createTopics(nsqdHTTP string) {
	go func() {
		time.Sleep(2 * time.Second)
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, config.TopicResourceIngest)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", config.TopicResourceIngest, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}()
}

func EnsureSchemaWithRetry(ctx context.Context, store VectorStore, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
