package app_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"refbook/internal/app"
	"refbook/internal/config"
)

type fakePublisher struct{}

func (f *fakePublisher) Publish(topic string, body []byte) error { return nil }

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

type fakeGenerator struct{}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "answer", nil
}

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{
		ChunkSize:              1000,
		ChunkOverlap:           200,
		SearchTopK:             5,
		FetchTimeoutSeconds:    30,
		EmbedTimeoutSeconds:    60,
		GenerateTimeoutSeconds: 60,
		ServerPort:             8080,
		QueryLogPath:           t.TempDir() + "/query.log",
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	a, err := app.New(cfg, db, &app.MockVectorStore{}, &fakePublisher{}, &fakeEmbedder{}, &fakeGenerator{}, logger)
	assert.NoError(t, err)
	assert.NotNil(t, a)
	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.ResourceService)
	assert.NotNil(t, a.Pipeline)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestNew_RoutesRegistered(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{
		ChunkSize:              1000,
		ChunkOverlap:           200,
		SearchTopK:             5,
		FetchTimeoutSeconds:    30,
		EmbedTimeoutSeconds:    60,
		GenerateTimeoutSeconds: 60,
		ServerPort:             8080,
		QueryLogPath:           t.TempDir() + "/query.log",
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	a, err := app.New(cfg, db, &app.MockVectorStore{}, &fakePublisher{}, &fakeEmbedder{}, &fakeGenerator{}, logger)
	assert.NoError(t, err)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}))

	req := httptest.NewRequest("GET", "/api/projects", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
