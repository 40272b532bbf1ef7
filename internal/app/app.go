package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"refbook/features/chat"
	"refbook/features/project"
	"refbook/features/resource"
	"refbook/features/share"
	"refbook/internal/config"
	"refbook/internal/fetch"
	"refbook/internal/ingest"
	"refbook/internal/middleware"
	"refbook/internal/retrieval"
)

type App struct {
	Handler         http.Handler
	ResourceService *resource.Service
	Pipeline        *ingest.Pipeline

	logger *slog.Logger
	port   int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	taskPub TaskPublisher,
	embedder Embedder,
	generator Generator,
	logger *slog.Logger,
) (*App, error) {
	// Feature: Project
	projectRepo := project.NewPostgresRepo(db)

	// Feature: Resource
	resourceRepo := resource.NewPostgresRepo(db)
	resourceService := resource.NewService(resourceRepo, taskPub, vecStore)
	resourceHandler := resource.NewHandler(resourceService)

	projectService := project.NewService(projectRepo, resourceRepo, vecStore)
	projectHandler := project.NewHandler(projectService)

	// Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedder, vecStore, queryLogger)

	// Feature: Chat
	chatService := chat.NewService(projectService, resourceRepo, retrievalService, generator,
		cfg.SearchTopK, time.Duration(cfg.GenerateTimeoutSeconds)*time.Second)
	chatHandler := chat.NewHandler(chatService)

	// Feature: Share
	shareRepo := share.NewPostgresRepo(db)
	shareService := share.NewService(shareRepo, projectService, resourceRepo, chatService)
	shareHandler := share.NewHandler(shareService)

	// Ingestion pipeline, driven by the NSQ consumer in main
	fetcher := fetch.New(time.Duration(cfg.FetchTimeoutSeconds) * time.Second)
	pipeline := ingest.NewPipeline(fetcher, embedder, vecStore, resourceRepo,
		cfg.ChunkSize, cfg.ChunkOverlap,
		time.Duration(cfg.FetchTimeoutSeconds)*time.Second,
		time.Duration(cfg.EmbedTimeoutSeconds)*time.Second)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /api/projects", middleware.CorrelationID(enableCORS(projectHandler.Create)))
	mux.Handle("GET /api/projects", middleware.CorrelationID(enableCORS(projectHandler.List)))
	mux.Handle("GET /api/projects/{id}", middleware.CorrelationID(enableCORS(projectHandler.Get)))
	mux.Handle("PUT /api/projects/{id}", middleware.CorrelationID(enableCORS(projectHandler.Update)))
	mux.Handle("DELETE /api/projects/{id}", middleware.CorrelationID(enableCORS(projectHandler.Delete)))
	mux.Handle("GET /api/projects/{id}/stats", middleware.CorrelationID(enableCORS(projectHandler.Stats)))

	mux.Handle("POST /api/projects/{projectId}/resources", middleware.CorrelationID(enableCORS(resourceHandler.Create)))
	mux.Handle("GET /api/projects/{projectId}/resources", middleware.CorrelationID(enableCORS(resourceHandler.List)))
	mux.Handle("GET /api/projects/{projectId}/resources/{id}", middleware.CorrelationID(enableCORS(resourceHandler.Get)))
	mux.Handle("POST /api/projects/{projectId}/resources/{id}/refresh", middleware.CorrelationID(enableCORS(resourceHandler.Refresh)))
	mux.Handle("DELETE /api/projects/{projectId}/resources/{id}", middleware.CorrelationID(enableCORS(resourceHandler.Delete)))

	mux.Handle("POST /api/projects/{projectId}/chat", middleware.CorrelationID(enableCORS(chatHandler.Chat)))

	mux.Handle("POST /api/projects/{projectId}/share", middleware.CorrelationID(enableCORS(shareHandler.Create)))
	mux.Handle("GET /api/projects/{projectId}/share", middleware.CorrelationID(enableCORS(shareHandler.List)))
	mux.Handle("GET /api/share/{shareId}", middleware.CorrelationID(enableCORS(shareHandler.Resolve)))
	mux.Handle("POST /api/share/{shareId}/chat", middleware.CorrelationID(enableCORS(shareHandler.Chat)))
	mux.Handle("DELETE /api/share/{shareId}", middleware.CorrelationID(enableCORS(shareHandler.Delete)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:         mux,
		ResourceService: resourceService,
		Pipeline:        pipeline,
		logger:          logger,
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
	}()

	a.logger.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
