package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"refbook/internal/fetch"
	"refbook/internal/middleware"
	"refbook/internal/text"
)

// Pipeline consumes resource ingestion tasks and runs
// fetch → chunk → embed → store, committing the result on the resource row.
type Pipeline struct {
	fetcher   Fetcher
	embedder  Embedder
	chunks    ChunkStore
	resources ResourceStore

	chunkSize    int
	chunkOverlap int
	fetchTimeout time.Duration
	embedTimeout time.Duration
}

func NewPipeline(f Fetcher, e Embedder, cs ChunkStore, rs ResourceStore, chunkSize, chunkOverlap int, fetchTimeout, embedTimeout time.Duration) *Pipeline {
	return &Pipeline{
		fetcher:      f,
		embedder:     e,
		chunks:       cs,
		resources:    rs,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		fetchTimeout: fetchTimeout,
		embedTimeout: embedTimeout,
	}
}

// HandleMessage implements the NSQ handler contract. It returns a non-nil
// error only for transient infrastructure failures worth redelivering; a
// failed ingestion is recorded on the resource and the message is consumed.
func (p *Pipeline) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task TaskPayload
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill, never retry.
		slog.Error("invalid ingest task, dropping", "error", err)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	if task.ResourceID == "" || task.RunID == "" {
		slog.ErrorContext(ctx, "ingest task missing ids, dropping", "resource_id", task.ResourceID)
		return nil
	}

	return p.Run(ctx, task)
}

// Run executes one pipeline run end to end.
func (p *Pipeline) Run(ctx context.Context, task TaskPayload) error {
	claimed, err := p.resources.ClaimRun(ctx, task.ResourceID, task.RunID)
	if err != nil {
		return fmt.Errorf("claim run: %w", err)
	}
	if claimed == nil {
		// Resource deleted or a newer run superseded this task.
		slog.InfoContext(ctx, "stale ingest task, dropping", "resource_id", task.ResourceID, "run_id", task.RunID)
		return nil
	}

	slog.InfoContext(ctx, "ingestion started", "resource_id", task.ResourceID, "url", claimed.URL, "refresh", task.Refresh)

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	doc, err := p.fetcher.Fetch(fetchCtx, claimed.URL)
	cancel()
	if err != nil {
		return p.fail(ctx, task, fetchErrorMessage(err))
	}

	segments := text.Split(doc.Text, p.chunkSize, p.chunkOverlap)
	if len(segments) == 0 {
		return p.fail(ctx, task, "no indexable content extracted from page")
	}

	chunks := make([]Chunk, 0, len(segments))
	for i, seg := range segments {
		embedCtx, cancel := context.WithTimeout(ctx, p.embedTimeout)
		vec, err := p.embedder.Embed(embedCtx, seg)
		cancel()
		if err != nil {
			p.rollback(ctx, task)
			return p.fail(ctx, task, fmt.Sprintf("embedding failed: %v", err))
		}
		chunks = append(chunks, Chunk{
			ProjectID:  claimed.ProjectID,
			ResourceID: task.ResourceID,
			URL:        claimed.URL,
			Content:    seg,
			Vector:     vec,
			ChunkIndex: i,
			Generation: task.RunID,
		})
	}

	if err := p.chunks.StoreChunks(ctx, chunks); err != nil {
		p.rollback(ctx, task)
		return p.fail(ctx, task, fmt.Sprintf("storing chunks failed: %v", err))
	}

	committed, err := p.resources.CommitRun(ctx, task.ResourceID, task.RunID, doc.Title, len(chunks))
	if err != nil {
		// Transient DB failure: leave chunks in place, the redelivered task
		// will re-claim and re-run.
		return fmt.Errorf("commit run: %w", err)
	}
	if !committed {
		// Deleted while we were working. Our chunks must not outlive the row.
		p.rollback(ctx, task)
		slog.InfoContext(ctx, "resource gone before commit, rolled back", "resource_id", task.ResourceID)
		return nil
	}

	// Old generations are unreadable once the pointer flipped; removal is
	// garbage collection, not correctness.
	if err := p.chunks.PruneGenerations(ctx, task.ResourceID, task.RunID); err != nil {
		slog.WarnContext(ctx, "failed to prune old chunk generations", "resource_id", task.ResourceID, "error", err)
	}

	slog.InfoContext(ctx, "ingestion completed", "resource_id", task.ResourceID, "chunks", len(chunks))
	return nil
}

func (p *Pipeline) rollback(ctx context.Context, task TaskPayload) {
	if err := p.chunks.DeleteGeneration(ctx, task.ResourceID, task.RunID); err != nil {
		slog.WarnContext(ctx, "rollback failed", "resource_id", task.ResourceID, "run_id", task.RunID, "error", err)
	}
}

func (p *Pipeline) fail(ctx context.Context, task TaskPayload, message string) error {
	slog.WarnContext(ctx, "ingestion failed", "resource_id", task.ResourceID, "reason", message)
	if err := p.resources.FailRun(ctx, task.ResourceID, task.RunID, message); err != nil {
		slog.ErrorContext(ctx, "failed to record ingestion error", "resource_id", task.ResourceID, "error", err)
	}
	return nil
}

func fetchErrorMessage(err error) string {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case fetch.KindUnreachable:
			return fmt.Sprintf("could not reach %s: %v", fe.URL, fe.Err)
		case fetch.KindBlocked:
			return fmt.Sprintf("%s refused the request: %v", fe.URL, fe.Err)
		case fetch.KindUnsupported:
			return fmt.Sprintf("%s has no supported text content: %v", fe.URL, fe.Err)
		}
	}
	return fmt.Sprintf("fetch failed: %v", err)
}
