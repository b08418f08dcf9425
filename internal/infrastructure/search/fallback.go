package search

import (
	"context"
	"log/slog"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/core/ports"
)

// HitObserver receives retrieval outcomes for metrics.
type HitObserver interface {
	RecordRetrieval(backend string, hits int)
}

// Fallback pairs a remote index with a local one. Chunks are always written
// to the local index so that a failing remote backend can be answered locally.
type Fallback struct {
	remote   ports.SearchIndex
	local    ports.SearchIndex
	name     string
	observer HitObserver
}

func NewFallback(name string, remote, local ports.SearchIndex, observer HitObserver) *Fallback {
	return &Fallback{remote: remote, local: local, name: name, observer: observer}
}

func (f *Fallback) Index(ctx context.Context, chunks []domain.DocumentChunk, ref domain.DocumentRef) (int, error) {
	localCount, err := f.local.Index(ctx, chunks, ref)
	if err != nil {
		return 0, err
	}
	if f.remote == nil {
		return localCount, nil
	}

	remoteCount, err := f.remote.Index(ctx, chunks, ref)
	if err != nil {
		slog.Warn("search_fallback",
			"operation", "index",
			"backend", f.name,
			"session_id", ref.SessionID,
			"error", err,
		)
		return localCount, nil
	}
	return remoteCount, nil
}

func (f *Fallback) Search(ctx context.Context, query string, filter domain.SearchFilter, topK int) ([]domain.SearchHit, error) {
	if f.remote != nil {
		hits, err := f.remote.Search(ctx, query, filter, topK)
		if err == nil {
			f.observe(f.name, len(hits))
			return hits, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("search_fallback",
			"operation", "search",
			"backend", f.name,
			"session_id", filter.SessionID,
			"error", err,
		)
	}

	hits, err := f.local.Search(ctx, query, filter, topK)
	if err != nil {
		return nil, err
	}
	f.observe("local", len(hits))
	return hits, nil
}

func (f *Fallback) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	localCount, err := f.local.DeleteSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if f.remote == nil {
		return localCount, nil
	}
	remoteCount, err := f.remote.DeleteSession(ctx, sessionID)
	if err != nil {
		slog.Warn("search_fallback",
			"operation", "delete_session",
			"backend", f.name,
			"session_id", sessionID,
			"error", err,
		)
		return localCount, nil
	}
	return remoteCount, nil
}

// ReleaseLocal drops the session's chunks from the local index only. The
// remote index keeps them for later searches.
func (f *Fallback) ReleaseLocal(ctx context.Context, sessionID string) {
	removed, err := f.local.DeleteSession(ctx, sessionID)
	if err != nil {
		slog.Warn("local_index_release_failed", "session_id", sessionID, "error", err)
		return
	}
	slog.Debug("local_index_released", "session_id", sessionID, "chunks", removed)
}

func (f *Fallback) observe(backend string, hits int) {
	if f.observer != nil {
		f.observer.RecordRetrieval(backend, hits)
	}
}
