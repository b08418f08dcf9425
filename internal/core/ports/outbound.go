package ports

import (
	"context"
	"io"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

// SessionStore persists and reads analysis sessions.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, stage int) error
	SaveMetadata(ctx context.Context, id string, metadata domain.DocumentMetadata) error
	SaveAnalysis(ctx context.Context, id string, analysis domain.SessionAnalysis) error
	AppendMessage(ctx context.Context, id string, message domain.ChatMessage) error
}

// ProgressStore keeps durable per-question progress of analysis jobs.
type ProgressStore interface {
	CreateJob(ctx context.Context, jobID, sessionID string, questionIDs []string) error
	MarkStatus(ctx context.Context, jobID, questionID string, status domain.ProgressStatus, result *domain.AnalysisResult, errMessage string) error
	ListCompleted(ctx context.Context, jobID string) ([]domain.AnalysisResult, error)
}

// CacheStore stores finished analyses keyed by document, framework and question set.
// Lookup reports a miss with ok=false and a nil error.
type CacheStore interface {
	Lookup(ctx context.Context, key domain.CacheKey) (entry *domain.CachedAnalysis, ok bool, err error)
	Upsert(ctx context.Context, entry domain.CachedAnalysis) error
}

// ResultStore persists normalized per-question results.
type ResultStore interface {
	UpsertResults(ctx context.Context, sessionID string, results []domain.AnalysisResult) (int, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// AnalysisQueue publishes/consumes analysis requests.
type AnalysisQueue interface {
	PublishAnalysisRequested(ctx context.Context, req domain.RunRequest) error
	SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, domain.RunRequest) error) error
}

// DocumentExtractor converts a stored file into page-structured text.
type DocumentExtractor interface {
	Extract(ctx context.Context, storageKey, filename string) (domain.Extraction, error)
}

// Chunker splits extracted text into bounded, taxonomy-tagged chunks.
type Chunker interface {
	Chunk(text, documentID string, tables ...domain.ExtractedTable) []domain.DocumentChunk
}

// SearchIndex indexes chunks and returns the most relevant ones for a query.
// An empty hit list means no context is available.
type SearchIndex interface {
	Index(ctx context.Context, chunks []domain.DocumentChunk, ref domain.DocumentRef) (int, error)
	Search(ctx context.Context, query string, filter domain.SearchFilter, topK int) ([]domain.SearchHit, error)
	DeleteSession(ctx context.Context, sessionID string) (int, error)
}

// LLMClient runs chat completions against the configured endpoint pools.
type LLMClient interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error)
	CompleteJSON(ctx context.Context, req domain.CompletionRequest) (domain.JSONCompletion, error)
}

// QuestionCatalog serves the decision-tree catalog grouped by standard.
type QuestionCatalog interface {
	ListStandards() []domain.StandardInfo
	GetStandard(key string) (domain.Standard, error)
	ItemsForStandards(keys []string) []domain.Question
	SearchItems(query string) []domain.CatalogItem
	Summary() domain.CatalogSummary
	Reload() error
}

// AnalysisLocker serializes runs that share a cache key. Acquire fails with
// domain.ErrAnalysisInProgress when the lock is not obtained in time.
type AnalysisLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
