package ports

import (
	"context"
	"io"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

// ComplianceAnalyzer is the inbound contract for running analyses.
type ComplianceAnalyzer interface {
	Run(ctx context.Context, req domain.RunRequest) (domain.RunOutcome, error)
	RunStream(ctx context.Context, req domain.RunRequest) <-chan domain.Event
	SuggestStandards(ctx context.Context, sessionID string) ([]string, error)
}

// SessionService is the inbound contract for the session surface driving the pipeline.
type SessionService interface {
	Create(ctx context.Context, input domain.NewSession) (*domain.Session, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	AppendMessage(ctx context.Context, id string, role domain.MessageRole, content string) error
	ClearIndex(ctx context.Context, id string) (int, error)
}

// AnalysisEnqueuer hands analysis requests to the worker queue.
type AnalysisEnqueuer interface {
	Enqueue(ctx context.Context, req domain.RunRequest) (domain.RunRequest, error)
}

// DocumentUploader stores an uploaded source document and returns its storage key.
type DocumentUploader interface {
	Upload(ctx context.Context, filename string, body io.Reader) (string, error)
}
