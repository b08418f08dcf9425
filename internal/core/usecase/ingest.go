package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/core/ports"
)

// FormatChecker reports whether a file can be extracted.
type FormatChecker interface {
	Supports(filename string) bool
}

type UploadDocumentUseCase struct {
	storage ports.ObjectStorage
	formats FormatChecker
}

func NewUploadDocumentUseCase(storage ports.ObjectStorage, formats FormatChecker) *UploadDocumentUseCase {
	return &UploadDocumentUseCase{storage: storage, formats: formats}
}

// Upload stores a source document and returns its storage key, to be referenced
// when the session is created.
func (uc *UploadDocumentUseCase) Upload(ctx context.Context, filename string, body io.Reader) (string, error) {
	if uc.formats != nil && !uc.formats.Supports(filename) {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "upload document", fmt.Errorf("file %q", filename))
	}
	storageKey := fmt.Sprintf("uploads/%s_%s", uuid.NewString(), sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return "", fmt.Errorf("save to object storage: %w", err)
	}
	slog.Info("document_uploaded", "storage_key", storageKey, "filename", filename)
	return storageKey, nil
}

type EnqueueAnalysisUseCase struct {
	sessions ports.SessionStore
	queue    ports.AnalysisQueue
}

func NewEnqueueAnalysisUseCase(sessions ports.SessionStore, queue ports.AnalysisQueue) *EnqueueAnalysisUseCase {
	return &EnqueueAnalysisUseCase{sessions: sessions, queue: queue}
}

// Enqueue checks the session exists, assigns a job id when the request has
// none and publishes the request for the worker.
func (uc *EnqueueAnalysisUseCase) Enqueue(ctx context.Context, req domain.RunRequest) (domain.RunRequest, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return req, domain.WrapError(domain.ErrInvalidInput, "enqueue analysis", fmt.Errorf("session id is required"))
	}
	if _, err := uc.sessions.GetByID(ctx, req.SessionID); err != nil {
		return req, err
	}
	if req.JobID == "" {
		req.JobID = NewJobID()
	}
	req.RequestedAt = time.Now().UTC()
	if err := uc.queue.PublishAnalysisRequested(ctx, req); err != nil {
		return req, fmt.Errorf("publish analysis request: %w", err)
	}
	slog.Info("analysis_enqueued", "session_id", req.SessionID, "job_id", req.JobID)
	return req, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
