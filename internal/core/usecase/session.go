package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/core/ports"
)

type SessionUseCase struct {
	sessions ports.SessionStore
	search   ports.SearchIndex
	catalog  ports.QuestionCatalog
	now      func() time.Time
}

func NewSessionUseCase(sessions ports.SessionStore, search ports.SearchIndex, catalog ports.QuestionCatalog) *SessionUseCase {
	return &SessionUseCase{sessions: sessions, search: search, catalog: catalog, now: time.Now}
}

// Create registers a session over documents already placed in object storage.
func (uc *SessionUseCase) Create(ctx context.Context, input domain.NewSession) (*domain.Session, error) {
	if strings.TrimSpace(input.FinancialStatementsFile) == "" && strings.TrimSpace(input.NotesFile) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create session", errors.New("at least one document is required"))
	}

	standards := dedupeStandards(input.SelectedStandards)
	questions := 0
	if uc.catalog != nil {
		questions = len(uc.catalog.ItemsForStandards(standards))
	}

	now := uc.now().UTC()
	session := &domain.Session{
		ID:                      uuid.NewString(),
		ClientName:              strings.TrimSpace(input.ClientName),
		Framework:               strings.TrimSpace(input.Framework),
		Status:                  domain.SessionStandardsSelection,
		CurrentStage:            1,
		FinancialStatementsFile: input.FinancialStatementsFile,
		FinancialStatementsName: input.FinancialStatementsName,
		NotesFile:               input.NotesFile,
		NotesFilename:           input.NotesFilename,
		SelectedStandards:       standards,
		TotalStandards:          len(standards),
		TotalQuestions:          questions,
		ChatMessages:            []domain.ChatMessage{},
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if session.Framework == "" {
		session.Framework = domain.DefaultFramework
	}
	if err := uc.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("session_created", "session_id", session.ID, "standards", len(standards), "questions", questions)
	return session, nil
}

func (uc *SessionUseCase) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return uc.sessions.GetByID(ctx, id)
}

func (uc *SessionUseCase) AppendMessage(ctx context.Context, id string, role domain.MessageRole, content string) error {
	switch role {
	case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem:
	default:
		return domain.WrapError(domain.ErrInvalidInput, "append message", fmt.Errorf("unknown role %q", role))
	}
	if strings.TrimSpace(content) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "append message", errors.New("content is required"))
	}
	return uc.sessions.AppendMessage(ctx, id, domain.ChatMessage{Role: role, Content: content, Timestamp: uc.now().UTC()})
}

// ClearIndex removes every indexed chunk of the session and reports how many
// were deleted.
func (uc *SessionUseCase) ClearIndex(ctx context.Context, id string) (int, error) {
	if _, err := uc.sessions.GetByID(ctx, id); err != nil {
		return 0, err
	}
	n, err := uc.search.DeleteSession(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete session chunks: %w", err)
	}
	slog.Info("session_index_cleared", "session_id", id, "chunks", n)
	return n, nil
}

func dedupeStandards(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
