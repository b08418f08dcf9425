package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/core/ports"
)

const (
	DefaultBatchSize   = 5
	DefaultContextTopK = 5
)

type EngineConfig struct {
	BatchSize   int
	TopK        int
	Concurrency int
	Temperature float64
	MaxTokens   int
}

// ProgressTracker receives per-question lifecycle notifications while a run
// is in flight. Implementations must be safe for concurrent use.
type ProgressTracker interface {
	BatchStarted(ctx context.Context, questionIDs []string)
	QuestionResolved(ctx context.Context, result domain.AnalysisResult)
}

// AnalysisObserver records engine-level measurements.
type AnalysisObserver interface {
	ObserveBatch(outcome string, questions int, elapsed time.Duration)
	ObserveContext(found bool)
}

type AnalysisRequest struct {
	Questions []domain.Question
	Document  domain.DocumentRef
	// Completed holds results of an interrupted job; their questions are not
	// sent to the model again.
	Completed []domain.AnalysisResult
	Tracker   ProgressTracker
}

type AnalysisEngine struct {
	llm      ports.LLMClient
	search   ports.SearchIndex
	cfg      EngineConfig
	observer AnalysisObserver
}

func NewAnalysisEngine(llm ports.LLMClient, search ports.SearchIndex, cfg EngineConfig, observer AnalysisObserver) *AnalysisEngine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultContextTopK
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = domain.DefaultMaxTokens
	}
	return &AnalysisEngine{llm: llm, search: search, cfg: cfg, observer: observer}
}

// Analyze runs the questions to completion and returns every result in
// question order. Only context cancellation is reported as an error; model
// failures surface as ERROR results.
func (e *AnalysisEngine) Analyze(ctx context.Context, req AnalysisRequest) ([]domain.AnalysisResult, error) {
	var results []domain.AnalysisResult
	completed := false
	for ev := range e.AnalyzeStream(ctx, req) {
		if ev.Type != domain.EventComplete {
			continue
		}
		if payload, ok := ev.Data.(domain.CompletePayload); ok {
			results = payload.Results
			completed = true
		}
	}
	if completed {
		return results, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("analysis stream ended without completion")
}

// AnalyzeStream emits progress and result events while the run advances and a
// final complete event. The channel is closed when the run ends; cancelling
// ctx abandons the run without a complete event.
func (e *AnalysisEngine) AnalyzeStream(ctx context.Context, req AnalysisRequest) <-chan domain.Event {
	out := make(chan domain.Event, 16)
	go func() {
		defer close(out)
		e.run(ctx, req, func(ev domain.Event) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out
}

type emitFunc func(domain.Event) bool

type runState struct {
	req       AnalysisRequest
	completed map[string]domain.AnalysisResult
	progress  domain.ProgressPayload
	emit      emitFunc
}

func (s *runState) emitProgress(phase domain.AnalysisPhase) bool {
	s.progress.Phase = phase
	s.progress.ComputePercentage()
	snapshot := s.progress
	snapshot.Errors = append([]string{}, s.progress.Errors...)
	return s.emit(domain.Event{Type: domain.EventProgress, Data: snapshot})
}

func (e *AnalysisEngine) run(ctx context.Context, req AnalysisRequest, emit emitFunc) {
	questions := assignQuestionIDs(req.Questions)
	state := &runState{
		req:       req,
		completed: make(map[string]domain.AnalysisResult, len(req.Completed)),
		progress:  domain.ProgressPayload{TotalQuestions: len(questions), Errors: []string{}},
		emit:      emit,
	}
	for _, r := range req.Completed {
		state.completed[r.QuestionID] = r
	}
	for _, q := range questions {
		if _, ok := state.completed[q.ID]; ok {
			state.progress.CompletedQuestions++
		}
	}

	if !state.emitProgress(domain.PhasePreparing) {
		return
	}

	first, followups := splitPhases(questions)
	if !state.emitProgress(domain.PhaseSequence1) {
		return
	}
	firstResults, ok := e.runPhase(ctx, state, first, 1)
	if !ok {
		return
	}

	byID := make(map[string]domain.AnalysisResult, len(firstResults))
	for _, r := range firstResults {
		byID[r.QuestionID] = r
	}
	all := firstResults

	if len(followups) > 0 {
		if !state.emitProgress(domain.PhaseSequence2) {
			return
		}
		pending := triggeredFollowups(followups, byID)
		secondResults, ok := e.runPhase(ctx, state, pending, 2)
		if !ok {
			return
		}
		all = append(all, secondResults...)
	}

	slog.Info("analysis_engine_completed",
		"session_id", req.Document.SessionID,
		"results", len(all),
		"resumed", len(state.completed),
		"errors", len(state.progress.Errors),
	)
	emit(domain.Event{Type: domain.EventComplete, Data: completePayload(all, len(state.progress.Errors))})
}

// runPhase analyzes the questions of one sequence and returns their results in
// question order, reusing results completed by an earlier attempt.
func (e *AnalysisEngine) runPhase(ctx context.Context, state *runState, questions []domain.Question, sequence int) ([]domain.AnalysisResult, bool) {
	dispatch := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if _, ok := state.completed[q.ID]; !ok {
			dispatch = append(dispatch, q)
		}
	}

	resolved := make(map[string]domain.AnalysisResult, len(dispatch))
	batches := splitBatches(dispatch, e.cfg.BatchSize)
	ok := e.processBatches(ctx, state.req, batches, sequence, func(batch []domain.Question, results []domain.AnalysisResult) bool {
		if len(batch) > 0 {
			state.progress.CurrentStandard = batch[0].Section
		}
		for _, r := range results {
			if state.req.Tracker != nil {
				state.req.Tracker.QuestionResolved(ctx, r)
			}
			resolved[r.QuestionID] = r
			state.progress.CompletedQuestions++
			state.progress.CurrentQuestion = r.Question
			if r.Status == domain.StatusError && r.Error != "" {
				state.progress.Errors = append(state.progress.Errors, r.QuestionID+": "+r.Error)
			}
			if !state.emit(domain.ResultEvent(r)) {
				return false
			}
			if !state.emitProgress(state.progress.Phase) {
				return false
			}
		}
		return true
	})
	if !ok {
		return nil, false
	}

	out := make([]domain.AnalysisResult, 0, len(questions))
	for _, q := range questions {
		if r, ok := state.completed[q.ID]; ok {
			out = append(out, r)
			continue
		}
		if r, ok := resolved[q.ID]; ok {
			out = append(out, r)
		}
	}
	return out, true
}

type batchSlot struct {
	results []domain.AnalysisResult
	done    chan struct{}
}

// processBatches runs up to cfg.Concurrency batches at once and hands their
// results to onBatch strictly in batch order.
func (e *AnalysisEngine) processBatches(
	ctx context.Context,
	req AnalysisRequest,
	batches [][]domain.Question,
	sequence int,
	onBatch func([]domain.Question, []domain.AnalysisResult) bool,
) bool {
	slots := make([]*batchSlot, len(batches))
	for i := range slots {
		slots[i] = &batchSlot{done: make(chan struct{})}
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	go func() {
		for i, batch := range batches {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				slots[i].results = e.analyzeBatch(ctx, req, batch, sequence)
				close(slots[i].done)
				return nil
			})
		}
		_ = g.Wait()
	}()

	for i, slot := range slots {
		select {
		case <-slot.done:
		case <-ctx.Done():
			return false
		}
		if ctx.Err() != nil {
			return false
		}
		if !onBatch(batches[i], slot.results) {
			return false
		}
	}
	return true
}

func (e *AnalysisEngine) analyzeBatch(ctx context.Context, req AnalysisRequest, batch []domain.Question, sequence int) []domain.AnalysisResult {
	if req.Tracker != nil {
		ids := make([]string, 0, len(batch))
		for _, q := range batch {
			ids = append(ids, q.ID)
		}
		req.Tracker.BatchStarted(ctx, ids)
	}

	prompts := make([]promptQuestion, 0, len(batch))
	for _, q := range batch {
		prompts = append(prompts, promptQuestion{id: q.ID, question: q, context: e.retrieveContext(ctx, req.Document, q)})
	}

	start := time.Now()
	completion, err := e.llm.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: analysisSystemPrompt,
		UserPrompt:   buildBatchPrompt(prompts),
		Temperature:  e.cfg.Temperature,
		MaxTokens:    e.cfg.MaxTokens,
	})
	elapsed := time.Since(start)

	results := make([]domain.AnalysisResult, 0, len(batch))
	if err != nil {
		slog.Error("analysis_batch_failed",
			"session_id", req.Document.SessionID,
			"sequence", sequence,
			"questions", len(batch),
			"error", err,
		)
		e.observeBatch("error", len(batch), elapsed)
		for _, pq := range prompts {
			r := domain.NewResult(pq.question, sequence)
			r.Status = domain.StatusError
			r.Confidence = 0
			r.Error = err.Error()
			r.AnalysisTimeMS = elapsed.Milliseconds()
			r.ContextUsed = nonNil(pq.context)
			results = append(results, r)
		}
		return results
	}

	verdicts := indexVerdicts(ParseAnalysisResponse(completion.Content))
	perQuestion := elapsed.Milliseconds() / int64(len(batch))
	for _, pq := range prompts {
		var r domain.AnalysisResult
		v, ok := verdicts[pq.id]
		if !ok {
			slog.Warn("analysis_result_missing", "session_id", req.Document.SessionID, "question_id", pq.id)
			r = missingResult(pq.question, sequence, pq.context)
		} else {
			v = Validate(v, len(pq.context) > 0)
			if _, statusErr := v.ComplianceStatus(); statusErr != nil {
				slog.Warn("analysis_unknown_status", "question_id", pq.id, "status", v.Status)
				v = flagUnknownStatus(v)
			}
			r = applyVerdict(pq.question, sequence, v, pq.context)
		}
		r.AnalysisTimeMS = perQuestion
		results = append(results, r)
	}
	e.observeBatch("ok", len(batch), elapsed)
	return results
}

func (e *AnalysisEngine) retrieveContext(ctx context.Context, ref domain.DocumentRef, q domain.Question) []string {
	filter := domain.SearchFilter{
		DocumentHash: ref.DocumentHash,
		SessionID:    ref.SessionID,
		Taxonomies:   domain.RouteContext(q.ContextRequired),
	}
	hits, err := e.search.Search(ctx, q.Question, filter, e.cfg.TopK)
	if err != nil {
		slog.Warn("context_search_failed", "session_id", ref.SessionID, "question_id", q.ID, "error", err)
		hits = nil
	}
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Content)
	}
	if e.observer != nil {
		e.observer.ObserveContext(len(texts) > 0)
	}
	return texts
}

func (e *AnalysisEngine) observeBatch(outcome string, questions int, elapsed time.Duration) {
	if e.observer != nil {
		e.observer.ObserveBatch(outcome, questions, elapsed)
	}
}

func assignQuestionIDs(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.ID = questionKey(q, i+1)
		out[i] = q
	}
	return out
}
