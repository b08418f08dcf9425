package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/core/ports"
)

// RunObserver records orchestrator runs.
type RunObserver interface {
	RunStarted()
	RunFinished(outcome string, elapsed time.Duration)
}

const (
	OutcomeCompleted = "completed"
	OutcomeCacheHit  = "cache_hit"
	OutcomeFailed    = "failed"
	OutcomeBusy      = "busy"
	OutcomeCancelled = "cancelled"
)

// OutcomeLabel names how a run ended.
func OutcomeLabel(outcome domain.RunOutcome, err error) string {
	switch {
	case err == nil && outcome.CacheHit:
		return OutcomeCacheHit
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.Is(err, domain.ErrAnalysisInProgress):
		return OutcomeBusy
	default:
		return OutcomeFailed
	}
}

type OrchestratorDeps struct {
	Sessions  ports.SessionStore
	Progress  ports.ProgressStore
	Cache     ports.CacheStore
	Results   ports.ResultStore
	Storage   ports.ObjectStorage
	Extractor ports.DocumentExtractor
	Chunker   ports.Chunker
	Search    ports.SearchIndex
	Catalog   ports.QuestionCatalog
	Locker    ports.AnalysisLocker
	Engine    *AnalysisEngine
	Observer  RunObserver
}

type ComplianceOrchestrator struct {
	sessions  ports.SessionStore
	progress  ports.ProgressStore
	cache     ports.CacheStore
	results   ports.ResultStore
	storage   ports.ObjectStorage
	extractor ports.DocumentExtractor
	chunker   ports.Chunker
	search    ports.SearchIndex
	catalog   ports.QuestionCatalog
	locker    ports.AnalysisLocker
	engine    *AnalysisEngine
	observer  RunObserver
	newJobID  func() string
	now       func() time.Time
}

func NewComplianceOrchestrator(deps OrchestratorDeps) *ComplianceOrchestrator {
	return &ComplianceOrchestrator{
		sessions:  deps.Sessions,
		progress:  deps.Progress,
		cache:     deps.Cache,
		results:   deps.Results,
		storage:   deps.Storage,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		search:    deps.Search,
		catalog:   deps.Catalog,
		locker:    deps.Locker,
		engine:    deps.Engine,
		observer:  deps.Observer,
		newJobID:  NewJobID,
		now:       time.Now,
	}
}

// NewJobID returns "job_" followed by 12 hex characters.
func NewJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Run executes the pipeline for a session and returns its outcome. Only fatal
// conditions are returned as errors.
func (o *ComplianceOrchestrator) Run(ctx context.Context, req domain.RunRequest) (domain.RunOutcome, error) {
	return o.execute(ctx, req, func(domain.Event) bool { return ctx.Err() == nil })
}

// RunStream executes the pipeline and streams its events. A fatal failure is
// reported as a terminal error event.
func (o *ComplianceOrchestrator) RunStream(ctx context.Context, req domain.RunRequest) <-chan domain.Event {
	out := make(chan domain.Event, 16)
	go func() {
		defer close(out)
		emit := func(ev domain.Event) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if _, err := o.execute(ctx, req, emit); err != nil && ctx.Err() == nil {
			emit(domain.ErrorEvent(err))
		}
	}()
	return out
}

// SuggestStandards asks the model which catalog standards apply to the
// session documents.
func (o *ComplianceOrchestrator) SuggestStandards(ctx context.Context, sessionID string) ([]string, error) {
	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fs, notes, err := o.extractDocuments(ctx, session)
	if err != nil {
		return nil, err
	}
	text := combineText(fs.FullText, notes.FullText)
	if text == "" {
		return nil, domain.WrapError(domain.ErrNoExtractableText, "suggest standards", errors.New("documents contain no text"))
	}
	return o.engine.SuggestStandards(ctx, text, o.catalog.ListStandards()), nil
}

type runContext struct {
	session   *domain.Session
	jobID     string
	questions []domain.Question
	key       domain.CacheKey
	started   time.Time
	emit      emitFunc
}

func (rc *runContext) status(stage domain.RunStage, message string) bool {
	return rc.emit(domain.Event{Type: domain.EventStatus, Data: domain.StatusPayload{Status: stage, Message: message, JobID: rc.jobID}})
}

func (o *ComplianceOrchestrator) execute(ctx context.Context, req domain.RunRequest, emit emitFunc) (domain.RunOutcome, error) {
	started := o.now()
	if o.observer != nil {
		o.observer.RunStarted()
	}

	outcome, session, err := o.pipeline(ctx, req, emit, started)
	elapsed := o.now().Sub(started)
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	label := OutcomeLabel(outcome, err)
	if label == OutcomeCancelled && ctx.Err() == nil {
		// An inner timeout, not a cancelled run.
		label = OutcomeFailed
	}
	o.observeRun(label, elapsed)
	switch label {
	case OutcomeCompleted, OutcomeCacheHit:
		return outcome, nil
	case OutcomeCancelled:
		slog.Warn("analysis_cancelled", "session_id", req.SessionID, "job_id", outcome.JobID)
		return outcome, err
	case OutcomeBusy:
		slog.Warn("analysis_busy", "session_id", req.SessionID, "error", err)
		return outcome, err
	}

	slog.Error("analysis_failed", "session_id", req.SessionID, "job_id", outcome.JobID, "error", err)
	if session != nil {
		o.markFailed(ctx, session, err)
	}
	return outcome, err
}

func (o *ComplianceOrchestrator) pipeline(ctx context.Context, req domain.RunRequest, emit emitFunc, started time.Time) (domain.RunOutcome, *domain.Session, error) {
	outcome := domain.RunOutcome{SessionID: req.SessionID, JobID: req.JobID}
	if strings.TrimSpace(req.SessionID) == "" {
		return outcome, nil, domain.WrapError(domain.ErrInvalidInput, "run analysis", errors.New("session id is required"))
	}

	session, err := o.sessions.GetByID(ctx, req.SessionID)
	if err != nil {
		return outcome, nil, err
	}
	if err := o.sessions.UpdateStatus(ctx, session.ID, domain.SessionAnalyzing, domain.SessionStageAnalyzing); err != nil {
		return outcome, session, fmt.Errorf("set status=analyzing: %w", err)
	}

	rc := &runContext{session: session, jobID: req.JobID, started: started, emit: emit}
	if rc.jobID == "" {
		rc.jobID = o.newJobID()
	}
	outcome.JobID = rc.jobID
	slog.Info("analysis_started", "session_id", session.ID, "job_id", rc.jobID, "standards", len(session.SelectedStandards))

	rc.questions = assignQuestionIDs(o.catalog.ItemsForStandards(session.SelectedStandards))
	if len(rc.questions) == 0 {
		return outcome, session, domain.WrapError(domain.ErrNoQuestions, "load questions", fmt.Errorf("standards %v", session.SelectedStandards))
	}

	documentHash, err := o.documentHash(ctx, session)
	if err != nil {
		return outcome, session, err
	}
	ids := make([]string, 0, len(rc.questions))
	for _, q := range rc.questions {
		ids = append(ids, q.ID)
	}
	rc.key = domain.CacheKey{
		DocumentHash:  documentHash,
		Framework:     session.EffectiveFramework(),
		QuestionsHash: domain.QuestionsHash(ids),
	}

	if cached, ok := o.lookupCache(ctx, rc.key); ok {
		res, err := o.replayCached(ctx, rc, cached)
		return res, session, err
	}

	if o.locker != nil {
		release, err := o.locker.Acquire(ctx, rc.key.String())
		if err != nil {
			return outcome, session, err
		}
		defer release()

		if cached, ok := o.lookupCache(ctx, rc.key); ok {
			res, err := o.replayCached(ctx, rc, cached)
			return res, session, err
		}
	}

	res, err := o.analyze(ctx, rc)
	return res, session, err
}

func (o *ComplianceOrchestrator) analyze(ctx context.Context, rc *runContext) (domain.RunOutcome, error) {
	session := rc.session
	outcome := domain.RunOutcome{SessionID: session.ID, JobID: rc.jobID}
	defer o.releaseLocalIndex(ctx, session.ID)

	if !rc.status(domain.StageExtracting, "Extracting document text...") {
		return outcome, ctx.Err()
	}
	fs, notes, err := o.extractDocuments(ctx, session)
	if err != nil {
		return outcome, err
	}
	combined := combineText(fs.FullText, notes.FullText)
	if combined == "" {
		return outcome, domain.WrapError(domain.ErrNoExtractableText, "extract documents", errors.New("combined document text is empty"))
	}

	if !rc.status(domain.StageChunking, "Chunking documents...") {
		return outcome, ctx.Err()
	}
	fsChunks := o.chunk(fs, session.ID+"_fs")
	notesChunks := o.chunk(notes, session.ID+"_notes")
	total := len(fsChunks) + len(notesChunks)

	if !rc.status(domain.StageIndexing, fmt.Sprintf("Indexing %d chunks...", total)) {
		return outcome, ctx.Err()
	}
	if err := o.index(ctx, rc.key.DocumentHash, session.ID, fs.Filename, fsChunks); err != nil {
		return outcome, err
	}
	if err := o.index(ctx, rc.key.DocumentHash, session.ID, notes.Filename, notesChunks); err != nil {
		return outcome, err
	}

	if !rc.status(domain.StageMetadata, "Extracting metadata...") {
		return outcome, ctx.Err()
	}
	metadata := o.engine.ExtractMetadata(ctx, combined)
	if err := o.sessions.SaveMetadata(ctx, session.ID, metadata); err != nil {
		slog.Warn("metadata_save_failed", "session_id", session.ID, "error", err)
	}
	o.appendMessage(ctx, session.ID, fmt.Sprintf(
		"Documents processed: %d chunks indexed. Company: %s. Starting compliance analysis...",
		total, metadata.CompanyName(),
	))

	ids := make([]string, 0, len(rc.questions))
	for _, q := range rc.questions {
		ids = append(ids, q.ID)
	}
	if err := o.progress.CreateJob(ctx, rc.jobID, session.ID, ids); err != nil {
		return outcome, fmt.Errorf("create progress rows: %w", err)
	}
	completed, err := o.progress.ListCompleted(ctx, rc.jobID)
	if err != nil {
		return outcome, fmt.Errorf("list completed progress: %w", err)
	}
	if len(completed) > 0 {
		slog.Info("analysis_resumed", "session_id", session.ID, "job_id", rc.jobID, "completed", len(completed))
	}

	if !rc.status(domain.StageAnalyzing, "Running compliance analysis...") {
		return outcome, ctx.Err()
	}
	tracker := &progressTracker{store: o.progress, jobID: rc.jobID}
	var results []domain.AnalysisResult
	finished := false
	for ev := range o.engine.AnalyzeStream(ctx, AnalysisRequest{
		Questions: rc.questions,
		Document:  domain.DocumentRef{SessionID: session.ID, DocumentHash: rc.key.DocumentHash},
		Completed: completed,
		Tracker:   tracker,
	}) {
		if ev.Type == domain.EventComplete {
			if payload, ok := ev.Data.(domain.CompletePayload); ok {
				results = payload.Results
				finished = true
			}
			continue
		}
		if !rc.emit(ev) {
			break
		}
	}
	if !finished {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		return outcome, errors.New("analysis stream ended without completion")
	}

	if !rc.status(domain.StageAggregating, "Aggregating results...") {
		return outcome, ctx.Err()
	}
	summary := Aggregate(results)
	bundle := domain.AnalysisBundle{
		Summary:             summary,
		Results:             results,
		DocumentHash:        rc.key.DocumentHash,
		AnalysisTimeSeconds: o.elapsedSeconds(rc.started),
	}
	if err := o.sessions.SaveAnalysis(ctx, session.ID, sessionAnalysis(bundle, len(session.SelectedStandards), len(rc.questions))); err != nil {
		slog.Warn("analysis_save_failed", "session_id", session.ID, "error", err)
	}
	if n, err := o.results.UpsertResults(ctx, session.ID, results); err != nil {
		slog.Warn("results_persist_failed", "session_id", session.ID, "error", err)
	} else {
		slog.Info("results_persisted", "session_id", session.ID, "rows", n)
	}
	if err := o.cache.Upsert(ctx, domain.CachedAnalysis{Key: rc.key, Bundle: bundle, Metadata: metadata}); err != nil {
		slog.Warn("cache_write_failed", "session_id", session.ID, "error", err)
	}
	o.appendMessage(ctx, session.ID, fmt.Sprintf(
		"Analysis complete! Score: %d%% (%d compliant, %d non-compliant, %d N/A). Time: %.1fs.",
		summary.ComplianceScore, summary.Compliant, summary.NonCompliant, summary.NotApplicable, bundle.AnalysisTimeSeconds,
	))

	slog.Info("analysis_completed",
		"session_id", session.ID,
		"job_id", rc.jobID,
		"score", summary.ComplianceScore,
		"results", len(results),
		"seconds", bundle.AnalysisTimeSeconds,
	)
	o.finish(rc, results, summary, false)
	return o.outcome(rc, bundle, false), nil
}

func (o *ComplianceOrchestrator) replayCached(ctx context.Context, rc *runContext, cached *domain.CachedAnalysis) (domain.RunOutcome, error) {
	slog.Info("analysis_cache_hit", "session_id", rc.session.ID, "job_id", rc.jobID, "key", rc.key.String())
	if !rc.status(domain.StageCacheHit, "Using cached analysis results...") {
		return domain.RunOutcome{SessionID: rc.session.ID, JobID: rc.jobID}, ctx.Err()
	}
	for _, r := range cached.Bundle.Results {
		if !rc.emit(domain.ResultEvent(r)) {
			return domain.RunOutcome{SessionID: rc.session.ID, JobID: rc.jobID}, ctx.Err()
		}
	}

	bundle := cached.Bundle
	summary := Aggregate(bundle.Results)
	bundle.Summary = summary
	if err := o.sessions.SaveAnalysis(ctx, rc.session.ID, sessionAnalysis(bundle, len(rc.session.SelectedStandards), len(rc.questions))); err != nil {
		slog.Warn("analysis_save_failed", "session_id", rc.session.ID, "error", err)
	}
	o.appendMessage(ctx, rc.session.ID, fmt.Sprintf(
		"Analysis complete! Score: %d%% (%d compliant, %d non-compliant, %d N/A). Loaded from cache.",
		summary.ComplianceScore, summary.Compliant, summary.NonCompliant, summary.NotApplicable,
	))
	o.finish(rc, bundle.Results, summary, true)
	return o.outcome(rc, bundle, true), nil
}

func (o *ComplianceOrchestrator) finish(rc *runContext, results []domain.AnalysisResult, summary domain.AggregateSummary, cacheHit bool) {
	rc.status(domain.StageCompleted, "Analysis complete")
	rc.emit(domain.Event{Type: domain.EventComplete, Data: domain.CompletePayload{
		Total:           summary.Total,
		Compliant:       summary.Compliant,
		NonCompliant:    summary.NonCompliant,
		NotApplicable:   summary.NotApplicable,
		Errors:          summary.Errors,
		ComplianceScore: summary.ComplianceScore,
		Results:         results,
		CacheHit:        cacheHit,
		JobID:           rc.jobID,
	}})
}

func (o *ComplianceOrchestrator) outcome(rc *runContext, bundle domain.AnalysisBundle, cacheHit bool) domain.RunOutcome {
	return domain.RunOutcome{
		SessionID:           rc.session.ID,
		JobID:               rc.jobID,
		Status:              domain.SessionCompleted,
		ComplianceScore:     bundle.Summary.ComplianceScore,
		Summary:             bundle.Summary,
		TotalResults:        len(bundle.Results),
		AnalysisTimeSeconds: o.elapsedSeconds(rc.started),
		CacheHit:            cacheHit,
	}
}

func (o *ComplianceOrchestrator) lookupCache(ctx context.Context, key domain.CacheKey) (*domain.CachedAnalysis, bool) {
	entry, ok, err := o.cache.Lookup(ctx, key)
	if err != nil {
		slog.Warn("cache_lookup_failed", "key", key.String(), "error", err)
		return nil, false
	}
	if !ok || entry == nil {
		return nil, false
	}
	return entry, true
}

// documentHash digests the raw financial statements bytes followed by the notes bytes.
func (o *ComplianceOrchestrator) documentHash(ctx context.Context, session *domain.Session) (string, error) {
	if session.FinancialStatementsFile == "" && session.NotesFile == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "hash documents", errors.New("session has no uploaded documents"))
	}
	h := sha256.New()
	for _, key := range []string{session.FinancialStatementsFile, session.NotesFile} {
		if key == "" {
			continue
		}
		if err := o.copyObject(ctx, h, key); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (o *ComplianceOrchestrator) copyObject(ctx context.Context, dst io.Writer, key string) error {
	rc, err := o.storage.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("open document %s: %w", key, err)
	}
	defer rc.Close()
	if _, err := io.Copy(dst, rc); err != nil {
		return fmt.Errorf("read document %s: %w", key, err)
	}
	return nil
}

func (o *ComplianceOrchestrator) extractDocuments(ctx context.Context, session *domain.Session) (domain.Extraction, domain.Extraction, error) {
	var fs, notes domain.Extraction
	var err error
	if session.FinancialStatementsFile != "" {
		fs, err = o.extractor.Extract(ctx, session.FinancialStatementsFile, session.FinancialStatementsName)
		if err != nil {
			return fs, notes, fmt.Errorf("extract financial statements: %w", err)
		}
	}
	if session.NotesFile != "" {
		notes, err = o.extractor.Extract(ctx, session.NotesFile, session.NotesFilename)
		if err != nil {
			return fs, notes, fmt.Errorf("extract notes: %w", err)
		}
	}
	return fs, notes, nil
}

func (o *ComplianceOrchestrator) chunk(extraction domain.Extraction, documentID string) []domain.DocumentChunk {
	if strings.TrimSpace(extraction.FullText) == "" {
		return nil
	}
	return o.chunker.Chunk(extraction.FullText, documentID, extraction.Tables...)
}

func (o *ComplianceOrchestrator) index(ctx context.Context, documentHash, sessionID, sourceFile string, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	n, err := o.search.Index(ctx, chunks, domain.DocumentRef{SessionID: sessionID, DocumentHash: documentHash, SourceFile: sourceFile})
	if err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	slog.Info("chunks_indexed", "session_id", sessionID, "source_file", sourceFile, "chunks", n)
	return nil
}

// localIndexReleaser is implemented by search indexes that keep a per-process
// copy of indexed chunks.
type localIndexReleaser interface {
	ReleaseLocal(ctx context.Context, sessionID string)
}

// releaseLocalIndex drops the run's in-process chunks once the run is over,
// whether it completed or failed.
func (o *ComplianceOrchestrator) releaseLocalIndex(ctx context.Context, sessionID string) {
	if r, ok := o.search.(localIndexReleaser); ok {
		r.ReleaseLocal(context.WithoutCancel(ctx), sessionID)
	}
}

func (o *ComplianceOrchestrator) markFailed(ctx context.Context, session *domain.Session, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := o.sessions.UpdateStatus(ctx, session.ID, domain.SessionFailed, domain.SessionStageAnalyzing); err != nil {
		slog.Error("mark_failed_status_failed", "session_id", session.ID, "error", err)
	}
	o.appendMessage(ctx, session.ID, fmt.Sprintf("Analysis failed: %s. Please try again or contact support.", cause))
}

func (o *ComplianceOrchestrator) appendMessage(ctx context.Context, sessionID, content string) {
	msg := domain.ChatMessage{Role: domain.RoleSystem, Content: content, Timestamp: o.now().UTC()}
	if err := o.sessions.AppendMessage(ctx, sessionID, msg); err != nil {
		slog.Warn("chat_message_append_failed", "session_id", sessionID, "error", err)
	}
}

func (o *ComplianceOrchestrator) elapsedSeconds(started time.Time) float64 {
	return math.Round(o.now().Sub(started).Seconds()*10) / 10
}

func (o *ComplianceOrchestrator) observeRun(outcome string, elapsed time.Duration) {
	if o.observer != nil {
		o.observer.RunFinished(outcome, elapsed)
	}
}

func sessionAnalysis(bundle domain.AnalysisBundle, standards, questions int) domain.SessionAnalysis {
	return domain.SessionAnalysis{
		Bundle:             bundle,
		ComplianceScore:    bundle.Summary.ComplianceScore,
		CompliantCount:     bundle.Summary.Compliant,
		NonCompliantCount:  bundle.Summary.NonCompliant,
		NotApplicableCount: bundle.Summary.NotApplicable,
		TotalStandards:     standards,
		TotalQuestions:     questions,
	}
}

func combineText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// progressTracker mirrors engine progress into durable job rows. Write
// failures are logged; the run continues.
type progressTracker struct {
	store ports.ProgressStore
	jobID string
}

func (t *progressTracker) BatchStarted(ctx context.Context, questionIDs []string) {
	for _, id := range questionIDs {
		if err := t.store.MarkStatus(ctx, t.jobID, id, domain.ProgressInProgress, nil, ""); err != nil {
			slog.Warn("progress_update_failed", "job_id", t.jobID, "question_id", id, "error", err)
		}
	}
}

func (t *progressTracker) QuestionResolved(ctx context.Context, result domain.AnalysisResult) {
	status := domain.ProgressCompleted
	if result.Failed() {
		status = domain.ProgressFailed
	}
	r := result
	if err := t.store.MarkStatus(ctx, t.jobID, result.QuestionID, status, &r, result.Error); err != nil {
		slog.Warn("progress_update_failed", "job_id", t.jobID, "question_id", result.QuestionID, "error", err)
	}
}
