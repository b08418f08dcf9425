package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

type sessionStoreFake struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	statuses  []domain.SessionStatus
	metadata  domain.DocumentMetadata
	analysis  *domain.SessionAnalysis
	messages  []domain.ChatMessage
	createErr error
}

func newSessionStoreFake(sessions ...*domain.Session) *sessionStoreFake {
	f := &sessionStoreFake{sessions: map[string]*domain.Session{}}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *sessionStoreFake) Create(_ context.Context, s *domain.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copySession := *s
	f.sessions[s.ID] = &copySession
	return nil
}

func (f *sessionStoreFake) GetByID(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", errors.New(id))
	}
	copySession := *s
	return &copySession, nil
}

func (f *sessionStoreFake) UpdateStatus(_ context.Context, _ string, status domain.SessionStatus, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *sessionStoreFake) SaveMetadata(_ context.Context, _ string, metadata domain.DocumentMetadata) error {
	f.metadata = metadata
	return nil
}

func (f *sessionStoreFake) SaveAnalysis(_ context.Context, _ string, analysis domain.SessionAnalysis) error {
	f.analysis = &analysis
	return nil
}

func (f *sessionStoreFake) AppendMessage(_ context.Context, _ string, message domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

type progressStoreFake struct {
	mu        sync.Mutex
	created   []string
	marks     map[string]domain.ProgressStatus
	completed []domain.AnalysisResult
	createErr error
}

func (f *progressStoreFake) CreateJob(_ context.Context, _ string, _ string, ids []string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, ids...)
	return nil
}

func (f *progressStoreFake) MarkStatus(_ context.Context, _ string, questionID string, status domain.ProgressStatus, _ *domain.AnalysisResult, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marks == nil {
		f.marks = map[string]domain.ProgressStatus{}
	}
	f.marks[questionID] = status
	return nil
}

func (f *progressStoreFake) ListCompleted(context.Context, string) ([]domain.AnalysisResult, error) {
	return f.completed, nil
}

type cacheStoreFake struct {
	entries   map[string]domain.CachedAnalysis
	upserted  []domain.CachedAnalysis
	upsertErr error
}

func (f *cacheStoreFake) Lookup(_ context.Context, key domain.CacheKey) (*domain.CachedAnalysis, bool, error) {
	entry, ok := f.entries[key.String()]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (f *cacheStoreFake) Upsert(_ context.Context, entry domain.CachedAnalysis) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, entry)
	if f.entries != nil {
		f.entries[entry.Key.String()] = entry
	}
	return nil
}

type resultStoreFake struct {
	rows []domain.AnalysisResult
}

func (f *resultStoreFake) UpsertResults(_ context.Context, _ string, results []domain.AnalysisResult) (int, error) {
	f.rows = append(f.rows, results...)
	return len(results), nil
}

type extractorFake struct {
	texts map[string]string
	calls int
}

func (f *extractorFake) Extract(_ context.Context, key, filename string) (domain.Extraction, error) {
	f.calls++
	text := f.texts[key]
	return domain.Extraction{Filename: filename, FullText: text, Pages: []domain.ExtractedPage{{Number: 1, Content: text}}}, nil
}

type chunkerFake struct{}

func (chunkerFake) Chunk(text, documentID string, _ ...domain.ExtractedTable) []domain.DocumentChunk {
	return []domain.DocumentChunk{{ID: documentID + "_0", Content: text, Taxonomy: domain.TaxonomyNotes}}
}

type indexingSearchFake struct {
	searchFake
	indexed  []domain.DocumentRef
	released []string
}

func (f *indexingSearchFake) ReleaseLocal(_ context.Context, sessionID string) {
	f.released = append(f.released, sessionID)
}

func (f *indexingSearchFake) Index(_ context.Context, chunks []domain.DocumentChunk, ref domain.DocumentRef) (int, error) {
	f.indexed = append(f.indexed, ref)
	return len(chunks), nil
}

type catalogFake struct {
	questions []domain.Question
}

func (f *catalogFake) ListStandards() []domain.StandardInfo {
	return []domain.StandardInfo{{Key: "IFRS_15", Section: "IFRS 15", Title: "Revenue"}}
}

func (f *catalogFake) GetStandard(string) (domain.Standard, error) {
	return domain.Standard{}, domain.ErrStandardNotFound
}

func (f *catalogFake) ItemsForStandards([]string) []domain.Question {
	return f.questions
}

func (f *catalogFake) SearchItems(string) []domain.CatalogItem { return nil }

func (f *catalogFake) Summary() domain.CatalogSummary { return domain.CatalogSummary{} }

func (f *catalogFake) Reload() error { return nil }

type lockerFake struct {
	err      error
	acquired []string
	released int
}

func (f *lockerFake) Acquire(_ context.Context, key string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, key)
	return func() { f.released++ }, nil
}

type orchestratorFixture struct {
	sessions  *sessionStoreFake
	progress  *progressStoreFake
	cache     *cacheStoreFake
	results   *resultStoreFake
	extractor *extractorFake
	search    *indexingSearchFake
	catalog   *catalogFake
	locker    *lockerFake
	llm       *llmFake
	orch      *ComplianceOrchestrator
}

func newOrchestratorFixture() *orchestratorFixture {
	f := &orchestratorFixture{
		sessions: newSessionStoreFake(&domain.Session{
			ID:                      "s1",
			Framework:               "IFRS",
			FinancialStatementsFile: "fs.pdf",
			FinancialStatementsName: "fs.pdf",
			NotesFile:               "notes.pdf",
			NotesFilename:           "notes.pdf",
			SelectedStandards:       []string{"IFRS 15"},
		}),
		progress:  &progressStoreFake{},
		cache:     &cacheStoreFake{entries: map[string]domain.CachedAnalysis{}},
		results:   &resultStoreFake{},
		extractor: &extractorFake{texts: map[string]string{"fs.pdf": "Statement of financial position", "notes.pdf": "Note 4 Revenue"}},
		search:    &indexingSearchFake{searchFake: searchFake{hits: contextHits()}},
		catalog:   &catalogFake{questions: scenarioQuestions()},
		locker:    &lockerFake{},
		llm: &llmFake{
			respond:  answerWith(map[string]string{"Q1": "YES", "Q2": "NO", "Q3": "YES"}),
			jsonResp: map[string]any{"company_name": "Acme plc"},
		},
	}
	storage := &storageFake{objects: map[string][]byte{"fs.pdf": []byte("fs-bytes"), "notes.pdf": []byte("notes-bytes")}}
	f.orch = NewComplianceOrchestrator(OrchestratorDeps{
		Sessions:  f.sessions,
		Progress:  f.progress,
		Cache:     f.cache,
		Results:   f.results,
		Storage:   storage,
		Extractor: f.extractor,
		Chunker:   chunkerFake{},
		Search:    f.search,
		Catalog:   f.catalog,
		Locker:    f.locker,
		Engine:    NewAnalysisEngine(f.llm, f.search, EngineConfig{}, nil),
	})
	f.orch.newJobID = func() string { return "job_000000000001" }
	return f
}

func (f *orchestratorFixture) cacheKey() domain.CacheKey {
	sum := sha256.Sum256([]byte("fs-bytesnotes-bytes"))
	return domain.CacheKey{
		DocumentHash:  hex.EncodeToString(sum[:]),
		Framework:     "IFRS",
		QuestionsHash: domain.QuestionsHash([]string{"Q1", "Q2", "Q3"}),
	}
}

func TestRunEndToEnd(t *testing.T) {
	f := newOrchestratorFixture()

	outcome, err := f.orch.Run(context.Background(), domain.RunRequest{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.JobID != "job_000000000001" || outcome.Status != domain.SessionCompleted || outcome.CacheHit {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.TotalResults != 2 || outcome.ComplianceScore != 50 {
		t.Fatalf("unexpected totals: results=%d score=%d", outcome.TotalResults, outcome.ComplianceScore)
	}
	if f.sessions.statuses[0] != domain.SessionAnalyzing {
		t.Fatalf("expected analyzing status first, got %v", f.sessions.statuses)
	}
	if f.sessions.analysis == nil || f.sessions.analysis.CompliantCount != 1 || f.sessions.analysis.TotalQuestions != 3 {
		t.Fatalf("unexpected saved analysis: %+v", f.sessions.analysis)
	}
	if f.sessions.metadata.CompanyName() != "Acme plc" {
		t.Fatalf("metadata not saved: %+v", f.sessions.metadata)
	}
	if len(f.results.rows) != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", len(f.results.rows))
	}
	if len(f.cache.upserted) != 1 || f.cache.upserted[0].Key != f.cacheKey() {
		t.Fatalf("unexpected cache writes: %+v", f.cache.upserted)
	}
	if len(f.search.indexed) != 2 || f.search.indexed[0].DocumentHash != f.cacheKey().DocumentHash {
		t.Fatalf("unexpected index calls: %+v", f.search.indexed)
	}
	if f.progress.marks["Q1"] != domain.ProgressCompleted || f.progress.marks["Q2"] != domain.ProgressCompleted {
		t.Fatalf("unexpected progress marks: %+v", f.progress.marks)
	}
	if len(f.locker.acquired) != 1 || f.locker.released != 1 {
		t.Fatalf("lock not acquired and released once: %+v", f.locker)
	}
	if len(f.sessions.messages) != 2 || !strings.HasPrefix(f.sessions.messages[1].Content, "Analysis complete! Score: 50%") {
		t.Fatalf("unexpected messages: %+v", f.sessions.messages)
	}
}

func TestRunStreamCacheHit(t *testing.T) {
	f := newOrchestratorFixture()
	cachedResult := domain.NewResult(scenarioQuestions()[0], 1)
	cachedResult.Status = domain.StatusCompliant
	f.cache.entries[f.cacheKey().String()] = domain.CachedAnalysis{
		Key:    f.cacheKey(),
		Bundle: domain.AnalysisBundle{Results: []domain.AnalysisResult{cachedResult}},
	}

	events := collect(f.orch.RunStream(context.Background(), domain.RunRequest{SessionID: "s1"}))

	if f.llm.calls() != 0 || f.extractor.calls != 0 {
		t.Fatalf("cache hit must skip extraction and llm: llm=%d extract=%d", f.llm.calls(), f.extractor.calls)
	}
	first := events[0].Data.(domain.StatusPayload)
	if first.Status != domain.StageCacheHit {
		t.Fatalf("expected cache_hit status first, got %s", first.Status)
	}
	if events[1].Type != domain.EventResult {
		t.Fatalf("expected replayed result, got %s", events[1].Type)
	}
	complete := events[len(events)-1].Data.(domain.CompletePayload)
	if !complete.CacheHit || complete.Total != 1 || complete.ComplianceScore != 100 {
		t.Fatalf("unexpected complete payload: %+v", complete)
	}
	if f.sessions.analysis == nil || f.sessions.analysis.ComplianceScore != 100 {
		t.Fatalf("cached results not stored on the session")
	}
}

func TestRunTwiceOnIdenticalInputReplaysFirstResults(t *testing.T) {
	f := newOrchestratorFixture()

	firstEvents := collect(f.orch.RunStream(context.Background(), domain.RunRequest{SessionID: "s1"}))
	first := firstEvents[len(firstEvents)-1].Data.(domain.CompletePayload)
	if first.CacheHit {
		t.Fatalf("first run must not be a cache hit")
	}
	llmCalls, extractCalls := f.llm.calls(), f.extractor.calls

	secondEvents := collect(f.orch.RunStream(context.Background(), domain.RunRequest{SessionID: "s1"}))
	second := secondEvents[len(secondEvents)-1].Data.(domain.CompletePayload)
	if !second.CacheHit {
		t.Fatalf("second run must be served from cache")
	}
	if f.llm.calls() != llmCalls || f.extractor.calls != extractCalls {
		t.Fatalf("second run called llm=%d extract=%d times", f.llm.calls()-llmCalls, f.extractor.calls-extractCalls)
	}
	if !reflect.DeepEqual(first.Results, second.Results) {
		t.Fatalf("results differ:\nfirst:  %+v\nsecond: %+v", first.Results, second.Results)
	}
	if first.ComplianceScore != second.ComplianceScore || first.Total != second.Total {
		t.Fatalf("summaries differ: %+v vs %+v", first, second)
	}
	if len(f.locker.acquired) != 1 {
		t.Fatalf("cache hit must not take the lock, acquired %d times", len(f.locker.acquired))
	}
}

func TestRunNoQuestionsFailsSession(t *testing.T) {
	f := newOrchestratorFixture()
	f.catalog.questions = nil

	_, err := f.orch.Run(context.Background(), domain.RunRequest{SessionID: "s1"})
	if !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
	last := f.sessions.statuses[len(f.sessions.statuses)-1]
	if last != domain.SessionFailed {
		t.Fatalf("expected failed status, got %s", last)
	}
	if len(f.sessions.messages) != 1 || !strings.HasPrefix(f.sessions.messages[0].Content, "Analysis failed:") {
		t.Fatalf("unexpected messages: %+v", f.sessions.messages)
	}
}

func TestRunStreamEmptyTextEmitsError(t *testing.T) {
	f := newOrchestratorFixture()
	f.extractor.texts = map[string]string{}

	events := collect(f.orch.RunStream(context.Background(), domain.RunRequest{SessionID: "s1"}))
	last := events[len(events)-1]
	if last.Type != domain.EventError {
		t.Fatalf("expected terminal error event, got %s", last.Type)
	}
	if !strings.Contains(last.Data.(domain.ErrorPayload).Message, domain.ErrNoExtractableText.Error()) {
		t.Fatalf("unexpected error message: %+v", last.Data)
	}
}

func TestRunBusyLockDoesNotFailSession(t *testing.T) {
	f := newOrchestratorFixture()
	f.locker.err = domain.WrapError(domain.ErrAnalysisInProgress, "acquire lock", errors.New("timeout"))

	_, err := f.orch.Run(context.Background(), domain.RunRequest{SessionID: "s1"})
	if !errors.Is(err, domain.ErrAnalysisInProgress) {
		t.Fatalf("expected ErrAnalysisInProgress, got %v", err)
	}
	for _, s := range f.sessions.statuses {
		if s == domain.SessionFailed {
			t.Fatalf("busy run must not mark the session failed")
		}
	}
}

func TestRunResumesJob(t *testing.T) {
	f := newOrchestratorFixture()
	done := domain.NewResult(scenarioQuestions()[0], 1)
	done.Status = domain.StatusCompliant
	done.Confidence = 0.9
	f.progress.completed = []domain.AnalysisResult{done}

	outcome, err := f.orch.Run(context.Background(), domain.RunRequest{SessionID: "s1", JobID: "job_abcdefabcdef"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.JobID != "job_abcdefabcdef" || outcome.TotalResults != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if f.llm.calls() != 1 {
		t.Fatalf("expected only the followup to be analyzed, got %d calls", f.llm.calls())
	}
	if _, marked := f.progress.marks["Q1"]; marked {
		t.Fatalf("resumed question must not be marked again")
	}
}

func TestRunKeysProgressForQuestionsWithoutID(t *testing.T) {
	f := newOrchestratorFixture()
	f.catalog.questions = []domain.Question{
		{Section: "IFRS 15", Question: "Is the revenue policy disclosed?"},
		{Section: "IFRS 15", Question: "Are contract balances presented?"},
	}
	f.llm.respond = answerWith(map[string]string{"q_1": "YES", "q_2": "NO"})

	if _, err := f.orch.Run(context.Background(), domain.RunRequest{SessionID: "s1"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Join(f.progress.created, ",") != "q_1,q_2" {
		t.Fatalf("unexpected progress rows: %v", f.progress.created)
	}
	if f.progress.marks["q_1"] != domain.ProgressCompleted || f.progress.marks["q_2"] != domain.ProgressCompleted {
		t.Fatalf("unexpected progress marks: %+v", f.progress.marks)
	}
}

func TestRunReleasesLocalIndexOnCompletionAndFailure(t *testing.T) {
	f := newOrchestratorFixture()
	if _, err := f.orch.Run(context.Background(), domain.RunRequest{SessionID: "s1"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(f.search.released) != 1 || f.search.released[0] != "s1" {
		t.Fatalf("expected local index released after completion, got %v", f.search.released)
	}

	failing := newOrchestratorFixture()
	failing.progress.createErr = errors.New("progress table missing")
	if _, err := failing.orch.Run(context.Background(), domain.RunRequest{SessionID: "s1"}); err == nil {
		t.Fatalf("expected run failure")
	}
	if len(failing.search.indexed) != 2 {
		t.Fatalf("expected chunks indexed before the failure, got %d", len(failing.search.indexed))
	}
	if len(failing.search.released) != 1 || failing.search.released[0] != "s1" {
		t.Fatalf("expected local index released after failure, got %v", failing.search.released)
	}
}

func TestRunUnknownSession(t *testing.T) {
	f := newOrchestratorFixture()

	_, err := f.orch.Run(context.Background(), domain.RunRequest{SessionID: "nope"})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if len(f.sessions.statuses) != 0 {
		t.Fatalf("unknown session must not be updated")
	}
}

func TestRunSwallowsCacheWriteFailure(t *testing.T) {
	f := newOrchestratorFixture()
	f.cache.upsertErr = errors.New("cache table locked")

	if _, err := f.orch.Run(context.Background(), domain.RunRequest{SessionID: "s1"}); err != nil {
		t.Fatalf("cache write failure must not fail the run: %v", err)
	}
}

func TestOrchestratorSuggestStandards(t *testing.T) {
	f := newOrchestratorFixture()
	f.llm.jsonResp = map[string]any{"standards": []any{"IFRS 15"}}

	got, err := f.orch.SuggestStandards(context.Background(), "s1")
	if err != nil {
		t.Fatalf("SuggestStandards() error = %v", err)
	}
	if len(got) != 1 || got[0] != "IFRS 15" {
		t.Fatalf("unexpected suggestions: %v", got)
	}
}

func TestNewJobIDFormat(t *testing.T) {
	id := NewJobID()
	if !strings.HasPrefix(id, "job_") || len(id) != 16 {
		t.Fatalf("unexpected job id: %s", id)
	}
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		name    string
		outcome domain.RunOutcome
		err     error
		want    string
	}{
		{name: "completed", want: OutcomeCompleted},
		{name: "cache hit", outcome: domain.RunOutcome{CacheHit: true}, want: OutcomeCacheHit},
		{name: "cancelled", err: context.Canceled, want: OutcomeCancelled},
		{name: "busy", err: domain.WrapError(domain.ErrAnalysisInProgress, "acquire lock", errors.New("held")), want: OutcomeBusy},
		{name: "failed", err: errors.New("boom"), want: OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutcomeLabel(tt.outcome, tt.err); got != tt.want {
				t.Fatalf("OutcomeLabel() = %s, want %s", got, tt.want)
			}
		})
	}
}
