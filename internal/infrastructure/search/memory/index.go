package memory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/search"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an the is are was were be been being
		have has had do does did will would shall should may might must can could
		of in to for with on at by from as into through during before after above
		below between under and but or nor not so yet both either neither each
		every all any few more most other some such no only own same than too very
		just because if when where how what which who whom this that these those
		it its`) {
		stopWords[w] = struct{}{}
	}
}

type entry struct {
	chunk domain.DocumentChunk
	ref   domain.DocumentRef
	lower string
}

// DefaultMaxSessions bounds how many sessions New keeps in memory.
const DefaultMaxSessions = 8

// Index is the in-process keyword index used when no remote backend is
// configured or the remote backend is failing. It holds at most maxSessions
// sessions; indexing a new one evicts the least recently indexed session.
type Index struct {
	mu          sync.RWMutex
	entries     []entry
	byID        map[string]int
	sessions    []string
	maxSessions int
}

func New() *Index {
	return NewWithLimit(DefaultMaxSessions)
}

func NewWithLimit(maxSessions int) *Index {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Index{byID: make(map[string]int), maxSessions: maxSessions}
}

func (i *Index) Index(_ context.Context, chunks []domain.DocumentChunk, ref domain.DocumentRef) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(chunks) > 0 {
		i.touchLocked(ref.SessionID)
	}
	for _, chunk := range chunks {
		e := entry{chunk: chunk, ref: ref, lower: strings.ToLower(chunk.Content)}
		key := ref.SessionID + "/" + chunk.ID
		if pos, ok := i.byID[key]; ok {
			i.entries[pos] = e
			continue
		}
		i.byID[key] = len(i.entries)
		i.entries = append(i.entries, e)
	}
	return len(chunks), nil
}

func (i *Index) Search(_ context.Context, query string, filter domain.SearchFilter, topK int) ([]domain.SearchHit, error) {
	words := queryWords(query)
	if len(words) == 0 {
		return []domain.SearchHit{}, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	type scored struct {
		score int
		e     *entry
	}
	seen := make(map[string]struct{})
	matches := make([]scored, 0)
	for idx := range i.entries {
		e := &i.entries[idx]
		if !matchesFilter(e, filter) {
			continue
		}
		key := search.ContentKey(e.lower)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		score := 0
		for _, w := range words {
			if strings.Contains(e.lower, w) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{score: score, e: e})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool { return matches[a].score > matches[b].score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}

	hits := make([]domain.SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, domain.SearchHit{
			ChunkID:    m.e.chunk.ID,
			Content:    m.e.chunk.Content,
			Score:      float64(m.score),
			Taxonomy:   m.e.chunk.Taxonomy,
			ChunkIndex: m.e.chunk.Index,
			HasTable:   m.e.chunk.HasTable,
		})
	}
	return hits, nil
}

func (i *Index) DeleteSession(_ context.Context, sessionID string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.deleteLocked(sessionID), nil
}

// touchLocked marks sessionID as most recently indexed and evicts the oldest
// sessions beyond the limit.
func (i *Index) touchLocked(sessionID string) {
	for pos, id := range i.sessions {
		if id == sessionID {
			i.sessions = append(i.sessions[:pos], i.sessions[pos+1:]...)
			break
		}
	}
	i.sessions = append(i.sessions, sessionID)
	for len(i.sessions) > i.maxSessions {
		oldest := i.sessions[0]
		removed := i.deleteLocked(oldest)
		slog.Debug("local_index_session_evicted", "session_id", oldest, "chunks", removed)
	}
}

func (i *Index) deleteLocked(sessionID string) int {
	for pos, id := range i.sessions {
		if id == sessionID {
			i.sessions = append(i.sessions[:pos], i.sessions[pos+1:]...)
			break
		}
	}

	kept := i.entries[:0]
	removed := 0
	for _, e := range i.entries {
		if e.ref.SessionID == sessionID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(i.entries[len(kept):])
	i.entries = kept
	i.byID = make(map[string]int, len(kept))
	for pos, e := range kept {
		i.byID[e.ref.SessionID+"/"+e.chunk.ID] = pos
	}
	return removed
}

// Sessions returns the number of sessions held.
func (i *Index) Sessions() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.sessions)
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// queryWords drops stop words and words of two characters or fewer, falling
// back to every word when nothing survives.
func queryWords(query string) []string {
	all := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, w := range all {
		if _, stop := stopWords[w]; stop || len(w) <= 2 {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	if len(out) > 0 {
		return out
	}
	for _, w := range all {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func matchesFilter(e *entry, filter domain.SearchFilter) bool {
	if filter.DocumentHash != "" && e.ref.DocumentHash != filter.DocumentHash {
		return false
	}
	if filter.SessionID != "" && e.ref.SessionID != filter.SessionID {
		return false
	}
	return filter.AllowsTaxonomy(e.chunk.Taxonomy)
}
