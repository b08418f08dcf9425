package chunking

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const (
	DefaultChunkSize    = 4000
	DefaultOverlap      = 400
	DefaultMinChunkSize = 200

	splitSearchWindow = 500
	tableProbeRunes   = 50
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Splitter cuts extracted text into bounded chunks on paragraph, sentence or
// word boundaries. Sizes are measured in bytes and cuts never split a rune.
type Splitter struct {
	ChunkSize    int
	Overlap      int
	MinChunkSize int
}

func NewSplitter(chunkSize, overlap, minChunkSize int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	if minChunkSize < 0 {
		minChunkSize = 0
	}
	if minChunkSize > chunkSize {
		minChunkSize = chunkSize
	}
	return &Splitter{
		ChunkSize:    chunkSize,
		Overlap:      overlap,
		MinChunkSize: minChunkSize,
	}
}

// Chunk splits text into taxonomy-tagged chunks. Chunk ids are derived from
// documentID; the output is deterministic for a given input and configuration.
func (s *Splitter) Chunk(text, documentID string, tables ...domain.ExtractedTable) []domain.DocumentChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	b := &chunkBuilder{documentID: documentID, tables: tables}
	current := ""
	// fresh is the part of current that did not come from an overlap copy.
	fresh := ""

	for _, para := range splitParagraphs(text) {
		if current != "" && len(current)+len(para)+2 > s.ChunkSize {
			b.add(current)
			current = joinNonEmpty(s.overlapOf(current), "\n\n", para)
			fresh = para
		} else {
			current = joinNonEmpty(current, "\n\n", para)
			fresh = joinNonEmpty(fresh, "\n\n", para)
		}

		for len(current) > s.ChunkSize {
			splitAt := s.findSplitPoint(current)
			head := strings.TrimSpace(current[:splitAt])
			if head != "" {
				b.add(head)
			}
			remainder := strings.TrimSpace(current[splitAt:])
			next := joinNonEmpty(s.overlapOf(head), " ", remainder)
			if len(next) >= len(current) {
				next = remainder
			}
			current = next
			fresh = remainder
		}
	}

	s.finish(b, strings.TrimSpace(current), strings.TrimSpace(fresh))

	slog.Debug("document_chunked", "document_id", documentID, "chunks", len(b.chunks))
	return b.chunks
}

// finish emits the trailing fragment. A fragment that only repeats overlap is
// dropped; a short one is folded into the previous chunk when it still fits.
func (s *Splitter) finish(b *chunkBuilder, fragment, fresh string) {
	if fragment == "" {
		return
	}
	if len(b.chunks) == 0 {
		b.add(fragment)
		return
	}
	if fresh == "" {
		return
	}
	if len(fragment) < s.MinChunkSize {
		last := b.chunks[len(b.chunks)-1]
		if merged := last.Content + "\n\n" + fresh; len(merged) <= s.ChunkSize {
			b.replaceLast(merged)
			return
		}
	}
	b.add(fragment)
}

// Reclassify recomputes taxonomy and table flags of an existing chunk set.
func (s *Splitter) Reclassify(chunks []domain.DocumentChunk, tables ...domain.ExtractedTable) []domain.DocumentChunk {
	out := make([]domain.DocumentChunk, len(chunks))
	for i, chunk := range chunks {
		chunk.Taxonomy = Classify(chunk.Content)
		chunk.HasTable = hasTable(chunk.Content, tables)
		out[i] = chunk
	}
	return out
}

func (s *Splitter) findSplitPoint(text string) int {
	if len(text) <= s.ChunkSize {
		return len(text)
	}
	limit := runeFloor(text, s.ChunkSize)
	if limit == 0 {
		_, size := utf8.DecodeRuneInString(text)
		return size
	}

	searchStart := runeFloor(text, max(0, limit-splitSearchWindow))
	region := text[searchStart:limit]

	if breaks := paragraphBreak.FindAllStringIndex(region, -1); len(breaks) > 0 {
		return searchStart + breaks[len(breaks)-1][1]
	}
	if idx := lastSentenceStart(region); idx > 0 {
		return searchStart + idx
	}
	if idx := strings.LastIndexByte(region, ' '); idx > 0 {
		return searchStart + idx + 1
	}
	return limit
}

// overlapOf returns the tail of text used to seed the next chunk, advanced to a
// sentence start or past the first space.
func (s *Splitter) overlapOf(text string) string {
	if text == "" || s.Overlap <= 0 {
		return ""
	}
	start := runeCeil(text, len(text)-s.Overlap)
	tail := text[start:]
	if idx := firstSentenceBreak(tail); idx >= 0 {
		tail = tail[idx:]
	} else if idx := strings.IndexByte(tail, ' '); idx > 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}

type chunkBuilder struct {
	documentID string
	tables     []domain.ExtractedTable
	chunks     []domain.DocumentChunk
}

func (b *chunkBuilder) add(content string) {
	b.chunks = append(b.chunks, b.build(content, len(b.chunks)))
}

func (b *chunkBuilder) replaceLast(content string) {
	idx := len(b.chunks) - 1
	b.chunks[idx] = b.build(content, idx)
}

func (b *chunkBuilder) build(content string, index int) domain.DocumentChunk {
	return domain.DocumentChunk{
		ID:          chunkID(b.documentID, index),
		Content:     content,
		Index:       index,
		Taxonomy:    Classify(content),
		HasTable:    hasTable(content, b.tables),
		ContentHash: ContentHash(content),
		CharCount:   utf8.RuneCountInString(content),
	}
}

func chunkID(documentID string, index int) string {
	if documentID == "" {
		return fmt.Sprintf("chunk_%d", index)
	}
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

func hasTable(content string, tables []domain.ExtractedTable) bool {
	for _, table := range tables {
		if table.Markdown == "" {
			continue
		}
		if strings.Contains(content, truncateRunes(table.Markdown, tableProbeRunes)) {
			return true
		}
	}
	return strings.Contains(content, "|") && strings.Contains(content, "---")
}

func splitParagraphs(text string) []string {
	raw := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinNonEmpty(head, sep, tail string) string {
	switch {
	case head == "":
		return tail
	case tail == "":
		return head
	default:
		return head + sep + tail
	}
}
