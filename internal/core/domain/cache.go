package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// CacheKey identifies a reusable analysis: same document bytes, framework and
// question selection.
type CacheKey struct {
	DocumentHash  string `json:"document_hash"`
	Framework     string `json:"framework"`
	QuestionsHash string `json:"questions_hash"`
}

func (k CacheKey) String() string {
	return k.DocumentHash + ":" + k.Framework + ":" + k.QuestionsHash
}

// QuestionsHash is the sha256 hex of the sorted question ids joined with "|".
func QuestionsHash(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(sum[:])
}

// AnalysisBundle is the stored outcome of one analysis run.
type AnalysisBundle struct {
	Summary             AggregateSummary `json:"summary"`
	Results             []AnalysisResult `json:"results"`
	DocumentHash        string           `json:"document_hash"`
	AnalysisTimeSeconds float64          `json:"analysis_time_seconds"`
}

type CachedAnalysis struct {
	Key            CacheKey         `json:"key"`
	Bundle         AnalysisBundle   `json:"results"`
	Metadata       DocumentMetadata `json:"result_metadata,omitempty"`
	AccessCount    int              `json:"access_count"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	CreatedAt      time.Time        `json:"created_at"`
}
