package search

import (
	"crypto/md5"
	"encoding/hex"
	"unicode/utf8"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const dedupPrefixBytes = 200

// ContentKey fingerprints the first 200 bytes of a chunk; hits sharing a key
// repeat the same passage.
func ContentKey(content string) string {
	prefix := content
	if len(prefix) > dedupPrefixBytes {
		cut := dedupPrefixBytes
		for cut > 0 && !utf8.RuneStart(prefix[cut]) {
			cut--
		}
		prefix = prefix[:cut]
	}
	sum := md5.Sum([]byte(prefix))
	return hex.EncodeToString(sum[:])
}

// Dedup keeps the first hit per content key and at most limit hits overall.
func Dedup(hits []domain.SearchHit, limit int) []domain.SearchHit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]domain.SearchHit, 0, len(hits))
	for _, hit := range hits {
		key := ContentKey(hit.Content)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, hit)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
