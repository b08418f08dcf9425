package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	bm25K1         = 1.2
	sourceBoost    = 1.5
	maxSparseTerms = 256
)

type termCounts map[uint32]float64

func (tc termCounts) add(text string, weight float64) {
	for _, token := range tokenizeAlphaNum(text) {
		tc[hashToken(token)] += weight
	}
}

// encodeSparseDocument weights chunk terms with BM25 saturation; terms of the
// source file name get a small boost.
func encodeSparseDocument(text, sourceFile string) sparseVector {
	tc := make(termCounts, 64)
	tc.add(text, 1.0)
	tc.add(sourceFile, sourceBoost)
	return tc.sparse()
}

func encodeSparseQuery(query string) sparseVector {
	tc := make(termCounts, 32)
	tc.add(query, 1.0)
	return tc.sparse()
}

// sparse keeps the maxSparseTerms heaviest terms and returns them ordered by
// index as Qdrant requires.
func (tc termCounts) sparse() sparseVector {
	if len(tc) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tc))
	for idx := range tc {
		indices = append(indices, idx)
	}
	if len(indices) > maxSparseTerms {
		sort.Slice(indices, func(i, j int) bool {
			if tc[indices[i]] != tc[indices[j]] {
				return tc[indices[i]] > tc[indices[j]]
			}
			return indices[i] < indices[j]
		})
		indices = indices[:maxSparseTerms]
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		tf := tc[idx]
		weight := (tf * (bm25K1 + 1.0)) / (tf + bm25K1)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}
	return sparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}

// tokenizeAlphaNum lowercases and splits on anything outside [a-z0-9].
func tokenizeAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

