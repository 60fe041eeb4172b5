package bm25

import (
	"math"
	"sort"
	"strings"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Index is an immutable BM25 keyword index over one chunk corpus. It is built
// once per ingestion and safe for concurrent readers; corpus changes mean a
// full rebuild and pointer swap by the owner.
type Index struct {
	chunks   []domain.Chunk
	docTerms []map[string]int // term frequencies per chunk
	docLens  []int
	idf      map[string]float64
	avgLen   float64
}

// Build tokenizes every chunk by whitespace with lowercasing and precomputes
// corpus statistics. An empty corpus yields a usable index that returns no
// results.
func Build(chunks []domain.Chunk) *Index {
	idx := &Index{
		chunks:   chunks,
		docTerms: make([]map[string]int, len(chunks)),
		docLens:  make([]int, len(chunks)),
		idf:      make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for i, chunk := range chunks {
		tokens := Tokenize(chunk.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		idx.docTerms[i] = tf
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)
		for term := range tf {
			docFreq[term]++
		}
	}

	if len(chunks) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(chunks))
	}
	n := float64(len(chunks))
	for term, df := range docFreq {
		idx.idf[term] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
	}
	return idx
}

func (idx *Index) Len() int {
	return len(idx.chunks)
}

// Search scores every chunk against the query terms and returns up to k
// results in descending score order. Zero-score chunks are excluded.
func (idx *Index) Search(query string, k int) []domain.ScoredChunk {
	if len(idx.chunks) == 0 || k <= 0 {
		return nil
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	scored := make([]domain.ScoredChunk, 0, k)
	for i := range idx.chunks {
		score := idx.score(terms, i)
		if score <= 0 {
			continue
		}
		scored = append(scored, domain.ScoredChunk{
			Chunk:  idx.chunks[i],
			Score:  score,
			Origin: domain.OriginLexical,
		})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// score applies BM25: saturating term frequency with document-length
// normalization, weighted by corpus idf.
func (idx *Index) score(terms []string, doc int) float64 {
	tf := idx.docTerms[doc]
	norm := k1 * (1 - b + b*float64(idx.docLens[doc])/idx.avgLen)

	total := 0.0
	for _, term := range terms {
		freq := float64(tf[term])
		if freq == 0 {
			continue
		}
		total += idx.idf[term] * freq * (k1 + 1) / (freq + norm)
	}
	return total
}

// Tokenize splits on whitespace and lowercases, matching the query-side
// tokenization used by the reranker.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
