package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/getclever/docqa-assistant/internal/core/domain"
	"github.com/getclever/docqa-assistant/internal/core/ports"
)

const defaultSemanticWeight = 0.7

// Retriever merges vector-similarity and keyword search over one corpus
// snapshot. The lexical index is passed per call so an ingestion swap never
// interleaves old and new corpora within a single query.
type Retriever struct {
	vector        ports.VectorIndex
	logger        *slog.Logger
	searchTimeout time.Duration
}

func NewRetriever(vector ports.VectorIndex, logger *slog.Logger, searchTimeout time.Duration) *Retriever {
	if searchTimeout <= 0 {
		searchTimeout = 10 * time.Second
	}
	return &Retriever{
		vector:        vector,
		logger:        logger,
		searchTimeout: searchTimeout,
	}
}

// HybridRetrieve queries both indexes concurrently and fuses the result sets.
// Either side failing degrades to the other; only both failing yields an
// empty result.
func (r *Retriever) HybridRetrieve(
	ctx context.Context,
	lexical ports.LexicalIndex,
	query string,
	k int,
	semanticWeight float64,
	filter map[string]string,
) []domain.ScoredChunk {
	if k <= 0 {
		return nil
	}
	if semanticWeight < 0 || semanticWeight > 1 {
		semanticWeight = defaultSemanticWeight
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()

	var (
		wg          sync.WaitGroup
		semantic    []domain.ScoredChunk
		lexicalHits []domain.ScoredChunk
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		hits, err := r.vector.Search(searchCtx, query, k, filter)
		if err != nil {
			r.logger.Warn("vector_search_failed", "error", err)
			return
		}
		semantic = hits
	}()
	go func() {
		defer wg.Done()
		if lexical != nil {
			lexicalHits = lexical.Search(query, k)
		}
	}()
	wg.Wait()

	if len(lexicalHits) == 0 {
		if len(semantic) > k {
			semantic = semantic[:k]
		}
		return semantic
	}

	fused := fuseResults(semantic, lexicalHits, semanticWeight)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused
}

// fuseResults implements weighted rank fusion: semantic hit at rank i scores
// 1/(i+1), lexical scores are normalized by the set maximum, a chunk missing
// from one list contributes 0 for that list, and ties keep discovery order.
func fuseResults(semantic, lexical []domain.ScoredChunk, semanticWeight float64) []domain.ScoredChunk {
	type candidate struct {
		chunk    domain.Chunk
		semScore float64
		lexScore float64
	}

	order := make([]string, 0, len(semantic)+len(lexical))
	acc := make(map[string]*candidate, len(semantic)+len(lexical))

	for rank, hit := range semantic {
		c, ok := acc[hit.Chunk.ID]
		if !ok {
			c = &candidate{chunk: hit.Chunk}
			acc[hit.Chunk.ID] = c
			order = append(order, hit.Chunk.ID)
		}
		c.semScore = 1.0 / float64(rank+1)
	}

	maxLex := 0.0
	for _, hit := range lexical {
		if hit.Score > maxLex {
			maxLex = hit.Score
		}
	}
	for _, hit := range lexical {
		c, ok := acc[hit.Chunk.ID]
		if !ok {
			c = &candidate{chunk: hit.Chunk}
			acc[hit.Chunk.ID] = c
			order = append(order, hit.Chunk.ID)
		}
		if maxLex > 0 {
			c.lexScore = hit.Score / maxLex
		}
	}

	out := make([]domain.ScoredChunk, 0, len(order))
	for _, id := range order {
		c := acc[id]
		out = append(out, domain.ScoredChunk{
			Chunk:  c.chunk,
			Score:  semanticWeight*c.semScore + (1-semanticWeight)*c.lexScore,
			Origin: domain.OriginFused,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Rerank orders candidates by the fraction of query terms present in each
// chunk's token set. A no-op when the candidate count is already within topK.
func Rerank(query string, candidates []domain.ScoredChunk, topK int) []domain.ScoredChunk {
	if topK <= 0 || len(candidates) <= topK {
		return candidates
	}

	queryTerms := tokenSet(query)
	scored := make([]domain.ScoredChunk, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		scored[i].Score = termCoverage(queryTerms, tokenSet(scored[i].Chunk.Text))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored[:topK]
}

// Diversify retrieves 2k semantic candidates and greedily admits them in
// relevance order, skipping any candidate whose Jaccard token similarity to an
// already-selected chunk reaches the ceiling.
func (r *Retriever) Diversify(ctx context.Context, query string, k int, similarityCeiling float64) []domain.ScoredChunk {
	if k <= 0 {
		return nil
	}
	if similarityCeiling <= 0 || similarityCeiling > 1 {
		similarityCeiling = 0.8
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()

	candidates, err := r.vector.Search(searchCtx, query, k*2, nil)
	if err != nil {
		r.logger.Warn("diversify_search_failed", "error", err)
		return nil
	}
	return diversify(candidates, k, similarityCeiling)
}

func diversify(candidates []domain.ScoredChunk, k int, ceiling float64) []domain.ScoredChunk {
	if len(candidates) <= k {
		return candidates
	}

	selected := make([]domain.ScoredChunk, 0, k)
	tokenSets := make([]map[string]struct{}, 0, k)
	for _, candidate := range candidates {
		candidateTokens := tokenSet(candidate.Chunk.Text)
		redundant := false
		for _, existing := range tokenSets {
			if jaccard(candidateTokens, existing) >= ceiling {
				redundant = true
				break
			}
		}
		if redundant {
			continue
		}
		selected = append(selected, candidate)
		tokenSets = append(tokenSets, candidateTokens)
		if len(selected) >= k {
			break
		}
	}
	return selected
}

// FilterByMetadata post-filters candidates by exact-match equality on every
// given key. Hybrid mode fuses first and filters after; semantic mode pushes
// the filter down to the vector service.
func (r *Retriever) FilterByMetadata(
	ctx context.Context,
	lexical ports.LexicalIndex,
	query string,
	filters map[string]string,
	k int,
	hybrid bool,
) []domain.ScoredChunk {
	if !hybrid {
		searchCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
		defer cancel()
		hits, err := r.vector.Search(searchCtx, query, k, filters)
		if err != nil {
			r.logger.Warn("filtered_search_failed", "error", err)
			return nil
		}
		return hits
	}

	candidates := r.HybridRetrieve(ctx, lexical, query, k*2, defaultSemanticWeight, nil)
	filtered := make([]domain.ScoredChunk, 0, k)
	for _, candidate := range candidates {
		if matchesMetadata(candidate.Chunk, filters) {
			filtered = append(filtered, candidate)
			if len(filtered) >= k {
				break
			}
		}
	}
	return filtered
}

func matchesMetadata(chunk domain.Chunk, filters map[string]string) bool {
	for key, want := range filters {
		var got string
		switch key {
		case "source":
			got = chunk.Source
		case "format", "file_type":
			got = string(chunk.Format)
		case "page":
			got = chunk.CitationRef()
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

func termCoverage(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for term := range query {
		if _, ok := chunk[term]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		out[field] = struct{}{}
	}
	return out
}
