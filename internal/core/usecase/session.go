package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/getclever/docqa-assistant/internal/core/domain"
	"github.com/getclever/docqa-assistant/internal/core/ports"
)

const (
	defaultSessionID      = "default"
	defaultTopK           = 5
	defaultHistoryWindow  = 15
	defaultHistoryContext = 5
)

// EngineConfig carries the per-query tunables of the pipeline.
type EngineConfig struct {
	TopK           int
	SemanticWeight float64
	HistoryWindow  int
	HistoryContext int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.SemanticWeight <= 0 || c.SemanticWeight > 1 {
		c.SemanticWeight = defaultSemanticWeight
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	if c.HistoryContext <= 0 {
		c.HistoryContext = defaultHistoryContext
	}
	return c
}

type session struct {
	mu      sync.Mutex
	history []domain.ConversationTurn
}

// Engine orchestrates the full question-answering pipeline and owns all
// mutable state: the current corpus, per-session histories, and counters.
// The corpus is swapped as a whole pointer so queries either see the old
// corpus or the new one, never a mix.
type Engine struct {
	ingestor    *Ingestor
	retriever   *Retriever
	rewriter    *QueryRewriter
	synthesizer *Synthesizer
	turnLog     ports.TurnLog
	vector      ports.VectorIndex
	logger      *slog.Logger
	cfg         EngineConfig

	mu                sync.RWMutex
	corpus            *Corpus
	sessions          map[string]*session
	totalQueries      int
	successfulAnswers int
}

func NewEngine(
	ingestor *Ingestor,
	retriever *Retriever,
	rewriter *QueryRewriter,
	synthesizer *Synthesizer,
	turnLog ports.TurnLog,
	vector ports.VectorIndex,
	logger *slog.Logger,
	cfg EngineConfig,
) *Engine {
	return &Engine{
		ingestor:    ingestor,
		retriever:   retriever,
		rewriter:    rewriter,
		synthesizer: synthesizer,
		turnLog:     turnLog,
		vector:      vector,
		logger:      logger,
		cfg:         cfg.withDefaults(),
		sessions:    make(map[string]*session),
	}
}

// Ingest runs a batch and, on success, publishes the new corpus to queries.
func (e *Engine) Ingest(ctx context.Context, directory string) domain.IngestReport {
	report, corpus := e.ingestor.Ingest(ctx, directory)
	if report.Success {
		e.mu.Lock()
		e.corpus = corpus
		e.mu.Unlock()
	}
	return report
}

func (e *Engine) Query(ctx context.Context, req domain.QueryRequest) domain.QueryResult {
	e.mu.Lock()
	e.totalQueries++
	corpus := e.corpus
	e.mu.Unlock()

	sess := e.session(req.SessionID)
	history := sess.snapshot()

	k := req.TopK
	if k <= 0 {
		k = e.cfg.TopK
	}
	method := domain.SearchSemantic
	if req.UseHybrid {
		method = domain.SearchHybrid
	}

	// Retrieval runs on the rewritten query; generation sees the question
	// exactly as the user asked it.
	rewritten := e.rewriter.Rewrite(req.Question, history)
	if rewritten != req.Question {
		e.logger.Info("query_rewritten", "original", req.Question, "rewritten", rewritten)
	}

	var lexical ports.LexicalIndex
	if req.UseHybrid && corpus != nil {
		lexical = corpus.Lexical
	}
	candidates := e.retriever.HybridRetrieve(ctx, lexical, rewritten, k*2, e.cfg.SemanticWeight, nil)
	if len(candidates) == 0 {
		return domain.QueryResult{
			Answer:       noContextAnswer,
			Citations:    []string{},
			Confidence:   domain.ConfidenceLow,
			SearchMethod: method,
		}
	}

	rerankUsed := req.UseReranking && len(candidates) > k
	if rerankUsed {
		candidates = Rerank(rewritten, candidates, k)
	} else if len(candidates) > k {
		candidates = candidates[:k]
	}
	passages := make([]domain.Chunk, 0, len(candidates))
	for _, c := range candidates {
		passages = append(passages, c.Chunk)
	}

	var promptHistory []domain.ConversationTurn
	if req.IncludeHistory && len(history) > 0 {
		start := len(history) - e.cfg.HistoryContext
		if start < 0 {
			start = 0
		}
		promptHistory = history[start:]
	}

	result := e.synthesizer.Synthesize(ctx, req.Question, passages, promptHistory)
	result.RetrievedCount = len(passages)
	result.SearchMethod = method
	result.RerankingUsed = rerankUsed
	result.FollowUpQuestions = e.synthesizer.FollowUps(ctx, req.Question, result.Answer, passages)

	turn := domain.ConversationTurn{
		Question:       req.Question,
		RewrittenQuery: rewritten,
		Answer:         result.Answer,
		Citations:      result.Citations,
		Confidence:     result.Confidence,
		SourcesUsed:    result.SourcesUsed,
		AskedAt:        time.Now().UTC(),
	}
	sess.append(turn, e.cfg.HistoryWindow)

	if e.turnLog != nil {
		if err := e.turnLog.AppendTurn(ctx, e.sessionID(req.SessionID), turn); err != nil {
			e.logger.Warn("turn_log_append_failed", "error", err)
		}
	}

	if result.Answer != "" && !strings.Contains(strings.ToLower(result.Answer), "don't have") {
		e.mu.Lock()
		e.successfulAnswers++
		e.mu.Unlock()
	}
	return result
}

func (e *Engine) Stats(ctx context.Context) domain.SystemStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := domain.SystemStats{
		TotalQueries:      e.totalQueries,
		SuccessfulAnswers: e.successfulAnswers,
	}
	if e.totalQueries > 0 {
		stats.SuccessRate = float64(e.successfulAnswers) / float64(e.totalQueries) * 100
	}
	if e.corpus != nil {
		stats.CorpusChunks = len(e.corpus.Chunks)
		stats.SourceCount = len(e.corpus.Sources)
	}
	for _, sess := range e.sessions {
		sess.mu.Lock()
		stats.HistoryLength += len(sess.history)
		sess.mu.Unlock()
	}
	return stats
}

func (e *Engine) Sources(ctx context.Context) []domain.SourceInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.corpus == nil {
		return []domain.SourceInfo{}
	}
	out := make([]domain.SourceInfo, len(e.corpus.Sources))
	copy(out, e.corpus.Sources)
	return out
}

func (e *Engine) ClearHistory(sessionID string) {
	e.mu.Lock()
	delete(e.sessions, e.sessionID(sessionID))
	e.mu.Unlock()
}

// Reset drops the vector collection, the corpus, every session, and all
// counters.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.vector.DeleteAll(ctx); err != nil {
		return domain.WrapError(domain.ErrUnavailable, "reset", err)
	}
	e.mu.Lock()
	e.corpus = nil
	e.sessions = make(map[string]*session)
	e.totalQueries = 0
	e.successfulAnswers = 0
	e.mu.Unlock()
	e.logger.Info("system_reset")
	return nil
}

func (e *Engine) sessionID(id string) string {
	if id == "" {
		return defaultSessionID
	}
	return id
}

func (e *Engine) session(id string) *session {
	key := e.sessionID(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[key]
	if !ok {
		s = &session{}
		e.sessions[key] = s
	}
	return s
}

func (s *session) snapshot() []domain.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConversationTurn, len(s.history))
	copy(out, s.history)
	return out
}

func (s *session) append(turn domain.ConversationTurn, window int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
	if len(s.history) > window {
		s.history = s.history[len(s.history)-window:]
	}
}
