package ports

import (
	"context"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

// VectorIndex wraps the external embedding + similarity-search service.
type VectorIndex interface {
	Add(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, query string, k int, filter map[string]string) ([]domain.ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}

// LexicalIndex is a keyword-frequency index over one immutable chunk corpus.
// Implementations are rebuilt wholesale per ingestion and must be safe for
// concurrent readers.
type LexicalIndex interface {
	Search(query string, k int) []domain.ScoredChunk
	Len() int
}

// GenerationService is the narrow contract to the text-generation backend.
type GenerationService interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DocumentLoader turns one source file into text units with metadata.
type DocumentLoader interface {
	Supports(path string) bool
	Load(path string) (domain.SourceDocument, error)
}

// GuardrailVerdict reports the outcome of a pre-generation safety check.
type GuardrailVerdict struct {
	Allowed bool
	Reason  string
}

// GuardrailPolicy screens a query and its retrieved passages before any
// generation call. Implementations are best-effort heuristics, swappable for
// stronger detectors.
type GuardrailPolicy interface {
	Check(query string, passages []domain.Chunk) GuardrailVerdict
}

// AnswerClassifier decides whether generated text is a no-answer response.
type AnswerClassifier interface {
	IsNoAnswer(answer string) bool
}

// TurnLog durably records completed conversation turns. Best-effort: callers
// log and continue on failure.
type TurnLog interface {
	AppendTurn(ctx context.Context, sessionID string, turn domain.ConversationTurn) error
}

// IngestQueue publishes/consumes asynchronous ingestion jobs.
type IngestQueue interface {
	PublishIngestRequested(ctx context.Context, directory string) error
	SubscribeIngestRequested(ctx context.Context, handler func(context.Context, string) error) error
}
