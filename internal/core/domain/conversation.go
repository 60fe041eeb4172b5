package domain

import "time"

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence returns the matching label or ok=false for anything outside
// the high/medium/low set.
func ParseConfidence(s string) (Confidence, bool) {
	switch Confidence(s) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return Confidence(s), true
	default:
		return "", false
	}
}

// ConversationTurn is one completed question/answer exchange. Turns are
// append-only and owned by the session; the window is bounded.
type ConversationTurn struct {
	Question       string     `json:"question"`
	RewrittenQuery string     `json:"rewritten_query"`
	Answer         string     `json:"answer"`
	Citations      []string   `json:"citations"`
	Confidence     Confidence `json:"confidence"`
	SourcesUsed    int        `json:"sources_used"`
	AskedAt        time.Time  `json:"asked_at"`
}

type SearchMethod string

const (
	SearchHybrid   SearchMethod = "hybrid"
	SearchSemantic SearchMethod = "semantic"
)

// QueryRequest is the inbound query contract.
type QueryRequest struct {
	SessionID      string `json:"session_id"`
	Question       string `json:"question"`
	UseHybrid      bool   `json:"use_hybrid"`
	UseReranking   bool   `json:"use_reranking"`
	TopK           int    `json:"k"`
	IncludeHistory bool   `json:"include_history"`
}

// QueryResult is the structured pipeline output returned to the caller.
type QueryResult struct {
	Answer               string       `json:"answer"`
	Citations            []string     `json:"citations"`
	Confidence           Confidence   `json:"confidence"`
	SourcesUsed          int          `json:"sources_used"`
	RetrievedCount       int          `json:"retrieved_count"`
	SearchMethod         SearchMethod `json:"search_method"`
	RerankingUsed        bool         `json:"reranking_used"`
	HasSubstantiveAnswer bool         `json:"has_substantive_answer"`
	FollowUpQuestions    []string     `json:"followup_questions"`
	GuardrailReason      string       `json:"guardrail_reason,omitempty"`
}

// SystemStats aggregates counters across the assistant.
type SystemStats struct {
	TotalQueries      int     `json:"total_queries"`
	SuccessfulAnswers int     `json:"successful_answers"`
	SuccessRate       float64 `json:"success_rate"`
	CorpusChunks      int     `json:"corpus_chunks"`
	SourceCount       int     `json:"source_count"`
	HistoryLength     int     `json:"history_length"`
}

// IngestStats describes a completed ingestion batch.
type IngestStats struct {
	TotalChunks     int      `json:"total_chunks"`
	TotalCharacters int      `json:"total_characters"`
	AvgChunkSize    float64  `json:"avg_chunk_size"`
	Sources         []string `json:"sources"`
	Formats         []string `json:"formats"`
	SkippedFiles    int      `json:"skipped_files"`
}

// IngestReport is returned for every ingestion attempt; failures are reported
// in-band rather than as errors so per-file problems never abort the batch.
type IngestReport struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Stats   IngestStats `json:"stats"`
}
