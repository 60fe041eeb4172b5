package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	QdrantURL        string
	QdrantCollection string

	DocumentsDir string

	ChunkSize    int
	ChunkOverlap int

	TopK               int
	SemanticWeight     float64
	DiversifyCeiling   float64
	HistoryWindow      int
	HistoryContext     int
	SearchTimeout      time.Duration
	MaxQueryChars      int
	PromptBudgetChars  int
	VectorBatchSize    int
	VectorBatchPacing  time.Duration
	RewriteRulesPath   string
	PersistTurns       bool
	WorkerMetricsPort  string
	RetryMaxAttempts   int
	RetryInitialDelay  time.Duration
	RetryMaxDelay      time.Duration
	BreakerEnabled     bool
	BreakerMinRequests int
	BreakerOpenFor     time.Duration
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SUBJECT", "documents.ingest"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "documents"),

		DocumentsDir: mustEnv("DOCUMENTS_DIR", "./data/documents"),

		ChunkSize:    mustEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: mustEnvInt("CHUNK_OVERLAP", 200),

		TopK:               mustEnvInt("RAG_TOP_K", 5),
		SemanticWeight:     mustEnvFloat("RAG_SEMANTIC_WEIGHT", 0.7),
		DiversifyCeiling:   mustEnvFloat("RAG_DIVERSIFY_CEILING", 0.8),
		HistoryWindow:      mustEnvInt("RAG_HISTORY_WINDOW", 15),
		HistoryContext:     mustEnvInt("RAG_HISTORY_CONTEXT", 5),
		SearchTimeout:      mustEnvDuration("RAG_SEARCH_TIMEOUT", 15*time.Second),
		MaxQueryChars:      mustEnvInt("RAG_MAX_QUERY_CHARS", 2000),
		PromptBudgetChars:  mustEnvInt("RAG_PROMPT_BUDGET_CHARS", 4000),
		VectorBatchSize:    mustEnvInt("VECTOR_BATCH_SIZE", 1000),
		VectorBatchPacing:  mustEnvDuration("VECTOR_BATCH_PACING", 100*time.Millisecond),
		RewriteRulesPath:   mustEnv("REWRITE_RULES_PATH", ""),
		PersistTurns:       mustEnvBool("PERSIST_TURNS", false),
		WorkerMetricsPort:  mustEnv("WORKER_METRICS_PORT", "9090"),
		RetryMaxAttempts:   mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay:  mustEnvDuration("RETRY_INITIAL_DELAY", 200*time.Millisecond),
		RetryMaxDelay:      mustEnvDuration("RETRY_MAX_DELAY", 5*time.Second),
		BreakerEnabled:     mustEnvBool("BREAKER_ENABLED", true),
		BreakerMinRequests: mustEnvInt("BREAKER_MIN_REQUESTS", 10),
		BreakerOpenFor:     mustEnvDuration("BREAKER_OPEN_FOR", 30*time.Second),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
