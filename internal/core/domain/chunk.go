package domain

import "strconv"

type SourceFormat string

const (
	FormatPDF      SourceFormat = "pdf"
	FormatMarkdown SourceFormat = "markdown"
	FormatText     SourceFormat = "txt"
	FormatXLSX     SourceFormat = "xlsx"
)

// Chunk is the unit of retrieval and citation. Immutable after ingestion;
// the whole corpus is replaced wholesale on re-ingestion.
type Chunk struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Source  string       `json:"source"`
	Page    int          `json:"page,omitempty"` // 0 for formats without pages
	Ordinal int          `json:"ordinal"`
	Format  SourceFormat `json:"format"`
}

// CitationRef renders the citation identity of the chunk: page when the
// source format has pages, chunk ordinal otherwise.
func (c Chunk) CitationRef() string {
	if c.Page > 0 {
		return "Page: " + strconv.Itoa(c.Page)
	}
	return "Chunk: " + strconv.Itoa(c.Ordinal)
}

type ScoreOrigin string

const (
	OriginLexical ScoreOrigin = "lexical"
	OriginVector  ScoreOrigin = "vector"
	OriginFused   ScoreOrigin = "fused"
)

// ScoredChunk is produced fresh per retrieval call.
type ScoredChunk struct {
	Chunk  Chunk       `json:"chunk"`
	Score  float64     `json:"score"`
	Origin ScoreOrigin `json:"origin"`
}

// SourceUnit is one loadable unit of a source document (a PDF page, a sheet,
// or the whole file for flat formats).
type SourceUnit struct {
	Text string
	Page int
}

// SourceDocument is the loader output for a single file.
type SourceDocument struct {
	Name   string
	Format SourceFormat
	Units  []SourceUnit
}

// SourceInfo summarizes one ingested source for the inventory endpoint.
type SourceInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	ChunkCount int    `json:"chunk_count"`
	PageCount  int    `json:"page_count,omitempty"`
}
