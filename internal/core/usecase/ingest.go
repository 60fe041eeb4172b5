package usecase

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/getclever/docqa-assistant/internal/core/domain"
	"github.com/getclever/docqa-assistant/internal/core/ports"
)

// DocumentChunker splits one loaded document into retrieval chunks.
type DocumentChunker interface {
	ChunkDocument(doc domain.SourceDocument) []domain.Chunk
}

// LexicalIndexBuilder constructs an immutable keyword index over one corpus.
type LexicalIndexBuilder func(chunks []domain.Chunk) ports.LexicalIndex

// Corpus is the immutable result of one ingestion batch. Consumers swap the
// whole corpus pointer; chunks and index are never mutated after Build.
type Corpus struct {
	Chunks  []domain.Chunk
	Lexical ports.LexicalIndex
	Sources []domain.SourceInfo
}

// Ingestor loads a directory of source files, chunks them, and replaces the
// vector collection wholesale. Per-file failures skip the file and continue;
// only an empty batch or a vector-store failure fails the run.
type Ingestor struct {
	loaders []ports.DocumentLoader
	chunker DocumentChunker
	vector  ports.VectorIndex
	build   LexicalIndexBuilder
	logger  *slog.Logger
}

func NewIngestor(
	loaders []ports.DocumentLoader,
	chunker DocumentChunker,
	vector ports.VectorIndex,
	build LexicalIndexBuilder,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		loaders: loaders,
		chunker: chunker,
		vector:  vector,
		build:   build,
		logger:  logger,
	}
}

func (in *Ingestor) Ingest(ctx context.Context, directory string) (domain.IngestReport, *Corpus) {
	var (
		chunks  []domain.Chunk
		skipped int
	)
	sourceInfo := make(map[string]*domain.SourceInfo)
	sourcePages := make(map[string]map[int]struct{})
	formats := make(map[string]struct{})

	walkErr := filepath.WalkDir(directory, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		loader := in.loaderFor(path)
		if loader == nil {
			in.logger.Debug("unsupported_file_skipped", "path", path)
			skipped++
			return nil
		}
		doc, loadErr := loader.Load(path)
		if loadErr != nil {
			in.logger.Warn("document_load_failed", "path", path, "error", loadErr)
			skipped++
			return nil
		}

		docChunks := in.chunker.ChunkDocument(doc)
		chunks = append(chunks, docChunks...)
		formats[string(doc.Format)] = struct{}{}

		info, ok := sourceInfo[doc.Name]
		if !ok {
			info = &domain.SourceInfo{Name: doc.Name, Type: string(doc.Format)}
			sourceInfo[doc.Name] = info
			sourcePages[doc.Name] = make(map[int]struct{})
		}
		info.ChunkCount += len(docChunks)
		for _, c := range docChunks {
			if c.Page > 0 {
				sourcePages[doc.Name][c.Page] = struct{}{}
			}
		}
		return nil
	})
	if walkErr != nil {
		return domain.IngestReport{
			Message: fmt.Sprintf("Error reading document directory: %v", walkErr),
		}, nil
	}
	if len(chunks) == 0 {
		return domain.IngestReport{Message: "No documents found to process"}, nil
	}

	// Replace, never merge: the previous collection is dropped so stale
	// chunks cannot resurface in retrieval.
	if err := in.vector.DeleteAll(ctx); err != nil {
		in.logger.Error("vector_collection_reset_failed", "error", err)
		return domain.IngestReport{
			Message: fmt.Sprintf("Failed to reset vector collection: %v", err),
		}, nil
	}
	if err := in.vector.Add(ctx, chunks); err != nil {
		in.logger.Error("vector_add_failed", "error", err, "chunks", len(chunks))
		return domain.IngestReport{
			Message: fmt.Sprintf("Failed to add documents to vector store: %v", err),
		}, nil
	}

	corpus := &Corpus{
		Chunks:  chunks,
		Lexical: in.build(chunks),
		Sources: collectSources(sourceInfo, sourcePages),
	}

	report := domain.IngestReport{
		Success: true,
		Message: fmt.Sprintf("Successfully processed %d document chunks", len(chunks)),
		Stats:   buildStats(chunks, formats, corpus.Sources, skipped),
	}
	in.logger.Info("ingestion_completed",
		"chunks", len(chunks),
		"sources", len(corpus.Sources),
		"skipped", skipped,
	)
	return report, corpus
}

func (in *Ingestor) loaderFor(path string) ports.DocumentLoader {
	for _, loader := range in.loaders {
		if loader.Supports(path) {
			return loader
		}
	}
	return nil
}

func collectSources(infos map[string]*domain.SourceInfo, pages map[string]map[int]struct{}) []domain.SourceInfo {
	out := make([]domain.SourceInfo, 0, len(infos))
	for name, info := range infos {
		info.PageCount = len(pages[name])
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChunkCount != out[j].ChunkCount {
			return out[i].ChunkCount > out[j].ChunkCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func buildStats(chunks []domain.Chunk, formats map[string]struct{}, sources []domain.SourceInfo, skipped int) domain.IngestStats {
	totalChars := 0
	for _, c := range chunks {
		totalChars += len(c.Text)
	}
	stats := domain.IngestStats{
		TotalChunks:     len(chunks),
		TotalCharacters: totalChars,
		SkippedFiles:    skipped,
	}
	if len(chunks) > 0 {
		stats.AvgChunkSize = float64(totalChars) / float64(len(chunks))
	}
	for _, s := range sources {
		stats.Sources = append(stats.Sources, s.Name)
	}
	stats.Formats = make([]string, 0, len(formats))
	for f := range formats {
		stats.Formats = append(stats.Formats, f)
	}
	sort.Strings(stats.Formats)
	return stats
}
