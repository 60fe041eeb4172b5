package ports

import (
	"context"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

// Assistant is the inbound contract the presentation layer calls.
type Assistant interface {
	Ingest(ctx context.Context, directory string) domain.IngestReport
	Query(ctx context.Context, req domain.QueryRequest) domain.QueryResult
	Stats(ctx context.Context) domain.SystemStats
	Sources(ctx context.Context) []domain.SourceInfo
	ClearHistory(sessionID string)
	Reset(ctx context.Context) error
}
