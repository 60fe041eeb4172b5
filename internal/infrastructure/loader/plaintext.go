package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

// TextLoader reads UTF-8 plain text files as a single unit.
type TextLoader struct{}

func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

func (l *TextLoader) Supports(path string) bool {
	return hasExt(path, ".txt")
}

func (l *TextLoader) Load(path string) (domain.SourceDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("read text file: %w", err)
	}
	if !utf8.Valid(raw) {
		return domain.SourceDocument{}, fmt.Errorf("not valid utf-8: %s", filepath.Base(path))
	}
	return domain.SourceDocument{
		Name:   filepath.Base(path),
		Format: domain.FormatText,
		Units:  []domain.SourceUnit{{Text: string(raw)}},
	}, nil
}
