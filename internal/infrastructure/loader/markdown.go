package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

// MarkdownLoader reads Markdown files and strips formatting syntax so the
// retrieval index sees prose, not markup.
type MarkdownLoader struct{}

var (
	mdCodeFence = regexp.MustCompile("(?m)^```.*$")
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdImage     = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink      = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdEmphasis  = regexp.MustCompile(`(\*{1,3}|_{1,3})([^*_]+)(\*{1,3}|_{1,3})`)
	mdInline    = regexp.MustCompile("`([^`]*)`")
	mdHRule     = regexp.MustCompile(`(?m)^(-{3,}|\*{3,})\s*$`)
	mdListMark  = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	mdQuote     = regexp.MustCompile(`(?m)^>\s?`)
)

func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

func (l *MarkdownLoader) Supports(path string) bool {
	return hasExt(path, ".md", ".markdown")
}

func (l *MarkdownLoader) Load(path string) (domain.SourceDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("read markdown file: %w", err)
	}
	if !utf8.Valid(raw) {
		return domain.SourceDocument{}, fmt.Errorf("not valid utf-8: %s", filepath.Base(path))
	}
	return domain.SourceDocument{
		Name:   filepath.Base(path),
		Format: domain.FormatMarkdown,
		Units:  []domain.SourceUnit{{Text: StripMarkdown(string(raw))}},
	}, nil
}

// StripMarkdown removes common Markdown syntax while keeping the text and its
// line structure.
func StripMarkdown(s string) string {
	s = mdCodeFence.ReplaceAllString(s, "")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdHRule.ReplaceAllString(s, "")
	s = mdQuote.ReplaceAllString(s, "")
	s = mdListMark.ReplaceAllString(s, "")
	s = mdEmphasis.ReplaceAllString(s, "$2")
	s = mdInline.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
