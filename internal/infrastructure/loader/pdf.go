package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

// PDFLoader extracts plain text page by page so citations can reference page
// numbers. Pages that fail extraction are skipped; a file where no page
// yields text is an error.
type PDFLoader struct{}

func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

func (l *PDFLoader) Supports(path string) bool {
	return hasExt(path, ".pdf")
}

func (l *PDFLoader) Load(path string) (domain.SourceDocument, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	units := make([]domain.SourceUnit, 0, reader.NumPage())
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		units = append(units, domain.SourceUnit{Text: text, Page: pageNum})
	}
	if len(units) == 0 {
		return domain.SourceDocument{}, fmt.Errorf("no extractable text in %s", filepath.Base(path))
	}

	return domain.SourceDocument{
		Name:   filepath.Base(path),
		Format: domain.FormatPDF,
		Units:  units,
	}, nil
}
