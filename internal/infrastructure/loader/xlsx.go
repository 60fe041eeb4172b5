package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

// XLSXLoader flattens each worksheet into one text unit: cells joined by
// spaces, rows by newlines, prefixed with the sheet name so retrieval can
// tell sheets apart.
type XLSXLoader struct{}

func NewXLSXLoader() *XLSXLoader {
	return &XLSXLoader{}
}

func (l *XLSXLoader) Supports(path string) bool {
	return hasExt(path, ".xlsx")
}

func (l *XLSXLoader) Load(path string) (domain.SourceDocument, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("open workbook: %w", err)
	}
	defer file.Close()

	var units []domain.SourceUnit
	for _, sheet := range file.GetSheetList() {
		rows, err := file.GetRows(sheet)
		if err != nil {
			continue
		}
		text := flattenSheet(sheet, rows)
		if text == "" {
			continue
		}
		units = append(units, domain.SourceUnit{Text: text})
	}
	if len(units) == 0 {
		return domain.SourceDocument{}, fmt.Errorf("no readable sheets in %s", filepath.Base(path))
	}

	return domain.SourceDocument{
		Name:   filepath.Base(path),
		Format: domain.FormatXLSX,
		Units:  units,
	}, nil
}

func flattenSheet(name string, rows [][]string) string {
	var lines []string
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			if cell = strings.TrimSpace(cell); cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " "))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Sheet: " + name + "\n" + strings.Join(lines, "\n")
}
