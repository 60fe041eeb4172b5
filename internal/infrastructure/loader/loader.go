// Package loader turns source files into text units ready for chunking.
// Each loader owns one format; dispatch happens on file extension.
package loader

import (
	"path/filepath"
	"strings"

	"github.com/getclever/docqa-assistant/internal/core/ports"
)

// Default returns the loaders for every supported format.
func Default() []ports.DocumentLoader {
	return []ports.DocumentLoader{
		NewPDFLoader(),
		NewMarkdownLoader(),
		NewTextLoader(),
		NewXLSXLoader(),
	}
}

func hasExt(path string, exts ...string) bool {
	got := strings.ToLower(filepath.Ext(path))
	for _, ext := range exts {
		if got == ext {
			return true
		}
	}
	return false
}
