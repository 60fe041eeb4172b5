package chunking

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

// Chunker splits cleaned source text into overlapping segments, preferring to
// cut at paragraph, then line, then word boundaries before falling back to a
// hard cut. Pure function of its input: identical input yields identical
// chunks and ids.
type Chunker struct {
	ChunkSize int
	Overlap   int
}

func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// ChunkDocument produces ordered chunks for one source. Ordinals run 1-based
// across the whole source so citation references stay unique per source.
func (c *Chunker) ChunkDocument(doc domain.SourceDocument) []domain.Chunk {
	out := make([]domain.Chunk, 0, 16)
	ordinal := 0
	for _, unit := range doc.Units {
		cleaned := CleanText(unit.Text)
		if cleaned == "" {
			continue
		}
		for _, segment := range c.Split(cleaned) {
			ordinal++
			out = append(out, domain.Chunk{
				ID:      chunkID(doc.Name, unit.Page, ordinal, segment),
				Text:    segment,
				Source:  doc.Name,
				Page:    unit.Page,
				Ordinal: ordinal,
				Format:  doc.Format,
			})
		}
	}
	return out
}

// Split cuts text into segments of at most ChunkSize runes with Overlap runes
// shared between neighbors. Concatenating the segments while dropping each
// successor's first Overlap runes reconstructs the input exactly.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/c.ChunkSize+1)
	start := 0
	for start < len(runes) {
		end := start + c.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.cutPoint(runes, start, end)
		}

		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}

		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// cutPoint searches the window backwards for the best break: paragraph, then
// line, then word. Cuts before the midpoint are rejected to keep segments from
// degenerating.
func (c *Chunker) cutPoint(runes []rune, start, limit int) int {
	min := start + c.ChunkSize/2

	for i := limit - 1; i > min; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := limit - 1; i > min; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := limit - 1; i > min; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return limit
}

// CleanText normalizes line endings, strips NUL bytes, collapses runs of
// spaces and tabs, and trims the result. Newlines survive so paragraph and
// line boundaries remain visible to the splitter.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")

	var b strings.Builder
	b.Grow(len(s))
	spacePending := false
	for _, r := range s {
		switch r {
		case ' ', '\t':
			spacePending = true
		case '\n':
			spacePending = false
			b.WriteRune('\n')
		default:
			if spacePending {
				b.WriteRune(' ')
				spacePending = false
			}
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), " \n")
}

func chunkID(source string, page, ordinal int, text string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%d|%s", source, page, ordinal, text)
	return fmt.Sprintf("%016x", h.Sum64())
}
