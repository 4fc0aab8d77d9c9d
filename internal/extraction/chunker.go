package extraction

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

// Chunk is one window of document text. Index is the chunk's position in the
// document and is the key every later stage reports against.
type Chunk struct {
	Index int    `json:"index" firestore:"index"`
	Text  string `json:"text" firestore:"text"`
}

// ChunkText splits text into overlapping windows of at most size bytes,
// preferring to end a window on a sentence or line boundary that lies past
// the window's midpoint. Windows never split a UTF-8 sequence. Non-positive
// size or overlap fall back to defaults.
func ChunkText(text string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/2)
	}

	if len(text) <= size {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []Chunk{{Index: 0, Text: trimmed}}
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := runeBoundary(text, min(start+size, len(text)), start)

		if end < len(text) {
			window := text[start:end]
			cut := max(strings.LastIndexByte(window, '.'), strings.LastIndexByte(window, '\n'))
			if cut > size/2 {
				end = start + cut + 1
			}
		}

		if piece := strings.TrimSpace(text[start:end]); piece != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: piece})
		}

		if end >= len(text) {
			break
		}
		// Always move forward even when the boundary cut is shorter than the overlap.
		next := max(end-overlap, start+1)
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}

	return chunks
}

// runeBoundary moves i back to the first byte of the rune it falls in. When
// that would reach floor it moves forward instead, so the window is never
// empty.
func runeBoundary(text string, i, floor int) int {
	j := i
	for j > floor && j < len(text) && !utf8.RuneStart(text[j]) {
		j--
	}
	if j > floor {
		return j
	}
	for j = i; j < len(text) && !utf8.RuneStart(text[j]); j++ {
	}
	return j
}

// JoinChunks concatenates chunk texts in order, separated by blank lines.
func JoinChunks(chunks []Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Reindex returns a copy of chunks numbered 0..n-1 in their current order.
func Reindex(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = Chunk{Index: i, Text: c.Text}
	}
	return out
}
