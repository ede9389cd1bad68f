package semantic

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"unicode/utf8"
)

var tokenPattern = regexp.MustCompile(`\S+`)

// Chunker splits text into windows of at most Size tokens where adjacent
// windows share exactly Overlap tokens. Tokens are whitespace-delimited, and
// each chunk keeps the original formatting between its first and last token.
type Chunker struct {
	Size    int
	Overlap int
}

// Chunk is one window of a document.
type Chunk struct {
	Index  int
	Text   string
	Tokens int
}

// Split chunks text. Empty or whitespace-only text yields no chunks.
func (c Chunker) Split(text string) []Chunk {
	spans := tokenPattern.FindAllStringIndex(text, -1)
	n := len(spans)
	if n == 0 {
		return nil
	}

	size := c.Size
	if size <= 0 {
		size = n
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	var chunks []Chunk
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Text:   text[spans[start][0]:spans[end-1][1]],
			Tokens: end - start,
		})
		if end == n {
			break
		}
	}
	return chunks
}

// Fingerprint is the content hash used as the vector point id. Identical
// content in the same file of the same project always maps to the same id
// within one embedding space; a different space never shares ids.
func Fingerprint(space, project, path, text string) string {
	h := sha256.New()
	h.Write([]byte(space))
	h.Write([]byte{0})
	h.Write([]byte(project))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Truncate shortens s to at most max bytes plus an ellipsis, never splitting
// a UTF-8 sequence.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
