package storage

import "strings"

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// ChunkWords splits text into overlapping word windows. Consecutive windows
// share overlap words so a sentence cut at a boundary is still readable in
// the next chunk.
func ChunkWords(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = 0
		}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := size - overlap
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
