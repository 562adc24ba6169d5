package claudecode

import "strings"

// ChunkBudget is the transport message-size budget in characters.
const ChunkBudget = 4000

// splitChunks splits text into pieces of at most budget characters.
// Oversized text splits at the last newline at or before the boundary when
// that newline falls past the halfway point of the budget — avoiding
// pathologically short leading chunks — and hard-cuts at the budget
// otherwise. Newlines stay inside the chunk that ends on them, so
// concatenating all chunks reproduces the input exactly.
func splitChunks(text string, budget int) []string {
	if len(text) <= budget {
		return []string{text}
	}

	var chunks []string
	rest := text
	for len(rest) > budget {
		cut := budget
		if idx := strings.LastIndexByte(rest[:budget], '\n'); idx >= 0 && idx+1 > budget/2 {
			cut = idx + 1
		}
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if len(rest) > 0 {
		chunks = append(chunks, rest)
	}
	return chunks
}
