package claudecode

import (
	"strings"
	"testing"
)

func TestSplitChunks(t *testing.T) {
	t.Run("text within budget stays whole", func(t *testing.T) {
		text := strings.Repeat("a", ChunkBudget)
		chunks := splitChunks(text, ChunkBudget)
		if len(chunks) != 1 || chunks[0] != text {
			t.Errorf("expected single untouched chunk, got %d", len(chunks))
		}
	})

	t.Run("9000 characters yield three parts", func(t *testing.T) {
		text := strings.Repeat("x", 9000)
		chunks := splitChunks(text, ChunkBudget)
		if len(chunks) != 3 {
			t.Fatalf("expected 3 chunks, got %d", len(chunks))
		}
		if len(chunks[0]) != ChunkBudget || len(chunks[1]) != ChunkBudget || len(chunks[2]) != 1000 {
			t.Errorf("unexpected chunk sizes %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
		}
	})

	t.Run("concatenation reproduces the input exactly", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 400; i++ {
			b.WriteString(strings.Repeat("line of output ", 3))
			b.WriteString("\n")
		}
		text := b.String()

		chunks := splitChunks(text, ChunkBudget)
		if len(chunks) < 2 {
			t.Fatalf("expected a multi-chunk split, got %d", len(chunks))
		}
		if strings.Join(chunks, "") != text {
			t.Error("round-trip mismatch")
		}
	})

	t.Run("splits at a newline past the halfway point", func(t *testing.T) {
		// One newline at 3000, well past budget/2: the cut lands there.
		text := strings.Repeat("a", 3000) + "\n" + strings.Repeat("b", 3000)
		chunks := splitChunks(text, ChunkBudget)
		if len(chunks) != 2 {
			t.Fatalf("expected 2 chunks, got %d", len(chunks))
		}
		if !strings.HasSuffix(chunks[0], "\n") || len(chunks[0]) != 3001 {
			t.Errorf("expected newline-terminated 3001-char chunk, got %d", len(chunks[0]))
		}
	})

	t.Run("ignores newlines before the halfway point", func(t *testing.T) {
		// Only newline at 100: a newline split would produce a
		// pathologically short leading chunk, so hard-cut instead.
		text := strings.Repeat("a", 100) + "\n" + strings.Repeat("b", 6000)
		chunks := splitChunks(text, ChunkBudget)
		if len(chunks[0]) != ChunkBudget {
			t.Errorf("expected hard cut at budget, got %d", len(chunks[0]))
		}
		if strings.Join(chunks, "") != text {
			t.Error("round-trip mismatch")
		}
	})
}
