package internal

const (
	MaxChunkSize     = 1000
	ChunkOverlap     = 200
	MaxChunksPerFile = 500
)

// boundaries are tried in order; the first kind present in the window wins.
var boundaries = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune(" "),
}

type span struct {
	start, end int
}

// Chunk splits text into overlapping pieces of at most MaxChunkSize runes,
// preferring paragraph, line, sentence and word boundaries. Blank text must be
// filtered by the caller.
func Chunk(text string) []string {
	runes := []rune(text)
	spans := chunkSpans(runes)
	chunks := make([]string, len(spans))
	for i, s := range spans {
		chunks[i] = string(runes[s.start:s.end])
	}
	return chunks
}

func chunkSpans(text []rune) []span {
	n := len(text)
	if n <= MaxChunkSize {
		return []span{{0, n}}
	}

	var spans []span
	start := 0
	for start < n && len(spans) < MaxChunksPerFile {
		end := start + MaxChunkSize
		if end >= n {
			spans = append(spans, span{start, n})
			break
		}
		end = snapEnd(text, start, end)
		spans = append(spans, span{start, end})

		next := end - ChunkOverlap
		if next <= start {
			// The boundary sat too close to start for a full overlap; continue
			// right after this chunk so nothing is skipped.
			next = end
		}
		start = next
	}
	return spans
}

// snapEnd moves end back to just past the last boundary in text[start:end],
// or returns end unchanged when no boundary lies after start.
func snapEnd(text []rune, start, end int) int {
	for _, sep := range boundaries {
		if i := lastIndex(text, sep, start, end); i > start {
			return i + len(sep)
		}
	}
	return end
}

// lastIndex finds the last sep fully contained in text[start:end].
func lastIndex(text, sep []rune, start, end int) int {
	for i := end - len(sep); i >= start; i-- {
		match := true
		for j, r := range sep {
			if text[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
