// Package chunker splits document text into overlapping segments for embedding.
package chunker

import (
	"errors"
	"regexp"
	"strings"
)

const (
	// DefaultChunkSize is the window width in characters.
	DefaultChunkSize = 1000

	// DefaultOverlap is the number of characters shared between consecutive chunks.
	DefaultOverlap = 200

	// paragraphSplitOverlap is the overlap used when an oversized paragraph
	// has to fall back to the sliding-window split.
	paragraphSplitOverlap = 100
)

// ErrInvalidChunking reports chunk parameters that violate chunkSize > overlap >= 0.
var ErrInvalidChunking = errors.New("chunk size must be greater than overlap, overlap must be non-negative")

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	paragraphRe  = regexp.MustCompile(`\n\s*\n`)
)

// Chunk splits text into overlapping segments of at most chunkSize characters.
//
// Whitespace runs are normalized to single spaces before splitting. Each
// window prefers to end at a sentence terminator (". ", "! ", "? ") when one
// lies past the window midpoint, falling back to the nearest preceding space.
// The next window starts overlap characters before the window end; when the
// overlap would not advance the window, the start is forced to the end so the
// loop always makes forward progress. The final window keeps its tentative
// end for the advance, so a tail shorter than the overlap step is not emitted
// again as its own chunk.
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if overlap < 0 || chunkSize <= overlap {
		return nil, ErrInvalidChunking
	}

	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return nil, nil
	}
	if len(text) <= chunkSize {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end < len(text) {
			cut := cutPoint(text, start, end, chunkSize)
			if cut == len(text) {
				// No space in the window: the remainder is a single
				// giant word, emitted whole.
				chunks = append(chunks, text[start:])
				break
			}
			end = cut
		}

		// end may point past the text on the final window; only the slice
		// is clamped, the advance below works from the tentative end.
		if chunk := strings.TrimSpace(text[start:min(end, len(text))]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}

// cutPoint finds where to end the window starting at start. It prefers the
// last sentence terminator inside the window if it lies past the midpoint,
// otherwise the last space, otherwise the full window (a single giant word
// degrades to one oversized chunk).
func cutPoint(text string, start, end, chunkSize int) int {
	window := text[start:end]

	sentenceEnd := -1
	for _, term := range []string{". ", "! ", "? "} {
		if i := strings.LastIndex(window, term); i > sentenceEnd {
			sentenceEnd = i
		}
	}
	if sentenceEnd > chunkSize/2 {
		// Keep the terminator character with the chunk.
		return start + sentenceEnd + 1
	}

	if space := strings.LastIndexByte(window, ' '); space > 0 {
		return start + space
	}
	// No space anywhere in the window: a single giant word. Emit the whole
	// remainder as one oversized chunk rather than splitting mid-word.
	return len(text)
}

// ChunkByParagraphs groups blank-line-delimited paragraphs into chunks of at
// most maxChunkSize characters. A paragraph that alone exceeds the bound is
// split with the sliding-window algorithm. This mode is opt-in; Chunk is the
// default strategy.
func ChunkByParagraphs(text string, maxChunkSize int) ([]string, error) {
	if maxChunkSize <= paragraphSplitOverlap {
		return nil, ErrInvalidChunking
	}

	paragraphs := paragraphRe.Split(text, -1)

	var chunks []string
	var current []string
	currentSize := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			currentSize = 0
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if currentSize+len(para) > maxChunkSize {
			flush()
		}

		if len(para) > maxChunkSize {
			flush()
			split, err := Chunk(para, maxChunkSize, paragraphSplitOverlap)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, split...)
			continue
		}

		current = append(current, para)
		currentSize += len(para)
	}
	flush()

	return chunks, nil
}
