// Package rag implements the retrieval-augmented answering pipeline:
// chunking, embedding, tenant-namespaced retrieval, query rewriting, a
// safety gate, prompt assembly, and a TTL'd search cache.
package rag

import "strings"

const (
	defaultMaxChunkSize = 1000
	defaultOverlap      = 100
)

// ChunkOptions tune the chunker. A zero MaxChunkSize and an absent
// Overlap take their defaults independently, so a request that only sets
// the size still gets the default overlap.
type ChunkOptions struct {
	MaxChunkSize int  `json:"maxChunkSize,omitempty"`
	Overlap      *int `json:"overlap,omitempty"`
}

// TextChunk is a contiguous slice of the normalized document. Offsets
// are character positions in the normalized text; StartWord/EndWord are
// word indices with EndWord exclusive.
type TextChunk struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	StartWord   int    `json:"startWord"`
	EndWord     int    `json:"endWord"`
}

// normalizeText collapses whitespace runs to single spaces and trims.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// buildWordOffsets returns each word's start offset in the normalized
// text, assuming single-space joins.
func buildWordOffsets(words []string) []int {
	offsets := make([]int, len(words))
	cursor := 0
	for i, word := range words {
		offsets[i] = cursor
		cursor += len(word) + 1
	}
	return offsets
}

// findNextStartIndex maps a character offset back to the nearest word
// boundary at or before it.
func findNextStartIndex(wordOffsets []int, targetOffset int) int {
	candidate := 0
	for i, offset := range wordOffsets {
		if offset > targetOffset {
			if i-1 > 0 {
				return i - 1
			}
			return 0
		}
		candidate = i
	}
	return candidate
}

// Chunk splits text into overlapping chunks bounded by MaxChunkSize
// characters. A single word longer than the budget is hard-split into
// fixed-size pieces with no overlap applied inside the word.
func Chunk(input string, opts ChunkOptions) []TextChunk {
	maxChunkSize := opts.MaxChunkSize
	if maxChunkSize == 0 {
		maxChunkSize = defaultMaxChunkSize
	}
	overlap := defaultOverlap
	if opts.Overlap != nil {
		overlap = *opts.Overlap
	}
	if overlap < 0 {
		overlap = 0
	}

	if input == "" || maxChunkSize <= 0 {
		return nil
	}
	normalized := normalizeText(input)
	if normalized == "" {
		return nil
	}

	words := strings.Split(normalized, " ")
	wordOffsets := buildWordOffsets(words)

	var chunks []TextChunk
	index := 0
	startWord := 0

	for startWord < len(words) {
		if len(words[startWord]) > maxChunkSize {
			word := words[startWord]
			startOffset := wordOffsets[startWord]
			for offset := 0; offset < len(word); offset += maxChunkSize {
				end := offset + maxChunkSize
				if end > len(word) {
					end = len(word)
				}
				piece := word[offset:end]
				chunks = append(chunks, TextChunk{
					Index:       index,
					Text:        piece,
					StartOffset: startOffset + offset,
					EndOffset:   startOffset + offset + len(piece),
					StartWord:   startWord,
					EndWord:     startWord + 1,
				})
				index++
			}
			startWord++
			continue
		}

		endWord := startWord
		length := 0
		for endWord < len(words) {
			nextWord := words[endWord]
			nextLength := length + 1 + len(nextWord)
			if length == 0 {
				nextLength = len(nextWord)
			}
			if nextLength > maxChunkSize && length > 0 {
				break
			}
			length = nextLength
			endWord++
			if length >= maxChunkSize {
				break
			}
		}

		text := strings.Join(words[startWord:endWord], " ")
		startOffset := wordOffsets[startWord]
		endOffset := startOffset + len(text)

		chunks = append(chunks, TextChunk{
			Index:       index,
			Text:        text,
			StartOffset: startOffset,
			EndOffset:   endOffset,
			StartWord:   startWord,
			EndWord:     endWord,
		})
		index++

		if endWord >= len(words) {
			break
		}

		overlapStart := endOffset - overlap
		if overlapStart < startOffset {
			overlapStart = startOffset
		}
		nextStart := findNextStartIndex(wordOffsets, overlapStart)
		if nextStart <= startWord {
			// Overlap resumption would not advance; skip it.
			startWord = endWord
		} else {
			startWord = nextStart
		}
	}

	return chunks
}
