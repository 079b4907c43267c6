package rag

import (
	"strings"
	"testing"
)

func overlapOf(n int) *int {
	return &n
}

func TestChunk_GreedyAccumulation(t *testing.T) {
	chunks := Chunk("one two three four five six seven eight nine", ChunkOptions{MaxChunkSize: 14, Overlap: overlapOf(4)})
	if len(chunks) == 0 {
		t.Fatal("Chunk() returned no chunks")
	}
	if chunks[0].Text != "one two three" {
		t.Errorf("chunks[0].Text = %q, want %q", chunks[0].Text, "one two three")
	}

	for i, chunk := range chunks {
		if len(chunk.Text) > 14 {
			t.Errorf("chunks[%d] length %d exceeds budget", i, len(chunk.Text))
		}
		if i > 0 && chunk.StartOffset < chunks[i-1].StartOffset {
			t.Errorf("chunks[%d] start offset decreased: %d < %d", i, chunk.StartOffset, chunks[i-1].StartOffset)
		}
		if chunk.Index != i {
			t.Errorf("chunks[%d].Index = %d", i, chunk.Index)
		}
	}
}

func TestChunk_LongWordHardSplit(t *testing.T) {
	chunks := Chunk("supercalifragilisticexpialidocious", ChunkOptions{MaxChunkSize: 10, Overlap: overlapOf(0)})
	if len(chunks) != 4 {
		t.Fatalf("Chunk() returned %d chunks, want 4", len(chunks))
	}
	if chunks[0].Text != "supercalif" {
		t.Errorf("first piece = %q, want %q", chunks[0].Text, "supercalif")
	}
	if chunks[3].Text != "ious" {
		t.Errorf("last piece = %q, want %q", chunks[3].Text, "ious")
	}
}

func TestChunk_NormalizesWhitespace(t *testing.T) {
	chunks := Chunk("  hello \t world\n\nagain  ", ChunkOptions{MaxChunkSize: 100, Overlap: overlapOf(0)})
	if len(chunks) != 1 {
		t.Fatalf("Chunk() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "hello world again" {
		t.Errorf("chunks[0].Text = %q", chunks[0].Text)
	}
	if chunks[0].StartOffset != 0 || chunks[0].EndOffset != len("hello world again") {
		t.Errorf("offsets = [%d, %d)", chunks[0].StartOffset, chunks[0].EndOffset)
	}
}

func TestChunk_EmptyInputs(t *testing.T) {
	if got := Chunk("", ChunkOptions{}); got != nil {
		t.Errorf("Chunk(\"\") = %v, want nil", got)
	}
	if got := Chunk("   \n\t ", ChunkOptions{}); got != nil {
		t.Errorf("Chunk(whitespace) = %v, want nil", got)
	}
	if got := Chunk("text", ChunkOptions{MaxChunkSize: -1}); got != nil {
		t.Errorf("Chunk() with negative budget = %v, want nil", got)
	}
}

func TestChunk_OverlapRepeatsTail(t *testing.T) {
	chunks := Chunk("alpha beta gamma delta epsilon zeta", ChunkOptions{MaxChunkSize: 12, Overlap: overlapOf(6)})
	if len(chunks) < 2 {
		t.Fatalf("Chunk() returned %d chunks, want several", len(chunks))
	}

	// Successive chunks must make forward progress even with overlap.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartWord <= chunks[i-1].StartWord {
			t.Errorf("chunks[%d].StartWord = %d did not advance past %d",
				i, chunks[i].StartWord, chunks[i-1].StartWord)
		}
	}

	// All words must appear somewhere in the output.
	joined := " "
	for _, chunk := range chunks {
		joined += chunk.Text + " "
	}
	for _, word := range []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"} {
		if !strings.Contains(joined, " "+word+" ") {
			t.Errorf("word %q missing from chunk output", word)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	const text = "the quick brown fox jumps over the lazy dog"
	opts := ChunkOptions{MaxChunkSize: 15, Overlap: overlapOf(5)}

	first := Chunk(text, opts)
	second := Chunk(text, opts)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunks[%d] differ: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestChunk_OverlapDefaultsIndependentlyOfSize(t *testing.T) {
	text := strings.Repeat("word ", 60)

	// Size-only options still get the default overlap of 100: the next
	// chunk resumes roughly 100 characters before the previous end.
	withDefault := Chunk(text, ChunkOptions{MaxChunkSize: 120})
	if len(withDefault) < 2 {
		t.Fatalf("Chunk() returned %d chunks, want several", len(withDefault))
	}
	if shared := withDefault[0].EndOffset - withDefault[1].StartOffset; shared < 100 {
		t.Errorf("default overlap region = %d chars, want >= 100", shared)
	}

	// An explicit zero keeps the overlap small (only the boundary word
	// is revisited).
	without := Chunk(text, ChunkOptions{MaxChunkSize: 120, Overlap: overlapOf(0)})
	if len(without) < 2 {
		t.Fatalf("Chunk() returned %d chunks, want several", len(without))
	}
	if shared := without[0].EndOffset - without[1].StartOffset; shared >= 100 {
		t.Errorf("explicit zero overlap still shares %d chars", shared)
	}
	if without[1].StartWord != without[0].EndWord-1 {
		t.Errorf("zero overlap resumed at word %d, want boundary word %d",
			without[1].StartWord, without[0].EndWord-1)
	}
}

func TestChunk_DefaultsProduceSingleChunkForShortText(t *testing.T) {
	chunks := Chunk("short document", ChunkOptions{})
	if len(chunks) != 1 {
		t.Fatalf("Chunk() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].StartWord != 0 || chunks[0].EndWord != 2 {
		t.Errorf("word span = [%d, %d)", chunks[0].StartWord, chunks[0].EndWord)
	}
}
