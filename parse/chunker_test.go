package parse

import (
	"context"
	"strings"
	"testing"
)

func TestFixedChunkerSmallInput(t *testing.T) {
	c := NewFixedChunker(100, 10)
	got := c.Chunk("short text")
	if len(got) != 1 || got[0] != "short text" {
		t.Errorf("input under size should be one chunk, got %v", got)
	}
	if c.Chunk("") != nil {
		t.Error("empty input should chunk to nil")
	}
	if c.Chunk("   \n  ") != nil {
		t.Error("whitespace-only input should chunk to nil")
	}
}

func TestFixedChunkerRespectsSize(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 50)
	c := NewFixedChunker(64, 16)
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) > 64 {
			t.Errorf("chunk %d exceeds size: %d chars", i, len(ch))
		}
		if ch != strings.TrimSpace(ch) {
			t.Errorf("chunk %d has untrimmed whitespace", i)
		}
	}
}

func TestFixedChunkerWordBoundaries(t *testing.T) {
	text := strings.Repeat("boundary ", 30)
	for _, ch := range NewFixedChunker(50, 10).Chunk(text) {
		for _, w := range strings.Fields(ch) {
			if w != "boundary" {
				t.Fatalf("word cut mid-token: %q", w)
			}
		}
	}
}

func TestFixedChunkerOverlap(t *testing.T) {
	text := strings.Repeat("overlap words here ", 20)
	chunks := NewFixedChunker(60, 20).Chunk(text)
	if len(chunks) < 2 {
		t.Fatal("need at least 2 chunks to observe overlap")
	}
	// With overlap, consecutive chunks share content: the second chunk
	// starts before the first one ended.
	joined := strings.Join(chunks, "")
	if len(joined) <= len(strings.TrimSpace(text)) {
		t.Error("expected total chunk length to exceed input due to overlap")
	}
}

func TestParagraphChunkerKeepsParagraphsTogether(t *testing.T) {
	text := "First paragraph stays whole.\n\nSecond paragraph also stays whole.\n\nThird one too."
	chunks := NewParagraphChunker(2048, 0).Chunk(text)
	if len(chunks) != 1 {
		t.Fatalf("everything fits in one chunk, got %d", len(chunks))
	}
}

func TestParagraphChunkerSplitsOversized(t *testing.T) {
	para := strings.Repeat("A sentence with several words in it. ", 20)
	text := para + "\n\n" + para
	chunks := NewParagraphChunker(200, 40).Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) > 200 {
			t.Errorf("chunk %d exceeds size: %d", i, len(ch))
		}
	}
}

func TestSentenceChunkerPacksSentences(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("This is a sentence. ", 30))
	chunks := NewSentenceChunker(100, 0).Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) > 100 {
			t.Errorf("chunk %d exceeds size: %d", i, len(ch))
		}
		if !strings.HasSuffix(strings.TrimSpace(ch), ".") {
			t.Errorf("chunk %d does not end at a sentence boundary: %q", i, ch)
		}
	}
}

func TestHeadingChunkerSplitsAtHeadings(t *testing.T) {
	text := "# Intro\n\n" + strings.Repeat("intro text. ", 10) +
		"\n\n# Details\n\n" + strings.Repeat("detail text. ", 10) +
		"\n\n## Sub\n\n" + strings.Repeat("sub text. ", 10)
	chunks := NewHeadingChunker(150, 0).Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Every heading should start a chunk (or sit at a merge boundary
	// within one), never be orphaned from its section text.
	for _, heading := range []string{"# Intro", "# Details", "## Sub"} {
		found := false
		for _, ch := range chunks {
			if strings.Contains(ch, heading) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("heading %q lost during chunking", heading)
		}
	}
}

func TestHeadingChunkerNoHeadingsFallsBack(t *testing.T) {
	text := strings.Repeat("Plain prose without any headings at all. ", 20)
	chunks := NewHeadingChunker(150, 30).Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("fallback paragraph chunking expected, got %d chunks", len(chunks))
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			"simple",
			"First sentence. Second sentence! Third?",
			[]string{"First sentence.", "Second sentence!", "Third?"},
		},
		{
			"abbreviation not a boundary",
			"Dr. Smith arrived. He was late.",
			[]string{"Dr. Smith arrived.", "He was late."},
		},
		{
			"decimal not a boundary",
			"Pi is 3.14 roughly. Indeed.",
			[]string{"Pi is 3.14 roughly.", "Indeed."},
		},
		{
			"cjk terminators",
			"これは文です。次の文。",
			[]string{"これは文です。", "次の文。"},
		},
		{
			"no terminator",
			"trailing fragment without punctuation",
			[]string{"trailing fragment without punctuation"},
		},
		{
			"dot without following space",
			"see example.com for details. done.",
			[]string{"see example.com for details.", "done."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sentences %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMergeWithOverlapCarriesTail(t *testing.T) {
	segments := []string{
		strings.Repeat("a", 40) + " tail",
		strings.Repeat("b", 40),
	}
	chunks := mergeWithOverlap(segments, 50, 10)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[1], "tail") {
		t.Errorf("second chunk should start with the overlap tail, got %q", chunks[1][:10])
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"overlap equals size", Config{ChunkSize: 100, ChunkOverlap: 100}, true},
		{"overlap exceeds size", Config{ChunkSize: 100, ChunkOverlap: 150}, true},
		{"overlap just under size", Config{ChunkSize: 100, ChunkOverlap: 99}, false},
		{"negative overlap", Config{ChunkOverlap: -1}, true},
		{"negative size", Config{ChunkSize: -5}, true},
		{"unknown strategy", Config{Strategy: "zigzag"}, true},
		{"semantic without embedder", Config{Strategy: StrategySemantic}, true},
		{
			"semantic with embedder",
			Config{Strategy: StrategySemantic, Embed: func(context.Context, []string) ([][]float32, error) { return nil, nil }},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
