package parse

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunker splits extracted text into spans no longer than the configured
// chunk size.
type Chunker interface {
	Chunk(text string) []string
}

// ContextChunker extends Chunker for implementations that call external
// services (the semantic chunker embeds sentences). Callers use
// ChunkContext when available and fall back to Chunk otherwise.
type ContextChunker interface {
	Chunker
	ChunkContext(ctx context.Context, text string) ([]string, error)
}

// --- FixedChunker ---

// FixedChunker cuts text into fixed-size windows at word boundaries where
// possible, with the configured overlap between consecutive windows.
type FixedChunker struct {
	size    int
	overlap int
}

var _ Chunker = (*FixedChunker)(nil)

func NewFixedChunker(size, overlap int) *FixedChunker {
	return &FixedChunker{size: size, overlap: overlap}
}

func (fc *FixedChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= fc.size {
		return []string{text}
	}

	step := fc.size - fc.overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + fc.size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}
		// Back up to the nearest word boundary so windows do not cut words.
		cut := end
		for cut > start && !isSpaceByte(text[cut]) {
			cut--
		}
		if cut == start {
			cut = end // single oversized token, hard cut
		}
		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		step = cut - start - fc.overlap
		if step <= 0 {
			step = cut - start
		}
	}
	return chunks
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// --- ParagraphChunker ---

// ParagraphChunker splits on paragraph boundaries first, falling back to
// sentences and then words for oversized segments, and merges small
// segments back together with overlap carried between chunks.
type ParagraphChunker struct {
	size    int
	overlap int
}

var _ Chunker = (*ParagraphChunker)(nil)

func NewParagraphChunker(size, overlap int) *ParagraphChunker {
	return &ParagraphChunker{size: size, overlap: overlap}
}

func (pc *ParagraphChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= pc.size {
		return []string{text}
	}

	var segments []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) <= pc.size {
			segments = append(segments, p)
		} else {
			segments = append(segments, splitSentenceSegments(p, pc.size)...)
		}
	}
	return mergeWithOverlap(segments, pc.size, pc.overlap)
}

// --- SentenceChunker ---

// SentenceChunker splits on sentence boundaries and packs consecutive
// sentences into chunks up to the size limit.
type SentenceChunker struct {
	size    int
	overlap int
}

var _ Chunker = (*SentenceChunker)(nil)

func NewSentenceChunker(size, overlap int) *SentenceChunker {
	return &SentenceChunker{size: size, overlap: overlap}
}

func (sc *SentenceChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= sc.size {
		return []string{text}
	}
	return mergeWithOverlap(splitSentenceSegments(text, sc.size), sc.size, sc.overlap)
}

// --- HeadingChunker ---

var headingLineRe = regexp.MustCompile(`(?m)^#{1,6}\s`)

// HeadingChunker splits text at markdown heading boundaries, keeping the
// heading line with its section. Sections larger than the chunk size fall
// back to paragraph chunking; undersized neighbors merge.
type HeadingChunker struct {
	size     int
	fallback *ParagraphChunker
}

var _ Chunker = (*HeadingChunker)(nil)

func NewHeadingChunker(size, overlap int) *HeadingChunker {
	return &HeadingChunker{size: size, fallback: NewParagraphChunker(size, overlap)}
}

func (hc *HeadingChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= hc.size {
		return []string{text}
	}

	locs := headingLineRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return hc.fallback.Chunk(text)
	}

	var sections []string
	if locs[0][0] > 0 {
		if head := strings.TrimSpace(text[:locs[0][0]]); head != "" {
			sections = append(sections, head)
		}
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if sec := strings.TrimSpace(text[loc[0]:end]); sec != "" {
			sections = append(sections, sec)
		}
	}

	var chunks []string
	var current strings.Builder
	for _, sec := range sections {
		if len(sec) > hc.size {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, hc.fallback.Chunk(sec)...)
			continue
		}
		if current.Len() > 0 && current.Len()+2+len(sec) > hc.size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(sec)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// --- sentence splitting ---

// splitSentenceSegments splits text into segments at sentence boundaries,
// packing sentences up to maxChars and word-splitting anything that still
// exceeds the limit.
func splitSentenceSegments(text string, maxChars int) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return splitWords(text, maxChars)
	}

	var segments []string
	var current strings.Builder
	for _, s := range sentences {
		if len(s) > maxChars {
			if current.Len() > 0 {
				segments = append(segments, strings.TrimSpace(current.String()))
				current.Reset()
			}
			segments = append(segments, splitWords(s, maxChars)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(s) > maxChars {
			segments = append(segments, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		segments = append(segments, strings.TrimSpace(current.String()))
	}
	return segments
}

// sentence-final dots in these words are not boundaries.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "vs": true, "etc": true, "inc": true,
	"ltd": true, "e.g": true, "i.e": true, "viz": true, "al": true,
	"approx": true, "dept": true, "est": true, "fig": true,
	"no": true, "vol": true,
}

// SplitSentences splits text into sentences. ASCII terminators (.!?) are
// boundaries unless they end an abbreviation or sit inside a decimal
// number; CJK terminators (。！？) are always boundaries.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0

	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i, w := 0, 0; i < len(text); i += w {
		r, size := utf8.DecodeRuneInString(text[i:])
		w = size

		if r == '。' || r == '！' || r == '？' {
			flush(i + size)
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && (isDecimalDot(text, i) || endsAbbreviation(text, i)) {
			continue
		}
		// Boundary only when followed by whitespace or end of text.
		next := i + size
		if next >= len(text) {
			flush(len(text))
			continue
		}
		nr, _ := utf8.DecodeRuneInString(text[next:])
		if unicode.IsSpace(nr) {
			flush(next)
		}
	}
	if start < len(text) {
		flush(len(text))
	}
	return sentences
}

// isDecimalDot reports whether the dot at pos sits between two digits
// (3.14, $1.50).
func isDecimalDot(text string, pos int) bool {
	if pos == 0 || pos+1 >= len(text) {
		return false
	}
	return text[pos-1] >= '0' && text[pos-1] <= '9' &&
		text[pos+1] >= '0' && text[pos+1] <= '9'
}

// endsAbbreviation reports whether the word ending at the dot is a common
// abbreviation (Mr., Dr., e.g., ...).
func endsAbbreviation(text string, dotPos int) bool {
	start := dotPos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsLetter(r) && r != '.' {
			break
		}
		start -= size
	}
	return abbreviations[strings.ToLower(text[start:dotPos])]
}

// splitWords hard-splits text at word boundaries into segments of at most
// maxChars, cutting oversized single tokens as a last resort.
func splitWords(text string, maxChars int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var segments []string
	var current strings.Builder
	for _, word := range words {
		if len(word) > maxChars {
			if current.Len() > 0 {
				segments = append(segments, current.String())
				current.Reset()
			}
			for i := 0; i < len(word); i += maxChars {
				end := min(i+maxChars, len(word))
				segments = append(segments, word[i:end])
			}
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			segments = append(segments, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// mergeWithOverlap packs segments into chunks of at most maxChars,
// carrying an overlap suffix from each finished chunk into the next.
func mergeWithOverlap(segments []string, maxChars, overlapChars int) []string {
	var chunks []string
	var current strings.Builder

	for _, seg := range segments {
		needed := len(seg)
		if current.Len() > 0 {
			needed += current.Len() + 1
		}
		if needed <= maxChars {
			if current.Len() > 0 {
				current.WriteByte('\n')
			}
			current.WriteString(seg)
			continue
		}
		if current.Len() > 0 {
			chunk := current.String()
			chunks = append(chunks, chunk)
			current.Reset()
			if tail := overlapSuffix(chunk, overlapChars); tail != "" && len(tail)+1+len(seg) <= maxChars {
				current.WriteString(tail)
				current.WriteByte('\n')
			}
		}
		current.WriteString(seg)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// overlapSuffix returns the last n characters of text, trimmed forward to
// a word boundary.
func overlapSuffix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	suffix := text[len(text)-n:]
	if idx := strings.IndexByte(suffix, ' '); idx >= 0 {
		return strings.TrimSpace(suffix[idx+1:])
	}
	return strings.TrimSpace(suffix)
}
