package parse

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// maxTextWindow bounds how much of a plain-text file is held in memory at
// once. Oversized documents are chunked window by window at paragraph
// boundaries instead of being loaded whole.
const maxTextWindow = 1 << 20

// TextParser handles plain text. Input is streamed paragraph by
// paragraph, so thousand-page text files never sit fully in memory.
type TextParser struct {
	cfg Config
}

var _ Parser = (*TextParser)(nil)

// NewTextParser creates a plain-text parser with the given chunking
// config.
func NewTextParser(cfg Config) *TextParser {
	return &TextParser{cfg: cfg.withDefaults()}
}

func (p *TextParser) Name() string { return "text" }

func (p *TextParser) Parse(ctx context.Context, r io.Reader) ([]RawChunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxTextWindow)

	var chunks []RawChunk
	var window strings.Builder

	flush := func() error {
		if window.Len() == 0 {
			return nil
		}
		texts, err := p.cfg.chunkAll(ctx, window.String())
		if err != nil {
			return err
		}
		chunks = append(chunks, textChunks(texts, nil)...)
		window.Reset()
		return nil
	}

	blank := false
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			// Paragraph boundary: safe place to cut the window.
			if window.Len() >= maxTextWindow {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			blank = true
			continue
		}
		if blank && window.Len() > 0 {
			window.WriteString("\n\n")
		} else if window.Len() > 0 {
			window.WriteByte('\n')
		}
		blank = false
		window.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return chunks, nil
}
