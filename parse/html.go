package parse

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	strata "github.com/hexleaf/strata"
)

// ReadabilityParser extracts the main article content from HTML using the
// readability algorithm. It is the primary HTML parser; boilerplate-heavy
// or malformed pages that defeat it fall through to StripParser via the
// router's fallback chain.
type ReadabilityParser struct {
	cfg Config
}

var _ Parser = (*ReadabilityParser)(nil)

// NewReadabilityParser creates the readability-based HTML parser.
func NewReadabilityParser(cfg Config) *ReadabilityParser {
	return &ReadabilityParser{cfg: cfg.withDefaults()}
}

func (p *ReadabilityParser) Name() string { return "readability" }

func (p *ReadabilityParser) Parse(ctx context.Context, r io.Reader) ([]RawChunk, error) {
	article, err := readability.FromReader(r, nil)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, nil
	}
	var meta strata.Metadata
	if article.Title != "" {
		meta = strata.Metadata{"title": article.Title}
	}
	texts, err := p.cfg.chunkAll(ctx, text)
	if err != nil {
		return nil, err
	}
	return textChunks(texts, meta), nil
}

// StripParser is the fallback HTML parser: it removes tags, scripts,
// styles, and entities without trying to find the main content. Keeps
// everything readability would throw away, which is exactly what makes it
// a safe last resort.
type StripParser struct {
	cfg Config
}

var _ Parser = (*StripParser)(nil)

// NewStripParser creates the tag-stripping HTML parser.
func NewStripParser(cfg Config) *StripParser {
	return &StripParser{cfg: cfg.withDefaults()}
}

func (p *StripParser) Name() string { return "html-strip" }

func (p *StripParser) Parse(ctx context.Context, r io.Reader) ([]RawChunk, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := StripHTML(string(raw))
	if text == "" {
		return nil, nil
	}
	texts, err := p.cfg.chunkAll(ctx, text)
	if err != nil {
		return nil, err
	}
	return textChunks(texts, nil), nil
}

// StripHTML removes HTML tags, script and style bodies, and decodes the
// common entities, collapsing the result into paragraph-separated text.
func StripHTML(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	var tag strings.Builder
	inTag, inSkip := false, false

	for i := 0; i < len(content); {
		r, size := utf8.DecodeRuneInString(content[i:])

		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case inTag:
			if r == '>' || unicode.IsSpace(r) {
				name := strings.ToLower(tag.String())
				switch name {
				case "script", "style":
					inSkip = true
				case "/script", "/style":
					inSkip = false
				}
				if isBlockTag(name) {
					out.WriteByte('\n')
				}
				if r == '>' {
					inTag = false
				} else {
					// consume attributes until '>'
					for i += size; i < len(content) && content[i] != '>'; i++ {
					}
					inTag = false
					i++
					continue
				}
			} else {
				tag.WriteRune(r)
			}
		case inSkip:
		case r == '&':
			if decoded, n := decodeEntity(content[i:]); n > 0 {
				out.WriteString(decoded)
				i += n
				continue
			}
			out.WriteRune(r)
		default:
			out.WriteRune(r)
		}
		i += size
	}

	return collapseBlank(out.String())
}

func isBlockTag(tag string) bool {
	switch strings.TrimPrefix(tag, "/") {
	case "p", "div", "br", "hr", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "ul", "ol", "table", "tr", "blockquote", "pre",
		"section", "article", "header", "footer", "nav", "main":
		return true
	}
	return false
}

var namedEntities = map[string]string{
	"&amp;":  "&",
	"&lt;":   "<",
	"&gt;":   ">",
	"&quot;": "\"",
	"&#39;":  "'",
	"&apos;": "'",
	"&nbsp;": " ",
}

// decodeEntity decodes a named or numeric entity at the start of s,
// returning the decoded text and bytes consumed (0 when not an entity).
func decodeEntity(s string) (string, int) {
	end := strings.IndexByte(s[:min(len(s), 12)], ';')
	if end <= 0 {
		return "", 0
	}
	entity := s[:end+1]
	if decoded, ok := namedEntities[entity]; ok {
		return decoded, end + 1
	}
	if len(entity) > 3 && entity[1] == '#' {
		inner := entity[2 : len(entity)-1]
		base := 10
		if inner[0] == 'x' || inner[0] == 'X' {
			base = 16
			inner = inner[1:]
		}
		var cp int64
		for _, c := range inner {
			var d int64
			switch {
			case c >= '0' && c <= '9':
				d = int64(c - '0')
			case base == 16 && c >= 'a' && c <= 'f':
				d = int64(c-'a') + 10
			case base == 16 && c >= 'A' && c <= 'F':
				d = int64(c-'A') + 10
			default:
				return "", 0
			}
			cp = cp*int64(base) + d
		}
		if cp > 0 && cp <= 0x10FFFF {
			return string(rune(cp)), end + 1
		}
	}
	return "", 0
}

// collapseBlank trims lines and collapses runs of blank lines into single
// paragraph breaks.
func collapseBlank(text string) string {
	var out strings.Builder
	blank := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			blank++
			continue
		}
		if out.Len() > 0 {
			if blank > 0 {
				out.WriteString("\n\n")
			} else {
				out.WriteByte('\n')
			}
		}
		out.WriteString(line)
		blank = 0
	}
	return strings.TrimSpace(out.String())
}
