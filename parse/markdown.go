package parse

import (
	"context"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	strata "github.com/hexleaf/strata"
)

// MarkdownParser extracts markdown through the goldmark AST, grouping
// content under its nearest heading so every chunk carries "heading" and
// "heading_level" metadata.
type MarkdownParser struct {
	cfg Config
	md  goldmark.Markdown
}

var _ Parser = (*MarkdownParser)(nil)

// NewMarkdownParser creates a markdown parser with the given chunking
// config.
func NewMarkdownParser(cfg Config) *MarkdownParser {
	return &MarkdownParser{cfg: cfg.withDefaults(), md: goldmark.New()}
}

func (p *MarkdownParser) Name() string { return "markdown" }

type mdSection struct {
	heading string
	level   int
	text    strings.Builder
}

func (p *MarkdownParser) Parse(ctx context.Context, r io.Reader) ([]RawChunk, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(source))) == 0 {
		return nil, nil
	}

	doc := p.md.Parser().Parse(gmtext.NewReader(source))

	sections := []*mdSection{{}}
	current := func() *mdSection { return sections[len(sections)-1] }

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			sections = append(sections, &mdSection{
				heading: string(nodeText(node, source)),
				level:   node.Level,
			})
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock, *ast.CodeBlock, *ast.FencedCodeBlock:
			sec := current()
			if sec.text.Len() > 0 {
				sec.text.WriteString("\n\n")
			}
			writeLines(&sec.text, n, source)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	var chunks []RawChunk
	for _, sec := range sections {
		body := strings.TrimSpace(sec.text.String())
		if body == "" && sec.heading == "" {
			continue
		}
		var meta strata.Metadata
		if sec.heading != "" {
			meta = strata.Metadata{"heading": sec.heading, "heading_level": sec.level}
			if body == "" {
				body = sec.heading
			}
		}
		texts, err := p.cfg.chunkAll(ctx, body)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, textChunks(texts, meta)...)
	}
	return chunks, nil
}

// writeLines appends the raw source lines of a block node.
func writeLines(b *strings.Builder, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
}

// nodeText collects the literal text of a node's inline children.
func nodeText(n ast.Node, source []byte) []byte {
	var out []byte
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			out = append(out, t.Segment.Value(source)...)
			continue
		}
		out = append(out, nodeText(c, source)...)
	}
	return out
}
