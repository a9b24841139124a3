package parse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	strata "github.com/hexleaf/strata"
)

// PDFParser extracts text page by page. Every chunk carries a "page"
// metadata entry pointing at the page it came from. The PDF format needs
// random access, so the file is read fully before parsing.
type PDFParser struct {
	cfg Config
}

var _ Parser = (*PDFParser)(nil)

// NewPDFParser creates a PDF parser with the given chunking config.
func NewPDFParser(cfg Config) *PDFParser {
	return &PDFParser{cfg: cfg.withDefaults()}
}

func (p *PDFParser) Name() string { return "pdf" }

func (p *PDFParser) Parse(ctx context.Context, r io.Reader) ([]RawChunk, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var chunks []RawChunk
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// Damaged pages are skipped; the rest of the document still
			// yields chunks.
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		texts, err := p.cfg.chunkAll(ctx, pageText)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, textChunks(texts, strata.Metadata{"page": i})...)
	}
	return chunks, nil
}
