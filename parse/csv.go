package parse

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	strata "github.com/hexleaf/strata"
)

// CSVParser turns tabular data into embeddable text. The first row is
// treated as headers; each subsequent row becomes a labeled paragraph
// "Header1: Value1, Header2: Value2" so column meaning survives
// embedding. Rows are streamed, not buffered whole.
type CSVParser struct {
	cfg Config
}

var _ Parser = (*CSVParser)(nil)

// NewCSVParser creates a CSV parser with the given chunking config.
func NewCSVParser(cfg Config) *CSVParser {
	return &CSVParser{cfg: cfg.withDefaults()}
}

func (p *CSVParser) Name() string { return "csv" }

func (p *CSVParser) Parse(ctx context.Context, r io.Reader) ([]RawChunk, error) {
	br := newBOMReader(r)
	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read headers: %w", err)
	}

	meta := strata.Metadata{"columns": strings.Join(headers, ", ")}

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
		chunks = append(chunks, textChunks(texts, meta)...)
		window.Reset()
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		var row []string
		for i, val := range record {
			val = strings.TrimSpace(val)
			if val == "" {
				continue
			}
			label := fmt.Sprintf("col%d", i+1)
			if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
				label = strings.TrimSpace(headers[i])
			}
			row = append(row, label+": "+val)
		}
		if len(row) == 0 {
			continue
		}
		if window.Len() > 0 {
			window.WriteString("\n\n")
		}
		window.WriteString(strings.Join(row, ", "))
		if window.Len() >= maxTextWindow {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// newBOMReader strips a UTF-8 BOM when present.
func newBOMReader(r io.Reader) io.Reader {
	var head [3]byte
	n, _ := io.ReadFull(r, head[:])
	if n == 3 && bytes.Equal(head[:], []byte{0xef, 0xbb, 0xbf}) {
		return r
	}
	return io.MultiReader(bytes.NewReader(head[:n]), r)
}
