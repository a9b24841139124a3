package parse

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	strata "github.com/hexleaf/strata"
)

// maxZipEntrySize caps decompressed size of a single archive entry to
// guard against zip bombs (100 MB).
const maxZipEntrySize = 100 << 20

// DOCXParser streams OOXML tokens out of word/document.xml without
// building a DOM. Paragraphs styled Heading1..9 group the following
// content into sections, giving chunks "heading" metadata like the
// markdown parser.
type DOCXParser struct {
	cfg Config
}

var _ Parser = (*DOCXParser)(nil)

// NewDOCXParser creates a DOCX parser with the given chunking config.
func NewDOCXParser(cfg Config) *DOCXParser {
	return &DOCXParser{cfg: cfg.withDefaults()}
}

func (p *DOCXParser) Name() string { return "docx" }

func (p *DOCXParser) Parse(ctx context.Context, r io.Reader) ([]RawChunk, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, nil
	}
	docXML, err := readDocumentXML(content)
	if err != nil {
		return nil, err
	}

	sections, err := docxSections(docXML)
	if err != nil {
		return nil, err
	}

	var chunks []RawChunk
	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body := strings.TrimSpace(sec.text.String())
		if body == "" {
			if sec.heading == "" {
				continue
			}
			body = sec.heading
		}
		var meta strata.Metadata
		if sec.heading != "" {
			meta = strata.Metadata{"heading": sec.heading}
		}
		texts, err := p.cfg.chunkAll(ctx, body)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, textChunks(texts, meta)...)
	}
	return chunks, nil
}

// readDocumentXML pulls word/document.xml out of the OOXML container.
func readDocumentXML(content []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open docx container: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxZipEntrySize))
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("docx: missing word/document.xml")
}

type docxSection struct {
	heading string
	text    strings.Builder
}

// docxSections walks the OOXML token stream collecting paragraph text,
// starting a new section at every Heading-styled paragraph.
func docxSections(docXML []byte) ([]*docxSection, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	sections := []*docxSection{{}}
	current := func() *docxSection { return sections[len(sections)-1] }

	var para strings.Builder
	var paraStyle string
	inPara := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				para.Reset()
				paraStyle = ""
			case "pStyle":
				for _, attr := range t.Attr {
					if attr.Name.Local == "val" {
						paraStyle = attr.Value
					}
				}
			case "tab":
				if inPara {
					para.WriteByte('\t')
				}
			case "br":
				if inPara {
					para.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inPara {
				para.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local != "p" {
				continue
			}
			inPara = false
			text := strings.TrimSpace(para.String())
			if text == "" {
				continue
			}
			if strings.HasPrefix(paraStyle, "Heading") {
				sections = append(sections, &docxSection{heading: text})
				continue
			}
			sec := current()
			if sec.text.Len() > 0 {
				sec.text.WriteString("\n\n")
			}
			sec.text.WriteString(text)
		}
	}
	return sections, nil
}
