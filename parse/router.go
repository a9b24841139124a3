package parse

import (
	"bytes"
	"context"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	strata "github.com/hexleaf/strata"
)

// Route maps a path glob to an ordered parser chain, overriding
// extension-based selection for matching files. Patterns follow
// path.Match syntax and are tried against both the full path and its
// base name.
type Route struct {
	Pattern string
	Parsers []string
}

// Router selects the ordered list of candidate parsers for a file:
// directory routes first, then extension match, then content sniffing
// when the extension is ambiguous or absent. Candidate order is the
// fallback chain.
type Router struct {
	parsers map[string]Parser
	byExt   map[string][]string
	routes  []Route
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		parsers: make(map[string]Parser),
		byExt:   make(map[string][]string),
	}
}

// Register adds a parser under name and appends it to the chain of every
// listed extension. Registration order within an extension defines
// primary and fallbacks.
func (r *Router) Register(name string, p Parser, exts ...string) {
	r.parsers[name] = p
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		r.byExt[ext] = append(r.byExt[ext], name)
	}
}

// AddRoute installs a directory routing rule. Routes are evaluated in
// installation order; the first match wins.
func (r *Router) AddRoute(pattern string, parsers ...string) {
	r.routes = append(r.routes, Route{Pattern: pattern, Parsers: parsers})
}

// Parser returns a registered parser by name.
func (r *Router) Parser(name string) (Parser, bool) {
	p, ok := r.parsers[name]
	return p, ok
}

// Candidates returns the ordered candidate parsers for the file. head is
// an optional prefix of the file content used for sniffing; 512 bytes is
// enough. Returns strata.ErrUnsupportedFormat when nothing matches —
// callers record the file as skipped, not failed.
func (r *Router) Candidates(filename string, head []byte) ([]Parser, error) {
	if names := r.routeMatch(filename); len(names) > 0 {
		return r.resolve(names)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if names, ok := r.byExt[ext]; ok {
		return r.resolve(names)
	}

	if ext := sniffExtension(head); ext != "" {
		if names, ok := r.byExt[ext]; ok {
			return r.resolve(names)
		}
	}

	return nil, strata.ErrUnsupportedFormat
}

func (r *Router) routeMatch(filename string) []string {
	clean := filepath.ToSlash(filename)
	base := path.Base(clean)
	for _, rt := range r.routes {
		if ok, _ := path.Match(rt.Pattern, clean); ok {
			return rt.Parsers
		}
		if ok, _ := path.Match(rt.Pattern, base); ok {
			return rt.Parsers
		}
	}
	return nil
}

func (r *Router) resolve(names []string) ([]Parser, error) {
	out := make([]Parser, 0, len(names))
	for _, n := range names {
		p, ok := r.parsers[n]
		if !ok {
			return nil, &strata.ConfigError{Field: "parser", Reason: "unknown parser " + n}
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, strata.ErrUnsupportedFormat
	}
	return out, nil
}

// sniffExtension maps detected content to the extension namespace used at
// registration. http.DetectContentType covers the common magic numbers
// (PDF, zip containers, HTML, UTF text); JSON is recognized by shape
// since the sniffer reports it as plain text.
func sniffExtension(head []byte) string {
	if len(head) == 0 {
		return ""
	}
	ct := http.DetectContentType(head)
	switch {
	case strings.HasPrefix(ct, "application/pdf"):
		return "pdf"
	case strings.HasPrefix(ct, "application/zip"):
		// OOXML containers are zip files; docx is the only one routed.
		return "docx"
	case strings.HasPrefix(ct, "text/html"):
		return "html"
	case strings.HasPrefix(ct, "text/plain"):
		trimmed := bytes.TrimSpace(head)
		if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			return "json"
		}
		return "txt"
	}
	return ""
}

// ParseWithFallback runs the candidate chain over content until one
// parser yields chunks. A parser that errors, or that yields zero chunks
// for non-empty input, hands over to the next candidate. When every
// candidate is exhausted the last error is returned wrapped as a
// ParseError; the parser name that succeeded is returned otherwise.
func ParseWithFallback(ctx context.Context, candidates []Parser, content []byte) ([]RawChunk, string, error) {
	var lastErr error
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		chunks, err := p.Parse(ctx, bytes.NewReader(content))
		if err != nil {
			lastErr = &strata.ParseError{Parser: p.Name(), Err: err}
			continue
		}
		if len(chunks) == 0 && len(bytes.TrimSpace(content)) > 0 {
			lastErr = &strata.ParseError{Parser: p.Name(), Err: errNoChunks}
			continue
		}
		return chunks, p.Name(), nil
	}
	if lastErr == nil {
		lastErr = strata.ErrUnsupportedFormat
	}
	return nil, "", lastErr
}

var errNoChunks = errNoChunksType{}

type errNoChunksType struct{}

func (errNoChunksType) Error() string { return "no chunks produced for non-empty input" }
