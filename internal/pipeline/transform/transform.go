// Package transform implements the pipeline's event-enrichment
// stage: parsing a raw NOAAPort body into a structured text product,
// extracting embedded XML, and chaining transformers together.
package transform

import (
	"regexp"
	"strings"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
	"github.com/nwws-bridge/nwws-bridge/internal/textproduct"
	"github.com/nwws-bridge/nwws-bridge/logger"
)

// Transformer converts one event variant into another, or returns its
// input unchanged when the variant isn't one it understands.
type Transformer interface {
	ID() string
	Transform(e event.Event) event.Event
}

// NOAAPortTransformer parses a RawIngestEvent's body into a structured
// TextProduct. On parse failure it logs and returns the input
// unchanged so downstream stages can still deliver the raw variant.
type NOAAPortTransformer struct {
	id     string
	parser textproduct.Parser
}

func NewNOAAPortTransformer(id string, parser textproduct.Parser) *NOAAPortTransformer {
	if id == "" {
		id = "noaaport"
	}
	return &NOAAPortTransformer{id: id, parser: parser}
}

func (t *NOAAPortTransformer) ID() string { return t.id }

func (t *NOAAPortTransformer) Transform(e event.Event) event.Event {
	raw, ok := e.(event.RawIngestEvent)
	if !ok {
		return e
	}

	product, err := t.parser.Parse(raw.NoaaportRaw)
	if err != nil {
		logger.Errorw("noaaport parse failed, passing raw event through",
			"product_id", raw.ProductID, "error", err)
		return e
	}

	out := event.TextProductEvent{
		RawIngestEvent: raw,
		Product:        product,
	}
	return out
}

// xmlBlobPattern matches an XML declaration followed by the opening
// tag of the root element, capturing the root tag name. Transform then
// extends the match to the first closing tag with that same name.
var xmlBlobPattern = regexp.MustCompile(`(?s)<\?xml.*?\?>\s*<([A-Za-z_][\w.:-]*)[^>]*>`)

// XMLTransformer looks for an embedded XML document inside a text
// product's segment text and, if found, emits an XmlEvent.
type XMLTransformer struct {
	id string
}

func NewXMLTransformer(id string) *XMLTransformer {
	if id == "" {
		id = "xml"
	}
	return &XMLTransformer{id: id}
}

func (t *XMLTransformer) ID() string { return t.id }

func (t *XMLTransformer) Transform(e event.Event) event.Event {
	tp, ok := e.(event.TextProductEvent)
	if !ok {
		return e
	}

	var body string
	for _, seg := range tp.Product.Segments {
		if m := xmlBlobPattern.FindStringSubmatchIndex(seg.Text); m != nil {
			closing := "</" + seg.Text[m[2]:m[3]] + ">"
			if end := strings.Index(seg.Text[m[1]:], closing); end >= 0 {
				body = seg.Text[m[0] : m[1]+end+len(closing)]
				break
			}
		}
	}
	if body == "" {
		return e
	}

	body = stripControlChars(body)
	body = normalizeLineEndings(body)
	if !strings.HasPrefix(strings.TrimSpace(body), "<?xml") {
		body = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" + body
	}

	return event.XmlEvent{
		RawIngestEvent: tp.RawIngestEvent,
		Body:           body,
	}
}

func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\r' || r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// ChainTransformer applies an ordered list of transformers in
// sequence, feeding each stage's output to the next.
type ChainTransformer struct {
	id    string
	steps []Transformer
}

func NewChainTransformer(id string, steps ...Transformer) *ChainTransformer {
	if id == "" {
		id = "chain"
	}
	return &ChainTransformer{id: id, steps: steps}
}

func (t *ChainTransformer) ID() string { return t.id }

func (t *ChainTransformer) Transform(e event.Event) event.Event {
	for _, step := range t.steps {
		e = step.Transform(e)
	}
	return e
}
