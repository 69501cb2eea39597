// Package topic builds deterministic MQTT topic strings from
// processed events, following the default template
// "{prefix}/{cccc}/{product_type}/{awipsid}/{product_id}".
package topic

import (
	"strings"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
)

// Builder computes an MQTT topic for a processed event.
type Builder struct {
	prefix string
}

// NewBuilder constructs a Builder with the given topic prefix (e.g.
// "nwws"). An empty prefix defaults to "nwws".
func NewBuilder(prefix string) *Builder {
	if prefix == "" {
		prefix = "nwws"
	}
	return &Builder{prefix: strings.Trim(prefix, "/")}
}

// Build returns the topic for e. It never returns the empty string:
// a missing CCCC or AWIPS id falls back to GENERAL, and any component
// that is still empty (such as a missing product id) becomes UNKNOWN.
func (b *Builder) Build(e event.Event) string {
	cccc := "GENERAL"
	awipsID := "GENERAL"
	productID := ""

	switch v := e.(type) {
	case event.TextProductEvent:
		cccc = orDefault(strings.TrimSpace(v.CCCC), "GENERAL")
		awipsID = orDefault(strings.TrimSpace(v.AwipsID), "GENERAL")
		productID = strings.TrimSpace(v.ProductID)
	case event.XmlEvent:
		cccc = orDefault(strings.TrimSpace(v.CCCC), "GENERAL")
		awipsID = orDefault(strings.TrimSpace(v.AwipsID), "GENERAL")
		productID = strings.TrimSpace(v.ProductID)
	case event.RawIngestEvent:
		cccc = orDefault(strings.TrimSpace(v.CCCC), "GENERAL")
		awipsID = orDefault(strings.TrimSpace(v.AwipsID), "GENERAL")
		productID = strings.TrimSpace(v.ProductID)
	}

	productType := productTypeOf(e, awipsID)

	parts := []string{b.prefix, sanitize(cccc), sanitize(productType), sanitize(awipsID), sanitize(productID)}
	return strings.Join(parts, "/")
}

func productTypeOf(e event.Event, awipsID string) string {
	switch v := e.(type) {
	case event.TextProductEvent:
		if first := v.Product.FirstVTEC(); first != nil {
			return first.Phenomena + "." + first.Significance
		}
		return first3OrLiteral(awipsID, "GENERAL")
	case event.XmlEvent:
		if v.AwipsID == "" {
			return "XML"
		}
		return first3OrLiteral(awipsID, "XML")
	default:
		return first3OrLiteral(awipsID, "GENERAL")
	}
}

func first3OrLiteral(awipsID, fallback string) string {
	upper := strings.ToUpper(awipsID)
	if upper == "" || upper == "GENERAL" {
		return fallback
	}
	if len(upper) < 3 {
		return upper
	}
	return upper[:3]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// sanitize makes a topic component safe: non-empty, no slashes, no
// MQTT wildcard characters.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "UNKNOWN"
	}
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "+", "_")
	s = strings.ReplaceAll(s, "#", "_")
	return s
}
