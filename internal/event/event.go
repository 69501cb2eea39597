package event

import "time"

// Event is the tagged-union interface every pipeline stage operates
// on. The three concrete variants below (RawIngestEvent,
// TextProductEvent, XmlEvent) are the only members of the union;
// stages type-switch on the concrete type where they need
// variant-specific behavior (transformers replacing the variant
// entirely, outputs skipping variants they don't understand).
type Event interface {
	Meta() Metadata
	WithMeta(Metadata) Event
	ContentType() string
	Kind() string
}

// RawIngestEvent is what the receiver produces directly from a NWWS-OI
// stanza: the raw NOAAPort-framed body plus the WMO/AWIPS identifiers
// carried on the stanza itself, before any parsing.
type RawIngestEvent struct {
	Metadata    Metadata
	AwipsID     string
	CCCC        string
	ProductID   string
	Issue       time.Time
	TTAAII      string
	Subject     string
	NoaaportRaw []byte
	DelayStamp  time.Duration
}

func (e RawIngestEvent) Meta() Metadata        { return e.Metadata }
func (e RawIngestEvent) WithMeta(m Metadata) Event {
	e.Metadata = m
	return e
}
func (e RawIngestEvent) ContentType() string { return "application/octet-stream" }
func (e RawIngestEvent) Kind() string        { return "raw_ingest" }

// TextProductEvent is produced by the NOAAPort transformer once the
// raw body has been parsed into structured segments, VTEC/HVTEC
// records, UGC zone lists, and headline text.
type TextProductEvent struct {
	RawIngestEvent
	Product *TextProduct
}

func (e TextProductEvent) Meta() Metadata { return e.Metadata }
func (e TextProductEvent) WithMeta(m Metadata) Event {
	e.Metadata = m
	return e
}
func (e TextProductEvent) ContentType() string { return "application/json" }
func (e TextProductEvent) Kind() string        { return "text_product" }

// XmlEvent is produced by the XML transformer when a text product's
// body contains an embedded XML document (e.g. a CAP alert).
type XmlEvent struct {
	RawIngestEvent
	Body string
}

func (e XmlEvent) Meta() Metadata { return e.Metadata }
func (e XmlEvent) WithMeta(m Metadata) Event {
	e.Metadata = m
	return e
}
func (e XmlEvent) ContentType() string { return "text/xml" }
func (e XmlEvent) Kind() string        { return "xml" }
