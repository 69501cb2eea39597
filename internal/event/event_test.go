package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRawIngestEventWithMetaReturnsNewEventLeavingOriginalUntouched(t *testing.T) {
	m1 := NewMetadata("evt-1", "receiver", "trace-1", time.Now())
	raw := RawIngestEvent{Metadata: m1, AwipsID: "TORUON"}

	m2 := m1.WithStage(StageFilter)
	updated := raw.WithMeta(m2)

	assert.Equal(t, StageIngest, raw.Meta().Stage)
	assert.Equal(t, StageFilter, updated.Meta().Stage)
	assert.Equal(t, "raw_ingest", raw.Kind())
	assert.Equal(t, "application/octet-stream", raw.ContentType())
}

func TestTextProductEventEmbedsRawIngestEvent(t *testing.T) {
	raw := RawIngestEvent{Metadata: NewMetadata("evt-1", "receiver", "trace-1", time.Now()), AwipsID: "TORUON"}
	tp := TextProductEvent{RawIngestEvent: raw, Product: &TextProduct{AwipsID: "TORUON"}}

	assert.Equal(t, "text_product", tp.Kind())
	assert.Equal(t, "TORUON", tp.AwipsID)
	var e Event = tp
	assert.Equal(t, raw.Meta().EventID, e.Meta().EventID)
}

func TestXmlEventKindAndContentType(t *testing.T) {
	raw := RawIngestEvent{Metadata: NewMetadata("evt-1", "receiver", "trace-1", time.Now())}
	xe := XmlEvent{RawIngestEvent: raw, Body: "<alert/>"}

	assert.Equal(t, "xml", xe.Kind())
	assert.Equal(t, "text/xml", xe.ContentType())
}

func TestFirstVTECFindsFirstAcrossSegments(t *testing.T) {
	p := &TextProduct{
		Segments: []Segment{
			{Text: "no vtec here"},
			{VTEC: []VTEC{{Phenomena: "TO", Significance: "W"}}},
		},
	}
	v := p.FirstVTEC()
	if assert.NotNil(t, v) {
		assert.Equal(t, "TO", v.Phenomena)
	}
}

func TestFirstVTECReturnsNilForNilProductOrNoRecords(t *testing.T) {
	var nilProduct *TextProduct
	assert.Nil(t, nilProduct.FirstVTEC())

	empty := &TextProduct{Segments: []Segment{{Text: "x"}}}
	assert.Nil(t, empty.FirstVTEC())
}
