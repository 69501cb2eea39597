package topic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
)

func TestNewBuilderDefaultsAndTrimsPrefix(t *testing.T) {
	assert.Equal(t, "nwws", NewBuilder("").prefix)
	assert.Equal(t, "nwws", NewBuilder("/nwws/").prefix)
}

func TestBuildUsesVTECPhenomenaAndSignificanceAsProductType(t *testing.T) {
	b := NewBuilder("nwws")
	raw := event.RawIngestEvent{
		Metadata: event.NewMetadata("evt", "test", "trace", time.Now()),
		CCCC:     "KOUN",
		AwipsID:  "TORUON",
	}
	tp := event.TextProductEvent{
		RawIngestEvent: raw,
		Product: &event.TextProduct{
			Segments: []event.Segment{{VTEC: []event.VTEC{{Phenomena: "TO", Significance: "W"}}}},
		},
	}
	tp.ProductID = "TOR"

	assert.Equal(t, "nwws/KOUN/TO.W/TORUON/TOR", b.Build(tp))
}

func TestBuildFallsBackToAwipsIDPrefixWithoutVTEC(t *testing.T) {
	b := NewBuilder("nwws")
	raw := event.RawIngestEvent{
		Metadata: event.NewMetadata("evt", "test", "trace", time.Now()),
		CCCC:     "KOUN",
		AwipsID:  "AFDOUN",
	}
	tp := event.TextProductEvent{RawIngestEvent: raw, Product: &event.TextProduct{}}

	assert.Equal(t, "nwws/KOUN/AFD/AFDOUN/UNKNOWN", b.Build(tp))
}

func TestBuildUsesGeneralDefaultsForMissingFields(t *testing.T) {
	b := NewBuilder("nwws")
	raw := event.RawIngestEvent{Metadata: event.NewMetadata("evt", "test", "trace", time.Now())}

	assert.Equal(t, "nwws/GENERAL/GENERAL/GENERAL/UNKNOWN", b.Build(raw))
}

func TestBuildSanitizesWildcardCharacters(t *testing.T) {
	b := NewBuilder("nwws")
	raw := event.RawIngestEvent{
		Metadata: event.NewMetadata("evt", "test", "trace", time.Now()),
		CCCC:     "KO/UN",
		AwipsID:  "TOR#OUN",
	}

	got := b.Build(raw)
	assert.NotContains(t, got, "#")
	assert.Contains(t, got, "KO_UN")
}
