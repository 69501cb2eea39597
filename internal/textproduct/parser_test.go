package textproduct

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwws-bridge/nwws-bridge/internal/ugc"
)

func frame(body string) []byte {
	return []byte("\x01" + body + "\r\r\n\x03")
}

func TestParseExtractsWMOHeaderAwipsIDAndVTEC(t *testing.T) {
	body := "WFUS54 KOUN 151200\r\r\n" +
		"TORUON\r\r\n\r\r\n" +
		"...TORNADO WARNING...\r\r\n\r\r\n" +
		"/O.NEW.KOUN.TO.W.0123.261231T1200Z-261231T1300Z/\r\r\n" +
		"OKC017-018-\r\r\n\r\r\n" +
		"* AT 1200Z A SEVERE THUNDERSTORM WAS LOCATED\r\r\n" +
		"$$"

	p := NewDefault(nil)
	product, err := p.Parse(frame(body))
	require.NoError(t, err)

	assert.Equal(t, "WFUS54 KOUN 151200", product.WMOHeader)
	assert.Equal(t, "TORUON", product.AwipsID)
	require.Len(t, product.Segments, 1)

	seg := product.Segments[0]
	require.Len(t, seg.VTEC, 1)
	v := seg.VTEC[0]
	assert.Equal(t, "O", v.Status)
	assert.Equal(t, "NEW", v.Action)
	assert.Equal(t, "OUN", v.Office)
	assert.Equal(t, "KOUN", v.Office4)
	assert.Equal(t, "TO", v.Phenomena)
	assert.Equal(t, "W", v.Significance)
	assert.Equal(t, 123, v.ETN)
	require.NotNil(t, v.BeginTS)
	require.NotNil(t, v.EndTS)

	require.Len(t, seg.UGC, 2)
	assert.Equal(t, "OKC017", seg.UGC[0].Code)
	assert.Equal(t, "OKC018", seg.UGC[1].Code)

	assert.Contains(t, product.Headlines, "TORNADO WARNING")
	assert.Contains(t, product.Bullets, "AT 1200Z A SEVERE THUNDERSTORM WAS LOCATED")
	assert.Contains(t, product.Tags, "tornado")
	assert.Contains(t, product.Tags, "thunderstorm")
}

func TestParseExpandsUGCCodesAgainstLookupTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ugc.csv")
	require.NoError(t, os.WriteFile(path, []byte("OKC017,Oklahoma County,OK\n"), 0o644))
	table, err := ugc.Load(path)
	require.NoError(t, err)

	body := "WFUS54 KOUN 151200\r\r\nTORUON\r\r\n\r\r\nOKC017-\r\r\n$$"
	p := NewDefault(table)
	product, err := p.Parse(frame(body))
	require.NoError(t, err)

	require.Len(t, product.Segments[0].UGC, 1)
	entry := product.Segments[0].UGC[0]
	assert.Equal(t, "Oklahoma County", entry.Name)
	assert.Equal(t, "OK", entry.State)
}

func TestParseFlagsTornadoEmergency(t *testing.T) {
	body := "WFUS54 KOUN 151200\r\r\nTORUON\r\r\n\r\r\nTHIS IS A TORNADO EMERGENCY\r\r\n$$"
	p := NewDefault(nil)
	product, err := p.Parse(frame(body))
	require.NoError(t, err)
	assert.True(t, product.IsEmergency)
}

func TestParseHandlesBodyWithoutRecognizedHeaders(t *testing.T) {
	p := NewDefault(nil)
	product, err := p.Parse(frame("just some plain text with no structure\r\r\n$$"))
	require.NoError(t, err)
	assert.Empty(t, product.WMOHeader)
	require.Len(t, product.Segments, 1)
}
