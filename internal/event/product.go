package event

import "time"

// TextProduct is the parsed representation of a NOAAPort text
// product: one or more segments, each optionally carrying VTEC/HVTEC
// records and a UGC zone list, plus product-level headline and
// classification fields.
type TextProduct struct {
	WMOHeader     string
	AwipsID       string
	IssuedAt      time.Time
	Segments      []Segment
	Headlines     []string
	Tags          []string
	Bullets       []string
	IsEmergency   bool
}

// Segment is one `$$`-delimited portion of a text product body.
type Segment struct {
	Text  string
	UGC   []UGCEntry
	VTEC  []VTEC
	HVTEC []HVTEC
}

// VTEC is a Valid Time Event Code record: the primary topic-routing
// key for watches, warnings, and advisories.
//
//	/O.NEW.KTBW.TO.W.0123.230713T1915Z-230713T2000Z/
type VTEC struct {
	Line         string
	Status       string // O, T, E, X
	Action       string // NEW, CON, EXT, EXP, CAN, ...
	Office       string // 3-letter office id
	Office4      string // 4-letter office id (K/P + Office)
	Phenomena    string // 2-char phenomena code, e.g. "TO"
	Significance string // 1-char significance code, e.g. "W"
	ETN          int    // event tracking number
	BeginTS      *time.Time
	EndTS        *time.Time
	Year         *int
}

// HVTEC is a Hydrologic VTEC record, carried alongside a VTEC record
// on flood-related products.
type HVTEC struct {
	NWSLI             string
	Severity          string
	ImmediateCause    string
	FloodRecordStatus string
	BeginTS           *time.Time
	CrestTS           *time.Time
	EndTS             *time.Time
}

// UGCEntry is one entry in a Universal Geographic Code zone/county
// list, after expansion against the UGC lookup table.
type UGCEntry struct {
	Code      string // e.g. "FLZ052" or "FLC057"
	Name      string
	State     string
	PurgeTime *time.Time
}

// FirstVTEC returns the first VTEC record found across all segments,
// in segment order, or nil if the product carries none. The topic
// builder uses this to decide whether a product routes by
// phenomena.significance or falls back to its AWIPS id.
func (p *TextProduct) FirstVTEC() *VTEC {
	if p == nil {
		return nil
	}
	for i := range p.Segments {
		if len(p.Segments[i].VTEC) > 0 {
			return &p.Segments[i].VTEC[0]
		}
	}
	return nil
}
