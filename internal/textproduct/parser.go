// Package textproduct parses a NOAAPort-framed NWS text product body
// into the structured event.TextProduct the rest of the pipeline
// operates on: segments, VTEC/HVTEC records, UGC zone lists,
// headlines, and classification tags.
package textproduct

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
	"github.com/nwws-bridge/nwws-bridge/internal/ugc"
	"github.com/nwws-bridge/nwws-bridge/internal/util"
)

// Parser converts a raw NOAAPort body into a structured TextProduct.
type Parser interface {
	Parse(raw []byte) (*event.TextProduct, error)
}

// Default is the built-in parser grounded on the wire format
// documented for NOAAPort text products: SOH/ETX framing, `$$`
// segment delimiters, and the VTEC/HVTEC/UGC line grammar.
type Default struct {
	lookup *ugc.Table
}

// NewDefault builds a parser that expands UGC codes against lookup.
// A nil lookup means UGC entries keep their code but no name/state.
func NewDefault(lookup *ugc.Table) *Default {
	return &Default{lookup: lookup}
}

var (
	vtecPattern = regexp.MustCompile(
		`/([OTEX])\.([A-Z]{3})\.([A-Z]{3,4})\.([A-Z]{2})\.([WAY])\.(\d{4})\.(\d{6}T\d{4}Z)?-(\d{6}T\d{4}Z)?/`)
	ugcLinePattern = regexp.MustCompile(`(?m)^([A-Z]{2}[CZ]\d{3}(?:[->-][A-Z0-9]{3})*(?:-[A-Z0-9]{3})*-)\s*$`)
	wmoHeaderPattern = regexp.MustCompile(`(?m)^([A-Z]{4}\d{2})\s+([A-Z]{4})\s+(\d{6})`)
	pilPattern       = regexp.MustCompile(`(?m)^([A-Z0-9]{3,6})\s*$`)
)

// Parse strips NOAAPort framing and splits the body into `$$`
// segments, extracting VTEC/HVTEC/UGC records and headline text from
// each.
func (p *Default) Parse(raw []byte) (*event.TextProduct, error) {
	text := unframe(raw)

	product := &event.TextProduct{}

	if m := wmoHeaderPattern.FindStringSubmatch(text); m != nil {
		product.WMOHeader = m[1] + " " + m[2] + " " + m[3]
	}
	if m := pilPattern.FindStringSubmatch(firstNonHeaderLine(text)); m != nil {
		product.AwipsID = m[1]
	}

	rawSegments := strings.Split(text, "$$")
	for _, raw := range rawSegments {
		seg := strings.TrimSpace(raw)
		if seg == "" {
			continue
		}
		parsed := p.parseSegment(seg)
		product.Segments = append(product.Segments, parsed)

		product.Headlines = append(product.Headlines, extractHeadlines(seg)...)
		product.Bullets = append(product.Bullets, extractBullets(seg)...)
		product.Tags = append(product.Tags, classifyTags(seg)...)
		if strings.Contains(strings.ToUpper(seg), "PARTICULARLY DANGEROUS SITUATION") ||
			strings.Contains(strings.ToUpper(seg), "TORNADO EMERGENCY") {
			product.IsEmergency = true
		}
	}

	return product, nil
}

func (p *Default) parseSegment(text string) event.Segment {
	seg := event.Segment{Text: text}

	for _, m := range vtecPattern.FindAllStringSubmatch(text, -1) {
		v := event.VTEC{
			Line:         m[0],
			Status:       m[1],
			Action:       m[2],
			Office:       last3(m[3]),
			Office4:      m[3],
			Phenomena:    m[4],
			Significance: m[5],
		}
		if etn, err := strconv.Atoi(m[6]); err == nil {
			v.ETN = etn
		}
		if ts := parseVTECTimestamp(m[7]); ts != nil {
			v.BeginTS = ts
		}
		if ts := parseVTECTimestamp(m[8]); ts != nil {
			v.EndTS = ts
		}
		seg.VTEC = append(seg.VTEC, v)
	}

	for _, m := range ugcLinePattern.FindAllStringSubmatch(text, -1) {
		for _, code := range expandUGCList(m[1]) {
			entry := event.UGCEntry{Code: code}
			if p.lookup != nil {
				if name, state, ok := p.lookup.Lookup(code); ok {
					entry.Name = name
					entry.State = state
				}
			}
			seg.UGC = append(seg.UGC, entry)
		}
	}

	return seg
}

func last3(office string) string {
	if len(office) == 4 {
		return office[1:]
	}
	return office
}

func parseVTECTimestamp(s string) *time.Time {
	if s == "" || s == "000000T0000Z" {
		return nil
	}
	t, err := time.Parse("060102T1504Z", s)
	if err != nil {
		return nil
	}
	return util.Ptr(t)
}

// expandUGCList expands a dash/hyphen-joined UGC string like
// "FLZ052-053-056>058-" into individual codes, carrying forward the
// state+category prefix across bare numeric continuations.
func expandUGCList(raw string) []string {
	raw = strings.TrimSuffix(raw, "-")
	parts := strings.Split(raw, "-")

	var codes []string
	var prefix string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(part) >= 3 && isAlpha(part[:2]) {
			prefix = part[:3]
			codes = append(codes, part)
			continue
		}
		if strings.Contains(part, ">") {
			bounds := strings.SplitN(part, ">", 2)
			if len(bounds) == 2 {
				start, err1 := strconv.Atoi(bounds[0])
				end, err2 := strconv.Atoi(bounds[1])
				if err1 == nil && err2 == nil {
					for n := start; n <= end; n++ {
						codes = append(codes, prefix+pad3(n))
					}
					continue
				}
			}
		}
		codes = append(codes, prefix+part)
	}
	return codes
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func pad3(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

var headlinePattern = regexp.MustCompile(`(?m)^\.\.\.(.+?)\.\.\.\s*$`)

func extractHeadlines(seg string) []string {
	var out []string
	for _, m := range headlinePattern.FindAllStringSubmatch(seg, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

var bulletPattern = regexp.MustCompile(`(?m)^\* (.+)$`)

func extractBullets(seg string) []string {
	var out []string
	for _, m := range bulletPattern.FindAllStringSubmatch(seg, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func classifyTags(seg string) []string {
	upper := strings.ToUpper(seg)
	var tags []string
	checks := map[string]string{
		"TORNADO":        "tornado",
		"HAIL":           "hail",
		"WIND":           "wind",
		"FLOOD":          "flood",
		"FLASH FLOOD":    "flash_flood",
		"WINTER STORM":   "winter_storm",
		"THUNDERSTORM":   "thunderstorm",
	}
	for phrase, tag := range checks {
		if strings.Contains(upper, phrase) {
			tags = append(tags, tag)
		}
	}
	return tags
}

func firstNonHeaderLine(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// unframe strips SOH/ETX bytes and reverses the CR-CR-LF line-ending
// convention NOAAPort framing applies on the wire.
func unframe(raw []byte) string {
	s := string(raw)
	s = strings.TrimPrefix(s, "\x01")
	s = strings.TrimSuffix(s, "\x03")
	s = strings.ReplaceAll(s, "\r\r\n", "\n")
	s = strings.TrimRight(s, "\n")
	return s
}
