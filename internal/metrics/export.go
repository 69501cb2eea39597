package metrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ExportPrometheus renders the registry's current snapshot as
// Prometheus text exposition format, with TYPE/HELP lines per metric
// name and labels in deterministic sorted order.
func (r *Registry) ExportPrometheus() string {
	snapshots := r.Snapshot()

	byName := make(map[string][]Snapshot)
	var names []string
	for _, s := range snapshots {
		if _, ok := byName[s.Name]; !ok {
			names = append(names, s.Name)
		}
		byName[s.Name] = append(byName[s.Name], s)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		group := byName[name]
		promType := promTypeName(group[0].Type)
		fmt.Fprintf(&b, "# HELP %s %s\n", name, name)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, promType)
		for _, s := range group {
			labelStr := formatLabels(s.Labels)
			switch s.Type {
			case KindHistogram:
				bounds := sortedBounds(s.Buckets)
				for _, bound := range bounds {
					fmt.Fprintf(&b, "%s_bucket%s\n", name, formatLabelsWithExtra(s.Labels, "le", formatFloat(bound), s.Buckets[bound]))
				}
				fmt.Fprintf(&b, "%s_sum%s %s\n", name, labelStr, formatFloat(s.Sum))
				fmt.Fprintf(&b, "%s_count%s %d\n", name, labelStr, s.Count)
			default:
				fmt.Fprintf(&b, "%s%s %s\n", name, labelStr, formatFloat(s.Value))
			}
		}
	}
	return b.String()
}

func promTypeName(k Kind) string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatLabelsWithExtra(labels map[string]string, extraKey, extraVal string, count uint64) string {
	merged := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		merged[k] = v
	}
	merged[extraKey] = extraVal
	return formatLabels(merged) + " " + strconv.FormatUint(count, 10)
}

func sortedBounds(buckets map[float64]uint64) []float64 {
	bounds := make([]float64, 0, len(buckets))
	for b := range buckets {
		bounds = append(bounds, b)
	}
	sort.Float64s(bounds)
	return bounds
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// JSONMetric is one entry in the /metrics/json array.
type JSONMetric struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels"`
	Type   string            `json:"type"`
	Value  float64           `json:"value"`
}

// JSONExport is the full payload served at /metrics/json.
type JSONExport struct {
	Timestamp string       `json:"timestamp"`
	Metrics   []JSONMetric `json:"metrics"`
}

// ExportJSON renders the registry's current snapshot as structured
// JSON: histograms are flattened to their sum and count entries.
func (r *Registry) ExportJSON(timestamp string) ([]byte, error) {
	snapshots := r.Snapshot()
	out := make([]JSONMetric, 0, len(snapshots))
	for _, s := range snapshots {
		if s.Type == KindHistogram {
			out = append(out, JSONMetric{Name: s.Name + "_sum", Labels: s.Labels, Type: "histogram", Value: s.Sum})
			out = append(out, JSONMetric{Name: s.Name + "_count", Labels: s.Labels, Type: "histogram", Value: float64(s.Count)})
			continue
		}
		out = append(out, JSONMetric{Name: s.Name, Labels: s.Labels, Type: promTypeName(s.Type), Value: s.Value})
	}
	return json.Marshal(JSONExport{Timestamp: timestamp, Metrics: out})
}
