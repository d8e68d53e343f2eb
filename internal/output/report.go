package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/chartship/internal/chart"
)

// Format selects the serialization of a change-set report.
type Format string

const (
	// FormatText is a plain one-chart-per-line listing.
	FormatText Format = "text"
	// FormatJSON is indented JSON.
	FormatJSON Format = "json"
	// FormatYAML is YAML with alphabetically sorted keys.
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be text, json, or yaml", s)
	}
}

// Report is the result of one change-detection run.
type Report struct {
	// Marker is the resolved release marker (tag or root commit).
	Marker string `json:"marker"`
	// Policy is the detection policy that produced the change set.
	Policy string `json:"policy"`
	// Charts is the ordered change set.
	Charts []ReportEntry `json:"charts"`
}

// ReportEntry describes one chart in the change set.
type ReportEntry struct {
	Name string `json:"name"`
	// Version is empty under the diff policy, which works from historical
	// paths rather than current descriptors.
	Version string `json:"version,omitempty"`
	Dir     string `json:"dir"`
	// Tag is the release tag the chart will be published under. Empty when
	// the version is unknown.
	Tag string `json:"tag,omitempty"`
}

// NewReport builds a Report from a detected change set.
func NewReport(marker, policy string, charts []chart.Chart) *Report {
	r := &Report{
		Marker: marker,
		Policy: policy,
		Charts: []ReportEntry{},
	}

	for _, c := range charts {
		e := ReportEntry{Name: c.Name, Version: c.Version, Dir: c.Dir}
		if c.Version != "" {
			e.Tag = c.ReleaseTag()
		}

		r.Charts = append(r.Charts, e)
	}

	return r
}

// Serialize renders the report in the requested format.
func (r *Report) Serialize(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("serializing report as JSON: %w", err)
		}

		return append(data, '\n'), nil
	case FormatYAML:
		data, err := sigsyaml.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("serializing report as YAML: %w", err)
		}

		return data, nil
	default:
		return r.text(), nil
	}
}

// text renders the plain listing: one chart per line, version appended when
// known.
func (r *Report) text() []byte {
	var buf bytes.Buffer

	for _, e := range r.Charts {
		if e.Version != "" {
			fmt.Fprintf(&buf, "%s %s\n", e.Name, e.Version)
		} else {
			fmt.Fprintf(&buf, "%s\n", e.Name)
		}
	}

	return buf.Bytes()
}
