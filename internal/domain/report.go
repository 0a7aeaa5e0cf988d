package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceType is the closed set of search backends a result can come from.
type SourceType uint8

const (
	SourceWeb SourceType = iota + 1
	SourceCodeRepo
	SourceProductLaunch
)

// SourceTypes lists every SourceType in provider order.
var SourceTypes = []SourceType{SourceWeb, SourceCodeRepo, SourceProductLaunch}

// String returns the wire name of t.
func (t SourceType) String() string {
	switch t {
	case SourceWeb:
		return "web"
	case SourceCodeRepo:
		return "code_repo"
	case SourceProductLaunch:
		return "product_launch"
	default:
		return fmt.Sprintf("source(%d)", uint8(t))
	}
}

// ParseSourceType maps a wire name back to a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "web":
		return SourceWeb, nil
	case "code_repo":
		return SourceCodeRepo, nil
	case "product_launch":
		return SourceProductLaunch, nil
	}
	return 0, fmt.Errorf("unknown source type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t SourceType) MarshalText() ([]byte, error) {
	switch t {
	case SourceWeb, SourceCodeRepo, SourceProductLaunch:
		return []byte(t.String()), nil
	}
	return nil, fmt.Errorf("invalid source type %d", uint8(t))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SourceType) UnmarshalText(b []byte) error {
	v, err := ParseSourceType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// SearchResult is a normalized hit from any provider. Rank is the position
// assigned at collection time (provider order, then insertion order) and is
// the deterministic tie-break for ranking.
type SearchResult struct {
	Source   SourceType `json:"source"`
	Provider string     `json:"provider"`
	Title    string     `json:"title"`
	URL      string     `json:"url"`
	Snippet  string     `json:"snippet"`
	Score    float64    `json:"score"`
	Rank     int        `json:"-"`
}

// ThreatLevel classifies how directly a competitor overlaps the idea.
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "low"
	ThreatMedium ThreatLevel = "medium"
	ThreatHigh   ThreatLevel = "high"
)

// Valid reports whether l is one of the known levels.
func (l ThreatLevel) Valid() bool {
	return l == ThreatLow || l == ThreatMedium || l == ThreatHigh
}

// CompetitorProfile is one competitor in a report.
type CompetitorProfile struct {
	Name           string      `json:"name"`
	URL            string      `json:"url,omitempty"`
	Description    string      `json:"description"`
	Differentiator string      `json:"differentiator,omitempty"`
	ThreatLevel    ThreatLevel `json:"threat_level,omitempty"`
}

// ProviderStatus records how a provider fared during a run.
type ProviderStatus string

const (
	ProviderOK      ProviderStatus = "ok"
	ProviderEmpty   ProviderStatus = "empty"
	ProviderFailed  ProviderStatus = "failed"
	ProviderTimeout ProviderStatus = "timeout"
)

// AnalysisReport is the single canonical result shape shared by fast and deep
// runs, the research record, and chat-on-report.
type AnalysisReport struct {
	Verdict          string                    `json:"verdict"`
	MarketSaturation ThreatLevel               `json:"market_saturation"`
	Competitors      []CompetitorProfile       `json:"competitors"`
	Gaps             []string                  `json:"gaps"`
	Pros             []string                  `json:"pros"`
	Cons             []string                  `json:"cons"`
	BuildPlan        []string                  `json:"build_plan"`
	RawSources       []SearchResult            `json:"raw_sources"`
	ExtraSources     int                       `json:"extra_sources"`
	Queries          []string                  `json:"queries,omitempty"`
	Providers        map[string]ProviderStatus `json:"providers,omitempty"`
}

// MarshalJSON keeps list fields as [] rather than null on the wire.
func (r AnalysisReport) MarshalJSON() ([]byte, error) {
	type alias AnalysisReport
	a := alias(r)
	if a.Competitors == nil {
		a.Competitors = []CompetitorProfile{}
	}
	if a.Gaps == nil {
		a.Gaps = []string{}
	}
	if a.Pros == nil {
		a.Pros = []string{}
	}
	if a.Cons == nil {
		a.Cons = []string{}
	}
	if a.BuildPlan == nil {
		a.BuildPlan = []string{}
	}
	if a.RawSources == nil {
		a.RawSources = []SearchResult{}
	}
	return json.Marshal(a)
}
