// Package jobs defines the core types shared across the scanner subsystems.
package jobs

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// KeywordPlaceholder is substituted with the search keyword in keyword-driven URL templates.
const KeywordPlaceholder = "{keyword}"

// PDFSource is the Source value of records extracted from linked PDF documents.
const PDFSource = "PDF"

// AdapterKind selects the portal adapter used for a portal.
type AdapterKind int

// Adapter kinds understood by the orchestrator.
const (
	KindUnknown AdapterKind = iota
	KindStatic
	KindKeywordDriven
	KindDynamicRendered
)

// String returns the configuration spelling of the kind.
func (k AdapterKind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindKeywordDriven:
		return "keyword"
	case KindDynamicRendered:
		return "dynamic"
	default:
		return "unknown"
	}
}

// PerKeyword reports whether the orchestrator fans this kind out once per keyword.
func (k AdapterKind) PerKeyword() bool {
	return k == KindKeywordDriven || k == KindDynamicRendered
}

// ParseAdapterKind converts a configuration string into an AdapterKind.
func ParseAdapterKind(raw string) (AdapterKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "static", "html":
		return KindStatic, nil
	case "keyword", "keyword_driven", "keyword-driven", "search":
		return KindKeywordDriven, nil
	case "dynamic", "dynamic_rendered", "dynamic-rendered", "js":
		return KindDynamicRendered, nil
	default:
		return KindUnknown, fmt.Errorf("unknown adapter kind %q", raw)
	}
}

// DynamicSelectors describes the page structure a dynamic-rendered portal exposes.
type DynamicSelectors struct {
	SearchInput  string `mapstructure:"search_input"`
	SubmitButton string `mapstructure:"submit_button"`
	Card         string `mapstructure:"card"`
	CardTitle    string `mapstructure:"card_title"`
	CardLinkAttr string `mapstructure:"card_link_attr"`
	Container    string `mapstructure:"container"`
	DateField    string `mapstructure:"date_field"`
	TypeField    string `mapstructure:"type_field"`
	LocationFld  string `mapstructure:"location_field"`
}

// PortalConfig is the immutable description of one job portal.
type PortalConfig struct {
	Name        string
	URLTemplate string
	BaseURL     string
	Kind        AdapterKind
	Dynamic     DynamicSelectors
}

// HasPlaceholder reports whether the URL template expects a search keyword.
func (p PortalConfig) HasPlaceholder() bool {
	return strings.Contains(p.URLTemplate, KeywordPlaceholder)
}

// JobRecord is one normalized, keyword-matched posting.
type JobRecord struct {
	Title      string   `json:"title"`
	Link       string   `json:"link"`
	Source     string   `json:"source"`
	PostedDate *string  `json:"posted,omitempty"`
	LastDate   *string  `json:"last_date,omitempty"`
	Experience *string  `json:"experience,omitempty"`
	Location   *string  `json:"location,omitempty"`
	Matched    []string `json:"matched_keywords,omitempty"`
}

// Metadata is the best-effort field set pulled out of a text blob.
type Metadata struct {
	Posted     *string
	LastDate   *string
	Experience *string
	Location   *string
}

// Apply fills the record fields that are still absent with the extracted values.
func (m Metadata) Apply(rec *JobRecord) {
	if rec.PostedDate == nil {
		rec.PostedDate = m.Posted
	}
	if rec.LastDate == nil {
		rec.LastDate = m.LastDate
	}
	if rec.Experience == nil {
		rec.Experience = m.Experience
	}
	if rec.Location == nil {
		rec.Location = m.Location
	}
}

// Optional returns nil for blank strings and a pointer to the trimmed value otherwise.
func Optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences an optional field, rendering absent as "".
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Outcome is the result of one adapter invocation.
type Outcome struct {
	Portal   string        `json:"portal"`
	Keyword  string        `json:"keyword,omitempty"`
	Records  []JobRecord   `json:"-"`
	Count    int           `json:"count"`
	Failure  FailureKind   `json:"failure"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Succeeded builds an outcome carrying records.
func Succeeded(portal, keyword string, records []JobRecord) Outcome {
	return Outcome{
		Portal:  portal,
		Keyword: keyword,
		Records: records,
		Count:   len(records),
		Failure: FailureNone,
	}
}

// Failed builds an outcome that contributes nothing.
func Failed(portal, keyword string, err error) Outcome {
	out := Outcome{
		Portal:  portal,
		Keyword: keyword,
		Failure: ClassifyFailure(err),
		Err:     err,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// MaxBodyBytes overrides the fetcher's body limit when positive.
	MaxBodyBytes int64
}

// FetchResponse is the result returned by a Fetcher or Renderer.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ContentType returns the media type of the response without parameters.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	ct := r.Headers.Get("Content-Type")
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// SearchRequest asks a SearchDriver to run one keyword through a portal's search widget.
type SearchRequest struct {
	URL       string
	Keyword   string
	Selectors DynamicSelectors
}

// Card is one result card scraped from a dynamic-rendered portal.
type Card struct {
	Title     string `json:"title"`
	LinkToken string `json:"link"`
	Date      string `json:"date"`
	Type      string `json:"type"`
	Location  string `json:"location"`
	Text      string `json:"text"`
	Err       string `json:"error"`
}
