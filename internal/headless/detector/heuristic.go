// Package detector decides when a static probe of a portal page is only a JavaScript shell and
// the page must be rendered in a browser before its links can be scanned.
package detector

import (
	"bytes"
	"net/http"
	"regexp"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

// DefaultThreshold is the score at which a probe is promoted to a rendered fetch.
const DefaultThreshold = 60

// Signal weights. A score is capped at 100.
const (
	weightEmpty      = 100
	weightMountPoint = 40
	weightScripts    = 35
	weightNoAnchors  = 30
	weightNoscript   = 30
	weightThinText   = 15
)

var (
	mountPoints = [][]byte{
		[]byte(`id="__next"`),
		[]byte(`id="root"`),
		[]byte(`id="app"`),
		[]byte(`data-reactroot`),
		[]byte(`ng-app`),
		[]byte(`<app-root`),
		[]byte(`id="__nuxt"`),
	}
	scriptBlock   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?(?:</script>|\z)`)
	styleBlock    = regexp.MustCompile(`(?is)<style\b[^>]*>.*?(?:</style>|\z)`)
	anyTag        = regexp.MustCompile(`(?s)<[^>]*>`)
	hrefAnchor    = regexp.MustCompile(`(?i)<a\b[^>]*\bhref\s*=`)
	noscriptHint  = regexp.MustCompile(`(?is)<noscript\b[^>]*>[^<]*(enable|requires?)\s+javascript`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Heuristic scores a probe response on a few independent signals and promotes it when the score
// reaches Threshold.
type Heuristic struct {
	Threshold int
}

// NewHeuristic creates a detector. A non-positive threshold selects DefaultThreshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Heuristic{Threshold: threshold}
}

// ShouldPromote reports whether probe looks client rendered. Non-200, non-HTML and already
// rendered responses never promote.
func (h *Heuristic) ShouldPromote(resp jobs.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK || resp.UsedHeadless {
		return false
	}
	if ct := resp.ContentType(); ct != "" && ct != "text/html" && ct != "application/xhtml+xml" {
		return false
	}
	return Score(resp.Body) >= h.Threshold
}

// Score rates how likely body is an unrendered application shell, from 0 to 100.
func Score(body []byte) int {
	if len(bytes.TrimSpace(body)) == 0 {
		return weightEmpty
	}
	score := 0
	for _, marker := range mountPoints {
		if bytes.Contains(body, marker) {
			score += weightMountPoint
			break
		}
	}
	if scriptShare(body) >= 25 {
		score += weightScripts
	}
	if !hrefAnchor.Match(body) {
		score += weightNoAnchors
	}
	if noscriptHint.Match(body) {
		score += weightNoscript
	}
	if len(visibleText(body)) < 200 {
		score += weightThinText
	}
	if score > 100 {
		score = 100
	}
	return score
}

// scriptShare is the percentage of body bytes inside <script> blocks.
func scriptShare(body []byte) int {
	covered := 0
	for _, loc := range scriptBlock.FindAllIndex(body, -1) {
		covered += loc[1] - loc[0]
	}
	return covered * 100 / len(body)
}

func visibleText(body []byte) []byte {
	text := scriptBlock.ReplaceAll(body, nil)
	text = styleBlock.ReplaceAll(text, nil)
	text = anyTag.ReplaceAll(text, []byte(" "))
	return bytes.TrimSpace(whitespaceRun.ReplaceAll(text, []byte(" ")))
}
