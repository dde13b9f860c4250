package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

// Noop stands in for the browser when headless support is disabled. Every call fails with an
// automation error so dynamic portals report a classified failure instead of crashing.
type Noop struct{}

// NewNoop creates a new Noop browser.
func NewNoop() *Noop {
	return &Noop{}
}

// Render always fails.
func (Noop) Render(_ context.Context, url string) (jobs.FetchResponse, error) {
	return jobs.FetchResponse{}, fmt.Errorf("%w: render %s: headless browser not configured", jobs.ErrAutomation, url)
}

// Search always fails.
func (Noop) Search(_ context.Context, request jobs.SearchRequest) ([]jobs.Card, error) {
	return nil, fmt.Errorf("%w: search %s: headless browser not configured", jobs.ErrAutomation, request.URL)
}
