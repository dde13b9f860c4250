package jobs

import (
	"context"
	"time"
)

// Fetcher performs one HTTP GET and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Renderer returns the DOM of a page after JavaScript has run.
type Renderer interface {
	Render(ctx context.Context, url string) (FetchResponse, error)
}

// SearchDriver runs a keyword through a client-side search widget and returns the result cards.
type SearchDriver interface {
	Search(ctx context.Context, request SearchRequest) ([]Card, error)
}

// DocumentExtractor inspects a linked document and returns at most one record.
// Implementations never surface errors.
type DocumentExtractor interface {
	Extract(ctx context.Context, url string, keywords Keywords) []JobRecord
}

// Detector decides whether a probe response needs a rendered re-fetch.
type Detector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Adapter scrapes one portal. It never returns an error; failures are encoded in the Outcome.
type Adapter interface {
	Scrape(ctx context.Context, portal PortalConfig, keywords Keywords, searchKeyword string) Outcome
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan IDs.
type IDGenerator interface {
	NewID() (string, error)
}
