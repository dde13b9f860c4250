package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

// Keyword scrapes a portal whose search results live at a templated URL.
type Keyword struct {
	static *Static
	logger *zap.Logger
}

// NewKeyword wraps the static scan with URL templating.
func NewKeyword(static *Static, logger *zap.Logger) *Keyword {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keyword{static: static, logger: logger.Named("keyword")}
}

// Scrape substitutes searchKeyword into the portal URL template and scans the result page.
func (k *Keyword) Scrape(ctx context.Context, portal jobs.PortalConfig, keywords jobs.Keywords, searchKeyword string) jobs.Outcome {
	target, err := SearchURL(portal.URLTemplate, searchKeyword)
	if err != nil {
		return run(k.logger, portal.Name, searchKeyword, func() ([]jobs.JobRecord, string, error) {
			return nil, "template", err
		})
	}
	return k.static.scrapeURL(ctx, portal, target, keywords, searchKeyword, k.logger)
}

// SearchURL replaces the keyword placeholder with the query-escaped keyword. Templates without
// a placeholder are returned unchanged.
func SearchURL(template, keyword string) (string, error) {
	if !strings.Contains(template, jobs.KeywordPlaceholder) {
		return template, nil
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "", fmt.Errorf("%w: template %q needs a search keyword", jobs.ErrParse, template)
	}
	return strings.ReplaceAll(template, jobs.KeywordPlaceholder, url.QueryEscape(keyword)), nil
}
