package adapter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/metadata"
	"github.com/JakeFAU/govjob-scanner/internal/textnorm"
)

// Dynamic scrapes a JavaScript-rendered portal through its client-side search widget.
type Dynamic struct {
	driver jobs.SearchDriver
	logger *zap.Logger
}

// NewDynamic builds the dynamic adapter. A nil driver makes every scrape an automation failure.
func NewDynamic(driver jobs.SearchDriver, logger *zap.Logger) *Dynamic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dynamic{driver: driver, logger: logger.Named("dynamic")}
}

// Scrape drives one keyword through the search widget and keeps the cards whose title matches.
func (d *Dynamic) Scrape(ctx context.Context, portal jobs.PortalConfig, keywords jobs.Keywords, searchKeyword string) jobs.Outcome {
	return run(d.logger, portal.Name, searchKeyword, func() ([]jobs.JobRecord, string, error) {
		if strings.TrimSpace(searchKeyword) == "" {
			return nil, "input", fmt.Errorf("%w: dynamic portal needs a search keyword", jobs.ErrParse)
		}
		if d.driver == nil {
			return nil, "browser", fmt.Errorf("%w: no search driver configured", jobs.ErrAutomation)
		}
		target, err := SearchURL(portal.URLTemplate, searchKeyword)
		if err != nil {
			return nil, "template", err
		}

		cards, err := d.driver.Search(ctx, jobs.SearchRequest{
			URL:       target,
			Keyword:   searchKeyword,
			Selectors: portal.Dynamic,
		})
		if err != nil {
			return nil, "search", err
		}
		return d.records(portal, target, cards, keywords), "", nil
	})
}

func (d *Dynamic) records(portal jobs.PortalConfig, target string, cards []jobs.Card, keywords jobs.Keywords) []jobs.JobRecord {
	base := linkBase(portal, target)
	records := make([]jobs.JobRecord, 0)
	for i, card := range cards {
		if card.Err != "" {
			d.logger.Debug("skipping card",
				zap.String("portal", portal.Name),
				zap.Int("card", i),
				zap.String("reason", card.Err),
			)
			continue
		}
		title := textnorm.CleanText(card.Title)
		matched := textnorm.MatchedKeywords(title, keywords)
		if len(matched) == 0 {
			continue
		}
		link := textnorm.ResolveURL(base, ExtractLinkToken(card.LinkToken))
		if link == "" {
			link = target
		}
		rec := jobs.JobRecord{
			Title:      title,
			Link:       link,
			Source:     portal.Name,
			PostedDate: jobs.Optional(textnorm.CleanText(card.Date)),
			Experience: jobs.Optional(textnorm.CleanText(card.Type)),
			Location:   jobs.Optional(textnorm.CleanText(card.Location)),
			Matched:    matched,
		}
		metadata.Extract(textnorm.CleanText(card.Text)).Apply(&rec)
		records = append(records, rec)
	}
	return records
}

var (
	navigationCall = regexp.MustCompile(
		`(?i)(?:window\.open|location\.assign|location\.replace|(?:window\.|document\.)?location(?:\.href)?\s*=)\s*\(?\s*['"]([^'"]+)['"]`)
	quotedToken = regexp.MustCompile(`['"]([^'"\s]+)['"]`)
)

// ExtractLinkToken pulls a navigable URL out of an onclick-style attribute such as
// window.open('/a/b.pdf','_blank') or location.href="/jobs/1". A value that already looks like
// a URL or path is returned trimmed. Anything else yields "".
func ExtractLinkToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := navigationCall.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if looksLikeLink(raw) {
		return raw
	}
	for _, m := range quotedToken.FindAllStringSubmatch(raw, -1) {
		if looksLikeLink(m[1]) {
			return m[1]
		}
	}
	return ""
}

func looksLikeLink(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n();{}") {
		return false
	}
	if strings.HasPrefix(strings.ToLower(s), "javascript:") {
		return false
	}
	if textnorm.IsAbsolute(s) || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		return true
	}
	return strings.Contains(s, "/") || strings.Contains(s, ".")
}
