package adapter

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/metadata"
	"github.com/JakeFAU/govjob-scanner/internal/textnorm"
)

// scanSelector lists the elements whose text is matched against keywords.
const scanSelector = "a, li, p, td"

// Static scrapes a fixed listing page with a generic tag scan.
type Static struct {
	fetcher   jobs.Fetcher
	renderer  jobs.Renderer
	detector  jobs.Detector
	documents jobs.DocumentExtractor
	logger    *zap.Logger
}

// NewStatic builds the static adapter. Rendering is attempted only when both a renderer and a
// detector are supplied.
func NewStatic(deps Deps) *Static {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Static{
		fetcher:   deps.Fetcher,
		renderer:  deps.Renderer,
		detector:  deps.Detector,
		documents: deps.Documents,
		logger:    logger.Named("static"),
	}
}

// Scrape fetches the portal URL as configured. The search keyword is ignored.
func (s *Static) Scrape(ctx context.Context, portal jobs.PortalConfig, keywords jobs.Keywords, _ string) jobs.Outcome {
	return s.scrapeURL(ctx, portal, portal.URLTemplate, keywords, "", s.logger)
}

func (s *Static) scrapeURL(
	ctx context.Context,
	portal jobs.PortalConfig,
	target string,
	keywords jobs.Keywords,
	searchKeyword string,
	logger *zap.Logger,
) jobs.Outcome {
	return run(logger, portal.Name, searchKeyword, func() ([]jobs.JobRecord, string, error) {
		resp, err := s.load(ctx, target, logger)
		if err != nil {
			return nil, "fetch", err
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return nil, "parse", fmt.Errorf("%w: parse %s: %w", jobs.ErrParse, target, err)
		}
		fetched := resp.URL
		if fetched == "" {
			fetched = target
		}
		records, err := s.scan(ctx, doc, portal, fetched, keywords, logger)
		if err != nil {
			return nil, "scan", err
		}
		return records, "", nil
	})
}

// load fetches target and, when the probe looks like a JavaScript shell, swaps in the rendered
// DOM. A failed render keeps the probe.
func (s *Static) load(ctx context.Context, target string, logger *zap.Logger) (jobs.FetchResponse, error) {
	if s.fetcher == nil {
		return jobs.FetchResponse{}, fmt.Errorf("%w: no fetcher configured", jobs.ErrNetwork)
	}
	resp, err := s.fetcher.Fetch(ctx, jobs.FetchRequest{URL: target})
	if err != nil {
		return jobs.FetchResponse{}, err
	}
	if s.renderer == nil || s.detector == nil || !s.detector.ShouldPromote(resp) {
		return resp, nil
	}
	logger.Debug("promoting to headless render", zap.String("url", target))
	rendered, err := s.renderer.Render(ctx, target)
	if err != nil {
		logger.Warn("headless render failed, using static body", zap.String("url", target), zap.Error(err))
		return resp, nil
	}
	return rendered, nil
}

// scan walks every candidate element. Matching elements become records; PDF links are inspected
// whether or not their text matched, each distinct link once.
func (s *Static) scan(
	ctx context.Context,
	doc *goquery.Document,
	portal jobs.PortalConfig,
	fetched string,
	keywords jobs.Keywords,
	logger *zap.Logger,
) ([]jobs.JobRecord, error) {
	base := linkBase(portal, fetched)
	records := make([]jobs.JobRecord, 0)
	seenRecords := make(map[[2]string]struct{})
	seenPDFs := make(map[string]struct{})
	var scanErr error

	doc.Find(scanSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if err := canceled(ctx); err != nil {
			scanErr = err
			return false
		}
		text := textnorm.CleanText(sel.Text())
		href := elementHref(sel)
		link := textnorm.ResolveURL(base, href)

		if matched := textnorm.MatchedKeywords(text, keywords); len(matched) > 0 {
			if link == "" {
				link = fetched
			}
			key := [2]string{text, link}
			if _, dup := seenRecords[key]; !dup {
				seenRecords[key] = struct{}{}
				rec := jobs.JobRecord{
					Title:   text,
					Link:    link,
					Source:  portal.Name,
					Matched: matched,
				}
				metadata.Extract(text).Apply(&rec)
				records = append(records, rec)
			}
		}

		if s.documents != nil && href != "" && textnorm.HasPDFSuffix(href) {
			pdfURL := textnorm.ResolveURL(base, href)
			if _, dup := seenPDFs[pdfURL]; !dup {
				seenPDFs[pdfURL] = struct{}{}
				logger.Debug("inspecting linked pdf", zap.String("document", pdfURL))
				records = append(records, s.documents.Extract(ctx, pdfURL, keywords)...)
			}
		}
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}
	return records, nil
}

// elementHref is the element's own href for anchors, otherwise the first descendant link.
func elementHref(sel *goquery.Selection) string {
	if goquery.NodeName(sel) == "a" {
		href, _ := sel.Attr("href")
		return href
	}
	href, _ := sel.Find("a[href]").First().Attr("href")
	return href
}
