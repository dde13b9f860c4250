// Package document inspects linked PDF notices. A notice whose text mentions a keyword becomes a
// single record; every failure along the way is swallowed and yields nothing.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/metadata"
	"github.com/JakeFAU/govjob-scanner/internal/metrics"
	"github.com/JakeFAU/govjob-scanner/internal/textnorm"
)

const defaultMaxBytes = 20 << 20

var pdfMagic = []byte("%PDF-")

// Config bounds document downloads.
type Config struct {
	MaxBytes int64
	TempDir  string
}

// Extractor implements jobs.DocumentExtractor for PDF files.
type Extractor struct {
	fetcher jobs.Fetcher
	cfg     Config
	logger  *zap.Logger
	parse   func(path string) (string, error)
}

// New builds an Extractor that downloads through fetcher.
func New(fetcher jobs.Fetcher, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		parse:   readText,
	}
}

// Extract returns at most one record for the PDF at link.
func (e *Extractor) Extract(ctx context.Context, link string, keywords jobs.Keywords) []jobs.JobRecord {
	logger := e.logger.With(zap.String("document", link))

	resp, err := e.fetcher.Fetch(ctx, jobs.FetchRequest{URL: link, MaxBodyBytes: e.cfg.MaxBytes})
	if errors.Is(err, jobs.ErrBodyTooLarge) {
		logger.Warn("document exceeds size limit", zap.Int64("max_bytes", e.cfg.MaxBytes))
		metrics.ObserveDocument("too_large")
		return nil
	}
	if err != nil {
		logger.Debug("document fetch failed", zap.Error(err))
		metrics.ObserveDocument("fetch_error")
		return nil
	}
	if !isPDF(resp) {
		logger.Debug("linked document is not a pdf", zap.String("content_type", resp.ContentType()))
		metrics.ObserveDocument("not_pdf")
		return nil
	}
	if int64(len(resp.Body)) > e.cfg.MaxBytes {
		logger.Warn("document exceeds size limit", zap.Int("bytes", len(resp.Body)), zap.Int64("max_bytes", e.cfg.MaxBytes))
		metrics.ObserveDocument("too_large")
		return nil
	}

	text, err := e.textOf(resp.Body)
	if err != nil {
		logger.Warn("document parse failed", zap.Error(err))
		metrics.ObserveDocument("parse_error")
		return nil
	}

	text = textnorm.Normalize(text)
	matched := textnorm.MatchedKeywords(text, keywords)
	if len(matched) == 0 {
		metrics.ObserveDocument("no_match")
		return nil
	}

	rec := jobs.JobRecord{
		Title:   "Match in PDF: " + basename(link),
		Link:    link,
		Source:  jobs.PDFSource,
		Matched: matched,
	}
	metadata.Extract(text).Apply(&rec)
	metrics.ObserveDocument("matched")
	logger.Debug("document matched", zap.Strings("keywords", matched))
	return []jobs.JobRecord{rec}
}

// textOf spools body to a temp file and runs the parser over it. The file is removed on every
// path, including a parser panic.
func (e *Extractor) textOf(body []byte) (text string, err error) {
	f, err := os.CreateTemp(e.cfg.TempDir, "jobscan-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	defer func() {
		_ = os.Remove(name)
	}()

	_, writeErr := f.Write(body)
	closeErr := f.Close()
	if writeErr != nil {
		return "", fmt.Errorf("write temp file: %w", writeErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("close temp file: %w", closeErr)
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: pdf parser panic: %v", jobs.ErrParse, r)
		}
	}()
	return e.parse(name)
}

// readText concatenates the plain text of every page, one page per line.
func readText(name string) (string, error) {
	f, reader, err := pdf.Open(name)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", jobs.ErrParse, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %w", jobs.ErrParse, i, err)
		}
		sb.WriteString(content)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func isPDF(resp jobs.FetchResponse) bool {
	return resp.ContentType() == "application/pdf" || bytes.HasPrefix(resp.Body, pdfMagic)
}

func basename(link string) string {
	p := link
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		p = u.Path
	}
	if base := path.Base(p); base != "." && base != "/" {
		return base
	}
	return link
}
