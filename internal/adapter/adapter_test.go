package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/govjob-scanner/internal/fetcher/colly"
	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	err   error
	urls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req jobs.FetchRequest) (jobs.FetchResponse, error) {
	f.mu.Lock()
	f.urls = append(f.urls, req.URL)
	f.mu.Unlock()
	if f.err != nil {
		return jobs.FetchResponse{}, f.err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return jobs.FetchResponse{}, fmt.Errorf("%w: status 404", jobs.ErrNetwork)
	}
	return jobs.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(body),
	}, nil
}

type fakeDocuments struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeDocuments) Extract(_ context.Context, url string, _ jobs.Keywords) []jobs.JobRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	return []jobs.JobRecord{{Title: "Match in PDF: notice.pdf", Link: url, Source: jobs.PDFSource}}
}

type fakeDetector bool

func (d fakeDetector) ShouldPromote(jobs.FetchResponse) bool { return bool(d) }

type fakeRenderer struct {
	body string
	err  error
}

func (r fakeRenderer) Render(_ context.Context, url string) (jobs.FetchResponse, error) {
	if r.err != nil {
		return jobs.FetchResponse{}, r.err
	}
	return jobs.FetchResponse{URL: url, StatusCode: http.StatusOK, Body: []byte(r.body), UsedHeadless: true}, nil
}

type fakeDriver struct {
	cards []jobs.Card
	err   error
	got   []jobs.SearchRequest
}

func (d *fakeDriver) Search(_ context.Context, req jobs.SearchRequest) ([]jobs.Card, error) {
	d.got = append(d.got, req)
	return d.cards, d.err
}

func TestStaticFixtureYieldsOneAbsoluteRecord(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<a href="/jobs/1">Data Analyst</a>
			<a href="/jobs/2">Clerk</a>
		</body></html>`)
	}))
	t.Cleanup(srv.Close)

	fetcher := collyfetcher.New(collyfetcher.Config{}, nil, zap.NewNop())
	static := NewStatic(Deps{Fetcher: fetcher, Logger: zap.NewNop()})
	portal := jobs.PortalConfig{Name: "Fixture", URLTemplate: srv.URL, BaseURL: "https://x.gov", Kind: jobs.KindStatic}

	out := static.Scrape(context.Background(), portal, jobs.NewKeywords("data"), "")
	require.Equal(t, jobs.FailureNone, out.Failure)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	require.Equal(t, "Data Analyst", rec.Title)
	require.Equal(t, "https://x.gov/jobs/1", rec.Link)
	require.Equal(t, "Fixture", rec.Source)
	require.Equal(t, []string{"data"}, rec.Matched)
	require.Positive(t, out.Duration)
}

func TestStaticScansListItemsAndCells(t *testing.T) {
	t.Parallel()

	page := `<html><body>
		<ul><li>Recruitment of Data Scientist <a href="advt/7">view</a> Last Date: 15/08/2024</li></ul>
		<table><tr><td>Walk-in for AI engineers, Location: Pune</td></tr></table>
		<p>Nothing relevant here</p>
	</body></html>`
	fetcher := &fakeFetcher{pages: map[string]string{"https://portal.gov/list": page}}
	static := NewStatic(Deps{Fetcher: fetcher})

	portal := jobs.PortalConfig{Name: "Portal", URLTemplate: "https://portal.gov/list"}
	out := static.Scrape(context.Background(), portal, jobs.NewKeywords("data", "ai"), "")
	require.Equal(t, jobs.FailureNone, out.Failure)
	require.Len(t, out.Records, 2)

	li := out.Records[0]
	require.Equal(t, "https://portal.gov/advt/7", li.Link, "no base url falls back to the fetched origin")
	require.Equal(t, "15/08/2024", jobs.Value(li.LastDate))

	td := out.Records[1]
	require.Equal(t, "https://portal.gov/list", td.Link, "elements without a link point at the page")
	require.Equal(t, "Pune", jobs.Value(td.Location))
}

func TestStaticInspectsEachPDFOnce(t *testing.T) {
	t.Parallel()

	page := `<html><body><ul>
		<li><a href="/files/notice.pdf">Advertisement No. 4</a></li>
		<li><a href="/files/notice.pdf">Advertisement No. 4 (Hindi)</a></li>
	</ul></body></html>`
	fetcher := &fakeFetcher{pages: map[string]string{"https://x.gov/careers": page}}
	docs := &fakeDocuments{}
	static := NewStatic(Deps{Fetcher: fetcher, Documents: docs})

	portal := jobs.PortalConfig{Name: "X", URLTemplate: "https://x.gov/careers", BaseURL: "https://x.gov"}
	out := static.Scrape(context.Background(), portal, jobs.NewKeywords("data"), "")
	require.Equal(t, jobs.FailureNone, out.Failure)
	require.Equal(t, []string{"https://x.gov/files/notice.pdf"}, docs.calls)
	require.Len(t, out.Records, 1)
	require.Equal(t, jobs.PDFSource, out.Records[0].Source)
}

func TestStaticFetchFailureIsNetworkOutcome(t *testing.T) {
	t.Parallel()

	static := NewStatic(Deps{Fetcher: &fakeFetcher{err: fmt.Errorf("%w: dial tcp: refused", jobs.ErrNetwork)}})
	out := static.Scrape(context.Background(), jobs.PortalConfig{Name: "Down", URLTemplate: "https://down.gov"}, jobs.NewKeywords("data"), "")
	require.Equal(t, jobs.FailureNetwork, out.Failure)
	require.Empty(t, out.Records)
	require.Equal(t, "Down", out.Portal)
	require.NotEmpty(t, out.Error)
}

func TestStaticPromotesShellPages(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"https://spa.gov": `<div id="root"></div>`}}
	static := NewStatic(Deps{
		Fetcher:  fetcher,
		Detector: fakeDetector(true),
		Renderer: fakeRenderer{body: `<a href="/j/9">Data Engineer</a>`},
	})
	out := static.Scrape(context.Background(), jobs.PortalConfig{Name: "SPA", URLTemplate: "https://spa.gov"}, jobs.NewKeywords("data"), "")
	require.Len(t, out.Records, 1)
	require.Equal(t, "https://spa.gov/j/9", out.Records[0].Link)

	static.renderer = fakeRenderer{err: errors.New("chrome missing")}
	out = static.Scrape(context.Background(), jobs.PortalConfig{Name: "SPA", URLTemplate: "https://spa.gov"}, jobs.NewKeywords("data"), "")
	require.Equal(t, jobs.FailureNone, out.Failure, "render failure keeps the static probe")
	require.Empty(t, out.Records)
}

func TestStaticRecoversPanics(t *testing.T) {
	t.Parallel()

	static := NewStatic(Deps{Fetcher: panicFetcher{}})
	out := static.Scrape(context.Background(), jobs.PortalConfig{Name: "Boom", URLTemplate: "https://boom.gov"}, jobs.NewKeywords("data"), "")
	require.Equal(t, jobs.FailureParse, out.Failure)
	require.Empty(t, out.Records)
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, jobs.FetchRequest) (jobs.FetchResponse, error) {
	panic("nil map write")
}

func TestKeywordAdapterTemplatesURL(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://search.gov/q?term=data+science": `<a href="/r/1">Data Science Officer</a>`,
	}}
	k := NewKeyword(NewStatic(Deps{Fetcher: fetcher}), nil)
	portal := jobs.PortalConfig{Name: "Search", URLTemplate: "https://search.gov/q?term={keyword}", Kind: jobs.KindKeywordDriven}

	out := k.Scrape(context.Background(), portal, jobs.NewKeywords("data science"), "data science")
	require.Equal(t, jobs.FailureNone, out.Failure)
	require.Equal(t, "data science", out.Keyword)
	require.Len(t, out.Records, 1)
	require.Equal(t, []string{"https://search.gov/q?term=data+science"}, fetcher.urls)
}

func TestKeywordAdapterRequiresKeyword(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	k := NewKeyword(NewStatic(Deps{Fetcher: fetcher}), nil)
	portal := jobs.PortalConfig{Name: "Search", URLTemplate: "https://search.gov/q?term={keyword}"}

	out := k.Scrape(context.Background(), portal, jobs.NewKeywords("data"), " ")
	require.Equal(t, jobs.FailureParse, out.Failure)
	require.Empty(t, fetcher.urls)
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	got, err := SearchURL("https://x.gov/jobs?q={keyword}&p=1", "AI/ML")
	require.NoError(t, err)
	require.Equal(t, "https://x.gov/jobs?q=AI%2FML&p=1", got)

	got, err = SearchURL("https://x.gov/jobs", "")
	require.NoError(t, err)
	require.Equal(t, "https://x.gov/jobs", got)

	_, err = SearchURL("https://x.gov/jobs?q={keyword}", "")
	require.ErrorIs(t, err, jobs.ErrParse)
}

func TestDynamicSkipsBrokenCards(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{cards: []jobs.Card{
		{
			Title:     "Data Analyst (Contract)",
			LinkToken: "window.open('/docs/advt-3.pdf','_blank')",
			Date:      "01/07/2024",
			Type:      "2+ years",
			Location:  "Bengaluru",
			Text:      "Data Analyst (Contract) Last Date: 31/07/2024",
		},
		{Err: "TypeError: cannot read properties of null"},
		{Title: "Stenographer", LinkToken: "/j/2"},
		{Title: "AI Researcher", LinkToken: "javascript:void(0)"},
	}}
	d := NewDynamic(driver, zap.NewNop())
	portal := jobs.PortalConfig{
		Name:        "Dyn",
		URLTemplate: "https://dyn.gov/search",
		BaseURL:     "https://dyn.gov",
		Kind:        jobs.KindDynamicRendered,
		Dynamic:     jobs.DynamicSelectors{SearchInput: "#q"},
	}

	out := d.Scrape(context.Background(), portal, jobs.NewKeywords("data", "ai"), "data")
	require.Equal(t, jobs.FailureNone, out.Failure)
	require.Len(t, out.Records, 2)

	first := out.Records[0]
	require.Equal(t, "https://dyn.gov/docs/advt-3.pdf", first.Link)
	require.Equal(t, "01/07/2024", jobs.Value(first.PostedDate))
	require.Equal(t, "2+ years", jobs.Value(first.Experience))
	require.Equal(t, "Bengaluru", jobs.Value(first.Location))
	require.Equal(t, "31/07/2024", jobs.Value(first.LastDate))

	require.Equal(t, "https://dyn.gov/search", out.Records[1].Link)

	require.Len(t, driver.got, 1)
	require.Equal(t, "data", driver.got[0].Keyword)
	require.Equal(t, "#q", driver.got[0].Selectors.SearchInput)
}

func TestDynamicDriverFailure(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{err: fmt.Errorf("%w: wait for search input: timeout", jobs.ErrAutomation)}
	out := NewDynamic(driver, nil).Scrape(context.Background(), jobs.PortalConfig{Name: "Dyn", URLTemplate: "https://dyn.gov"}, jobs.NewKeywords("data"), "data")
	require.Equal(t, jobs.FailureAutomation, out.Failure)
	require.Empty(t, out.Records)

	out = NewDynamic(nil, nil).Scrape(context.Background(), jobs.PortalConfig{Name: "Dyn"}, jobs.NewKeywords("data"), "data")
	require.Equal(t, jobs.FailureAutomation, out.Failure)

	out = NewDynamic(driver, nil).Scrape(context.Background(), jobs.PortalConfig{Name: "Dyn"}, jobs.NewKeywords("data"), "")
	require.Equal(t, jobs.FailureParse, out.Failure)
}

func TestExtractLinkToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"window.open('/a/b.pdf','_blank')", "/a/b.pdf"},
		{`window.open("https://x.gov/n.pdf")`, "https://x.gov/n.pdf"},
		{`location.href="/jobs/12"`, "/jobs/12"},
		{"document.location = 'view.aspx?id=3'; return false;", "view.aspx?id=3"},
		{"openNotice('_self', '/files/n.pdf')", "/files/n.pdf"},
		{"  https://x.gov/jobs  ", "https://x.gov/jobs"},
		{"/relative/path", "/relative/path"},
		{"javascript:void(0)", ""},
		{"showDetails(12)", ""},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ExtractLinkToken(tt.raw), "raw=%q", tt.raw)
	}
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Deps{Fetcher: &fakeFetcher{}})
	for _, kind := range []jobs.AdapterKind{jobs.KindStatic, jobs.KindKeywordDriven, jobs.KindDynamicRendered} {
		_, ok := r.Lookup(kind)
		require.True(t, ok, kind.String())
	}
	_, ok := r.Lookup(jobs.KindUnknown)
	require.False(t, ok)
}
