// Package headless drives a headless Chrome through chromedp: rendering JavaScript-heavy pages and
// operating client-side search widgets on dynamic portals.
package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

const (
	defaultNavTimeout  = 45 * time.Second
	defaultWaitTimeout = 10 * time.Second
	defaultSettle      = 2 * time.Second
)

// Default selectors used when a dynamic portal leaves them unset.
const (
	DefaultSearchInput  = `input[type="search"], input[type="text"]`
	DefaultCard         = `[onclick]`
	DefaultCardLinkAttr = "onclick"
)

// Config controls the behavior of the headless browser.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
	Settle            time.Duration
}

// Browser implements jobs.Renderer and jobs.SearchDriver using chromedp and headless Chrome.
// One allocator is shared by the process; every call gets its own tab.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp creates a headless browser backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context, shutting the browser down.
func (b *Browser) Close() {
	b.allocCancel()
}

// Render navigates to url and returns the DOM after scripts have run.
func (b *Browser) Render(ctx context.Context, url string) (jobs.FetchResponse, error) {
	tabCtx, release, err := b.openTab(ctx)
	if err != nil {
		return jobs.FetchResponse{}, err
	}
	defer release()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	start := time.Now()
	var html, finalURL string
	err = chromedp.Run(tabCtx,
		b.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return jobs.FetchResponse{}, b.wrap(ctx, jobs.ErrAutomation, "render "+url, err)
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	return jobs.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

// Search types the keyword into the portal's search control, submits, scrolls to load lazy
// results and returns every card found. Cards whose extraction failed carry Err.
func (b *Browser) Search(ctx context.Context, request jobs.SearchRequest) ([]jobs.Card, error) {
	sel := WithDefaults(request.Selectors)
	script, err := cardScript(sel)
	if err != nil {
		return nil, fmt.Errorf("%w: build card script: %w", jobs.ErrAutomation, err)
	}

	tabCtx, release, err := b.openTab(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := b.logger.With(zap.String("url", request.URL), zap.String("keyword", request.Keyword))

	if err := chromedp.Run(tabCtx, b.networkSetupAction(), chromedp.Navigate(request.URL)); err != nil {
		return nil, b.wrap(ctx, jobs.ErrNetwork, "navigate "+request.URL, err)
	}

	waitCtx, cancelWait := context.WithTimeout(tabCtx, b.waitTimeout())
	err = chromedp.Run(waitCtx, chromedp.WaitVisible(sel.SearchInput, chromedp.ByQuery))
	cancelWait()
	if err != nil {
		return nil, b.wrap(ctx, jobs.ErrAutomation, fmt.Sprintf("wait for search input %q", sel.SearchInput), err)
	}
	logger.Debug("search input ready")

	var cards []jobs.Card
	err = chromedp.Run(tabCtx,
		chromedp.SendKeys(sel.SearchInput, request.Keyword, chromedp.ByQuery),
		submitAction(sel),
		chromedp.Sleep(b.settle()),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil),
		chromedp.Sleep(b.settle()),
		chromedp.Evaluate(script, &cards),
	)
	if err != nil {
		return nil, b.wrap(ctx, jobs.ErrAutomation, "search "+request.URL, err)
	}
	logger.Debug("cards extracted", zap.Int("cards", len(cards)))
	return cards, nil
}

// openTab reserves a browser slot and creates a tab bounded by the navigation timeout and the
// caller's context. The returned release func must always be called.
func (b *Browser) openTab(ctx context.Context) (context.Context, func(), error) {
	if err := b.acquire(ctx); err != nil {
		return nil, nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, b.navTimeout())
	stop := context.AfterFunc(ctx, tabCancel)

	release := func() {
		stop()
		timeoutCancel()
		tabCancel()
		b.release()
	}
	return tabCtx, release, nil
}

// wrap attributes a chromedp failure. Caller cancellation wins over the sentinel so that the
// outcome reads as canceled rather than broken.
func (b *Browser) wrap(ctx context.Context, sentinel error, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", step, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", sentinel, step, err)
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func submitAction(sel jobs.DynamicSelectors) chromedp.Action {
	if sel.SubmitButton != "" {
		return chromedp.Click(sel.SubmitButton, chromedp.ByQuery)
	}
	return chromedp.SendKeys(sel.SearchInput, kb.Enter, chromedp.ByQuery)
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

func (b *Browser) waitTimeout() time.Duration {
	if b.cfg.WaitTimeout > 0 {
		return b.cfg.WaitTimeout
	}
	return defaultWaitTimeout
}

func (b *Browser) settle() time.Duration {
	if b.cfg.Settle > 0 {
		return b.cfg.Settle
	}
	return defaultSettle
}

// WithDefaults fills unset selectors.
func WithDefaults(sel jobs.DynamicSelectors) jobs.DynamicSelectors {
	if sel.SearchInput == "" {
		sel.SearchInput = DefaultSearchInput
	}
	if sel.Card == "" {
		sel.Card = DefaultCard
	}
	if sel.CardLinkAttr == "" {
		sel.CardLinkAttr = DefaultCardLinkAttr
	}
	return sel
}

// cardScriptSource walks every card, reading sibling fields from the closest container. Each card
// is wrapped in its own try so one malformed card only marks itself.
const cardScriptSource = `(function(sel) {
  var read = function(root, q) {
    if (!root || !q) { return ""; }
    var el = root.querySelector(q);
    return el ? (el.innerText || el.textContent || "").trim() : "";
  };
  var out = [];
  document.querySelectorAll(sel.card).forEach(function(card) {
    try {
      var container = (sel.container && card.closest(sel.container)) || card.parentElement || card;
      var titleEl = sel.cardTitle ? card.querySelector(sel.cardTitle) : card;
      if (!titleEl) { throw new Error("title element not found"); }
      var link = card.getAttribute(sel.linkAttr) || titleEl.getAttribute(sel.linkAttr) ||
        titleEl.getAttribute("href") || "";
      out.push({
        title: (titleEl.innerText || titleEl.textContent || "").trim(),
        link: link,
        date: read(container, sel.date),
        type: read(container, sel.type),
        location: read(container, sel.location),
        text: (container.innerText || container.textContent || "").trim(),
        error: ""
      });
    } catch (e) {
      out.push({title: "", link: "", date: "", type: "", location: "", text: "", error: String(e)});
    }
  });
  return out;
})(%s)`

type scriptSelectors struct {
	Card      string `json:"card"`
	CardTitle string `json:"cardTitle"`
	LinkAttr  string `json:"linkAttr"`
	Container string `json:"container"`
	Date      string `json:"date"`
	Type      string `json:"type"`
	Location  string `json:"location"`
}

func cardScript(sel jobs.DynamicSelectors) (string, error) {
	raw, err := json.Marshal(scriptSelectors{
		Card:      sel.Card,
		CardTitle: sel.CardTitle,
		LinkAttr:  sel.CardLinkAttr,
		Container: sel.Container,
		Date:      sel.DateField,
		Type:      sel.TypeField,
		Location:  sel.LocationFld,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(cardScriptSource, raw), nil
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, m.headers.Clone(), m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}
