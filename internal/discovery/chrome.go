package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/roomscout/collector-cli/internal/config"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// extractStateJS reads the map page's client-side cache and returns every
// place summary it holds; on a page without that cache it returns the body
// text instead so the caller can inspect it for block markers.
const extractStateJS = `(() => {
	const state = window.__APOLLO_STATE__;
	if (!state) {
		return {ok: false, places: [], body: document.body ? document.body.innerText.slice(0, 2000) : ""};
	}
	const places = [];
	for (const key of Object.keys(state)) {
		if (key.startsWith('PlaceSummary:')) {
			const p = state[key];
			places.push({
				id: String(p.bookingBusinessId ?? key.split(':')[1] ?? ""),
				name: p.name ?? "",
				category: p.category ?? "",
				x: String(p.x ?? ""),
				y: String(p.y ?? ""),
			});
		}
	}
	return {ok: true, places: places, body: ""};
})()`

// hideWebdriverJS masks the automation flag before any page script runs.
const hideWebdriverJS = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// chromeSession wraps one exclusive browser context. Both the allocator and
// the browser context are cancelled on Close, so a crashed discovery never
// leaks a browser process.
type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	navTimeout  time.Duration
}

func openChromeSession(ctx context.Context, cfg config.DiscoveryConfig) (session, error) {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	sess := &chromeSession{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		navTimeout:  time.Duration(cfg.NavTimeoutSecs) * time.Second,
	}
	if sess.navTimeout <= 0 {
		sess.navTimeout = 30 * time.Second
	}

	// Start the browser and install the fingerprint mask. Failure here means
	// no Chrome binary or a broken environment; tear everything down.
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverJS).Do(ctx)
		return err
	}))
	if err != nil {
		sess.Close()
		return nil, eris.Wrap(err, "discovery: start browser")
	}
	return sess, nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout)
	defer cancel()
	stopOnParentDone(ctx, runCtx, cancel)

	return chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (s *chromeSession) Extract(ctx context.Context) (pageState, error) {
	runCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout)
	defer cancel()
	stopOnParentDone(ctx, runCtx, cancel)

	var state pageState
	err := chromedp.Run(runCtx, chromedp.Evaluate(extractStateJS, &state))
	return state, err
}

// GotoPage clicks the pagination link with the given page number. Returns
// false without error when no such link exists (end of results).
func (s *chromeSession) GotoPage(ctx context.Context, pageNum int) (bool, error) {
	runCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout)
	defer cancel()
	stopOnParentDone(ctx, runCtx, cancel)

	clickJS := fmt.Sprintf(`(() => {
		const link = [...document.querySelectorAll('a')]
			.find(a => a.textContent.trim() === '%d');
		if (!link) return false;
		link.click();
		return true;
	})()`, pageNum)

	var moved bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(clickJS, &moved)); err != nil {
		return false, err
	}
	return moved, nil
}

func (s *chromeSession) Close() {
	s.cancel()
	s.allocCancel()
}

// stopOnParentDone propagates cancellation of the caller's context into a
// chromedp run context, which hangs off the browser context rather than the
// caller's. The watcher exits as soon as either side finishes.
func stopOnParentDone(parent, runCtx context.Context, cancel context.CancelFunc) {
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
}
