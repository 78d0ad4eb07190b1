// Package discovery enumerates candidate venues for a region by driving a
// headless browser against the provider's map search. The search surface
// actively blocks obviously-automated traffic, so sessions carry a realistic
// fingerprint and discovery fails cleanly when a block page is detected.
package discovery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roomscout/collector-cli/internal/config"
	"github.com/roomscout/collector-cli/internal/model"
	"github.com/roomscout/collector-cli/internal/resilience"
)

// placeSummary is one map search result as surfaced in the page's client-side
// state. x/y are stringified longitude/latitude.
type placeSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	X        string `json:"x"`
	Y        string `json:"y"`
}

// pageState is what one extraction pass observed: either parsed results or
// the raw body text for block-page inspection.
type pageState struct {
	OK     bool           `json:"ok"`
	Places []placeSummary `json:"places"`
	Body   string         `json:"body"`
}

// session is one isolated browser session. Implementations must release all
// browser resources on Close regardless of how the session ended.
type session interface {
	Navigate(ctx context.Context, url string) error
	Extract(ctx context.Context) (pageState, error)
	GotoPage(ctx context.Context, page int) (bool, error)
	Close()
}

// openSessionFunc abstracts session creation for tests.
type openSessionFunc func(ctx context.Context, cfg config.DiscoveryConfig) (session, error)

// Discoverer runs map searches for one region at a time. Each Discover call
// uses a fresh browser session so search state never leaks between regions.
type Discoverer struct {
	cfg  config.DiscoveryConfig
	open openSessionFunc
}

// New creates a Discoverer backed by a real headless browser.
func New(cfg config.DiscoveryConfig) *Discoverer {
	return &Discoverer{cfg: cfg, open: openChromeSession}
}

// Discover searches one region and returns deduplicated venue stubs.
// Transient failures are retried with a fresh session up to the configured
// bound; a detected block page fails immediately with a BlockedError and no
// results.
func (d *Discoverer) Discover(ctx context.Context, region string) ([]model.VenueStub, error) {
	query := strings.TrimSpace(region + " " + d.cfg.SearchKeyword)

	attempts := d.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		stubs, err := d.discoverOnce(ctx, query)
		if err == nil {
			return stubs, nil
		}
		lastErr = err

		if ctx.Err() != nil || !resilience.IsTransient(err) {
			return nil, lastErr
		}
		zap.L().Warn("discovery attempt failed",
			zap.String("region", region),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}
	}
	return nil, eris.Wrapf(lastErr, "discovery: region %q", region)
}

func (d *Discoverer) discoverOnce(ctx context.Context, query string) ([]model.VenueStub, error) {
	sess, err := d.open(ctx, d.cfg)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "discovery: open session"), 0)
	}
	defer sess.Close()

	searchURL := fmt.Sprintf("https://pcmap.place.naver.com/place/list?query=%s&display=70",
		url.QueryEscape(query))
	if err := sess.Navigate(ctx, searchURL); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "discovery: navigate"), 0)
	}
	d.humanPause(ctx)

	seen := make(map[string]model.VenueStub)
	order := make([]string, 0, 64)
	maxPages := d.cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			moved, err := sess.GotoPage(ctx, page)
			if err != nil {
				return nil, resilience.NewTransientError(eris.Wrapf(err, "discovery: page %d", page), 0)
			}
			if !moved {
				break
			}
			d.humanPause(ctx)
		}

		state, err := sess.Extract(ctx)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "discovery: extract state"), 0)
		}
		if !state.OK {
			if blocked, marker := DetectBlockedPage(state.Body); blocked {
				return nil, resilience.NewBlockedError(
					eris.Errorf("discovery: block page for %q", query), marker)
			}
			return nil, resilience.NewMalformedError(
				eris.Errorf("discovery: no client state for %q", query))
		}
		if len(state.Places) == 0 {
			break
		}

		for _, place := range state.Places {
			stub, ok := d.toStub(place)
			if !ok {
				continue
			}
			if _, dup := seen[stub.BusinessID]; !dup {
				seen[stub.BusinessID] = stub
				order = append(order, stub.BusinessID)
			}
		}
	}

	stubs := make([]model.VenueStub, 0, len(order))
	for _, id := range order {
		stubs = append(stubs, seen[id])
	}
	zap.L().Info("region discovered",
		zap.String("query", query),
		zap.Int("venues", len(stubs)))
	return stubs, nil
}

// toStub converts a raw place into a venue stub, filtering entries that are
// clearly not rehearsal rooms when category keywords are configured.
func (d *Discoverer) toStub(place placeSummary) (model.VenueStub, bool) {
	if place.ID == "" {
		return model.VenueStub{}, false
	}
	if len(d.cfg.CategoryKeywords) > 0 && place.Category != "" && !d.matchesCategory(place) {
		return model.VenueStub{}, false
	}

	stub := model.VenueStub{
		BusinessID:  place.ID,
		DisplayName: place.Name,
		Category:    place.Category,
	}
	if lng, err := strconv.ParseFloat(place.X, 64); err == nil {
		if lat, err := strconv.ParseFloat(place.Y, 64); err == nil {
			stub.Lng = &lng
			stub.Lat = &lat
		}
	}
	return stub, true
}

func (d *Discoverer) matchesCategory(place placeSummary) bool {
	haystack := place.Category + " " + place.Name
	for _, kw := range d.cfg.CategoryKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// humanPause sleeps a randomized interval between page interactions. Uniform
// machine-speed timing is one of the search surface's bot heuristics.
func (d *Discoverer) humanPause(ctx context.Context) {
	lo, hi := d.cfg.MinDelayMillis, d.cfg.MaxDelayMillis
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		hi = lo + 1
	}
	delay := time.Duration(lo+rand.IntN(hi-lo)) * time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
