package platform

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/settings"
)

const (
	// cacheTTL bounds how long a detection result is reused.
	cacheTTL = 5 * time.Minute

	retryAttempts = 3
	retryInterval = time.Second
)

// Detector runs the detection strategies and caches the combined result.
// Construct one per page context with New; there is no package-level state.
type Detector struct {
	store settings.Store
	log   *slog.Logger
	now   func() time.Time

	mu        sync.Mutex
	cached    Kind
	cachedAt  time.Time
	haveCache bool
	calls     map[string]int
	lastVotes []Vote
}

// New returns a Detector consulting store for the user override. store may
// be nil when no persistence is configured.
func New(store settings.Store) *Detector {
	return &Detector{
		store: store,
		log:   slog.With("component", "detector"),
		now:   time.Now,
		calls: make(map[string]int),
	}
}

// Detect classifies page, reusing a cached result younger than five minutes.
func (d *Detector) Detect(ctx context.Context, page dom.Page) Kind {
	d.mu.Lock()
	if d.haveCache && d.now().Sub(d.cachedAt) < cacheTTL {
		kind := d.cached
		d.mu.Unlock()
		return kind
	}
	d.mu.Unlock()

	votes := d.runStrategies(ctx, page)
	kind := combineVotes(votes)

	d.mu.Lock()
	d.cached = kind
	d.cachedAt = d.now()
	d.haveCache = true
	d.lastVotes = votes
	d.mu.Unlock()

	d.log.Debug("platform detected", "kind", kind.String(), "votes", len(votes))
	return kind
}

func (d *Detector) runStrategies(ctx context.Context, page dom.Page) []Vote {
	d.countCall(StrategyOverride)
	override := detectByOverride(ctx, d.store)

	d.countCall(StrategyURL)
	urlVote := detectByURL(page.URL())

	d.countCall(StrategyDOM)
	domVote := detectByDOM(page)

	d.countCall(StrategyAPI)
	apiVote := detectByAPI(page)

	return []Vote{
		{Strategy: StrategyOverride, Kind: override, Weight: 1},
		{Strategy: StrategyURL, Kind: urlVote, Weight: 1},
		{Strategy: StrategyDOM, Kind: domVote, Weight: 1},
		{Strategy: StrategyAPI, Kind: apiVote, Weight: apiVoteWeight},
	}
}

// DetectWithRetry polls detection to tolerate SPA hydration delay: it waits
// for the page to report a loaded readyState, then retries up to three times
// at one-second intervals until a platform is recognized.
func (d *Detector) DetectWithRetry(ctx context.Context, page dom.Page) Kind {
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if ready(page) {
			if kind := d.Detect(ctx, page); kind != KindUnknown {
				return kind
			}
			d.ClearCache()
		}
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return KindUnknown
		case <-time.After(retryInterval):
		}
	}
	// Final answer, cached even when unknown.
	return d.Detect(ctx, page)
}

func ready(page dom.Page) bool {
	switch page.ReadyState() {
	case "interactive", "complete":
		return true
	default:
		return false
	}
}

// ClearCache forgets the cached result; the next Detect re-runs strategies.
func (d *Detector) ClearCache() {
	d.mu.Lock()
	d.haveCache = false
	d.mu.Unlock()
}

// LastVotes reports the per-strategy votes behind the cached result.
func (d *Detector) LastVotes() []Vote {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Vote, len(d.lastVotes))
	copy(out, d.lastVotes)
	return out
}

// StrategyCalls reports how many times each strategy has run. Tests use it
// to verify the cache short-circuits repeated detection.
func (d *Detector) StrategyCalls() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.calls))
	for k, v := range d.calls {
		out[k] = v
	}
	return out
}

// SetClock replaces the time source. Test hook for cache-expiry coverage.
func (d *Detector) SetClock(now func() time.Time) { d.now = now }

func (d *Detector) countCall(name string) {
	d.mu.Lock()
	d.calls[name]++
	d.mu.Unlock()
}
