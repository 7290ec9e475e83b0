// Package manager coordinates detection, adapter lifecycle and capability
// dispatch. It is the single choke point between the generation pipeline and
// the page: no adapter error may propagate past it.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zackkatz/freescout-gpt-assistant/internal/adapter"
	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/platform"
	"github.com/zackkatz/freescout-gpt-assistant/internal/settings"
)

// ErrUnknownPlatform means detection recognized neither platform. It is a
// valid outcome, not a fault: the assistant stays inactive on the page.
var ErrUnknownPlatform = errors.New("unknown platform")

// ErrNoPage means no page has been attached yet.
var ErrNoPage = errors.New("no page attached")

const (
	defaultInitAttempts = 3
	defaultInitBackoff  = 500 * time.Millisecond
)

// Options configures a Manager. The zero value works for tests.
type Options struct {
	// Store backs the detector's user-override lookup. May be nil.
	Store settings.Store
	// AgentNames feeds the Help Scout DOM-fallback role heuristic.
	AgentNames []string
	// InitAttempts bounds initialization retries (default 3).
	InitAttempts int
	// InitBackoff is the base retry delay, scaled linearly by attempt
	// number (default 500ms).
	InitBackoff time.Duration
}

// Event is a manager or forwarded adapter event.
type Event struct {
	Type string
	Data map[string]any
}

// agentNameConfigurable is the optional adapter capability for the agent
// name list, checked without importing concrete bindings.
type agentNameConfigurable interface {
	SetAgentNames([]string)
}

// Manager is the orchestrator facade. Construct with New; there is no
// package-level instance.
type Manager struct {
	opts     Options
	detector *platform.Detector
	log      *slog.Logger

	// sf shares one in-flight initialization among concurrent callers so
	// re-entrant Initialize calls never construct duplicate adapters.
	sf singleflight.Group

	mu            sync.Mutex
	page          dom.Page
	active        adapter.Adapter
	kind          platform.Kind
	initialized   bool
	consecutive   int
	metrics       metricsState
	listeners     map[int]func(Event)
	nextListener  int
	constructions int
}

// New builds a Manager around the given options.
func New(opts Options) *Manager {
	if opts.InitAttempts <= 0 {
		opts.InitAttempts = defaultInitAttempts
	}
	if opts.InitBackoff <= 0 {
		opts.InitBackoff = defaultInitBackoff
	}
	return &Manager{
		opts:      opts,
		detector:  platform.New(opts.Store),
		log:       slog.With("component", "manager"),
		listeners: make(map[int]func(Event)),
		metrics:   newMetricsState(),
	}
}

// Detector exposes the manager's detector for diagnostics and the CLI.
func (m *Manager) Detector() *platform.Detector { return m.detector }

// SetPage attaches the current page. The bridge calls this on every
// snapshot; attaching a page does not by itself trigger initialization.
func (m *Manager) SetPage(page dom.Page) {
	m.mu.Lock()
	m.page = page
	m.mu.Unlock()
}

// Platform reports the detected platform of the active adapter.
func (m *Manager) Platform() platform.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kind
}

// Initialized reports whether an adapter is ready.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Listen registers an event callback and returns an unsubscribe func.
func (m *Manager) Listen(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) emit(evt Event) {
	m.mu.Lock()
	fns := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}

func (m *Manager) forwardAdapterEvent(name string, data map[string]any) {
	m.emit(Event{Type: name, Data: data})
}

// Initialize is idempotent: concurrent callers share one attempt, a ready
// manager returns immediately, and failures are retried with linearly
// increasing delay up to the attempt bound before giving up non-fatally.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	_, err, _ := m.sf.Do("initialize", func() (any, error) {
		m.mu.Lock()
		if m.initialized {
			m.mu.Unlock()
			return nil, nil
		}
		m.mu.Unlock()
		return nil, m.initialize(ctx)
	})
	return err
}

func (m *Manager) initialize(ctx context.Context) error {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= m.opts.InitAttempts; attempt++ {
		m.metric(func(s *metricsState) { s.InitAttempts++ })

		err := m.tryInitialize(ctx)
		if err == nil {
			elapsed := time.Since(start)
			m.metric(func(s *metricsState) { s.InitDuration = elapsed })
			m.emit(Event{Type: "initialized", Data: map[string]any{
				"platform": m.Platform().String(),
				"duration": elapsed.String(),
				"attempt":  attempt,
			}})
			return nil
		}

		lastErr = err
		m.metric(func(s *metricsState) { s.ErrorCount++ })
		m.emit(Event{Type: "error", Data: map[string]any{"operation": "initialize", "error": err.Error()}})
		if errors.Is(err, ErrUnknownPlatform) || errors.Is(err, ErrNoPage) {
			// Valid inactive outcomes; retrying cannot change them.
			break
		}
		m.log.Warn("initialization attempt failed", "attempt", attempt, "error", err)

		if attempt == m.opts.InitAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.opts.InitBackoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("initialize: %w", lastErr)
}

func (m *Manager) tryInitialize(ctx context.Context) error {
	m.mu.Lock()
	page := m.page
	m.mu.Unlock()
	if page == nil {
		return ErrNoPage
	}

	detStart := time.Now()
	kind := m.detector.Detect(ctx, page)
	detElapsed := time.Since(detStart)
	m.metric(func(s *metricsState) { s.DetectionDuration = detElapsed })

	reg, ok := adapter.Lookup(kind)
	if !ok {
		// Detection was inconclusive; let a binding claim the page itself.
		reg, ok = adapter.Match(page.URL(), page)
		if !ok {
			return ErrUnknownPlatform
		}
		kind = reg.Kind
	}

	loadStart := time.Now()
	active := reg.New()
	m.mu.Lock()
	m.constructions++
	m.mu.Unlock()

	if configurable, ok := active.(agentNameConfigurable); ok && len(m.opts.AgentNames) > 0 {
		configurable.SetAgentNames(m.opts.AgentNames)
	}
	if err := active.Initialize(ctx, page, m.forwardAdapterEvent); err != nil {
		active.Cleanup()
		return fmt.Errorf("adapter %s: %w", active.PlatformName(), err)
	}
	loadElapsed := time.Since(loadStart)

	m.mu.Lock()
	m.active = active
	m.kind = kind
	m.initialized = true
	m.mu.Unlock()
	m.metric(func(s *metricsState) { s.AdapterLoadDuration = loadElapsed })
	m.log.Info("adapter ready", "platform", kind.String())
	return nil
}

// Reset tears the active adapter down and rebuilds everything. The
// navigation watcher calls this on SPA route changes; both platforms can
// switch conversations without a full page reload.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.kind = platform.KindUnknown
	m.initialized = false
	m.consecutive = 0
	m.metrics = newMetricsState()
	m.mu.Unlock()

	if active != nil {
		active.Cleanup()
	}
	m.detector.ClearCache()
	m.emit(Event{Type: "reset", Data: nil})
	return m.Initialize(ctx)
}

// Close releases the active adapter without reinitializing.
func (m *Manager) Close() {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.initialized = false
	m.mu.Unlock()
	if active != nil {
		active.Cleanup()
	}
}

func (m *Manager) activeAdapter() adapter.Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// AdapterConstructions reports how many adapter instances this manager has
// built. Tests use it to prove concurrent initialization shares one attempt.
func (m *Manager) AdapterConstructions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.constructions
}
