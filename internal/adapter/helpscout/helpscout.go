// Package helpscout binds the adapter contract to Help Scout's React SPA.
// The app hydrates after page load, renders non-semantic class names that
// change between releases, and drives a structured rich-text editor whose
// document model is decoupled from its rendered HTML. Extraction prefers the
// app's in-memory state over the DOM, selectors prefer data-*/aria-* hooks
// over class names, and reply injection goes through a ranked strategy list
// that never falls back to a raw HTML overwrite.
package helpscout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zackkatz/freescout-gpt-assistant/internal/adapter"
	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/platform"
)

const platformName = "helpscout"

// appStateGlobal is the window global the content script mirrors when the
// host app exposes its store.
const appStateGlobal = "appData"

var (
	conversationSelectors = []string{
		"[data-cy=conversationThread]",
		"section[role=main] article",
		".c-conversation",
	}
	editorSelectors = []string{
		"[data-slate-editor]",
		"[role=textbox][contenteditable]",
		".DraftEditor-root [contenteditable]",
	}
	appRootSelectors = []string{"#js-MainContent", "#wrap", "[data-react-root]"}

	replyTriggerSelectors = []string{
		"button[data-cy=reply-button]",
		"button[aria-label=Reply]",
	}
)

func init() {
	adapter.Register(adapter.Registration{
		Kind:      platform.KindHelpScout,
		CanHandle: CanHandle,
		New:       func() adapter.Adapter { return New() },
	})
}

// CanHandle recognizes Help Scout by domain or definitive markers.
func CanHandle(url string, page dom.Page) bool {
	if strings.Contains(strings.ToLower(url), "helpscout.net") {
		return true
	}
	if _, ok := page.Global(appStateGlobal); ok {
		return true
	}
	return page.Find(conversationSelectors[0]) != nil
}

// Adapter implements the platform contract for Help Scout.
type Adapter struct {
	adapter.Helpers
	log  *slog.Logger
	sink adapter.EventSink

	// agentNames is the configured last-ditch role heuristic for the DOM
	// fallback; the app-state author type is always preferred.
	agentNames []string

	readinessAttempts int
	readinessInterval time.Duration
	replyMountDelay   time.Duration

	mu          sync.Mutex
	appState    map[string]any
	editorPath  string
	unsubscribe func()
}

// New returns an uninitialized Help Scout adapter.
func New() *Adapter {
	return &Adapter{
		log:               slog.With("component", "adapter", "platform", platformName),
		readinessAttempts: 20,
		readinessInterval: 250 * time.Millisecond,
		replyMountDelay:   500 * time.Millisecond,
	}
}

// SetAgentNames configures the DOM-fallback agent name list.
func (a *Adapter) SetAgentNames(names []string) { a.agentNames = names }

// PlatformName identifies this binding.
func (a *Adapter) PlatformName() string { return platformName }

// Initialize waits for hydration and wires the mutation subscription. The
// wait accepts partial evidence (any of app state, conversation container,
// editor, or app root) and proceeds best-effort after the attempt bound:
// a half-hydrated page must never hard-fail the whole extension.
func (a *Adapter) Initialize(ctx context.Context, page dom.Page, sink adapter.EventSink) error {
	a.Bind(page, a.log)
	a.sink = sink

	if !a.waitForReadiness(ctx, page) {
		a.log.Warn("hydration wait exhausted, proceeding best-effort", "url", page.URL())
	}
	a.refreshAppState(page)

	unsubscribe := page.Subscribe(a.onMutation)
	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.mu.Unlock()
	return nil
}

func (a *Adapter) waitForReadiness(ctx context.Context, page dom.Page) bool {
	for attempt := 0; attempt < a.readinessAttempts; attempt++ {
		if a.hydrationEvidence(page) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(a.readinessInterval):
		}
	}
	return a.hydrationEvidence(page)
}

func (a *Adapter) hydrationEvidence(page dom.Page) bool {
	if _, ok := page.Global(appStateGlobal); ok {
		return true
	}
	for _, sel := range conversationSelectors {
		if page.Find(sel) != nil {
			return true
		}
	}
	for _, sel := range editorSelectors {
		if page.Find(sel) != nil {
			return true
		}
	}
	for _, sel := range appRootSelectors {
		if page.Find(sel) != nil {
			return true
		}
	}
	return false
}

// onMutation invalidates the element cache and re-snapshots app state when
// the conversation subtree changes, and reports editor mutations. It can
// fire between any two suspension points; caches are performance hints only,
// so racing an in-progress extraction is acceptable.
func (a *Adapter) onMutation(m dom.Mutation) {
	a.ClearCache()
	if page := a.Page(); page != nil {
		a.refreshAppState(page)
	}

	a.mu.Lock()
	editorPath := a.editorPath
	sink := a.sink
	a.mu.Unlock()
	if sink != nil && editorPath != "" && strings.Contains(m.Target, editorPath) {
		sink("editorChanged", map[string]any{"target": m.Target})
	}
}

func (a *Adapter) refreshAppState(page dom.Page) {
	state, ok := page.Global(appStateGlobal)
	a.mu.Lock()
	defer a.mu.Unlock()
	if !ok {
		a.appState = nil
		return
	}
	if m, isMap := state.(map[string]any); isMap {
		a.appState = m
	}
}

func (a *Adapter) state() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appState
}

// ReplyEditor resolves the rich-text editor. Help Scout mounts it only after
// the Reply affordance is clicked, so when no editor exists but an enabled
// trigger does, the trigger is clicked programmatically and the selectors
// are retried after a fixed delay.
func (a *Adapter) ReplyEditor(ctx context.Context) (dom.Element, error) {
	if el := a.findEditor(); el != nil {
		return el, nil
	}

	trigger := a.findReplyTrigger()
	if trigger == nil {
		a.RecordError(adapter.ErrNoEditor)
		return nil, adapter.ErrNoEditor
	}
	trigger.Click()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.replyMountDelay):
	}
	a.ClearCache()
	if el := a.findEditor(); el != nil {
		return el, nil
	}
	a.RecordError(adapter.ErrNoEditor)
	return nil, adapter.ErrNoEditor
}

func (a *Adapter) findEditor() dom.Element {
	for _, sel := range editorSelectors {
		if el := a.Query(sel); el != nil {
			a.mu.Lock()
			a.editorPath = el.Path()
			a.mu.Unlock()
			return el
		}
	}
	return nil
}

func (a *Adapter) findReplyTrigger() dom.Element {
	for _, sel := range replyTriggerSelectors {
		if el := a.Query(sel); el != nil && !el.Disabled() {
			return el
		}
	}
	return nil
}

// CurrentUser prefers the app-state user record, then the account menu.
func (a *Adapter) CurrentUser(_ context.Context) (string, error) {
	if state := a.state(); state != nil {
		if user, ok := state["user"].(map[string]any); ok {
			if name := personName(user); name != "" {
				return name, nil
			}
		}
	}
	if el := a.Query("[data-cy=user-menu]"); el != nil {
		if label, ok := el.Attr("aria-label"); ok && label != "" {
			return label, nil
		}
	}
	return "", fmt.Errorf("helpscout: current user not found")
}

// ShowGeneratingStatus marks the editor busy while a draft is pending.
func (a *Adapter) ShowGeneratingStatus(ctx context.Context) error {
	editor, err := a.ReplyEditor(ctx)
	if err != nil {
		return err
	}
	editor.SetAttr("aria-busy", "true")
	editor.SetAttr("data-assistant-status", "generating")
	return nil
}

// ClearGeneratingStatus removes the busy markers.
func (a *Adapter) ClearGeneratingStatus(ctx context.Context) error {
	editor, err := a.ReplyEditor(ctx)
	if err != nil {
		return err
	}
	editor.RemoveAttr("aria-busy")
	editor.RemoveAttr("data-assistant-status")
	return nil
}

// Cleanup disconnects the mutation subscription and releases helper state.
// Safe to call repeatedly.
func (a *Adapter) Cleanup() {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.appState = nil
	a.editorPath = ""
	a.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	a.Helpers.Cleanup()
}

func personName(person map[string]any) string {
	first, _ := person["first"].(string)
	last, _ := person["last"].(string)
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		name, _ = person["name"].(string)
	}
	return name
}
