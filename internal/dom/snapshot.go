package dom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// SnapshotOptions configures snapshot parsing.
type SnapshotOptions struct {
	// Globals is the page's mirrored window-global bag, as decoded JSON.
	Globals map[string]any
	// ReadyState overrides the default "complete".
	ReadyState string
}

// Snapshot is a Page backed by a parsed HTML document. It is the substrate
// for tests, the offline CLI, and the extension bridge (which applies live
// snapshots and replays the resulting op log in the browser).
type Snapshot struct {
	mu         sync.Mutex
	url        string
	readyState string
	doc        *goquery.Document
	globals    map[string]any

	ops     []Op
	subs    map[int]func(Mutation)
	nextSub int

	clickHooks  []clickHook
	controllers map[*html.Node]EditorController

	// simulateEvents makes contentEditable targets apply paste/insertText
	// payloads to their text content, the way the live editor would.
	simulateEvents bool
}

type clickHook struct {
	selector string
	fn       func()
}

var _ Page = (*Snapshot)(nil)
var _ EditorHost = (*Snapshot)(nil)

// ParseSnapshot parses an HTML document into a Snapshot.
func ParseSnapshot(url, htmlSrc string, opts *SnapshotOptions) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	s := &Snapshot{
		url:            url,
		readyState:     "complete",
		doc:            doc,
		subs:           make(map[int]func(Mutation)),
		controllers:    make(map[*html.Node]EditorController),
		simulateEvents: true,
	}
	if opts != nil {
		if opts.Globals != nil {
			s.globals = opts.Globals
		}
		if opts.ReadyState != "" {
			s.readyState = opts.ReadyState
		}
	}
	return s, nil
}

// URL returns the page URL the snapshot was captured from.
func (s *Snapshot) URL() string { return s.url }

// ReadyState reports the captured document readyState.
func (s *Snapshot) ReadyState() string { return s.readyState }

// SetReadyState updates the readyState, notifying subscribers. The bridge
// calls this when the content script reports hydration progress.
func (s *Snapshot) SetReadyState(state string) {
	s.mu.Lock()
	s.readyState = state
	s.mu.Unlock()
	s.notify(Mutation{Kind: "childList", Target: "document"})
}

// Find returns the first element matching selector, or nil.
func (s *Snapshot) Find(selector string) Element {
	sel := s.doc.Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return &snapshotElement{snap: s, sel: sel.First()}
}

// FindAll returns every element matching selector, in document order.
func (s *Snapshot) FindAll(selector string) []Element {
	var out []Element
	s.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, &snapshotElement{snap: s, sel: sel})
	})
	return out
}

// Global resolves a dot-separated path into the globals bag.
func (s *Snapshot) Global(path string) (any, bool) {
	if s.globals == nil {
		return nil, false
	}
	var cur any = s.globals
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetGlobal replaces a top-level global. Used by the bridge when the content
// script re-mirrors app state.
func (s *Snapshot) SetGlobal(name string, value any) {
	s.mu.Lock()
	if s.globals == nil {
		s.globals = make(map[string]any)
	}
	s.globals[name] = value
	s.mu.Unlock()
}

// MetaTags lists the document's <meta> name/content pairs.
func (s *Snapshot) MetaTags() []Meta {
	var out []Meta
	s.doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok {
			name, _ = sel.Attr("property")
		}
		content, _ := sel.Attr("content")
		out = append(out, Meta{Name: name, Content: content})
	})
	return out
}

// Subscribe registers a mutation callback. The returned func removes it.
func (s *Snapshot) Subscribe(fn func(Mutation)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Ops returns a copy of the operation log.
func (s *Snapshot) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// ClearOps drops the operation log. The bridge calls this after replaying a
// batch in the browser.
func (s *Snapshot) ClearOps() {
	s.mu.Lock()
	s.ops = nil
	s.mu.Unlock()
}

// OnClick registers a host-behavior hook: when an element matching selector
// is clicked, fn runs. Tests and the bridge use this to emulate the host app
// reacting to programmatic clicks (for example mounting a reply editor).
func (s *Snapshot) OnClick(selector string, fn func()) {
	s.mu.Lock()
	s.clickHooks = append(s.clickHooks, clickHook{selector: selector, fn: fn})
	s.mu.Unlock()
}

// AttachEditorController binds a structured-editor controller to the first
// element matching selector, making it reachable through EditorHost.
func (s *Snapshot) AttachEditorController(selector string, ctrl EditorController) error {
	sel := s.doc.Find(selector)
	if sel.Length() == 0 {
		return fmt.Errorf("attach editor controller: no element matches %q", selector)
	}
	s.mu.Lock()
	s.controllers[sel.Get(0)] = ctrl
	s.mu.Unlock()
	return nil
}

// EditorController implements EditorHost.
func (s *Snapshot) EditorController(el Element) (EditorController, bool) {
	se, ok := el.(*snapshotElement)
	if !ok || se.sel.Length() == 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctrl, ok := s.controllers[se.sel.Get(0)]
	return ctrl, ok
}

// SetEventSimulation toggles whether dispatched paste/insertText events are
// applied to their contentEditable target. On by default; tests exercising
// injection failure paths turn it off.
func (s *Snapshot) SetEventSimulation(on bool) {
	s.mu.Lock()
	s.simulateEvents = on
	s.mu.Unlock()
}

func (s *Snapshot) record(op Op) {
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
}

func (s *Snapshot) notify(m Mutation) {
	s.mu.Lock()
	fns := make([]func(Mutation), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (s *Snapshot) runClickHooks(el *snapshotElement) {
	s.mu.Lock()
	hooks := make([]clickHook, len(s.clickHooks))
	copy(hooks, s.clickHooks)
	s.mu.Unlock()
	for _, h := range hooks {
		if el.Matches(h.selector) {
			h.fn()
		}
	}
}
