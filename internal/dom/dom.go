// Package dom abstracts the live helpdesk page the assistant operates on.
// Adapters never touch raw HTML parsing directly; they work against Page and
// Element so the same code serves snapshot files, tests, and the extension
// bridge.
package dom

// Event is a synthetic DOM event dispatched at an element. The enumerated
// event sequence an adapter fires after a programmatic mutation is part of its
// public contract, so events are first-class values recorded in the page
// operation log.
type Event struct {
	Type    string
	Payload map[string]any
}

// Mutation describes an observed change to the page tree. It mirrors the
// MutationObserver record kinds the content script forwards.
type Mutation struct {
	Kind   string // "childList", "attributes" or "characterData"
	Target string // path of the mutated element
}

// Op is one entry in a page's operation log: a mutation or synthetic event
// applied through the abstraction. The bridge replays op batches in the
// browser; tests assert against them.
type Op struct {
	Action string // "setHTML", "nativeSetHTML", "setValue", "dispatch", "click", "focus", "scrollIntoView"
	Target string
	Value  string `json:",omitempty"`
	Event  string `json:",omitempty"` // event type for dispatch ops
}

// Meta is a <meta> tag's name/content pair.
type Meta struct {
	Name    string
	Content string
}

// Element is a handle on a single node in the page.
type Element interface {
	Tag() string
	Text() string
	HTML() string
	OuterHTML() string
	SetHTML(html string)
	// NativeSetHTML re-invokes the host's native innerHTML setter through its
	// property descriptor so framework event delegation observes the change.
	// On a snapshot it behaves like SetHTML with a distinct op record.
	NativeSetHTML(html string)
	Attr(name string) (string, bool)
	SetAttr(name, value string)
	RemoveAttr(name string)
	HasClass(name string) bool
	Value() string
	SetValue(v string)
	IsContentEditable() bool
	Disabled() bool
	Matches(selector string) bool
	Find(selector string) Element
	FindAll(selector string) []Element
	Parent() Element
	Children() []Element
	Click()
	Focus()
	ScrollIntoView()
	Dispatch(evt Event)
	// Path is a stable, human-readable locator used in op records and logs.
	Path() string
}

// Page is the read/write surface over the current helpdesk page.
type Page interface {
	URL() string
	ReadyState() string
	// Find returns the first match or nil.
	Find(selector string) Element
	FindAll(selector string) []Element
	// Global resolves a dot-separated path into the page's global objects bag
	// (window globals the content script mirrors into the snapshot).
	Global(path string) (any, bool)
	MetaTags() []Meta
	// Subscribe registers a mutation callback and returns an unsubscribe
	// func. Callbacks may fire between any two suspension points; treat them
	// as an asynchronous event source.
	Subscribe(fn func(Mutation)) (unsubscribe func())
	// Ops returns the operation log accumulated so far.
	Ops() []Op
}

// EditorController mutates a structured rich-text editor through the editor's
// own document model. This is the only injection path that cannot desync the
// model from the rendered HTML.
type EditorController interface {
	Clear() error
	InsertText(text string) error
}

// EditorHost is an optional Page capability: implementations that can reach an
// editor's controller object expose it here. Find it with a type assertion.
type EditorHost interface {
	EditorController(el Element) (EditorController, bool)
}
