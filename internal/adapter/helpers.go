package adapter

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/sanitize"
)

const (
	// queryCacheTTL bounds element-lookup reuse. Caches are performance
	// hints only; mutation callbacks may clear them mid-extraction.
	queryCacheTTL = 5 * time.Second

	// maxTrackedErrors is the size of the diagnostic error ring.
	maxTrackedErrors = 10
)

// injectionEvents is the fixed event sequence fired after any programmatic
// mutation so the host page's own JS observes the change. The order is part
// of the adapter contract.
var injectionEvents = []string{"input", "change", "keyup"}

// ErrNoEditor is returned when no reply editor could be resolved.
var ErrNoEditor = errors.New("reply editor not found")

// ErrRecord is one entry in the diagnostic error ring.
type ErrRecord struct {
	Message string
	At      time.Time
}

type cachedElement struct {
	el      dom.Element
	fetched time.Time
}

type cachedElements struct {
	els     []dom.Element
	fetched time.Time
}

// Helpers carries the utilities shared by every platform binding: TTL-cached
// queries, a string-keyed debouncer, error tracking and generic injection.
// Embed it by value and call Bind during Initialize; concrete adapters must
// route lookups through it rather than hitting the page directly.
type Helpers struct {
	mu       sync.Mutex
	page     dom.Page
	log      *slog.Logger
	now      func() time.Time
	single   map[string]cachedElement
	multi    map[string]cachedElements
	debounce map[string]*time.Timer
	errs     []ErrRecord
}

// Bind attaches the helpers to a page. Must be called before any query.
func (h *Helpers) Bind(page dom.Page, log *slog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.page = page
	h.log = log
	if h.now == nil {
		h.now = time.Now
	}
	h.single = make(map[string]cachedElement)
	h.multi = make(map[string]cachedElements)
	h.debounce = make(map[string]*time.Timer)
	h.errs = nil
}

// Page returns the bound page, or nil before Bind.
func (h *Helpers) Page() dom.Page {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.page
}

// Query is a cached Find with a five second TTL.
func (h *Helpers) Query(selector string) dom.Element {
	h.mu.Lock()
	if c, ok := h.single[selector]; ok && h.now().Sub(c.fetched) < queryCacheTTL {
		h.mu.Unlock()
		return c.el
	}
	page := h.page
	h.mu.Unlock()
	if page == nil {
		return nil
	}
	el := page.Find(selector)
	h.mu.Lock()
	h.single[selector] = cachedElement{el: el, fetched: h.now()}
	h.mu.Unlock()
	return el
}

// QueryAll is a cached FindAll with a five second TTL.
func (h *Helpers) QueryAll(selector string) []dom.Element {
	h.mu.Lock()
	if c, ok := h.multi[selector]; ok && h.now().Sub(c.fetched) < queryCacheTTL {
		h.mu.Unlock()
		return c.els
	}
	page := h.page
	h.mu.Unlock()
	if page == nil {
		return nil
	}
	els := page.FindAll(selector)
	h.mu.Lock()
	h.multi[selector] = cachedElements{els: els, fetched: h.now()}
	h.mu.Unlock()
	return els
}

// ClearCache drops all cached query results.
func (h *Helpers) ClearCache() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.single = make(map[string]cachedElement)
	h.multi = make(map[string]cachedElements)
}

// Debounce schedules fn after delay, replacing any pending call under the
// same key.
func (h *Helpers) Debounce(key string, delay time.Duration, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.debounce[key]; ok {
		t.Stop()
	}
	h.debounce[key] = time.AfterFunc(delay, fn)
}

// RecordError appends to the diagnostic ring, keeping the last ten entries.
func (h *Helpers) RecordError(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, ErrRecord{Message: err.Error(), At: h.now()})
	if len(h.errs) > maxTrackedErrors {
		h.errs = h.errs[len(h.errs)-maxTrackedErrors:]
	}
}

// Errors returns a copy of the error ring.
func (h *Helpers) Errors() []ErrRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ErrRecord, len(h.errs))
	copy(out, h.errs)
	return out
}

// ErrorCount reports recorded errors.
func (h *Helpers) ErrorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errs)
}

// Cleanup stops pending debounce timers and clears caches and the error
// ring. The page binding survives so a reset can rebind cheaply.
func (h *Helpers) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.debounce {
		t.Stop()
	}
	h.debounce = make(map[string]*time.Timer)
	h.single = make(map[string]cachedElement)
	h.multi = make(map[string]cachedElements)
	h.errs = nil
}

// SanitizeBag recursively HTML-escapes every string in a customer-info bag.
// Non-string leaves pass through untouched.
func (h *Helpers) SanitizeBag(bag CustomerInfo) CustomerInfo {
	out := make(CustomerInfo, len(bag))
	for k, v := range bag {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return sanitize.Escape(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = sanitizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner)
		}
		return out
	default:
		return v
	}
}

// InjectInto sanitizes html and places it into el: rich-text targets get the
// sanitized HTML, plain fields get its text rendering. Either way the
// injection event sequence fires and the element is focused and scrolled
// into view. Failures are logged and returned, never panicked.
func (h *Helpers) InjectInto(el dom.Element, rawHTML string) error {
	if el == nil {
		err := ErrNoEditor
		h.RecordError(err)
		h.warn("inject failed", err)
		return err
	}
	clean := sanitize.Sanitize(rawHTML, sanitize.Options{Markdown: true})
	if el.IsContentEditable() {
		el.SetHTML(clean)
	} else {
		el.SetValue(HTMLToText(clean))
	}
	for _, name := range injectionEvents {
		el.Dispatch(dom.Event{Type: name, Payload: map[string]any{"bubbles": true}})
	}
	el.Focus()
	el.ScrollIntoView()
	return nil
}

func (h *Helpers) warn(msg string, err error) {
	h.mu.Lock()
	log := h.log
	h.mu.Unlock()
	if log != nil {
		log.Warn(msg, "error", err)
	}
}

var (
	brRe  = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe = regexp.MustCompile(`<[^>]+>`)
)

// HTMLToText renders sanitized HTML as plain text for non-rich targets.
func HTMLToText(s string) string {
	s = brRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(unescapeEntities(s))
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&", "&lt;", "<", "&gt;", ">",
	"&#34;", `"`, "&quot;", `"`, "&#39;", "'",
	"&nbsp;", " ",
)

func unescapeEntities(s string) string { return entityReplacer.Replace(s) }
