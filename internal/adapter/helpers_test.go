package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
)

const helpersPage = `<html><body>
  <div id="editor" contenteditable="true"></div>
  <textarea id="plain"></textarea>
  <p class="row">one</p>
  <p class="row">two</p>
</body></html>`

// countingPage counts Find/FindAll hits so cache behavior is observable.
type countingPage struct {
	dom.Page
	finds    int
	findAlls int
}

func (p *countingPage) Find(selector string) dom.Element {
	p.finds++
	return p.Page.Find(selector)
}

func (p *countingPage) FindAll(selector string) []dom.Element {
	p.findAlls++
	return p.Page.FindAll(selector)
}

func newBoundHelpers(t *testing.T) (*Helpers, *countingPage) {
	t.Helper()
	snap, err := dom.ParseSnapshot("https://desk.example.com/", helpersPage, nil)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	page := &countingPage{Page: snap}
	h := &Helpers{}
	h.Bind(page, nil)
	return h, page
}

func TestQueryCacheTTL(t *testing.T) {
	h, page := newBoundHelpers(t)
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	if h.Query("#editor") == nil {
		t.Fatalf("expected #editor match")
	}
	h.Query("#editor")
	h.Query("#editor")
	if page.finds != 1 {
		t.Fatalf("expected 1 page lookup, got %d", page.finds)
	}

	now = now.Add(6 * time.Second)
	h.Query("#editor")
	if page.finds != 2 {
		t.Fatalf("expected re-lookup after TTL, got %d", page.finds)
	}

	// Misses are cached too.
	h.Query(".absent")
	h.Query(".absent")
	if page.finds != 3 {
		t.Fatalf("expected 1 lookup for cached miss, got %d", page.finds)
	}
}

func TestQueryAllCacheAndClear(t *testing.T) {
	h, page := newBoundHelpers(t)

	if got := h.QueryAll(".row"); len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	h.QueryAll(".row")
	if page.findAlls != 1 {
		t.Fatalf("expected 1 page lookup, got %d", page.findAlls)
	}

	h.ClearCache()
	h.QueryAll(".row")
	if page.findAlls != 2 {
		t.Fatalf("expected re-lookup after ClearCache, got %d", page.findAlls)
	}
}

func TestDebounceReplacesPending(t *testing.T) {
	h, _ := newBoundHelpers(t)

	fired := make(chan string, 2)
	h.Debounce("k", 50*time.Millisecond, func() { fired <- "first" })
	h.Debounce("k", 10*time.Millisecond, func() { fired <- "second" })

	select {
	case got := <-fired:
		if got != "second" {
			t.Fatalf("replaced call fired: %s", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("debounced func never fired")
	}

	select {
	case got := <-fired:
		t.Fatalf("stale debounced call fired: %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestErrorRingKeepsLastTen(t *testing.T) {
	h, _ := newBoundHelpers(t)

	h.RecordError(nil)
	if h.ErrorCount() != 0 {
		t.Fatalf("nil error recorded")
	}

	for i := 0; i < 13; i++ {
		h.RecordError(fmt.Errorf("failure %d", i))
	}
	errs := h.Errors()
	if len(errs) != 10 {
		t.Fatalf("expected 10 tracked errors, got %d", len(errs))
	}
	if errs[0].Message != "failure 3" || errs[9].Message != "failure 12" {
		t.Fatalf("ring kept wrong window: first=%q last=%q", errs[0].Message, errs[9].Message)
	}

	h.Cleanup()
	if h.ErrorCount() != 0 {
		t.Fatalf("errors survived Cleanup")
	}
}

func TestInjectIntoContentEditable(t *testing.T) {
	snap, err := dom.ParseSnapshot("https://desk.example.com/", helpersPage, nil)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	h := &Helpers{}
	h.Bind(snap, nil)

	editor := snap.Find("#editor")
	if err := h.InjectInto(editor, "Hello **world**"); err != nil {
		t.Fatalf("InjectInto returned error: %v", err)
	}
	if !strings.Contains(editor.HTML(), "<strong>world</strong>") {
		t.Fatalf("markdown not rendered into editor: %q", editor.HTML())
	}

	var events []string
	for _, op := range snap.Ops() {
		if op.Action == "dispatch" {
			events = append(events, op.Event)
		}
	}
	if strings.Join(events, ",") != "input,change,keyup" {
		t.Fatalf("unexpected event sequence: %v", events)
	}

	last := snap.Ops()[len(snap.Ops())-1]
	if last.Action != "scrollIntoView" {
		t.Fatalf("expected trailing scrollIntoView, got %s", last.Action)
	}
}

func TestInjectIntoPlainField(t *testing.T) {
	snap, err := dom.ParseSnapshot("https://desk.example.com/", helpersPage, nil)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	h := &Helpers{}
	h.Bind(snap, nil)

	field := snap.Find("#plain")
	if err := h.InjectInto(field, "Hello **world**\nbye"); err != nil {
		t.Fatalf("InjectInto returned error: %v", err)
	}
	if got := field.Value(); got != "Hello world\nbye" {
		t.Fatalf("unexpected textarea value: %q", got)
	}
}

func TestInjectIntoNilEditor(t *testing.T) {
	h, _ := newBoundHelpers(t)

	if err := h.InjectInto(nil, "text"); !errors.Is(err, ErrNoEditor) {
		t.Fatalf("expected ErrNoEditor, got %v", err)
	}
	if h.ErrorCount() != 1 {
		t.Fatalf("failure not recorded: %d", h.ErrorCount())
	}
}

func TestSanitizeBag(t *testing.T) {
	h, _ := newBoundHelpers(t)

	bag := h.SanitizeBag(CustomerInfo{
		"name":  `<img src=x onerror=alert(1)>`,
		"count": 3,
		"tags":  []any{"<b>vip</b>", "plain"},
		"license": map[string]any{
			"key": `"quoted"`,
		},
	})

	if got := bag["name"].(string); strings.Contains(got, "<img") {
		t.Fatalf("name not escaped: %q", got)
	}
	if bag["count"] != 3 {
		t.Fatalf("non-string leaf altered: %v", bag["count"])
	}
	if got := bag["tags"].([]any)[0].(string); got != "&lt;b&gt;vip&lt;/b&gt;" {
		t.Fatalf("nested slice not escaped: %q", got)
	}
	if got := bag["license"].(map[string]any)["key"].(string); got != "&#34;quoted&#34;" {
		t.Fatalf("nested map not escaped: %q", got)
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"<p>one</p><br>two", "one\ntwo"},
		{"a<br/>b<BR>c", "a\nb\nc"},
		{"&lt;tag&gt; &amp; more", "<tag> & more"},
		{"  <div>trimmed</div>  ", "trimmed"},
	}
	for _, tt := range tests {
		if got := HTMLToText(tt.in); got != tt.want {
			t.Fatalf("HTMLToText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
