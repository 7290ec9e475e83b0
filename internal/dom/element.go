package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// snapshotElement wraps a single-node goquery selection.
type snapshotElement struct {
	snap *Snapshot
	sel  *goquery.Selection
}

var _ Element = (*snapshotElement)(nil)

func (e *snapshotElement) Tag() string {
	node := e.sel.Get(0)
	if node == nil {
		return ""
	}
	return node.Data
}

func (e *snapshotElement) Text() string { return e.sel.Text() }

func (e *snapshotElement) HTML() string {
	h, err := e.sel.Html()
	if err != nil {
		return ""
	}
	return h
}

func (e *snapshotElement) OuterHTML() string {
	h, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return ""
	}
	return h
}

func (e *snapshotElement) SetHTML(htmlSrc string) {
	e.sel.SetHtml(htmlSrc)
	e.snap.record(Op{Action: "setHTML", Target: e.Path(), Value: htmlSrc})
	e.snap.notify(Mutation{Kind: "childList", Target: e.Path()})
}

func (e *snapshotElement) NativeSetHTML(htmlSrc string) {
	e.sel.SetHtml(htmlSrc)
	e.snap.record(Op{Action: "nativeSetHTML", Target: e.Path(), Value: htmlSrc})
	e.snap.notify(Mutation{Kind: "childList", Target: e.Path()})
}

func (e *snapshotElement) Attr(name string) (string, bool) { return e.sel.Attr(name) }

func (e *snapshotElement) SetAttr(name, value string) {
	e.sel.SetAttr(name, value)
	e.snap.record(Op{Action: "setAttr", Target: e.Path(), Value: name + "=" + value})
	e.snap.notify(Mutation{Kind: "attributes", Target: e.Path()})
}

func (e *snapshotElement) RemoveAttr(name string) {
	e.sel.RemoveAttr(name)
	e.snap.record(Op{Action: "removeAttr", Target: e.Path(), Value: name})
	e.snap.notify(Mutation{Kind: "attributes", Target: e.Path()})
}

func (e *snapshotElement) HasClass(name string) bool { return e.sel.HasClass(name) }

func (e *snapshotElement) Value() string {
	if e.Tag() == "textarea" {
		return e.sel.Text()
	}
	v, _ := e.sel.Attr("value")
	return v
}

func (e *snapshotElement) SetValue(v string) {
	if e.Tag() == "textarea" {
		e.sel.SetText(v)
	} else {
		e.sel.SetAttr("value", v)
	}
	e.snap.record(Op{Action: "setValue", Target: e.Path(), Value: v})
	e.snap.notify(Mutation{Kind: "characterData", Target: e.Path()})
}

func (e *snapshotElement) IsContentEditable() bool {
	v, ok := e.sel.Attr("contenteditable")
	return ok && v != "false"
}

func (e *snapshotElement) Disabled() bool {
	if _, ok := e.sel.Attr("disabled"); ok {
		return true
	}
	v, _ := e.sel.Attr("aria-disabled")
	return v == "true"
}

func (e *snapshotElement) Matches(selector string) bool { return e.sel.Is(selector) }

func (e *snapshotElement) Find(selector string) Element {
	sel := e.sel.Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return &snapshotElement{snap: e.snap, sel: sel.First()}
}

func (e *snapshotElement) FindAll(selector string) []Element {
	var out []Element
	e.sel.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, &snapshotElement{snap: e.snap, sel: sel})
	})
	return out
}

func (e *snapshotElement) Parent() Element {
	p := e.sel.Parent()
	if p.Length() == 0 {
		return nil
	}
	return &snapshotElement{snap: e.snap, sel: p}
}

func (e *snapshotElement) Children() []Element {
	var out []Element
	e.sel.Children().Each(func(_ int, sel *goquery.Selection) {
		out = append(out, &snapshotElement{snap: e.snap, sel: sel})
	})
	return out
}

func (e *snapshotElement) Click() {
	e.snap.record(Op{Action: "click", Target: e.Path()})
	e.snap.runClickHooks(e)
}

func (e *snapshotElement) Focus() {
	e.snap.record(Op{Action: "focus", Target: e.Path()})
}

func (e *snapshotElement) ScrollIntoView() {
	e.snap.record(Op{Action: "scrollIntoView", Target: e.Path()})
}

func (e *snapshotElement) Dispatch(evt Event) {
	e.snap.record(Op{Action: "dispatch", Target: e.Path(), Event: evt.Type})
	e.applySimulated(evt)
}

// applySimulated mirrors what the live editor would do with a paste or
// insertText event, so injection strategies can verify outcomes against the
// snapshot the same way they diff the real DOM.
func (e *snapshotElement) applySimulated(evt Event) {
	e.snap.mu.Lock()
	simulate := e.snap.simulateEvents
	e.snap.mu.Unlock()
	if !simulate || !e.IsContentEditable() {
		return
	}
	switch evt.Type {
	case "paste":
		if text, ok := evt.Payload["text"].(string); ok {
			e.sel.SetText(text)
			e.snap.notify(Mutation{Kind: "characterData", Target: e.Path()})
		}
	case "beforeinput", "input":
		if it, _ := evt.Payload["inputType"].(string); it == "insertText" {
			if text, ok := evt.Payload["data"].(string); ok {
				e.sel.SetText(text)
				e.snap.notify(Mutation{Kind: "characterData", Target: e.Path()})
			}
		}
	}
}

// Path builds a short readable locator: up to four ancestor segments of
// tag#id / tag.class joined by " > ".
func (e *snapshotElement) Path() string {
	node := e.sel.Get(0)
	if node == nil {
		return ""
	}
	var segs []string
	for n := node; n != nil && n.Type == html.ElementNode && len(segs) < 4; n = n.Parent {
		segs = append([]string{segment(n)}, segs...)
	}
	return strings.Join(segs, " > ")
}

func segment(n *html.Node) string {
	seg := n.Data
	for _, a := range n.Attr {
		switch a.Key {
		case "id":
			if a.Val != "" {
				return seg + "#" + a.Val
			}
		case "class":
			if first := strings.Fields(a.Val); len(first) > 0 && !strings.Contains(seg, ".") {
				seg = seg + "." + first[0]
			}
		}
	}
	return seg
}
