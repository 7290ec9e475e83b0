// Package freescout binds the adapter contract to FreeScout's server-rendered
// conversation pages. The markup is stable Blade templates with a Summernote
// contentEditable reply widget, so extraction is selector-driven and reply
// injection can safely rewrite editor HTML directly.
package freescout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zackkatz/freescout-gpt-assistant/internal/adapter"
	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/platform"
)

const platformName = "freescout"

// Thread item classification classes, straight from FreeScout's templates.
const (
	classCustomer = "thread-type-customer"
	classAgent    = "thread-type-message"
	classNote     = "thread-type-note"
)

// editorSelectors is the reply editor fallback chain, most specific first.
var editorSelectors = []string{
	".note-editable[contenteditable]",
	"textarea#body",
	".conv-reply-block textarea",
	"[name=body]",
}

func init() {
	adapter.Register(adapter.Registration{
		Kind:      platform.KindFreeScout,
		CanHandle: CanHandle,
		New:       func() adapter.Adapter { return New() },
	})
}

// CanHandle reports whether the page looks like a FreeScout conversation.
func CanHandle(url string, page dom.Page) bool {
	if strings.Contains(strings.ToLower(url), "helpscout.net") {
		return false
	}
	return page.Find("#conv-layout-main") != nil || page.Find(".thread."+classCustomer) != nil
}

// Adapter implements the platform contract for FreeScout.
type Adapter struct {
	adapter.Helpers
	log  *slog.Logger
	sink adapter.EventSink
}

// New returns an uninitialized FreeScout adapter.
func New() *Adapter {
	return &Adapter{log: slog.With("component", "adapter", "platform", platformName)}
}

// PlatformName identifies this binding.
func (a *Adapter) PlatformName() string { return platformName }

// Initialize binds the page. FreeScout is server-rendered; if the
// conversation layout is missing the page is not a conversation view and
// initialization fails so the manager can retry or give up.
func (a *Adapter) Initialize(_ context.Context, page dom.Page, sink adapter.EventSink) error {
	a.Bind(page, a.log)
	a.sink = sink
	if page.Find("#conv-layout-main") == nil && page.Find(".thread") == nil {
		return fmt.Errorf("freescout: conversation layout not present at %s", page.URL())
	}
	return nil
}

// ExtractThread walks the classified thread items in document order. When no
// classified item exists (markup drift), it degrades to concatenating the
// generic content blocks as a single customer message.
func (a *Adapter) ExtractThread(_ context.Context) ([]adapter.Message, error) {
	items := a.QueryAll(".thread")
	var out []adapter.Message
	for _, item := range items {
		msg, ok := classifyThreadItem(item)
		if ok {
			out = append(out, msg)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	// Markup drift fallback: any content block at all.
	var parts []string
	for _, block := range a.QueryAll(".thread-content") {
		if text := cleanText(block.Text()); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("freescout: no thread items found")
	}
	return []adapter.Message{{Role: adapter.RoleUser, Content: strings.Join(parts, "\n\n")}}, nil
}

func classifyThreadItem(item dom.Element) (adapter.Message, bool) {
	var role adapter.Role
	var internal bool
	switch {
	case item.HasClass(classCustomer):
		role = adapter.RoleUser
	case item.HasClass(classAgent):
		role = adapter.RoleAssistant
	case item.HasClass(classNote):
		role, internal = adapter.RoleUser, true
	default:
		return adapter.Message{}, false
	}

	var author string
	if person := item.Find(".thread-person"); person != nil {
		author = cleanText(person.Text())
	}
	content := ""
	if body := item.Find(".thread-content"); body != nil {
		content = cleanText(body.Text())
	}
	if content == "" {
		return adapter.Message{}, false
	}
	return adapter.Message{Role: role, Author: author, Content: content, Internal: internal}, true
}

// ReplyEditor resolves the Summernote widget, falling back down the selector
// chain for installs with the plain-textarea reply form.
func (a *Adapter) ReplyEditor(_ context.Context) (dom.Element, error) {
	for _, sel := range editorSelectors {
		if el := a.Query(sel); el != nil {
			return el, nil
		}
	}
	a.RecordError(adapter.ErrNoEditor)
	return nil, adapter.ErrNoEditor
}

// InjectReply is safe as a direct HTML rewrite here: Summernote keeps no
// out-of-band document model.
func (a *Adapter) InjectReply(ctx context.Context, text string) error {
	editor, err := a.ReplyEditor(ctx)
	if err != nil {
		return err
	}
	if err := a.InjectInto(editor, text); err != nil {
		return fmt.Errorf("freescout: inject reply: %w", err)
	}
	return nil
}

// CurrentUser reads the signed-in agent from the navbar.
func (a *Adapter) CurrentUser(_ context.Context) (string, error) {
	for _, sel := range []string{".navbar .nav-user-name", "#nav-user-name", ".dropdown-toggle .user-name"} {
		if el := a.Query(sel); el != nil {
			if name := cleanText(el.Text()); name != "" {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("freescout: current user not found")
}

// ShowGeneratingStatus marks the reply block busy while a draft is pending.
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

// Cleanup releases helper state.
func (a *Adapter) Cleanup() { a.Helpers.Cleanup() }

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
