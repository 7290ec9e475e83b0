package helpscout

import (
	"context"
	"errors"
	"fmt"

	"github.com/zackkatz/freescout-gpt-assistant/internal/adapter"
	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/sanitize"
)

// ErrInjectionFailed is returned when every injection strategy has been
// exhausted. The caller surfaces it (for example as a manual-paste
// instruction); silently corrupting the editor would be worse.
var ErrInjectionFailed = errors.New("all injection strategies failed")

// injectionStrategy is one ranked attempt at placing text into the editor.
// Strategies are isolated: a failure in one must not corrupt state for the
// next, so each works only through events or the editor's own API.
type injectionStrategy struct {
	name    string
	attempt func(a *Adapter, editor dom.Element, text string) error
}

// Ranked order: the editor-controller path is the only fully model-consistent
// one; paste simulation lets the editor ingest the text through its own
// clipboard handling; keyboard simulation is the last resort. A raw HTML
// overwrite is deliberately absent: the editor's internal document model is
// decoupled from its rendered HTML, and overwriting the HTML desyncs the two
// and corrupts future edits.
var injectionStrategies = []injectionStrategy{
	{name: "editor-controller", attempt: (*Adapter).injectViaController},
	{name: "paste-simulation", attempt: (*Adapter).injectViaPaste},
	{name: "keyboard-simulation", attempt: (*Adapter).injectViaKeyboard},
}

// InjectReply tries each strategy in order until one succeeds.
func (a *Adapter) InjectReply(ctx context.Context, text string) error {
	editor, err := a.ReplyEditor(ctx)
	if err != nil {
		return err
	}
	plain := adapter.HTMLToText(sanitize.Sanitize(text, sanitize.Options{Markdown: true}))

	var errs []error
	for _, strategy := range injectionStrategies {
		if err := strategy.attempt(a, editor, plain); err != nil {
			a.log.Debug("injection strategy failed", "strategy", strategy.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", strategy.name, err))
			continue
		}
		a.log.Info("reply injected", "strategy", strategy.name)
		editor.Focus()
		editor.ScrollIntoView()
		return nil
	}

	err = fmt.Errorf("%w: %w", ErrInjectionFailed, errors.Join(errs...))
	a.RecordError(err)
	return err
}

// injectViaController walks to the editor's controller object (on a live
// page the content script reaches it through the framework's internal
// instance tree) and uses its native insertion API after clearing content.
func (a *Adapter) injectViaController(editor dom.Element, text string) error {
	page := a.Page()
	host, ok := page.(dom.EditorHost)
	if !ok {
		return errors.New("page does not expose editor controllers")
	}
	ctrl, ok := host.EditorController(editor)
	if !ok {
		return errors.New("no controller bound to editor node")
	}
	if err := ctrl.Clear(); err != nil {
		return fmt.Errorf("clear editor: %w", err)
	}
	if err := ctrl.InsertText(text); err != nil {
		return fmt.Errorf("insert text: %w", err)
	}
	return nil
}

// injectViaPaste focuses the editor, selects its content and synthesizes a
// clipboard paste carrying the reply as plain text. Success is verified by
// diffing the editor text before and after.
func (a *Adapter) injectViaPaste(editor dom.Element, text string) error {
	before := editor.Text()
	editor.Focus()
	editor.Dispatch(dom.Event{Type: "keydown", Payload: map[string]any{
		"key": "a", "ctrlKey": true, "metaKey": true,
	}})
	editor.Dispatch(dom.Event{Type: "paste", Payload: map[string]any{
		"text": text, "clipboardData": true,
	}})

	after := editor.Text()
	if after == before && after != text {
		return errors.New("editor content unchanged after paste")
	}
	return nil
}

// injectViaKeyboard simulates select-all plus a single beforeinput/input
// pair carrying the whole text as an insertText payload, then re-invokes the
// native innerHTML setter so the framework's event delegation notices.
func (a *Adapter) injectViaKeyboard(editor dom.Element, text string) error {
	before := editor.Text()
	editor.Focus()
	editor.Dispatch(dom.Event{Type: "keydown", Payload: map[string]any{
		"key": "a", "ctrlKey": true, "metaKey": true,
	}})
	payload := map[string]any{"inputType": "insertText", "data": text}
	editor.Dispatch(dom.Event{Type: "beforeinput", Payload: payload})
	editor.Dispatch(dom.Event{Type: "input", Payload: payload})

	after := editor.Text()
	if after == before && after != text {
		return errors.New("editor content unchanged after input simulation")
	}
	// Nudge the framework's delegated listeners with the native setter and
	// its synthetic trigger events.
	editor.NativeSetHTML(editor.HTML())
	editor.Dispatch(dom.Event{Type: "input", Payload: map[string]any{"bubbles": true}})
	editor.Dispatch(dom.Event{Type: "change", Payload: map[string]any{"bubbles": true}})
	return nil
}
