package helpscout

import (
	"context"
	"fmt"
	"strings"

	"github.com/zackkatz/freescout-gpt-assistant/internal/adapter"
	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/sanitize"
)

// minContentLength rejects metadata-sized divs in the DOM fallback; real
// message bodies are longer.
const minContentLength = 20

var threadItemSelectors = []string{
	"[data-testid=thread-item]",
	"article[aria-label]",
	"article",
}

// ExtractThread prefers the structured in-memory conversation the host app
// exposes; the DOM walk is the fallback for pages where app state was not
// mirrored. Threads are rebuilt from scratch on every call.
func (a *Adapter) ExtractThread(ctx context.Context) ([]adapter.Message, error) {
	if msgs := a.threadFromAppState(); len(msgs) > 0 {
		return msgs, nil
	}
	return a.threadFromDOM(ctx)
}

// threadFromAppState maps the app store's thread records. Record shape:
// {type, body, createdBy:{type,first,last}}; lineitems (status changes,
// assignments) carry no conversational content and are skipped.
func (a *Adapter) threadFromAppState() []adapter.Message {
	state := a.state()
	if state == nil {
		return nil
	}
	conversation, ok := state["conversation"].(map[string]any)
	if !ok {
		return nil
	}
	threads, ok := conversation["threads"].([]any)
	if !ok {
		return nil
	}

	var out []adapter.Message
	for _, raw := range threads {
		record, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		threadType, _ := record["type"].(string)
		if threadType == "lineitem" {
			continue
		}
		body, _ := record["body"].(string)
		content := adapter.HTMLToText(sanitize.Sanitize(body, sanitize.Options{}))
		if content == "" {
			continue
		}

		msg := adapter.Message{Content: content}
		if author, ok := record["createdBy"].(map[string]any); ok {
			msg.Author = personName(author)
			if authorType, _ := author["type"].(string); authorType == "user" {
				msg.Role = adapter.RoleAssistant
			} else {
				msg.Role = adapter.RoleUser
			}
		} else {
			msg.Role = adapter.RoleUser
		}
		if threadType == "note" {
			msg.Role = adapter.RoleUser
			msg.Internal = true
		}
		out = append(out, msg)
	}
	return out
}

// threadFromDOM walks the rendered thread. The host's class names are
// non-semantic and churn between releases, so container and item lookups
// lean on data-*/aria-*/semantic selectors, and the content element inside
// each item is chosen heuristically.
func (a *Adapter) threadFromDOM(_ context.Context) ([]adapter.Message, error) {
	container := a.findConversationContainer()
	if container == nil {
		return nil, fmt.Errorf("helpscout: conversation container not found")
	}

	items := a.threadItems(container)
	if len(items) == 0 {
		return nil, fmt.Errorf("helpscout: no thread items found")
	}

	var out []adapter.Message
	for _, item := range items {
		content := contentElement(item)
		if content == nil {
			continue
		}
		msg := adapter.Message{Content: cleanText(content.Text())}
		msg.Author, msg.Role, msg.Internal = a.classifyItem(item)
		out = append(out, msg)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("helpscout: no thread content extracted")
	}
	return out, nil
}

func (a *Adapter) findConversationContainer() dom.Element {
	for _, sel := range conversationSelectors {
		if el := a.Query(sel); el != nil {
			return el
		}
	}
	return nil
}

func (a *Adapter) threadItems(container dom.Element) []dom.Element {
	for _, sel := range threadItemSelectors {
		if items := container.FindAll(sel); len(items) > 0 {
			return items
		}
	}
	// The container may itself be the single visible item.
	if container.Matches("article") {
		return []dom.Element{container}
	}
	return nil
}

// contentElement heuristically picks the message body inside a thread item:
// wrapper and metadata divs (nested test ids, short text, timestamp or
// button children) are rejected, and the longest surviving candidate wins.
func contentElement(item dom.Element) dom.Element {
	var best dom.Element
	bestLen := 0
	for _, candidate := range item.FindAll("div, p") {
		if isNonContent(candidate) {
			continue
		}
		length := len(cleanText(candidate.Text()))
		if length < minContentLength {
			continue
		}
		if length > bestLen {
			best, bestLen = candidate, length
		}
	}
	return best
}

func isNonContent(el dom.Element) bool {
	if el.Find("[data-testid]") != nil {
		return true
	}
	if el.Find("time") != nil || el.Find("button") != nil {
		return true
	}
	return false
}

// classifyItem derives author and role for a DOM-extracted item. Order of
// preference: the item's own data attributes, then the author element's
// data attribute, then the configured agent-name list as a last resort.
func (a *Adapter) classifyItem(item dom.Element) (author string, role adapter.Role, internal bool) {
	role = adapter.RoleUser

	if authorEl := item.Find("[data-thread-author], [data-cy=thread-author]"); authorEl != nil {
		author = cleanText(authorEl.Text())
	}

	if t, ok := item.Attr("data-thread-type"); ok {
		switch t {
		case "message", "agent", "user":
			role = adapter.RoleAssistant
		case "note":
			role, internal = adapter.RoleUser, true
		}
		return author, role, internal
	}
	if label, ok := item.Attr("aria-label"); ok {
		lower := strings.ToLower(label)
		if strings.Contains(lower, "note") {
			return author, adapter.RoleUser, true
		}
		if strings.Contains(lower, "reply") || strings.Contains(lower, "agent") {
			return author, adapter.RoleAssistant, false
		}
	}

	// Last-ditch heuristic only: known agent display names.
	for _, name := range a.agentNames {
		if name != "" && strings.Contains(author, name) {
			return author, adapter.RoleAssistant, false
		}
	}
	return author, role, internal
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
