package freescout

import (
	"context"
	"fmt"
	"strings"

	"github.com/zackkatz/freescout-gpt-assistant/internal/adapter"
	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
)

// widgetSelectors locate the optional third-party customer widget some
// installs embed in the conversation sidebar.
var widgetSelectors = []string{".customer-info-widget", "#crm-widget", ".conv-sidebar .widget"}

// ExtractCustomerInfo reads the sidebar customer block plus whatever the
// optional CRM widget exposes. Sections are identified by heading text, not
// fixed structure, so reordered widgets still parse.
func (a *Adapter) ExtractCustomerInfo(_ context.Context) (adapter.CustomerInfo, error) {
	info := adapter.CustomerInfo{}

	if el := a.Query(".conv-sidebar .customer-name, .customer-snippet-name"); el != nil {
		info["name"] = cleanText(el.Text())
	}
	if el := a.Query(".conv-sidebar .customer-email, .customer-snippet-email"); el != nil {
		info["email"] = cleanText(el.Text())
	}
	if el := a.Query(".conv-sidebar .customer-company"); el != nil {
		info["company"] = cleanText(el.Text())
	}

	for _, sel := range widgetSelectors {
		if widget := a.Query(sel); widget != nil {
			parseWidget(widget, info)
			break
		}
	}

	if len(info) == 0 {
		return nil, fmt.Errorf("freescout: no customer info present")
	}
	return a.SanitizeBag(info), nil
}

// parseWidget fills info from the widget's labeled list items and its
// heading-matched sections.
func parseWidget(widget dom.Element, info adapter.CustomerInfo) {
	for _, li := range widget.FindAll("li") {
		label, value, ok := splitLabeled(li.Text())
		if !ok {
			continue
		}
		switch {
		case strings.Contains(label, "regist"):
			info["registration_date"] = value
		case strings.Contains(label, "crm"):
			info["crm"] = value
		case strings.Contains(label, "version"):
			info["version"] = value
			info["version_status"] = versionStatus(li)
		}
	}

	for _, section := range widget.FindAll("section, .widget-section") {
		heading := section.Find("h1, h2, h3, h4, h5, .section-title")
		if heading == nil {
			continue
		}
		title := strings.ToLower(cleanText(heading.Text()))
		switch {
		case strings.Contains(title, "integration"):
			info["integrations"] = sectionItems(section)
		case strings.Contains(title, "tag"):
			info["tags"] = sectionItems(section)
		case strings.Contains(title, "order"):
			info["orders"] = sectionItems(section)
		case strings.Contains(title, "license"):
			info["license"] = sectionRecord(section)
		}
	}
}

func versionStatus(li dom.Element) string {
	switch {
	case li.HasClass("text-danger"), li.HasClass("danger"):
		return "danger"
	default:
		return "current"
	}
}

func splitLabeled(raw string) (label, value string, ok bool) {
	text := cleanText(raw)
	idx := strings.Index(text, ":")
	if idx <= 0 {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(text[:idx])), strings.TrimSpace(text[idx+1:]), true
}

func sectionItems(section dom.Element) []any {
	var items []any
	for _, li := range section.FindAll("li") {
		if text := cleanText(li.Text()); text != "" {
			items = append(items, text)
		}
	}
	return items
}

func sectionRecord(section dom.Element) map[string]any {
	record := map[string]any{}
	for _, li := range section.FindAll("li") {
		if label, value, ok := splitLabeled(li.Text()); ok {
			record[label] = value
		}
	}
	return record
}
