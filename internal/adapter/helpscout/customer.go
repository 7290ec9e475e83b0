package helpscout

import (
	"context"
	"fmt"

	"github.com/zackkatz/freescout-gpt-assistant/internal/adapter"
)

// sidebar property rows, data-attribute selectors first.
var propertyRowSelectors = []string{
	"[data-cy=customer-property]",
	"[data-testid=customer-property]",
	"aside dl > div",
}

// ExtractCustomerInfo mirrors thread extraction's two-path strategy: the
// app-state customer record (static fields plus the slug-keyed dynamic
// property list) when present, else labeled sidebar rows.
func (a *Adapter) ExtractCustomerInfo(ctx context.Context) (adapter.CustomerInfo, error) {
	if info := a.customerFromAppState(); len(info) > 0 {
		return a.SanitizeBag(info), nil
	}
	return a.customerFromDOM(ctx)
}

func (a *Adapter) customerFromAppState() adapter.CustomerInfo {
	state := a.state()
	if state == nil {
		return nil
	}
	customer, ok := state["customer"].(map[string]any)
	if !ok {
		return nil
	}

	info := adapter.CustomerInfo{}
	if name := personName(customer); name != "" {
		info["name"] = name
	}
	for _, key := range []string{"email", "company", "jobTitle", "location"} {
		if v, ok := customer[key].(string); ok && v != "" {
			info[key] = v
		}
	}

	properties, _ := customer["properties"].([]any)
	for _, raw := range properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		slug, _ := prop["slug"].(string)
		if slug == "" {
			continue
		}
		info[slug] = prop["value"]
	}
	return info
}

func (a *Adapter) customerFromDOM(_ context.Context) (adapter.CustomerInfo, error) {
	info := adapter.CustomerInfo{}

	if el := a.Query("aside [data-cy=customer-name], aside h2"); el != nil {
		if name := cleanText(el.Text()); name != "" {
			info["name"] = name
		}
	}
	if el := a.Query("aside a[href^='mailto:']"); el != nil {
		info["email"] = cleanText(el.Text())
	}

	for _, sel := range propertyRowSelectors {
		rows := a.QueryAll(sel)
		if len(rows) == 0 {
			continue
		}
		for _, row := range rows {
			label := row.Find("dt, [data-cy=property-label], .label")
			value := row.Find("dd, [data-cy=property-value], .value")
			if label == nil || value == nil {
				continue
			}
			key := cleanText(label.Text())
			if key == "" {
				continue
			}
			info[key] = cleanText(value.Text())
		}
		break
	}

	if len(info) == 0 {
		return nil, fmt.Errorf("helpscout: no customer info present")
	}
	return a.SanitizeBag(info), nil
}
