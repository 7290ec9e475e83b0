package platform

import (
	"context"
	"regexp"
	"strings"

	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/settings"
)

// Strategy names, used for call-count instrumentation and vote reporting.
const (
	StrategyURL      = "url"
	StrategyDOM      = "dom"
	StrategyAPI      = "api"
	StrategyOverride = "override"
)

// apiVoteWeight makes the global-API strategy count double when votes are
// combined. The weighting is a tunable constant, not a load-bearing design
// decision; it is kept for compatibility with the extension's behavior.
const apiVoteWeight = 2

// domScoreThreshold is the minimum selector coverage for a DOM-marker win.
const domScoreThreshold = 0.5

type urlRule struct {
	includes []string // substring matches against the full URL
	patterns []string // wildcard path patterns, * matches any run
	excludes []string // substrings that veto this platform outright
}

// The exclude lists keep a helpdesk-hosted domain from being misclassified
// as the other platform (helpscout.net must never vote freescout).
var urlRules = map[Kind]urlRule{
	KindFreeScout: {
		includes: []string{"freescout"},
		patterns: []string{"*/conversation/*", "*/mailbox/*"},
		excludes: []string{"helpscout.net"},
	},
	KindHelpScout: {
		includes: []string{"helpscout.net"},
		patterns: []string{"*.helpscout.net/conversation/*", "*.helpscout.net/inboxes/*"},
		excludes: []string{"freescout"},
	},
}

type markerSet struct {
	// unique markers are definitive: one hit short-circuits scoring.
	unique []string
	// generic and dataAttr selectors are combined into a coverage score.
	generic   []string
	dataAttrs []string
}

var markers = map[Kind]markerSet{
	KindFreeScout: {
		unique:    []string{"#conv-layout-main", ".thread-type-customer"},
		generic:   []string{".thread", ".conv-top-block", ".sidebar-block", ".note-editable"},
		dataAttrs: []string{"[data-conversation_id]", "[data-thread_id]"},
	},
	KindHelpScout: {
		unique:    []string{"[data-cy=conversationThread]", "#js-MainContent .c-convo"},
		generic:   []string{"section[role=main] article", ".c-conversation"},
		dataAttrs: []string{"[data-cy]", "[data-testid]", "[data-slate-editor]"},
	},
}

// globalProbes are dot-paths into the page's mirrored window globals.
var globalProbes = map[Kind][]string{
	KindFreeScout: {"Vars", "fsGlobal.conversation"},
	KindHelpScout: {"appData", "hsGlobal.conversation"},
}

var metaSubstrings = map[Kind][]string{
	KindFreeScout: {"freescout"},
	KindHelpScout: {"help scout", "helpscout"},
}

// detectByURL classifies by URL include/exclude substrings and wildcard
// patterns. Returns KindUnknown when neither or both platforms match.
func detectByURL(pageURL string) Kind {
	lower := strings.ToLower(pageURL)
	var matched []Kind
	for _, kind := range []Kind{KindFreeScout, KindHelpScout} {
		rule := urlRules[kind]
		if anySubstring(lower, rule.excludes) {
			continue
		}
		if anySubstring(lower, rule.includes) || anyPattern(lower, rule.patterns) {
			matched = append(matched, kind)
		}
	}
	if len(matched) == 1 {
		return matched[0]
	}
	return KindUnknown
}

func anySubstring(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func anyPattern(s string, patterns []string) bool {
	for _, p := range patterns {
		re, err := wildcardRegexp(p)
		if err != nil {
			continue
		}
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// wildcardRegexp compiles a wildcard pattern by escaping everything except
// "*", which becomes ".*".
func wildcardRegexp(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile(strings.Join(parts, ".*"))
}

// detectByDOM checks unique markers first, then falls back to coverage
// scoring over each platform's generic and data-attribute selectors.
func detectByDOM(page dom.Page) Kind {
	for _, kind := range []Kind{KindFreeScout, KindHelpScout} {
		for _, sel := range markers[kind].unique {
			if page.Find(sel) != nil {
				return kind
			}
		}
	}

	best, bestScore := KindUnknown, 0.0
	for _, kind := range []Kind{KindFreeScout, KindHelpScout} {
		set := markers[kind]
		total := len(set.generic) + len(set.dataAttrs)
		if total == 0 {
			continue
		}
		hits := 0
		for _, sel := range append(append([]string{}, set.generic...), set.dataAttrs...) {
			if page.Find(sel) != nil {
				hits++
			}
		}
		score := float64(hits) / float64(total)
		if score > bestScore {
			best, bestScore = kind, score
		}
	}
	if bestScore > domScoreThreshold {
		return best
	}
	return KindUnknown
}

// detectByAPI probes platform-specific globals the host app exposes, then
// falls back to scanning meta tags for platform name substrings.
func detectByAPI(page dom.Page) Kind {
	for _, kind := range []Kind{KindFreeScout, KindHelpScout} {
		for _, path := range globalProbes[kind] {
			if _, ok := page.Global(path); ok {
				return kind
			}
		}
	}
	for _, meta := range page.MetaTags() {
		probe := strings.ToLower(meta.Name + " " + meta.Content)
		for _, kind := range []Kind{KindHelpScout, KindFreeScout} {
			if anySubstring(probe, metaSubstrings[kind]) {
				return kind
			}
		}
	}
	return KindUnknown
}

// detectByOverride consults the stored user preference. Store errors are
// treated as no override; detection must not fail on a flaky settings read.
func detectByOverride(ctx context.Context, store settings.Store) Kind {
	if store == nil {
		return KindUnknown
	}
	v, ok, err := store.Get(ctx, settings.KeyPlatformOverride)
	if err != nil || !ok {
		return KindUnknown
	}
	return ParseKind(v)
}

// Vote is one strategy's opinion, kept for diagnostics and the CLI report.
type Vote struct {
	Strategy string
	Kind     Kind
	Weight   int
}

// combineVotes implements the weighted-vote arithmetic: an override wins
// unconditionally; otherwise each non-unknown vote adds its weight to the
// platform's counter, and the highest counter wins. A tie yields unknown.
func combineVotes(votes []Vote) Kind {
	for _, v := range votes {
		if v.Strategy == StrategyOverride && v.Kind != KindUnknown {
			return v.Kind
		}
	}
	counts := map[Kind]int{}
	for _, v := range votes {
		if v.Kind == KindUnknown || v.Strategy == StrategyOverride {
			continue
		}
		counts[v.Kind] += v.Weight
	}
	best, bestCount, tied := KindUnknown, 0, false
	for kind, count := range counts {
		switch {
		case count > bestCount:
			best, bestCount, tied = kind, count, false
		case count == bestCount && count > 0:
			tied = true
		}
	}
	if tied || bestCount == 0 {
		return KindUnknown
	}
	return best
}
