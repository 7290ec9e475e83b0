package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/settings"
)

func fixturePage(t *testing.T, name, url string, globals map[string]any) *dom.Snapshot {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "..", "testdata", "pages", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	snap, err := dom.ParseSnapshot(url, string(raw), &dom.SnapshotOptions{Globals: globals})
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return snap
}

func emptyPage(t *testing.T, url string) *dom.Snapshot {
	t.Helper()
	snap, err := dom.ParseSnapshot(url, "<html><body><p>nothing here</p></body></html>", nil)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	return snap
}

func TestDetectFreeScout(t *testing.T) {
	page := fixturePage(t, "freescout-conversation.html",
		"https://support.example.com/conversation/1542", nil)

	d := New(settings.NewMemory())
	if kind := d.Detect(context.Background(), page); kind != KindFreeScout {
		t.Fatalf("expected freescout, got %s", kind)
	}
}

func TestDetectHelpScout(t *testing.T) {
	page := fixturePage(t, "helpscout-conversation.html",
		"https://secure.helpscout.net/conversation/123/456", nil)

	d := New(settings.NewMemory())
	if kind := d.Detect(context.Background(), page); kind != KindHelpScout {
		t.Fatalf("expected helpscout, got %s", kind)
	}
}

func TestDetectUnknown(t *testing.T) {
	page := emptyPage(t, "https://example.com/blog")

	d := New(settings.NewMemory())
	if kind := d.Detect(context.Background(), page); kind != KindUnknown {
		t.Fatalf("expected unknown, got %s", kind)
	}
}

// The wildcard path patterns overlap between platforms; the exclude list must
// keep a hosted helpscout.net URL from ever voting freescout.
func TestDetectByURLHelpScoutDomainExclusion(t *testing.T) {
	if kind := detectByURL("https://secure.helpscout.net/conversation/123/456"); kind != KindHelpScout {
		t.Fatalf("expected helpscout, got %s", kind)
	}
	if kind := detectByURL("https://desk.example.com/freescout/conversation/1"); kind != KindFreeScout {
		t.Fatalf("expected freescout, got %s", kind)
	}
	if kind := detectByURL("https://example.com/about"); kind != KindUnknown {
		t.Fatalf("expected unknown, got %s", kind)
	}
}

func TestDetectOverrideWins(t *testing.T) {
	store := settings.NewMemory()
	ctx := context.Background()
	if err := store.Set(ctx, settings.KeyPlatformOverride, "helpscout"); err != nil {
		t.Fatalf("set override: %v", err)
	}

	// Every other signal points at FreeScout.
	page := fixturePage(t, "freescout-conversation.html",
		"https://support.example.com/conversation/1542", nil)

	d := New(store)
	if kind := d.Detect(ctx, page); kind != KindHelpScout {
		t.Fatalf("expected override to win, got %s", kind)
	}
}

func TestDetectByAPIGlobals(t *testing.T) {
	page := emptyPage(t, "https://example.com/")
	page.SetGlobal("appData", map[string]any{"conversation": map[string]any{}})
	if kind := detectByAPI(page); kind != KindHelpScout {
		t.Fatalf("expected helpscout from globals, got %s", kind)
	}

	fs := emptyPage(t, "https://example.com/")
	fs.SetGlobal("Vars", map[string]any{})
	if kind := detectByAPI(fs); kind != KindFreeScout {
		t.Fatalf("expected freescout from globals, got %s", kind)
	}
}

func TestCombineVotes(t *testing.T) {
	tests := []struct {
		name  string
		votes []Vote
		want  Kind
	}{
		{
			name: "override wins over everything",
			votes: []Vote{
				{Strategy: StrategyOverride, Kind: KindHelpScout, Weight: 1},
				{Strategy: StrategyURL, Kind: KindFreeScout, Weight: 1},
				{Strategy: StrategyDOM, Kind: KindFreeScout, Weight: 1},
				{Strategy: StrategyAPI, Kind: KindFreeScout, Weight: apiVoteWeight},
			},
			want: KindHelpScout,
		},
		{
			name: "api outvotes a single strategy",
			votes: []Vote{
				{Strategy: StrategyURL, Kind: KindFreeScout, Weight: 1},
				{Strategy: StrategyAPI, Kind: KindHelpScout, Weight: apiVoteWeight},
			},
			want: KindHelpScout,
		},
		{
			name: "url plus dom tie against api",
			votes: []Vote{
				{Strategy: StrategyURL, Kind: KindFreeScout, Weight: 1},
				{Strategy: StrategyDOM, Kind: KindFreeScout, Weight: 1},
				{Strategy: StrategyAPI, Kind: KindHelpScout, Weight: apiVoteWeight},
			},
			want: KindUnknown,
		},
		{
			name: "one to one tie",
			votes: []Vote{
				{Strategy: StrategyURL, Kind: KindFreeScout, Weight: 1},
				{Strategy: StrategyDOM, Kind: KindHelpScout, Weight: 1},
			},
			want: KindUnknown,
		},
		{
			name: "all unknown",
			votes: []Vote{
				{Strategy: StrategyURL, Kind: KindUnknown, Weight: 1},
				{Strategy: StrategyDOM, Kind: KindUnknown, Weight: 1},
				{Strategy: StrategyAPI, Kind: KindUnknown, Weight: apiVoteWeight},
			},
			want: KindUnknown,
		},
		{
			name: "unknown override does not decide",
			votes: []Vote{
				{Strategy: StrategyOverride, Kind: KindUnknown, Weight: 1},
				{Strategy: StrategyURL, Kind: KindFreeScout, Weight: 1},
			},
			want: KindFreeScout,
		},
	}

	for _, tt := range tests {
		if got := combineVotes(tt.votes); got != tt.want {
			t.Fatalf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestDetectCachesResult(t *testing.T) {
	page := fixturePage(t, "freescout-conversation.html",
		"https://support.example.com/conversation/1542", nil)

	d := New(settings.NewMemory())
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	d.SetClock(func() time.Time { return now })

	ctx := context.Background()
	d.Detect(ctx, page)
	d.Detect(ctx, page)
	if calls := d.StrategyCalls()[StrategyURL]; calls != 1 {
		t.Fatalf("expected 1 url strategy run, got %d", calls)
	}

	// Past the TTL the strategies run again.
	now = now.Add(6 * time.Minute)
	d.Detect(ctx, page)
	if calls := d.StrategyCalls()[StrategyURL]; calls != 2 {
		t.Fatalf("expected 2 url strategy runs after expiry, got %d", calls)
	}

	d.ClearCache()
	d.Detect(ctx, page)
	if calls := d.StrategyCalls()[StrategyURL]; calls != 3 {
		t.Fatalf("expected 3 url strategy runs after ClearCache, got %d", calls)
	}
}

func TestLastVotes(t *testing.T) {
	page := fixturePage(t, "freescout-conversation.html",
		"https://support.example.com/conversation/1542", nil)

	d := New(settings.NewMemory())
	d.Detect(context.Background(), page)

	votes := d.LastVotes()
	if len(votes) != 4 {
		t.Fatalf("expected 4 votes, got %d", len(votes))
	}
	byStrategy := map[string]Vote{}
	for _, v := range votes {
		byStrategy[v.Strategy] = v
	}
	if byStrategy[StrategyURL].Kind != KindFreeScout {
		t.Fatalf("url vote: %+v", byStrategy[StrategyURL])
	}
	if byStrategy[StrategyDOM].Kind != KindFreeScout {
		t.Fatalf("dom vote: %+v", byStrategy[StrategyDOM])
	}
	if byStrategy[StrategyAPI].Weight != apiVoteWeight {
		t.Fatalf("api vote weight: %+v", byStrategy[StrategyAPI])
	}
}

func TestDetectWithRetryReadyPage(t *testing.T) {
	page := fixturePage(t, "freescout-conversation.html",
		"https://support.example.com/conversation/1542", nil)

	d := New(settings.NewMemory())
	if kind := d.DetectWithRetry(context.Background(), page); kind != KindFreeScout {
		t.Fatalf("expected freescout, got %s", kind)
	}
	if calls := d.StrategyCalls()[StrategyURL]; calls != 1 {
		t.Fatalf("expected a single strategy run on an already-loaded page, got %d", calls)
	}
}

func TestParseKind(t *testing.T) {
	if ParseKind("freescout") != KindFreeScout {
		t.Fatalf("freescout not parsed")
	}
	if ParseKind("helpscout") != KindHelpScout {
		t.Fatalf("helpscout not parsed")
	}
	if ParseKind("gorgias") != KindUnknown {
		t.Fatalf("unexpected kind for unknown input")
	}
	if KindUnknown.String() != "unknown" {
		t.Fatalf("unexpected zero-kind string: %s", KindUnknown.String())
	}
}
