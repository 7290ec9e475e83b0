// Package adapter defines the contract a concrete platform binding must
// provide, the normalized conversation model, and the shared helpers every
// binding builds on. Two structurally different helpdesks sit behind this
// one surface so the generation pipeline never branches on platform.
package adapter

import (
	"context"
	"sync"

	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/platform"
)

// Role is the normalized author role of a conversation message.
type Role string

const (
	// RoleUser marks customer messages (and internal notes, which stay
	// user-side with Internal set).
	RoleUser Role = "user"
	// RoleAssistant marks agent replies.
	RoleAssistant Role = "assistant"
)

// Message is one thread item, in document order. Threads are rebuilt on
// every extraction; conversation content changes between calls and is never
// cached.
type Message struct {
	Role     Role   `json:"role"`
	Author   string `json:"author,omitempty"`
	Content  string `json:"content"`
	Internal bool   `json:"internal,omitempty"`
}

// CustomerInfo is a loosely-typed bag whose shape differs per platform and
// per optional integration. Values are HTML-escaped before use and otherwise
// passed through opaquely.
type CustomerInfo map[string]any

// EventSink receives adapter-level events (for example "editorChanged") for
// forwarding to external listeners.
type EventSink func(name string, data map[string]any)

// Adapter is the uniform call surface over one platform's page.
type Adapter interface {
	PlatformName() string

	// Initialize waits for platform readiness and wires observers. sink may
	// be nil. Returning an error makes the manager retry, so SPA bindings
	// should stay best-effort on partial hydration.
	Initialize(ctx context.Context, page dom.Page, sink EventSink) error

	ExtractThread(ctx context.Context) ([]Message, error)
	ReplyEditor(ctx context.Context) (dom.Element, error)
	ExtractCustomerInfo(ctx context.Context) (CustomerInfo, error)
	CurrentUser(ctx context.Context) (string, error)
	InjectReply(ctx context.Context, text string) error
	ShowGeneratingStatus(ctx context.Context) error
	ClearGeneratingStatus(ctx context.Context) error

	// Cleanup disconnects observers and clears caches, debounce timers and
	// the error log. Called on reset and teardown.
	Cleanup()

	// ErrorCount reports recorded adapter errors, for health derivation.
	ErrorCount() int
}

// Registration couples a platform kind with its adapter factory and an
// opportunistic CanHandle check used when detection is inconclusive.
type Registration struct {
	Kind      platform.Kind
	CanHandle func(url string, page dom.Page) bool
	New       func() Adapter
}

var (
	regMu    sync.RWMutex
	registry = map[platform.Kind]Registration{}
)

// Register records a platform binding. Concrete packages call this from
// init; duplicate registrations replace the earlier one.
func Register(reg Registration) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[reg.Kind] = reg
}

// Lookup returns the registration for kind.
func Lookup(kind platform.Kind) (Registration, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	reg, ok := registry[kind]
	return reg, ok
}

// Match asks each registered binding whether it can handle the page, in
// stable kind order. Used when detection returns unknown but a binding still
// recognizes the page.
func Match(url string, page dom.Page) (Registration, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	for _, kind := range []platform.Kind{platform.KindFreeScout, platform.KindHelpScout} {
		reg, ok := registry[kind]
		if ok && reg.CanHandle != nil && reg.CanHandle(url, page) {
			return reg, true
		}
	}
	return Registration{}, false
}
