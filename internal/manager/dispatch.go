package manager

import (
	"context"
	"errors"

	"github.com/zackkatz/freescout-gpt-assistant/internal/adapter"
	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
)

// errNoAdapter is the dispatcher's internal "nothing to call" condition.
var errNoAdapter = errors.New("no active adapter")

// dispatch routes one adapter-facing operation: lazily initializes, checks
// an adapter is active, counts the invocation, and converts any failure into
// the operation's safe default. The generation pipeline must never crash
// from an adapter fault, so nothing here returns an error.
func dispatch[T any](ctx context.Context, m *Manager, op string, def T, fn func(context.Context, adapter.Adapter) (T, error)) T {
	if err := m.Initialize(ctx); err != nil {
		m.noteOpError(op, err)
		return def
	}
	active := m.activeAdapter()
	if active == nil {
		m.noteOpError(op, errNoAdapter)
		return def
	}

	m.metric(func(s *metricsState) { s.Invocations[op]++ })
	result, err := fn(ctx, active)
	if err != nil {
		m.noteOpError(op, err)
		return def
	}

	m.mu.Lock()
	m.consecutive = 0
	m.mu.Unlock()
	return result
}

func (m *Manager) noteOpError(op string, err error) {
	m.mu.Lock()
	m.consecutive++
	m.mu.Unlock()
	m.metric(func(s *metricsState) {
		s.OpErrors[op]++
		s.ErrorCount++
	})
	m.log.Warn("operation failed", "operation", op, "error", err)
	m.emit(Event{Type: "error", Data: map[string]any{"operation": op, "error": err.Error()}})
}

// ExtractThread returns the normalized conversation, or an empty slice on
// any failure.
func (m *Manager) ExtractThread(ctx context.Context) []adapter.Message {
	return dispatch(ctx, m, "extractThread", []adapter.Message{},
		func(ctx context.Context, a adapter.Adapter) ([]adapter.Message, error) {
			return a.ExtractThread(ctx)
		})
}

// ExtractCustomerInfo returns the customer bag, or nil.
func (m *Manager) ExtractCustomerInfo(ctx context.Context) adapter.CustomerInfo {
	return dispatch(ctx, m, "extractCustomerInfo", adapter.CustomerInfo(nil),
		func(ctx context.Context, a adapter.Adapter) (adapter.CustomerInfo, error) {
			return a.ExtractCustomerInfo(ctx)
		})
}

// CurrentUser returns the signed-in agent's display name, or "".
func (m *Manager) CurrentUser(ctx context.Context) string {
	return dispatch(ctx, m, "getCurrentUser", "",
		func(ctx context.Context, a adapter.Adapter) (string, error) {
			return a.CurrentUser(ctx)
		})
}

// ReplyEditor returns the resolved editor element, or nil.
func (m *Manager) ReplyEditor(ctx context.Context) dom.Element {
	return dispatch(ctx, m, "getReplyEditor", dom.Element(nil),
		func(ctx context.Context, a adapter.Adapter) (dom.Element, error) {
			return a.ReplyEditor(ctx)
		})
}

// InjectReply places text into the reply editor and reports success.
func (m *Manager) InjectReply(ctx context.Context, text string) bool {
	return dispatch(ctx, m, "injectReply", false,
		func(ctx context.Context, a adapter.Adapter) (bool, error) {
			if err := a.InjectReply(ctx, text); err != nil {
				return false, err
			}
			return true, nil
		})
}

// ShowGeneratingStatus marks the editor busy and reports success.
func (m *Manager) ShowGeneratingStatus(ctx context.Context) bool {
	return dispatch(ctx, m, "showGeneratingStatus", false,
		func(ctx context.Context, a adapter.Adapter) (bool, error) {
			if err := a.ShowGeneratingStatus(ctx); err != nil {
				return false, err
			}
			return true, nil
		})
}

// ClearGeneratingStatus removes the busy marker and reports success.
func (m *Manager) ClearGeneratingStatus(ctx context.Context) bool {
	return dispatch(ctx, m, "clearGeneratingStatus", false,
		func(ctx context.Context, a adapter.Adapter) (bool, error) {
			if err := a.ClearGeneratingStatus(ctx); err != nil {
				return false, err
			}
			return true, nil
		})
}
