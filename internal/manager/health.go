package manager

import "context"

// Health status values.
const (
	StatusNotInitialized = "not_initialized"
	StatusNoAdapter      = "no_adapter"
	StatusHealthy        = "healthy"
	StatusPartial        = "partial"
	StatusUnhealthy      = "unhealthy"
	StatusError          = "error"
)

// Health is the derived, never-persisted diagnostic report.
type Health struct {
	Status           string `json:"status"`
	Platform         string `json:"platform"`
	Initialized      bool   `json:"initialized"`
	CanExtractThread bool   `json:"can_extract_thread"`
	CanInjectReply   bool   `json:"can_inject_reply"`
	ErrorCount       int    `json:"error_count"`
}

// HealthCheck probes real capability instead of trusting readiness flags:
// it attempts editor resolution and thread extraction and checks for
// non-empty results. Read-only apart from the probes themselves.
func (m *Manager) HealthCheck(ctx context.Context) Health {
	m.mu.Lock()
	initialized := m.initialized
	active := m.active
	kind := m.kind
	attempts := m.metrics.InitAttempts
	m.mu.Unlock()

	h := Health{Platform: kind.String(), Initialized: initialized}
	if active == nil {
		if attempts == 0 {
			h.Status = StatusNotInitialized
		} else {
			h.Status = StatusNoAdapter
		}
		return h
	}
	h.ErrorCount = active.ErrorCount()

	if editor, err := active.ReplyEditor(ctx); err == nil && editor != nil {
		h.CanInjectReply = true
	}
	if thread, err := active.ExtractThread(ctx); err == nil && len(thread) > 0 {
		h.CanExtractThread = true
	}

	switch {
	case h.CanExtractThread && h.CanInjectReply:
		h.Status = StatusHealthy
	case h.CanExtractThread || h.CanInjectReply:
		h.Status = StatusPartial
	case h.ErrorCount > 0:
		h.Status = StatusError
	default:
		h.Status = StatusUnhealthy
	}
	return h
}
