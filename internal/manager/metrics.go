package manager

import "time"

// metricsState is the manager's process-lifetime instrumentation, reset by
// Reset alongside everything else.
type metricsState struct {
	InitDuration        time.Duration
	DetectionDuration   time.Duration
	AdapterLoadDuration time.Duration
	InitAttempts        int
	ErrorCount          int
	Invocations         map[string]int
	OpErrors            map[string]int
}

func newMetricsState() metricsState {
	return metricsState{
		Invocations: make(map[string]int),
		OpErrors:    make(map[string]int),
	}
}

func (m *Manager) metric(fn func(*metricsState)) {
	m.mu.Lock()
	fn(&m.metrics)
	m.mu.Unlock()
}

// Metrics is the plain-data snapshot served to the devtools surface.
type Metrics struct {
	Platform             string         `json:"platform"`
	Initialized          bool           `json:"initialized"`
	InitDurationMS       int64          `json:"init_duration_ms"`
	DetectionDurationMS  int64          `json:"detection_duration_ms"`
	AdapterLoadMS        int64          `json:"adapter_load_ms"`
	InitAttempts         int            `json:"init_attempts"`
	ErrorCount           int            `json:"error_count"`
	ConsecutiveErrors    int            `json:"consecutive_errors"`
	AdapterConstructions int            `json:"adapter_constructions"`
	Invocations          map[string]int `json:"invocations"`
	OperationErrors      map[string]int `json:"operation_errors"`
}

// Metrics returns a copy of the current counters. Read-only, no side
// effects.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Metrics{
		Platform:             m.kind.String(),
		Initialized:          m.initialized,
		InitDurationMS:       m.metrics.InitDuration.Milliseconds(),
		DetectionDurationMS:  m.metrics.DetectionDuration.Milliseconds(),
		AdapterLoadMS:        m.metrics.AdapterLoadDuration.Milliseconds(),
		InitAttempts:         m.metrics.InitAttempts,
		ErrorCount:           m.metrics.ErrorCount,
		ConsecutiveErrors:    m.consecutive,
		AdapterConstructions: m.constructions,
		Invocations:          make(map[string]int, len(m.metrics.Invocations)),
		OperationErrors:      make(map[string]int, len(m.metrics.OpErrors)),
	}
	for k, v := range m.metrics.Invocations {
		out.Invocations[k] = v
	}
	for k, v := range m.metrics.OpErrors {
		out.OperationErrors[k] = v
	}
	return out
}
