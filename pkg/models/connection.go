package models

import "time"

// ConnState is the lifecycle state of a pooled connection. Transitions are
// monotonic: a connection never moves back to an earlier state.
type ConnState int

const (
	StateCreating ConnState = iota
	StateActive
	StateIdle
	StateAging
	StateStale
	StateRecycling
	StateDisposing
	StateDisposed
)

func (s ConnState) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateAging:
		return "aging"
	case StateStale:
		return "stale"
	case StateRecycling:
		return "recycling"
	case StateDisposing:
		return "disposing"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether moving to next preserves monotonic ordering.
func (s ConnState) CanTransitionTo(next ConnState) bool {
	if next == s {
		return false
	}
	// Active and Idle alternate while the connection is in service; everything
	// else only moves forward.
	if (s == StateActive && next == StateIdle) || (s == StateIdle && next == StateActive) {
		return true
	}
	return next > s
}

// Priority of an acquisition request. High priority skips the warmed cache and
// always creates a fresh connection.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ConnectionMetadata tracks per-connection usage and performance. Created when
// the physical connection is established, removed on disposal.
type ConnectionMetadata struct {
	ID               string        `json:"id"`
	CreatedAt        time.Time     `json:"created_at"`
	LastUsedAt       time.Time     `json:"last_used_at"`
	UsageCount       int64         `json:"usage_count"`
	TotalDuration    time.Duration `json:"total_duration"`
	AvgAcquireTime   time.Duration `json:"avg_acquire_time"`
	MaxAcquireTime   time.Duration `json:"max_acquire_time"`
	ErrorCount       int64         `json:"error_count"`
	PerformanceScore float64       `json:"performance_score"`
	State            ConnState     `json:"state"`
	Contexts         []string      `json:"contexts,omitempty"`
	RecycleReason    string        `json:"recycle_reason,omitempty"`
}

// Age returns how long the connection has existed.
func (m *ConnectionMetadata) Age() time.Duration {
	return time.Since(m.CreatedAt)
}

// IdleTime returns how long the connection has gone unused.
func (m *ConnectionMetadata) IdleTime() time.Duration {
	return time.Since(m.LastUsedAt)
}

// ErrorRatio is errors per usage; zero when the connection is unused.
func (m *ConnectionMetadata) ErrorRatio() float64 {
	if m.UsageCount == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(m.UsageCount)
}

// HasServed reports whether the connection has recently served contextID.
func (m *ConnectionMetadata) HasServed(contextID string) bool {
	for _, c := range m.Contexts {
		if c == contextID {
			return true
		}
	}
	return false
}
