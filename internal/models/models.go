package models

import "time"

// Status is the classification a health check resolves to. Checkers never
// return errors; every failure mode maps onto one of these values.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusDown    Status = "down"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
	StatusUnknown Status = "unknown"
)

func (s Status) Healthy() bool { return s == StatusHealthy }

// CheckResult is the uniform shape every checker produces.
type CheckResult struct {
	Status    Status
	LatencyMS *int64
	Code      *int
	Error     string
}

// ServiceCheckResult is one service's result within a cycle, persisted
// atomically with its parent cycle row.
type ServiceCheckResult struct {
	CycleID     string
	ServiceName string
	Target      string
	Status      Status
	LatencyMS   *int64
	Code        *int
	Error       string
}

// MonitoringCycle is one row per tick. Immutable once written.
type MonitoringCycle struct {
	ID              string
	TS              time.Time
	CPUPct          float64
	RAMPct          float64
	RAMUsedMB       float64
	DiskPct         float64
	ContainerCount  int
	InternetOK      bool
	PingMS          *int64
	WorkerStatus    *int
	CycleDurationMS int64
	UptimeSec       int64
}

// AlertTransition is the kind of confirmed state change an alert reports.
type AlertTransition string

const (
	TransitionDown      AlertTransition = "down"
	TransitionRecovered AlertTransition = "recovered"
	TransitionWorker    AlertTransition = "worker-status-changed"
)

// AlertEvent is ephemeral: it exists only for the duration of delivery.
type AlertEvent struct {
	Target     string          `json:"target"`
	Transition AlertTransition `json:"transition"`
	Reason     string          `json:"reason"`
	LatencyMS  *int64          `json:"latency_ms,omitempty"`
	TS         time.Time       `json:"ts"`
}
