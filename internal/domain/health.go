package domain

import "time"

// HealthStatus is the overall condition of the producing system.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "HEALTHY"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusCritical HealthStatus = "CRITICAL"
	StatusUnknown  HealthStatus = "UNKNOWN"
)

// SystemHealth is a point-in-time snapshot of system-wide health, embedded in
// every telemetry packet.
type SystemHealth struct {
	Status             HealthStatus `json:"status"`
	Timestamp          time.Time    `json:"timestamp"`
	HealthyComponents  uint32       `json:"healthy_components"`
	DegradedComponents uint32       `json:"degraded_components"`
	FailedComponents   uint32       `json:"failed_components"`
	UptimeSeconds      uint64       `json:"uptime_seconds"`
	CPUUsagePercent    float32      `json:"cpu_usage_percent"`
	MemoryUsageBytes   uint64       `json:"memory_usage_bytes"`
	TemperatureCelsius float32      `json:"temperature_celsius"`
	ErrorMessage       string       `json:"error_message,omitempty"`
}

// NewSystemHealth returns an empty snapshot with Unknown status.
func NewSystemHealth() SystemHealth {
	return SystemHealth{
		Status:             StatusUnknown,
		Timestamp:          time.Now().UTC(),
		TemperatureCelsius: 25.0,
	}
}

// RecalculateStatus derives the overall status from the component counts.
// Any failed component is critical; any degraded component degrades the whole.
func (h *SystemHealth) RecalculateStatus() {
	switch {
	case h.FailedComponents > 0:
		h.Status = StatusCritical
	case h.DegradedComponents > 0:
		h.Status = StatusDegraded
	case h.HealthyComponents > 0:
		h.Status = StatusHealthy
	default:
		h.Status = StatusUnknown
	}
}
