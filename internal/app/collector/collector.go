// Package collector assembles telemetry packets from component state. It is
// the producer side of the pipeline: components record health, readings, and
// diagnostics here, and GeneratePacket snapshots them into one packet.
package collector

import (
	"sync"

	"github.com/sorenkai/telewire/internal/domain"
)

// Rolling cap on retained sensor readings.
const maxRetainedReadings = 1000

// TelemetryCollector tracks current health, recent sensor readings, and the
// diagnostics report, and stamps packets with a monotonic sequence number.
// Safe for concurrent use by many recording components.
type TelemetryCollector struct {
	mu          sync.Mutex
	sequence    uint64
	health      domain.SystemHealth
	readings    []domain.SensorReading
	diagnostics domain.DiagnosticsReport
}

// New returns an empty collector with Unknown health.
func New() *TelemetryCollector {
	return &TelemetryCollector{
		health:      domain.NewSystemHealth(),
		diagnostics: domain.NewDiagnosticsReport(),
	}
}

// RecordSensorReading appends a reading, evicting the oldest past the cap.
func (c *TelemetryCollector) RecordSensorReading(reading domain.SensorReading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = append(c.readings, reading)
	if len(c.readings) > maxRetainedReadings {
		c.readings = c.readings[1:]
	}
}

// RecordDiagnostic adds an entry to the diagnostics report.
func (c *TelemetryCollector) RecordDiagnostic(entry domain.DiagnosticEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics.AddEntry(entry)
}

// UpdateHealth replaces the current health snapshot.
func (c *TelemetryCollector) UpdateHealth(health domain.SystemHealth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = health
}

// Health returns the current health snapshot.
func (c *TelemetryCollector) Health() domain.SystemHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// RecentReadings returns up to limit readings, newest first.
func (c *TelemetryCollector) RecentReadings(limit int) []domain.SensorReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	if limit > len(c.readings) {
		limit = len(c.readings)
	}
	out := make([]domain.SensorReading, 0, limit)
	for i := len(c.readings) - 1; i >= len(c.readings)-limit; i-- {
		out = append(out, c.readings[i])
	}
	return out
}

// GeneratePacket snapshots the collector state into a packet with the next
// sequence number. The collector keeps its readings; packets are snapshots,
// not a drain.
func (c *TelemetryCollector) GeneratePacket() *domain.TelemetryPacket {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sequence++
	packet := domain.NewTelemetryPacket(c.sequence)
	packet.Health = c.health
	packet.Diagnostics = c.diagnostics.Clone()
	if len(c.readings) > 0 {
		packet.SensorReadings = make([]domain.SensorReading, len(c.readings))
		copy(packet.SensorReadings, c.readings)
	}
	return packet
}

// DrainPacket snapshots the collector state like GeneratePacket and drops the
// snapshotted readings under the same lock, so a reading recorded while the
// packet is in flight stays retained for the next packet.
func (c *TelemetryCollector) DrainPacket() *domain.TelemetryPacket {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sequence++
	packet := domain.NewTelemetryPacket(c.sequence)
	packet.Health = c.health
	packet.Diagnostics = c.diagnostics.Clone()
	if len(c.readings) > 0 {
		packet.SensorReadings = c.readings
		c.readings = nil
	}
	return packet
}

// RestoreReadings puts drained readings back at the front of the retained
// window, preserving order and re-trimming to the cap. Used when a drained
// packet could not be handed off.
func (c *TelemetryCollector) RestoreReadings(readings []domain.SensorReading) {
	if len(readings) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	restored := make([]domain.SensorReading, 0, len(readings)+len(c.readings))
	restored = append(restored, readings...)
	restored = append(restored, c.readings...)
	if n := len(restored) - maxRetainedReadings; n > 0 {
		restored = restored[n:]
	}
	c.readings = restored
}

// Clear drops the retained sensor readings.
func (c *TelemetryCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = nil
}
