package collector

import (
	"fmt"
	"testing"

	"github.com/sorenkai/telewire/internal/domain"
)

func reading(componentID string, seq uint64) domain.SensorReading {
	return domain.NewSensorReading(componentID, componentID, domain.Analog(1.0, "v"), seq)
}

func TestGeneratePacketSequencesAndSnapshots(t *testing.T) {
	c := New()
	c.RecordSensorReading(reading("a", 1))
	c.RecordSensorReading(reading("b", 2))

	h := domain.NewSystemHealth()
	h.HealthyComponents = 2
	h.RecalculateStatus()
	c.UpdateHealth(h)
	c.RecordDiagnostic(domain.NewDiagnosticEntry(domain.LevelInfo, "a", "started"))

	p1 := c.GeneratePacket()
	if p1.Sequence != 1 {
		t.Fatalf("expected first sequence 1, got %d", p1.Sequence)
	}
	if len(p1.SensorReadings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(p1.SensorReadings))
	}
	if p1.Health.Status != domain.StatusHealthy {
		t.Fatalf("expected healthy snapshot, got %s", p1.Health.Status)
	}
	if p1.Diagnostics.TotalEntries != 1 {
		t.Fatalf("expected 1 diagnostic entry, got %d", p1.Diagnostics.TotalEntries)
	}

	p2 := c.GeneratePacket()
	if p2.Sequence != 2 {
		t.Fatalf("expected monotonic sequence, got %d", p2.Sequence)
	}
	if len(p2.SensorReadings) != 2 {
		t.Fatalf("expected readings retained across packets, got %d", len(p2.SensorReadings))
	}

	// Packets are snapshots; mutating one must not reach the collector.
	p1.SensorReadings[0].ComponentID = "mutated"
	p3 := c.GeneratePacket()
	if p3.SensorReadings[0].ComponentID != "a" {
		t.Fatalf("expected snapshot isolation, got %s", p3.SensorReadings[0].ComponentID)
	}
}

func TestDrainPacketKeepsInFlightReadings(t *testing.T) {
	c := New()
	c.RecordSensorReading(reading("a", 1))

	p1 := c.DrainPacket()
	if p1.Sequence != 1 {
		t.Fatalf("expected first sequence 1, got %d", p1.Sequence)
	}
	if len(p1.SensorReadings) != 1 {
		t.Fatalf("expected drained packet to carry 1 reading, got %d", len(p1.SensorReadings))
	}

	// A reading recorded while the drained packet is in flight must land in
	// the next packet, not be wiped with the drained ones.
	c.RecordSensorReading(reading("b", 2))

	p2 := c.DrainPacket()
	if len(p2.SensorReadings) != 1 || p2.SensorReadings[0].ComponentID != "b" {
		t.Fatalf("expected in-flight reading retained for the next packet, got %v", p2.SensorReadings)
	}

	p3 := c.GeneratePacket()
	if len(p3.SensorReadings) != 0 {
		t.Fatalf("expected drain to empty the retained window, got %d", len(p3.SensorReadings))
	}
}

func TestRestoreReadingsAfterFailedHandoff(t *testing.T) {
	c := New()
	c.RecordSensorReading(reading("a", 1))

	p := c.DrainPacket()
	c.RecordSensorReading(reading("b", 2))
	c.RestoreReadings(p.SensorReadings)

	next := c.GeneratePacket()
	if len(next.SensorReadings) != 2 {
		t.Fatalf("expected restored and new readings, got %d", len(next.SensorReadings))
	}
	if next.SensorReadings[0].ComponentID != "a" || next.SensorReadings[1].ComponentID != "b" {
		t.Fatalf("expected restored readings to keep their original order, got %v", next.SensorReadings)
	}
}

func TestRestoreReadingsRetrimsToCap(t *testing.T) {
	c := New()
	for i := 0; i < maxRetainedReadings-1; i++ {
		c.RecordSensorReading(reading(fmt.Sprintf("c-%d", i), uint64(i)))
	}
	c.RestoreReadings([]domain.SensorReading{reading("old-0", 0), reading("old-1", 0)})

	p := c.GeneratePacket()
	if len(p.SensorReadings) != maxRetainedReadings {
		t.Fatalf("expected retention cap %d after restore, got %d", maxRetainedReadings, len(p.SensorReadings))
	}
	if p.SensorReadings[0].ComponentID != "old-1" {
		t.Fatalf("expected oldest restored readings evicted first, got %s", p.SensorReadings[0].ComponentID)
	}
}

func TestClearDropsReadingsOnly(t *testing.T) {
	c := New()
	c.RecordSensorReading(reading("a", 1))
	c.RecordDiagnostic(domain.NewDiagnosticEntry(domain.LevelWarning, "a", "warm"))

	c.Clear()

	p := c.GeneratePacket()
	if len(p.SensorReadings) != 0 {
		t.Fatalf("expected readings cleared, got %d", len(p.SensorReadings))
	}
	if p.Diagnostics.TotalEntries != 1 {
		t.Fatalf("expected diagnostics to survive Clear, got %d", p.Diagnostics.TotalEntries)
	}
}

func TestReadingsCappedAtRetentionLimit(t *testing.T) {
	c := New()
	for i := 0; i < maxRetainedReadings+50; i++ {
		c.RecordSensorReading(reading(fmt.Sprintf("c-%d", i), uint64(i)))
	}

	p := c.GeneratePacket()
	if len(p.SensorReadings) != maxRetainedReadings {
		t.Fatalf("expected retention cap %d, got %d", maxRetainedReadings, len(p.SensorReadings))
	}
	if p.SensorReadings[0].ComponentID != "c-50" {
		t.Fatalf("expected oldest readings evicted, got %s first", p.SensorReadings[0].ComponentID)
	}
}

func TestRecentReadingsNewestFirst(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.RecordSensorReading(reading(fmt.Sprintf("c-%d", i), uint64(i)))
	}

	recent := c.RecentReadings(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(recent))
	}
	if recent[0].ComponentID != "c-4" || recent[2].ComponentID != "c-2" {
		t.Fatalf("expected newest first, got %s ... %s", recent[0].ComponentID, recent[2].ComponentID)
	}

	all := c.RecentReadings(100)
	if len(all) != 5 {
		t.Fatalf("expected limit clamped to available readings, got %d", len(all))
	}
}
