package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestWireRoundTrip(t *testing.T) {
	p := NewTelemetryPacket(42)
	p.Health.HealthyComponents = 3
	p.Health.DegradedComponents = 1
	p.Health.RecalculateStatus()
	p.SensorReadings = []SensorReading{
		NewSensorReading("temp-01", "engine temp", Temperature(88.5, "celsius"), 1),
		NewSensorReading("gps-01", "position", Gps(52.52, 13.405, 34.0, 2.5), 1),
		NewSensorReading("relay-01", "main relay", Digital(true, "energized"), 1),
	}
	p.Diagnostics.AddEntry(NewDiagnosticEntry(LevelWarning, "temp-01", "running hot").WithCode("W-101"))

	raw, err := p.MarshalWire()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := UnmarshalWire(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Sequence != 42 {
		t.Fatalf("expected sequence 42, got %d", got.Sequence)
	}
	if got.Health.Status != StatusDegraded {
		t.Fatalf("expected DEGRADED status, got %s", got.Health.Status)
	}
	if len(got.SensorReadings) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got.SensorReadings))
	}
	if got.SensorReadings[1].Data.Kind != KindGps {
		t.Fatalf("expected Gps reading, got %s", got.SensorReadings[1].Data.Kind)
	}
	if got.Diagnostics.TotalEntries != 1 {
		t.Fatalf("expected 1 diagnostic entry, got %d", got.Diagnostics.TotalEntries)
	}
}

func TestWireFormatTags(t *testing.T) {
	p := NewTelemetryPacket(7)
	p.Health.HealthyComponents = 1
	p.Health.RecalculateStatus()
	p.SensorReadings = []SensorReading{
		NewSensorReading("temp-01", "engine temp", Temperature(20, "celsius"), 1),
	}

	raw, err := p.MarshalWire()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)

	// Consumers match on uppercase statuses and capitalized sensor kinds.
	if !strings.Contains(s, `"status":"HEALTHY"`) {
		t.Fatalf("expected uppercase status in wire format, got %s", s)
	}
	if !strings.Contains(s, `"type":"Temperature"`) {
		t.Fatalf("expected capitalized sensor kind tag, got %s", s)
	}
	if !strings.Contains(s, `"sensor_readings"`) {
		t.Fatalf("expected sensor_readings field, got %s", s)
	}
}

func TestSensorDataVariants(t *testing.T) {
	cases := []struct {
		data SensorData
		kind SensorKind
		tag  string
	}{
		{Temperature(21.5, "celsius"), KindTemperature, `"type":"Temperature"`},
		{Pressure(101.3, "kPa"), KindPressure, `"type":"Pressure"`},
		{Humidity(55, "percent"), KindHumidity, `"type":"Humidity"`},
		{Gps(48.85, 2.35, 35, 3), KindGps, `"type":"Gps"`},
		{Accelerometer(0.1, 0.2, 9.8, "m/s2"), KindAccelerometer, `"type":"Accelerometer"`},
		{Gyroscope(1, 2, 3, "deg/s"), KindGyroscope, `"type":"Gyroscope"`},
		{Analog(3.3, "volts"), KindAnalog, `"type":"Analog"`},
		{Digital(false, "open"), KindDigital, `"type":"Digital"`},
	}

	for _, tc := range cases {
		raw, err := json.Marshal(tc.data)
		if err != nil {
			t.Fatalf("marshal %s: %v", tc.kind, err)
		}
		if !strings.Contains(string(raw), tc.tag) {
			t.Fatalf("expected %s in %s", tc.tag, raw)
		}

		var back SensorData
		if err := json.Unmarshal(raw, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.kind, err)
		}
		if back.Kind != tc.kind {
			t.Fatalf("expected kind %s back, got %s", tc.kind, back.Kind)
		}
	}
}

func TestRecalculateStatus(t *testing.T) {
	cases := []struct {
		healthy, degraded, failed uint32
		want                      HealthStatus
	}{
		{3, 0, 0, StatusHealthy},
		{3, 1, 0, StatusDegraded},
		{3, 1, 1, StatusCritical},
		{0, 0, 0, StatusUnknown},
	}

	for _, tc := range cases {
		h := NewSystemHealth()
		h.HealthyComponents = tc.healthy
		h.DegradedComponents = tc.degraded
		h.FailedComponents = tc.failed
		h.RecalculateStatus()
		if h.Status != tc.want {
			t.Fatalf("healthy=%d degraded=%d failed=%d: expected %s, got %s",
				tc.healthy, tc.degraded, tc.failed, tc.want, h.Status)
		}
	}
}

func TestDiagnosticsRecentEntriesCapped(t *testing.T) {
	r := NewDiagnosticsReport()
	for i := 0; i < 150; i++ {
		r.AddEntry(NewDiagnosticEntry(LevelInfo, "comp", fmt.Sprintf("event %d", i)))
	}

	if r.TotalEntries != 150 {
		t.Fatalf("expected total 150, got %d", r.TotalEntries)
	}
	if len(r.RecentEntries) != maxRecentEntries {
		t.Fatalf("expected recent entries capped at %d, got %d", maxRecentEntries, len(r.RecentEntries))
	}
	if r.RecentEntries[0].Message != "event 50" {
		t.Fatalf("expected oldest entries evicted, got %q first", r.RecentEntries[0].Message)
	}
	if r.EntriesByLevel[string(LevelInfo)] != 150 {
		t.Fatalf("expected level count to keep the full total, got %d", r.EntriesByLevel[string(LevelInfo)])
	}
}

func TestAggregatePacket(t *testing.T) {
	first := NewTelemetryPacket(10)
	first.Health.HealthyComponents = 2
	first.Health.RecalculateStatus()
	first.SensorReadings = []SensorReading{
		NewSensorReading("a", "a", Analog(1, "v"), 1),
	}
	first.Diagnostics.AddEntry(NewDiagnosticEntry(LevelError, "a", "boom"))

	second := NewTelemetryPacket(11)
	second.SensorReadings = []SensorReading{
		NewSensorReading("b", "b", Analog(2, "v"), 1),
		NewSensorReading("c", "c", Analog(3, "v"), 1),
	}

	agg := AggregatePacket([]*TelemetryPacket{first, second})
	if agg == nil {
		t.Fatalf("expected aggregate packet, got nil")
	}
	if agg.Sequence != 10 {
		t.Fatalf("expected first packet's sequence, got %d", agg.Sequence)
	}
	if agg.Health.Status != StatusHealthy {
		t.Fatalf("expected first packet's health, got %s", agg.Health.Status)
	}
	if len(agg.SensorReadings) != 3 {
		t.Fatalf("expected concatenated readings, got %d", len(agg.SensorReadings))
	}
	if agg.SensorReadings[2].ComponentID != "c" {
		t.Fatalf("expected batch order preserved, got %s last", agg.SensorReadings[2].ComponentID)
	}
	if agg.Diagnostics.TotalEntries != 1 {
		t.Fatalf("expected first packet's diagnostics, got %d entries", agg.Diagnostics.TotalEntries)
	}

	if got := AggregatePacket(nil); got != nil {
		t.Fatalf("expected nil aggregate for empty batch")
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := NewTelemetryPacket(1)
	p.SensorReadings = []SensorReading{
		NewSensorReading("a", "a", Analog(1, "v"), 1),
	}
	p.Diagnostics.AddEntry(NewDiagnosticEntry(LevelInfo, "a", "hello"))

	c := p.Clone()
	c.SensorReadings[0].ComponentID = "mutated"
	c.Diagnostics.AddEntry(NewDiagnosticEntry(LevelInfo, "a", "extra"))

	if p.SensorReadings[0].ComponentID != "a" {
		t.Fatalf("expected clone readings to be independent")
	}
	if p.Diagnostics.TotalEntries != 1 {
		t.Fatalf("expected clone diagnostics to be independent, got %d", p.Diagnostics.TotalEntries)
	}
}

func TestDiagnosticsCloneCopiesEntryContext(t *testing.T) {
	r := NewDiagnosticsReport()
	r.AddEntry(NewDiagnosticEntry(LevelWarning, "mqtt", "publish timeout").WithContext("sink", "mqtt"))

	c := r.Clone()
	c.RecentEntries[0].Context["sink"] = "serial"

	if r.RecentEntries[0].Context["sink"] != "mqtt" {
		t.Fatalf("expected clone entry context to be independent, got %q", r.RecentEntries[0].Context["sink"])
	}
}
