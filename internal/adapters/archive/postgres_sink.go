// Package archive persists telemetry packets to a Postgres/Timescale table
// for local retention and offline analysis.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sorenkai/telewire/internal/domain"
	"github.com/sorenkai/telewire/internal/ports"
)

// Config holds the connection string and target table.
type Config struct {
	ConnString string        `yaml:"conn_string"`
	Table      string        `yaml:"table"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Table == "" {
		c.Table = "telemetry_packets"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.ConnString == "" {
		return errors.New("conn_string is required")
	}
	return nil
}

// PostgresSink inserts one row per packet, idempotent on (sequence, ts).
type PostgresSink struct {
	db    *sql.DB
	table string
	tmout time.Duration
}

// NewPostgresSink wraps an open database handle.
func NewPostgresSink(db *sql.DB, table string, timeout time.Duration) *PostgresSink {
	if table == "" {
		table = "telemetry_packets"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresSink{db: db, table: table, tmout: timeout}
}

func (s *PostgresSink) Name() string { return "postgres-archive" }

// Send archives the packet. The health, readings, and diagnostics columns are
// JSONB so the wire shape survives verbatim.
func (s *PostgresSink) Send(ctx context.Context, packet *domain.TelemetryPacket) error {
	health, err := json.Marshal(packet.Health)
	if err != nil {
		return ports.NewTransportError(ports.TransportSerialization, s.Name(), err)
	}
	readings, err := json.Marshal(packet.SensorReadings)
	if err != nil {
		return ports.NewTransportError(ports.TransportSerialization, s.Name(), err)
	}
	diagnostics, err := json.Marshal(packet.Diagnostics)
	if err != nil {
		return ports.NewTransportError(ports.TransportSerialization, s.Name(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.tmout)
	defer cancel()

	query := "INSERT INTO " + s.table +
		" (sequence, ts, health, sensor_readings, diagnostics) VALUES ($1,$2,$3,$4,$5)" +
		" ON CONFLICT (sequence, ts) DO NOTHING"
	if _, err := s.db.ExecContext(ctx, query, packet.Sequence, packet.Timestamp, health, readings, diagnostics); err != nil {
		return ports.NewTransportError(ports.TransportIo, s.Name(), err)
	}
	return nil
}

var _ ports.Sink = (*PostgresSink)(nil)
