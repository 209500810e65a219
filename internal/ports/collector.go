package ports

import "github.com/sorenkai/telewire/internal/domain"

// Collector streams sensor readings from any data source (OPC UA, Modbus,
// simulators, etc.) into the telemetry state.
type Collector interface {
	Start(out chan<- domain.SensorReading) error
	Stop() error
}
