package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SensorKind discriminates the tagged SensorData variants on the wire.
type SensorKind string

const (
	KindTemperature   SensorKind = "Temperature"
	KindPressure      SensorKind = "Pressure"
	KindHumidity      SensorKind = "Humidity"
	KindGps           SensorKind = "Gps"
	KindAccelerometer SensorKind = "Accelerometer"
	KindGyroscope     SensorKind = "Gyroscope"
	KindAnalog        SensorKind = "Analog"
	KindDigital       SensorKind = "Digital"
)

// SensorData is a closed tagged union of measurement variants. It marshals as
// a flat object with a "type" discriminator so downstream consumers can parse
// it without schema negotiation.
type SensorData struct {
	Kind SensorKind

	// Scalar variants (Temperature, Pressure, Humidity, Analog).
	Value float32
	Unit  string

	// Gps.
	Latitude  float64
	Longitude float64
	Altitude  float32
	Accuracy  float32

	// Accelerometer, Gyroscope.
	X float32
	Y float32
	Z float32

	// Digital.
	State bool
	Label string
}

// Temperature builds a temperature reading in the given unit.
func Temperature(value float32, unit string) SensorData {
	return SensorData{Kind: KindTemperature, Value: value, Unit: unit}
}

// Pressure builds a pressure reading.
func Pressure(value float32, unit string) SensorData {
	return SensorData{Kind: KindPressure, Value: value, Unit: unit}
}

// Humidity builds a relative humidity reading.
func Humidity(value float32, unit string) SensorData {
	return SensorData{Kind: KindHumidity, Value: value, Unit: unit}
}

// Gps builds a position fix.
func Gps(lat, lon float64, altitude, accuracy float32) SensorData {
	return SensorData{Kind: KindGps, Latitude: lat, Longitude: lon, Altitude: altitude, Accuracy: accuracy}
}

// Accelerometer builds a 3-axis acceleration reading.
func Accelerometer(x, y, z float32, unit string) SensorData {
	return SensorData{Kind: KindAccelerometer, X: x, Y: y, Z: z, Unit: unit}
}

// Gyroscope builds a 3-axis angular velocity reading.
func Gyroscope(x, y, z float32, unit string) SensorData {
	return SensorData{Kind: KindGyroscope, X: x, Y: y, Z: z, Unit: unit}
}

// Analog builds a generic analog value.
func Analog(value float32, unit string) SensorData {
	return SensorData{Kind: KindAnalog, Value: value, Unit: unit}
}

// Digital builds a labelled on/off state.
func Digital(state bool, label string) SensorData {
	return SensorData{Kind: KindDigital, State: state, Label: label}
}

type scalarJSON struct {
	Type  SensorKind `json:"type"`
	Value float32    `json:"value"`
	Unit  string     `json:"unit"`
}

type gpsJSON struct {
	Type      SensorKind `json:"type"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Altitude  float32    `json:"altitude"`
	Accuracy  float32    `json:"accuracy"`
}

type axesJSON struct {
	Type SensorKind `json:"type"`
	X    float32    `json:"x"`
	Y    float32    `json:"y"`
	Z    float32    `json:"z"`
	Unit string     `json:"unit"`
}

type digitalJSON struct {
	Type  SensorKind `json:"type"`
	State bool       `json:"state"`
	Label string     `json:"label"`
}

func (d SensorData) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case KindTemperature, KindPressure, KindHumidity, KindAnalog:
		return json.Marshal(scalarJSON{Type: d.Kind, Value: d.Value, Unit: d.Unit})
	case KindGps:
		return json.Marshal(gpsJSON{Type: d.Kind, Latitude: d.Latitude, Longitude: d.Longitude, Altitude: d.Altitude, Accuracy: d.Accuracy})
	case KindAccelerometer, KindGyroscope:
		return json.Marshal(axesJSON{Type: d.Kind, X: d.X, Y: d.Y, Z: d.Z, Unit: d.Unit})
	case KindDigital:
		return json.Marshal(digitalJSON{Type: d.Kind, State: d.State, Label: d.Label})
	default:
		return nil, fmt.Errorf("unknown sensor kind %q", d.Kind)
	}
}

func (d *SensorData) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type SensorKind `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}

	switch tag.Type {
	case KindTemperature, KindPressure, KindHumidity, KindAnalog:
		var v scalarJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*d = SensorData{Kind: v.Type, Value: v.Value, Unit: v.Unit}
	case KindGps:
		var v gpsJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*d = SensorData{Kind: v.Type, Latitude: v.Latitude, Longitude: v.Longitude, Altitude: v.Altitude, Accuracy: v.Accuracy}
	case KindAccelerometer, KindGyroscope:
		var v axesJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*d = SensorData{Kind: v.Type, X: v.X, Y: v.Y, Z: v.Z, Unit: v.Unit}
	case KindDigital:
		var v digitalJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*d = SensorData{Kind: v.Type, State: v.State, Label: v.Label}
	default:
		return fmt.Errorf("unknown sensor kind %q", tag.Type)
	}
	return nil
}

// Description renders a human-readable summary for logs and the CLI.
func (d SensorData) Description() string {
	switch d.Kind {
	case KindTemperature:
		return fmt.Sprintf("Temperature: %.1f%s", d.Value, d.Unit)
	case KindPressure:
		return fmt.Sprintf("Pressure: %.2f%s", d.Value, d.Unit)
	case KindHumidity:
		return fmt.Sprintf("Humidity: %.1f%s", d.Value, d.Unit)
	case KindGps:
		return fmt.Sprintf("GPS: (%.4f, %.4f) alt=%.1fm acc=%.1fm", d.Latitude, d.Longitude, d.Altitude, d.Accuracy)
	case KindAccelerometer:
		return fmt.Sprintf("Accel: [%.2f, %.2f, %.2f]%s", d.X, d.Y, d.Z, d.Unit)
	case KindGyroscope:
		return fmt.Sprintf("Gyro: [%.2f, %.2f, %.2f]%s", d.X, d.Y, d.Z, d.Unit)
	case KindAnalog:
		return fmt.Sprintf("Analog: %.2f%s", d.Value, d.Unit)
	case KindDigital:
		state := "OFF"
		if d.State {
			state = "ON"
		}
		return fmt.Sprintf("%s: %s", d.Label, state)
	default:
		return string(d.Kind)
	}
}

// SensorReading is one measurement with provenance metadata.
type SensorReading struct {
	ComponentID   string     `json:"component_id"`
	ComponentName string     `json:"component_name"`
	Timestamp     time.Time  `json:"timestamp"`
	Data          SensorData `json:"data"`
	Sequence      uint64     `json:"sequence"`
	Confidence    float32    `json:"confidence"`
}

// NewSensorReading stamps a reading with the current time and the default
// confidence of 95.
func NewSensorReading(componentID, componentName string, data SensorData, sequence uint64) SensorReading {
	return SensorReading{
		ComponentID:   componentID,
		ComponentName: componentName,
		Timestamp:     time.Now().UTC(),
		Data:          data,
		Sequence:      sequence,
		Confidence:    95.0,
	}
}
