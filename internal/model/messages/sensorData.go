package messages

import "time"

// Telemetry is one moisture reading as stored in the remote database.
// Field names match the existing database layout.
type Telemetry struct {
	Name     string  `json:"Name"`
	Month    int     `json:"Month"`
	Day      int     `json:"Day"`
	Hour     int     `json:"Hour"`
	Moisture float64 `json:"Moisture"` // percentage, 2 decimals
}

// NewTelemetry stamps a reading with the wall-clock components of t.
func NewTelemetry(name string, t time.Time, moisturePct float64) Telemetry {
	return Telemetry{
		Name:     name,
		Month:    int(t.Month()),
		Day:      t.Day(),
		Hour:     t.Hour(),
		Moisture: moisturePct,
	}
}

// SensorReading is the richer form of a reading published on the local bus
// and written to the history sink.
type SensorReading struct {
	Planter   string    `json:"planter"`
	Sensor    string    `json:"sensor"`
	Raw       int       `json:"raw"`
	Moisture  float64   `json:"moisture"`
	Timestamp time.Time `json:"timestamp"`
}
