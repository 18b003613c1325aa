package persistence

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
)

// InfluxConfig points at the history bucket.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string // default "soil_moisture"
}

// pointWriter is the subset of api.WriteAPIBlocking used by the sink.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink stores every moisture reading in InfluxDB and tracks the last write
// error for the health endpoints.
type Sink struct {
	client      influxdb2.Client
	writeAPI    pointWriter
	measurement string
	timeout     time.Duration

	mu      sync.RWMutex
	lastErr time.Time
	written int64
}

func NewSink(cfg InfluxConfig) (*Sink, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := newSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Measurement)
	s.client = client
	return s, nil
}

func newSink(w pointWriter, measurement string) *Sink {
	if measurement == "" {
		measurement = "soil_moisture"
	}
	return &Sink{
		writeAPI:    w,
		measurement: sanitizeMeasurement(measurement),
		timeout:     5 * time.Second,
		lastErr:     time.Now().Add(-24 * time.Hour),
	}
}

// Write stores one reading. Errors are returned and remembered, never fatal.
func (s *Sink) Write(ctx context.Context, r messages.SensorReading) error {
	t := r.Timestamp
	if t.IsZero() {
		t = time.Now()
	}
	tags := map[string]string{
		"planter": r.Planter,
		"sensor":  r.Sensor,
	}
	fields := map[string]interface{}{
		"moisture": r.Moisture,
		"raw":      r.Raw,
	}
	point := influxdb2.NewPoint(s.measurement, tags, fields, t)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		s.mu.Lock()
		s.lastErr = time.Now()
		s.mu.Unlock()
		log.Printf("persistence: write error: %v", err)
		return fmt.Errorf("influx write: %w", err)
	}
	s.mu.Lock()
	s.written++
	s.mu.Unlock()
	return nil
}

// LastErrorAge reports how long ago the last write failed.
func (s *Sink) LastErrorAge() time.Duration {
	if s == nil {
		return 99999 * time.Hour
	}
	s.mu.RLock()
	t := s.lastErr
	s.mu.RUnlock()
	return time.Since(t)
}

// Written returns the number of points stored since start.
func (s *Sink) Written() int64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.written
}

func (s *Sink) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}

func sanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
