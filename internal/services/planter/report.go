package planter

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_planter/internal/moisture"
)

// Telemetry outcomes, also used as metric label values.
const (
	TelemetryOK      = "ok"
	TelemetryRetried = "retried"
	TelemetryDropped = "dropped"
	TelemetrySkipped = "skipped"
)

// ReportSensors reads every sensor once and posts the normalized moisture.
// A failed post is retried once after the retry delay, then the reading is
// dropped. It returns the outcome per sensor name.
func (c *Controller) ReportSensors(ctx context.Context) map[string]string {
	out := make(map[string]string, len(c.sensors))
	for _, s := range c.sensors {
		if ctx.Err() != nil {
			break
		}
		res := c.reportOne(ctx, s)
		out[s.Name] = res
		c.deps.Metrics.telemetryResult(res)
	}
	return out
}

func (c *Controller) reportOne(ctx context.Context, s *entities.Sensor) string {
	raw, err := c.deps.ADC.ReadRaw(ctx, s.Channel)
	if err != nil {
		log.Printf("planter: read %s: %v", s.Name, err)
		return TelemetrySkipped
	}
	frac, err := moisture.Normalize(*s, float64(raw))
	if err != nil {
		log.Printf("planter: %v", err)
		return TelemetrySkipped
	}
	pct := moisture.Percent(frac)
	at := c.now().In(c.loc)

	reading := messages.SensorReading{Planter: c.name, Sensor: s.Name, Raw: raw, Moisture: pct, Timestamp: at}
	c.remember(reading)
	c.fanOut(ctx, reading)

	return c.postTelemetry(ctx, messages.NewTelemetry(s.Name, at, pct))
}

func (c *Controller) postTelemetry(ctx context.Context, t messages.Telemetry) string {
	attempts := 0
	op := func() error {
		attempts++
		return c.deps.Remote.PostTelemetry(ctx, t)
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("planter: post %s failed, retrying in %s: %v", t.Name, wait, err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), 1), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		log.Printf("planter: dropping reading of %s (%.2f%%): %v", t.Name, t.Moisture, err)
		return TelemetryDropped
	}
	if attempts > 1 {
		return TelemetryRetried
	}
	return TelemetryOK
}

func (c *Controller) remember(r messages.SensorReading) {
	c.mu.Lock()
	c.latest[r.Sensor] = r
	c.mu.Unlock()
	c.deps.Metrics.setMoisture(r.Sensor, r.Moisture)
}

// fanOut hands the reading to the local sinks. Failures there never affect
// the remote report.
func (c *Controller) fanOut(ctx context.Context, r messages.SensorReading) {
	for _, sink := range c.deps.Sinks {
		if err := sink.Write(ctx, r); err != nil {
			log.Printf("planter: sink: %v", err)
		}
	}
	if c.deps.Publisher != nil {
		if err := c.deps.Publisher.PublishJSON(c.topic("telemetry", r.Sensor), r); err != nil {
			log.Printf("planter: publish reading: %v", err)
		}
	}
}
