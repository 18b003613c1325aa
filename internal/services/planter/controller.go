// Package planter runs the two control loops of the planter: a fast loop
// keeping the watering parameters in sync with the remote database, and a
// slow loop watering on schedule and reporting soil moisture.
package planter

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smart_planter/internal/hal"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_planter/internal/valve"
	"github.com/LeonardoBeccarini/smart_planter/pkg/broker"
	"github.com/LeonardoBeccarini/smart_planter/pkg/dedup"
)

const (
	DefaultSyncPeriod   = time.Minute
	DefaultRecordPeriod = time.Hour
	DefaultRetryDelay   = 5 * time.Second
)

// RemoteClient is the realtime database contract.
type RemoteClient interface {
	FetchParams(ctx context.Context) (messages.RemoteParams, error)
	PatchStatus(ctx context.Context, st messages.StatusReport) error
	PostTelemetry(ctx context.Context, t messages.Telemetry) error
}

// ParamsWriter is implemented by remote clients that can also store the
// configured parameters, used when a config is pushed over MQTT.
type ParamsWriter interface {
	PatchParams(ctx context.Context, p messages.RemoteParams) error
}

// ReadingSink receives every reading, in addition to the remote telemetry table.
type ReadingSink interface {
	Write(ctx context.Context, r messages.SensorReading) error
}

// Deps are the collaborators of the controller. Remote, ADC and Valves are required.
type Deps struct {
	Remote       RemoteClient
	ADC          hal.ADC
	Thermometer  hal.Thermometer
	Valves       *valve.Controller
	Connectivity ConnectivityChecker
	Sinks        []ReadingSink
	Publisher    broker.IPublisher
	Metrics      *Metrics
}

type Options struct {
	Name         string
	TopicPrefix  string
	Location     *time.Location
	SyncPeriod   time.Duration
	RecordPeriod time.Duration
	RetryDelay   time.Duration

	// test hooks
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

type Controller struct {
	name     string
	prefix   string
	sensors  []*entities.Sensor
	valves   []*entities.Valve
	schedule *Schedule
	deps     Deps
	loc      *time.Location
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	syncPeriod   time.Duration
	recordPeriod time.Duration
	retryDelay   time.Duration

	deduper *dedup.Deduper

	mu          sync.RWMutex
	lastSyncOK  time.Time
	lastSyncErr error
	latest      map[string]messages.SensorReading
}

func NewController(sensors []*entities.Sensor, valves []*entities.Valve, schedule *Schedule, deps Deps, opts Options) (*Controller, error) {
	if deps.Remote == nil || deps.ADC == nil || deps.Valves == nil {
		return nil, errors.New("planter: remote client, adc and valve controller are required")
	}
	if schedule == nil {
		schedule = NewSchedule()
	}
	c := &Controller{
		name:         opts.Name,
		prefix:       opts.TopicPrefix,
		sensors:      sensors,
		valves:       valves,
		schedule:     schedule,
		deps:         deps,
		loc:          opts.Location,
		now:          opts.Now,
		sleep:        opts.Sleep,
		syncPeriod:   opts.SyncPeriod,
		recordPeriod: opts.RecordPeriod,
		retryDelay:   opts.RetryDelay,
		deduper:      dedup.New(2*time.Minute, 1000),
		latest:       map[string]messages.SensorReading{},
	}
	if c.name == "" {
		c.name = "planter"
	}
	if c.prefix == "" {
		c.prefix = "planter"
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	if c.syncPeriod <= 0 {
		c.syncPeriod = DefaultSyncPeriod
	}
	if c.recordPeriod <= 0 {
		c.recordPeriod = DefaultRecordPeriod
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}

	deps.Valves.Observe(c.onTransition)
	return c, nil
}

// Schedule exposes the shared watering parameters.
func (c *Controller) Schedule() *Schedule { return c.schedule }

// Name is the planter name used in topics and telemetry tags.
func (c *Controller) Name() string { return c.name }

// Run starts both loops and blocks until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.RunSyncLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.RunRecordLoop(ctx)
	}()
	wg.Wait()
	log.Printf("planter: loops stopped")
}

// RunSyncLoop keeps the parameters in sync every sync period.
func (c *Controller) RunSyncLoop(ctx context.Context) {
	c.runPeriodic(ctx, "sync", c.syncPeriod, c.syncTick)
}

// RunRecordLoop waters on schedule and reports moisture every record period.
func (c *Controller) RunRecordLoop(ctx context.Context) {
	c.runPeriodic(ctx, "record", c.recordPeriod, c.RecordTick)
}

func (c *Controller) syncTick(ctx context.Context, _ time.Time) {
	if err := c.checkConnectivity(ctx); err != nil {
		log.Printf("planter: sync skipped: %v", err)
		c.recordSync(err)
		return
	}
	if err := c.SyncParameters(ctx); err != nil {
		log.Printf("planter: sync failed: %v", err)
	}
}

// RecordTick runs one iteration of the slow loop: connectivity (best effort),
// scheduled watering, then the moisture report.
func (c *Controller) RecordTick(ctx context.Context, now time.Time) {
	if err := c.checkConnectivity(ctx); err != nil {
		log.Printf("planter: %v (continuing)", err)
	}
	if err := c.WaterIfDue(ctx, now); err != nil {
		log.Printf("planter: watering: %v", err)
	}
	if ctx.Err() != nil {
		return
	}
	c.ReportSensors(ctx)
}

func (c *Controller) checkConnectivity(ctx context.Context) error {
	if c.deps.Connectivity == nil {
		return nil
	}
	return c.deps.Connectivity.Check(ctx)
}

// runPeriodic calls tick at start, start+period, start+2*period... The wait
// accounts for the time spent in tick; boundaries already passed are skipped.
func (c *Controller) runPeriodic(ctx context.Context, name string, period time.Duration, tick func(context.Context, time.Time)) {
	log.Printf("planter: %s loop started, period %s", name, period)
	at := c.now()
	for {
		tick(ctx, c.now().In(c.loc))
		if ctx.Err() != nil {
			return
		}
		now := c.now()
		next := nextTick(at, now, period)
		if skipped := int(next.Sub(at)/period) - 1; skipped > 0 {
			log.Printf("planter: %s loop overran, %d tick(s) skipped", name, skipped)
		}
		at = next
		if err := c.sleep(ctx, next.Sub(now)); err != nil {
			return
		}
	}
}

// nextTick returns the first boundary prev+n*period strictly after now.
func nextTick(prev, now time.Time, period time.Duration) time.Time {
	next := prev.Add(period)
	if !next.After(now) {
		missed := now.Sub(next)/period + 1
		next = next.Add(missed * period)
	}
	return next
}

func (c *Controller) recordSync(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSyncErr = err
	if err == nil {
		c.lastSyncOK = c.now()
	}
	c.deps.Metrics.sync(err == nil)
}

// LastSync returns the time of the last successful sync and the last sync error.
func (c *Controller) LastSync() (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSyncOK, c.lastSyncErr
}

// Latest returns the last reading of every sensor.
func (c *Controller) Latest() []messages.SensorReading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]messages.SensorReading, 0, len(c.latest))
	for _, s := range c.sensors {
		if r, ok := c.latest[s.Name]; ok {
			out = append(out, r)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
