package planter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_planter/internal/valve"
)

type fakeRemote struct {
	mu        sync.Mutex
	params    messages.RemoteParams
	fetchErr  error
	patchErr  error
	postErrs  []error // consumed one per post, nil afterwards
	patched   []messages.StatusReport
	stored    []messages.RemoteParams
	posted    []messages.Telemetry
	postCalls int
}

func (f *fakeRemote) FetchParams(context.Context) (messages.RemoteParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params, f.fetchErr
}

func (f *fakeRemote) PatchStatus(_ context.Context, st messages.StatusReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patched = append(f.patched, st)
	return nil
}

func (f *fakeRemote) PatchParams(_ context.Context, p messages.RemoteParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, p)
	return nil
}

func (f *fakeRemote) PostTelemetry(_ context.Context, t messages.Telemetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCalls++
	if len(f.postErrs) > 0 {
		err := f.postErrs[0]
		f.postErrs = f.postErrs[1:]
		if err != nil {
			return err
		}
	}
	f.posted = append(f.posted, t)
	return nil
}

type fakeADC struct {
	raw map[int]int
	err map[int]error
}

func (a fakeADC) ReadRaw(_ context.Context, ch int) (int, error) {
	if err := a.err[ch]; err != nil {
		return 0, err
	}
	v, ok := a.raw[ch]
	if !ok {
		return 0, fmt.Errorf("channel %d: %w", ch, model.ErrHardwareConfig)
	}
	return v, nil
}

type fakeThermo struct {
	c   float64
	err error
}

func (t fakeThermo) Celsius() (float64, error) { return t.c, t.err }

type published struct {
	topic string
	v     any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) PublishJSON(topic string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, v})
	return nil
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.topic
	}
	return out
}

type write struct {
	pin   int
	level entities.Level
}

type fakeGPIO struct {
	mu     sync.Mutex
	writes []write
	bad    map[int]bool
}

func (g *fakeGPIO) ConfigureOutput(int) error { return nil }

func (g *fakeGPIO) Write(pin int, l entities.Level) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bad[pin] {
		return errors.New("write failed")
	}
	g.writes = append(g.writes, write{pin, l})
	return nil
}

func (g *fakeGPIO) pinWrites(pin int) []entities.Level {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []entities.Level
	for _, w := range g.writes {
		if w.pin == pin {
			out = append(out, w.level)
		}
	}
	return out
}

type sleepLog struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.d = append(s.d, d)
	s.mu.Unlock()
	return ctx.Err()
}

type fixture struct {
	ctrl    *Controller
	remote  *fakeRemote
	gpio    *fakeGPIO
	sleeps  *sleepLog
	pub     *fakePublisher
	metrics *Metrics
	sensors []*entities.Sensor
	valves  []*entities.Valve
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		remote:  &fakeRemote{params: messages.RemoteParams{WaterDuration: 10, WaterTimes: [2]int{6, 18}}},
		gpio:    &fakeGPIO{bad: map[int]bool{}},
		sleeps:  &sleepLog{},
		pub:     &fakePublisher{},
		metrics: NewMetrics("test"),
		now:     time.Date(2024, time.May, 3, 6, 0, 0, 0, time.UTC),
	}
	f.sensors = []*entities.Sensor{
		{Name: "Sensor_1", Channel: 0, MeanDry: entities.DefaultMeanDry, MeanWet: entities.DefaultMeanWet},
		{Name: "Sensor_2", Channel: 1, MeanDry: entities.DefaultMeanDry, MeanWet: entities.DefaultMeanWet},
	}
	f.valves = []*entities.Valve{
		{Name: "Valve_1", Pin: 5, Sensor: f.sensors[0]},
		{Name: "Valve_2", Pin: 6, Sensor: f.sensors[1]},
	}
	valves := valve.NewController(f.gpio, valve.WithSleep(f.sleeps.sleep), valve.WithClock(f.clock))
	ctrl, err := NewController(f.sensors, f.valves, NewSchedule(), Deps{
		Remote:      f.remote,
		ADC:         fakeADC{raw: map[int]int{0: 1040, 1: 2615}},
		Thermometer: fakeThermo{c: 47.2},
		Valves:      valves,
		Publisher:   f.pub,
		Metrics:     f.metrics,
	}, Options{
		Name:       "balcony",
		Location:   time.UTC,
		RetryDelay: time.Millisecond,
		Now:        f.clock,
		Sleep:      f.sleeps.sleep,
	})
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

func (f *fixture) clock() time.Time { return f.now }
