// Package valve drives the watering solenoids.
package valve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

// Sources of a transition, carried on state events.
const (
	SourceBoot     = "boot"
	SourceSchedule = "schedule"
	SourceManual   = "manual"
)

// Driver is the GPIO surface needed by the controller.
type Driver interface {
	ConfigureOutput(pin int) error
	Write(pin int, level entities.Level) error
}

// Transition describes a level change applied to a valve.
type Transition struct {
	Valve    *entities.Valve
	Position entities.ValvePosition
	Source   string
	At       time.Time
}

type Observer func(Transition)

type SleepFunc func(ctx context.Context, d time.Duration) error

// Controller owns the valve positions. Watering cycles are serialized so two
// valves are never open at the same time.
type Controller struct {
	drv        Driver
	sleep      SleepFunc
	now        func() time.Time
	soakFactor int
	observers  []Observer

	cycleMu sync.Mutex

	mu        sync.RWMutex
	positions map[string]entities.ValvePosition
	cycles    map[*cycle]struct{}
}

// cycle is a running or queued Water call that Stop can cancel.
type cycle struct {
	valve  string
	cancel context.CancelFunc
}

type Option func(*Controller)

func WithSleep(f SleepFunc) Option        { return func(c *Controller) { c.sleep = f } }
func WithClock(f func() time.Time) Option { return func(c *Controller) { c.now = f } }
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithSoakFactor sets the pause after a valve closes, as a multiple of the
// watering duration.
func WithSoakFactor(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.soakFactor = n
		}
	}
}

func NewController(drv Driver, opts ...Option) *Controller {
	c := &Controller{
		drv:        drv,
		sleep:      sleepCtx,
		now:        time.Now,
		soakFactor: 2,
		positions:  map[string]entities.ValvePosition{},
		cycles:     map[*cycle]struct{}{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Observe registers o for every subsequent transition.
func (c *Controller) Observe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Configure sets every valve pin as output and drives it CLOSED. It can be
// called again at any time. A failing valve does not prevent the others from
// being configured.
func (c *Controller) Configure(valves []*entities.Valve) error {
	var errs []error
	for _, v := range valves {
		if err := c.drv.ConfigureOutput(v.Pin); err != nil {
			errs = append(errs, wrapHW(v, "configure", err))
			continue
		}
		if err := c.set(v, entities.ValveClosed, SourceBoot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetPosition drives the valve to p.
func (c *Controller) SetPosition(v *entities.Valve, p entities.ValvePosition) error {
	return c.set(v, p, SourceManual)
}

// Position returns the last position applied to the named valve.
func (c *Controller) Position(name string) (entities.ValvePosition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[name]
	return p, ok
}

// Water opens v for d, closes it, then waits soakFactor*d before returning.
// If ctx ends while the valve is open, the valve is closed first. A cycle
// queued behind another one can be cancelled by Stop before it opens.
// A zero duration is a no-op.
func (c *Controller) Water(ctx context.Context, v *entities.Valve, d time.Duration, source string) error {
	if d <= 0 {
		log.Printf("valve: %s skipped, watering duration is zero", v.Name)
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	cy := &cycle{valve: v.Name, cancel: cancel}
	c.mu.Lock()
	c.cycles[cy] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cycles, cy)
		c.mu.Unlock()
		cancel()
	}()

	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	if err := ctx.Err(); err != nil {
		log.Printf("valve: %s cycle cancelled before opening", v.Name)
		return err
	}

	if err := c.set(v, entities.ValveOpen, source); err != nil {
		return err
	}
	if err := c.sleep(ctx, d); err != nil {
		if cerr := c.set(v, entities.ValveClosed, source); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
	if err := c.set(v, entities.ValveClosed, source); err != nil {
		return err
	}
	return c.sleep(ctx, time.Duration(c.soakFactor)*d)
}

// Stop aborts running and queued cycles on v, if any, and drives it CLOSED.
func (c *Controller) Stop(v *entities.Valve) error {
	if v == nil {
		return fmt.Errorf("nil valve: %w", model.ErrHardwareConfig)
	}
	c.mu.RLock()
	for cy := range c.cycles {
		if cy.valve == v.Name {
			cy.cancel()
		}
	}
	c.mu.RUnlock()
	return c.set(v, entities.ValveClosed, SourceManual)
}

func (c *Controller) set(v *entities.Valve, p entities.ValvePosition, source string) error {
	if v == nil {
		return fmt.Errorf("nil valve: %w", model.ErrHardwareConfig)
	}
	if err := c.drv.Write(v.Pin, p.Level()); err != nil {
		log.Printf("valve: %s pin=%d -> %s FAILED: %v", v.Name, v.Pin, p, err)
		return wrapHW(v, "set "+string(p), err)
	}

	c.mu.Lock()
	c.positions[v.Name] = p
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	log.Printf("valve: %s pin=%d -> %s (%s, %s)", v.Name, v.Pin, p, p.Level(), source)
	tr := Transition{Valve: v, Position: p, Source: source, At: c.now()}
	for _, o := range observers {
		o(tr)
	}
	return nil
}

func wrapHW(v *entities.Valve, op string, err error) error {
	if errors.Is(err, model.ErrHardwareConfig) {
		return fmt.Errorf("valve %s %s: %w", v.Name, op, err)
	}
	return fmt.Errorf("valve %s %s: %w: %w", v.Name, op, model.ErrHardwareConfig, err)
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
