package hal

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

const (
	simDryRaw = 2700.0
	simWetRaw = 980.0
)

// SimOptions tunes the simulated soil.
type SimOptions struct {
	DecayPerMin float64 // moisture lost per minute while the valve is closed, in [0..1]
	GainPerMin  float64 // moisture gained per minute while the valve is open
	Noise       float64 // raw counts, uniform ±Noise
	Seed        float64 // initial moisture fraction
	ButtonDelay time.Duration
}

// SimBoard is an in-memory planter: each ADC channel holds a moisture state
// that decays over time and rises while the linked valve is open.
type SimBoard struct {
	mu       sync.Mutex
	opts     SimOptions
	now      func() time.Time
	rng      *rand.Rand
	last     time.Time
	moisture map[int]float64 // channel -> [0..1]
	links    map[int]int     // valve pin -> channel
	outputs  map[int]bool
	levels   map[int]entities.Level
	tempC    float64
}

func NewSimBoard(opts SimOptions) *SimBoard {
	return newSimBoard(opts, time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newSimBoard(opts SimOptions, now func() time.Time, rng *rand.Rand) *SimBoard {
	if opts.DecayPerMin < 0 {
		opts.DecayPerMin = 0
	}
	if opts.GainPerMin < 0 {
		opts.GainPerMin = 0
	}
	return &SimBoard{
		opts:     opts,
		now:      now,
		rng:      rng,
		last:     now(),
		moisture: map[int]float64{},
		links:    map[int]int{},
		outputs:  map[int]bool{},
		levels:   map[int]entities.Level{},
		tempC:    45,
	}
}

// Link makes the valve on pin water the soil read by channel.
func (b *SimBoard) Link(pin, channel int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.links[pin] = channel
}

func (b *SimBoard) ReadRaw(ctx context.Context, channel int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if channel < 0 || channel > 7 {
		return 0, fmt.Errorf("sim channel %d out of range", channel)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	m := b.level(channel)
	raw := simDryRaw - m*(simDryRaw-simWetRaw)
	if b.opts.Noise > 0 {
		raw += (b.rng.Float64()*2 - 1) * b.opts.Noise
	}
	if raw < 0 {
		raw = 0
	}
	return int(raw), nil
}

// Moisture returns the simulated fraction of a channel.
func (b *SimBoard) Moisture(channel int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.level(channel)
}

func (b *SimBoard) ConfigureOutput(pin int) error {
	if err := CheckPin(pin); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs[pin] = true
	return nil
}

func (b *SimBoard) Write(pin int, level entities.Level) error {
	if err := CheckPin(pin); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.outputs[pin] {
		return fmt.Errorf("sim pin %d is not an output", pin)
	}
	b.advance()
	b.levels[pin] = level
	return nil
}

// Level returns the last level written to pin.
func (b *SimBoard) Level(pin int) (entities.Level, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.levels[pin]
	return l, ok
}

// WaitAsserted simulates the operator pressing the button after ButtonDelay.
func (b *SimBoard) WaitAsserted(ctx context.Context) error {
	log.Printf("hal: sim button pressed in %s", b.opts.ButtonDelay)
	return sleepCtx(ctx, b.opts.ButtonDelay)
}

func (b *SimBoard) Celsius() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tempC += (b.rng.Float64() - 0.5) * 0.4
	return b.tempC, nil
}

func (b *SimBoard) level(channel int) float64 {
	m, ok := b.moisture[channel]
	if !ok {
		m = clamp01(b.opts.Seed)
		b.moisture[channel] = m
	}
	return m
}

// advance integrates moisture since the last call. Caller holds mu.
func (b *SimBoard) advance() {
	now := b.now()
	dtMin := now.Sub(b.last).Minutes()
	b.last = now
	if dtMin <= 0 {
		return
	}
	watered := map[int]bool{}
	for pin, ch := range b.links {
		if l, ok := b.levels[pin]; ok && l == entities.ValveOpen.Level() {
			watered[ch] = true
		}
	}
	for ch := range b.moisture {
		if watered[ch] {
			b.moisture[ch] = clamp01(b.moisture[ch] + b.opts.GainPerMin*dtMin)
		} else {
			b.moisture[ch] = clamp01(b.moisture[ch] - b.opts.DecayPerMin*dtMin)
		}
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
