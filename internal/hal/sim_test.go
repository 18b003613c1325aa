package hal

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_planter/internal/config"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestSimBoard_WateringRaisesMoisture(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)}
	b := newSimBoard(SimOptions{DecayPerMin: 0.001, GainPerMin: 0.02, Seed: 0.3}, clk.Now, rand.New(rand.NewSource(1)))
	b.Link(5, 0)
	require.NoError(t, b.ConfigureOutput(5))
	require.NoError(t, b.Write(5, entities.High))

	ctx := context.Background()
	before, err := b.ReadRaw(ctx, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, b.Moisture(0), 1e-9)

	require.NoError(t, b.Write(5, entities.ValveOpen.Level()))
	clk.Advance(10 * time.Minute)
	assert.InDelta(t, 0.5, b.Moisture(0), 1e-9)

	after, err := b.ReadRaw(ctx, 0)
	require.NoError(t, err)
	assert.Less(t, after, before, "wetter soil reads lower")

	require.NoError(t, b.Write(5, entities.ValveClosed.Level()))
	clk.Advance(100 * time.Minute)
	assert.InDelta(t, 0.4, b.Moisture(0), 1e-9)
}

func TestSimBoard_Clamp(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	b := newSimBoard(SimOptions{DecayPerMin: 0.5, Seed: 0.3}, clk.Now, rand.New(rand.NewSource(1)))
	_ = b.Moisture(1)
	clk.Advance(time.Hour)
	assert.Equal(t, 0.0, b.Moisture(1))
}

func TestSimBoard_Outputs(t *testing.T) {
	b := NewSimBoard(SimOptions{})
	assert.ErrorIs(t, b.ConfigureOutput(99), ErrInvalidPin)
	assert.Error(t, b.Write(6, entities.High), "pin not configured")

	require.NoError(t, b.ConfigureOutput(6))
	require.NoError(t, b.Write(6, entities.Low))
	l, ok := b.Level(6)
	assert.True(t, ok)
	assert.Equal(t, entities.Low, l)

	_, err := b.ReadRaw(context.Background(), 12)
	assert.Error(t, err)
}

func TestSimBoard_Button(t *testing.T) {
	b := NewSimBoard(SimOptions{ButtonDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.WaitAsserted(ctx), context.DeadlineExceeded)

	b = NewSimBoard(SimOptions{})
	assert.NoError(t, b.WaitAsserted(context.Background()))
}

func TestOpen_SimBackend(t *testing.T) {
	hw := config.Default().Hardware
	b, err := Open(hw, config.Default().Calibration)
	require.NoError(t, err)
	defer b.Close()

	require.NotNil(t, b.Sim)
	require.NotNil(t, b.Indicator)
	b.SetStatus(StatusReady)
	l, ok := b.Sim.Level(hw.LED.Green)
	assert.True(t, ok)
	assert.Equal(t, entities.High, l)

	_, err = Open(config.HardwareConfig{Backend: "esp32"}, config.CalibrationConfig{})
	assert.Error(t, err)
}
