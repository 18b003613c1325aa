package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

type fakeGPIO struct {
	outputs map[int]bool
	levels  map[int]entities.Level
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{outputs: map[int]bool{}, levels: map[int]entities.Level{}}
}

func (f *fakeGPIO) ConfigureOutput(pin int) error {
	if err := CheckPin(pin); err != nil {
		return err
	}
	f.outputs[pin] = true
	return nil
}

func (f *fakeGPIO) Write(pin int, l entities.Level) error {
	if err := CheckPin(pin); err != nil {
		return err
	}
	f.levels[pin] = l
	return nil
}

func TestRGBIndicator(t *testing.T) {
	g := newFakeGPIO()
	ind, err := NewRGBIndicator(g, 22, 23, 24)
	require.NoError(t, err)
	assert.Equal(t, entities.Low, g.levels[22])
	assert.Equal(t, entities.Low, g.levels[23])
	assert.Equal(t, entities.Low, g.levels[24])

	tests := []struct {
		status        Status
		red, grn, blu entities.Level
	}{
		{StatusBusy, entities.Low, entities.Low, entities.High},
		{StatusReady, entities.Low, entities.High, entities.Low},
		{StatusError, entities.High, entities.Low, entities.Low},
		{StatusOff, entities.Low, entities.Low, entities.Low},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			require.NoError(t, ind.Set(tt.status))
			assert.Equal(t, tt.red, g.levels[22])
			assert.Equal(t, tt.grn, g.levels[23])
			assert.Equal(t, tt.blu, g.levels[24])
		})
	}
}

func TestRGBIndicator_DisabledColor(t *testing.T) {
	g := newFakeGPIO()
	ind, err := NewRGBIndicator(g, -1, 23, -1)
	require.NoError(t, err)
	require.NoError(t, ind.Set(StatusError))
	assert.Len(t, g.outputs, 1)
}

func TestRGBIndicator_InvalidPin(t *testing.T) {
	_, err := NewRGBIndicator(newFakeGPIO(), 40, 23, 24)
	assert.ErrorIs(t, err, ErrInvalidPin)
}
