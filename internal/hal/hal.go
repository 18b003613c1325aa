// Package hal abstracts the planter board: ADC channels for the soil sensors,
// GPIO outputs for valves and the status LED, the calibration button and the
// chip thermometer.
package hal

import (
	"context"
	"errors"
	"fmt"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

// MaxPin is the highest BCM GPIO exposed on the 40-pin header.
const MaxPin = 27

var ErrInvalidPin = errors.New("invalid pin")

// ADC reads raw values from analog channels.
type ADC interface {
	ReadRaw(ctx context.Context, channel int) (int, error)
}

// GPIO drives digital outputs.
type GPIO interface {
	ConfigureOutput(pin int) error
	Write(pin int, level entities.Level) error
}

// Button blocks until the operator presses the calibration button.
type Button interface {
	WaitAsserted(ctx context.Context) error
}

// Thermometer reports the SoC temperature.
type Thermometer interface {
	Celsius() (float64, error)
}

// CheckPin rejects pins outside the header range.
func CheckPin(pin int) error {
	if pin < 0 || pin > MaxPin {
		return fmt.Errorf("pin %d: %w: %w", pin, model.ErrHardwareConfig, ErrInvalidPin)
	}
	return nil
}
