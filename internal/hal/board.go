package hal

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/LeonardoBeccarini/smart_planter/internal/config"
)

// Board bundles the devices of one planter.
type Board struct {
	ADC         ADC
	GPIO        GPIO
	Button      Button
	Thermometer Thermometer
	Indicator   *RGBIndicator
	// Sim is set when running on the simulated backend.
	Sim *SimBoard

	closers []func() error
}

// Open builds the board for the configured backend. Only the "rpio" backend
// touches real hardware.
func Open(hw config.HardwareConfig, cal config.CalibrationConfig) (*Board, error) {
	b := &Board{}
	switch hw.Backend {
	case "sim":
		sim := NewSimBoard(SimOptions{
			DecayPerMin: hw.Sim.DecayPerMin,
			GainPerMin:  hw.Sim.GainPerMin,
			Noise:       hw.Sim.Noise,
			Seed:        hw.Sim.Seed,
			ButtonDelay: hw.Sim.ButtonDelay,
		})
		b.ADC, b.GPIO, b.Button, b.Thermometer, b.Sim = sim, sim, sim, sim, sim
	case "rpio":
		gpio, err := OpenRPIO()
		if err != nil {
			return nil, err
		}
		b.GPIO = gpio
		b.closers = append(b.closers, gpio.Close)

		adc, err := OpenADS1115(hw.I2CBus, hw.ADCAddress, hw.ADCBits)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.ADC = adc
		b.closers = append(b.closers, adc.Close)

		btn, err := OpenEdgeButton(hw.ButtonPin, hw.ActiveLow, cal.Debounce, cal.Settle)
		if err != nil {
			// the planter still runs on stored references without a button
			log.Printf("hal: WARN calibration button unavailable: %v", err)
			b.Button = noButton{err: err}
		} else {
			b.Button = btn
		}
		b.Thermometer = SysfsThermometer{Path: hw.ThermalZone}
	default:
		return nil, fmt.Errorf("unknown hardware backend %q", hw.Backend)
	}

	ind, err := NewRGBIndicator(b.GPIO, hw.LED.Red, hw.LED.Green, hw.LED.Blue)
	if err != nil {
		log.Printf("hal: WARN status led disabled: %v", err)
	} else {
		b.Indicator = ind
	}
	return b, nil
}

// SetStatus updates the status LED when present.
func (b *Board) SetStatus(s Status) {
	if b.Indicator == nil {
		return
	}
	if err := b.Indicator.Set(s); err != nil {
		log.Printf("hal: status led: %v", err)
	}
}

// Close releases the devices in reverse order of opening.
func (b *Board) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

type noButton struct{ err error }

func (n noButton) WaitAsserted(context.Context) error { return n.err }
