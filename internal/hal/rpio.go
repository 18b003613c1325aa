package hal

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

// RPIO drives Raspberry Pi GPIOs through /dev/gpiomem.
type RPIO struct {
	mu sync.Mutex
}

// OpenRPIO maps the GPIO registers. Close must be called on shutdown.
func OpenRPIO() (*RPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("rpio open: %w: %w", model.ErrHardwareConfig, err)
	}
	return &RPIO{}, nil
}

// ConfigureOutput sets the pin as output with the pull-down enabled, so the
// line idles low if the driver ever goes high-impedance.
func (g *RPIO) ConfigureOutput(pin int) error {
	if err := CheckPin(pin); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p := rpio.Pin(pin)
	p.Output()
	p.PullDown()
	return nil
}

func (g *RPIO) Write(pin int, level entities.Level) error {
	if err := CheckPin(pin); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if level == entities.High {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

func (g *RPIO) Close() error {
	return rpio.Close()
}
