package hal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
)

var adsChannels = []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

var hostOnce struct {
	sync.Once
	err error
}

func initHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostOnce.err = fmt.Errorf("periph host init: %w: %w", model.ErrHardwareConfig, err)
		}
	})
	return hostOnce.err
}

// ADS1115 reads the soil sensors through an ADS1115 on the I²C bus.
// Readings are scaled down to bits of resolution so calibration references
// stay comparable with 12-bit ADCs.
type ADS1115 struct {
	mu    sync.Mutex
	bus   i2c.BusCloser
	dev   *ads1x15.Dev
	shift uint
	pins  map[int]ads1x15.PinADC
}

func OpenADS1115(busName string, addr uint16, bits int) (*ADS1115, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w: %w", busName, model.ErrHardwareConfig, err)
	}
	opts := ads1x15.DefaultOpts
	if addr != 0 {
		opts.I2cAddress = addr
	}
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("ads1115 at %#x: %w: %w", opts.I2cAddress, model.ErrHardwareConfig, err)
	}
	if bits <= 0 || bits > 15 {
		bits = 15
	}
	return &ADS1115{bus: bus, dev: dev, shift: uint(15 - bits), pins: map[int]ads1x15.PinADC{}}, nil
}

func (a *ADS1115) ReadRaw(ctx context.Context, channel int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	pin, err := a.pin(channel)
	if err != nil {
		return 0, err
	}
	sample, err := pin.Read()
	if err != nil {
		return 0, fmt.Errorf("ads1115 channel %d: %w", channel, err)
	}
	raw := int(sample.Raw)
	if raw < 0 {
		raw = 0
	}
	return raw >> a.shift, nil
}

func (a *ADS1115) pin(channel int) (ads1x15.PinADC, error) {
	if p, ok := a.pins[channel]; ok {
		return p, nil
	}
	if channel < 0 || channel >= len(adsChannels) {
		return nil, fmt.Errorf("adc channel %d: %w", channel, model.ErrHardwareConfig)
	}
	p, err := a.dev.PinForChannel(adsChannels[channel], 5*physic.Volt, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		return nil, fmt.Errorf("adc channel %d: %w: %w", channel, model.ErrHardwareConfig, err)
	}
	a.pins[channel] = p
	return p, nil
}

func (a *ADS1115) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch, p := range a.pins {
		_ = p.Halt()
		delete(a.pins, ch)
	}
	return a.bus.Close()
}

// EdgeButton waits for presses on a GPIO input using edge interrupts.
type EdgeButton struct {
	d debouncer
}

// OpenEdgeButton configures the pin as input with edge detection. An
// active-high button gets a pull-down, an active-low one a pull-up.
func OpenEdgeButton(pin int, activeLow bool, debounce, settle time.Duration) (*EdgeButton, error) {
	if err := CheckPin(pin); err != nil {
		return nil, err
	}
	if err := initHost(); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("button %s: %w", name, model.ErrHardwareConfig)
	}
	pull, edge, active := gpio.PullDown, gpio.RisingEdge, gpio.High
	if activeLow {
		pull, edge, active = gpio.PullUp, gpio.FallingEdge, gpio.Low
	}
	if err := p.In(pull, edge); err != nil {
		return nil, fmt.Errorf("button %s: %w: %w", name, model.ErrHardwareConfig, err)
	}
	return &EdgeButton{d: debouncer{
		waitEdge: p.WaitForEdge,
		asserted: func() bool { return p.Read() == active },
		debounce: debounce,
		settle:   settle,
	}}, nil
}

func (b *EdgeButton) WaitAsserted(ctx context.Context) error {
	return b.d.wait(ctx)
}
