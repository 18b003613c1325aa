package hal

import (
	"errors"
	"fmt"
	"log"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

// Status is the boot phase shown on the status LED.
type Status string

const (
	StatusOff   Status = "off"
	StatusBusy  Status = "busy"  // blue: configuring or calibrating
	StatusReady Status = "ready" // green
	StatusError Status = "error" // red
)

// RGBIndicator drives a common-cathode RGB LED through three GPIO outputs.
// A negative pin disables that color.
type RGBIndicator struct {
	gpio             GPIO
	red, green, blue int
}

func NewRGBIndicator(g GPIO, red, green, blue int) (*RGBIndicator, error) {
	ind := &RGBIndicator{gpio: g, red: red, green: green, blue: blue}
	var errs []error
	for _, p := range ind.pins() {
		if err := g.ConfigureOutput(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("status led: %w", err)
	}
	return ind, ind.Set(StatusOff)
}

// Set lights the color for s.
func (i *RGBIndicator) Set(s Status) error {
	on := map[int]bool{}
	switch s {
	case StatusBusy:
		on[i.blue] = true
	case StatusReady:
		on[i.green] = true
	case StatusError:
		on[i.red] = true
	}
	var errs []error
	for _, p := range i.pins() {
		if err := i.gpio.Write(p, entities.Level(on[p])); err != nil {
			errs = append(errs, err)
		}
	}
	log.Printf("hal: status led %s", s)
	return errors.Join(errs...)
}

func (i *RGBIndicator) pins() []int {
	out := make([]int, 0, 3)
	for _, p := range []int{i.red, i.green, i.blue} {
		if p >= 0 {
			out = append(out, p)
		}
	}
	return out
}
