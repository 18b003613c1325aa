package entities

// ValvePosition is the logical state of a watering valve.
type ValvePosition string

const (
	ValveClosed ValvePosition = "closed"
	ValveOpen   ValvePosition = "open"
)

// Level is the electrical level driven on a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Level maps the logical position onto the wiring of the valve driver:
// HIGH keeps the valve closed (safe), LOW opens it.
func (p ValvePosition) Level() Level {
	if p == ValveOpen {
		return Low
	}
	return High
}

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Valve is a solenoid valve on a GPIO pin. Sensor is the sensor placed in the
// same pot; it is informational and does not gate watering.
type Valve struct {
	Name   string  `json:"name"`
	Pin    int     `json:"pin"`
	Sensor *Sensor `json:"-"`
}
