package entities

import "math"

// Uncalibrated is the placeholder stored in MeanDry/MeanWet before calibration.
const Uncalibrated = -1.0

// Default calibration references for the capacitive sensors shipped with the planter.
const (
	DefaultMeanDry = 2615.0
	DefaultMeanWet = 1040.0
)

// Sensor represents a single capacitive soil sensor wired to one ADC channel.
// Raw readings decrease as the soil gets wetter, so MeanWet < MeanDry is expected.
type Sensor struct {
	Name    string  `json:"name" yaml:"name"`
	Channel int     `json:"channel" yaml:"channel"`
	MeanDry float64 `json:"mean_dry" yaml:"mean_dry"`
	MeanWet float64 `json:"mean_wet" yaml:"mean_wet"`
}

// NewSensor returns a sensor holding placeholder calibration values.
func NewSensor(name string, channel int) *Sensor {
	return &Sensor{Name: name, Channel: channel, MeanDry: Uncalibrated, MeanWet: Uncalibrated}
}

// Calibrated reports whether the references describe a usable linear mapping.
func (s Sensor) Calibrated() bool {
	for _, v := range []float64{s.MeanDry, s.MeanWet} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return s.MeanDry != s.MeanWet
}
