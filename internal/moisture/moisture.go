// Package moisture maps raw sensor readings onto a bounded moisture fraction.
package moisture

import (
	"fmt"
	"math"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

// Normalize returns (raw - MeanDry) / (MeanWet - MeanDry) clamped into [0,1].
// A reading at MeanDry maps to exactly 0 and one at MeanWet to exactly 1.
func Normalize(s entities.Sensor, raw float64) (float64, error) {
	if !s.Calibrated() {
		return 0, fmt.Errorf("sensor %s (dry=%.2f wet=%.2f): %w", s.Name, s.MeanDry, s.MeanWet, model.ErrCalibrationDegenerate)
	}
	if math.IsNaN(raw) {
		return 0, fmt.Errorf("sensor %s: raw reading is NaN: %w", s.Name, model.ErrHardwareConfig)
	}
	f := (raw - s.MeanDry) / (s.MeanWet - s.MeanDry)
	return clamp01(f), nil
}

// Percent scales a fraction to a percentage rounded to 2 decimals.
func Percent(fraction float64) float64 {
	return math.Round(fraction*10000) / 100
}

func clamp01(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return x
}
