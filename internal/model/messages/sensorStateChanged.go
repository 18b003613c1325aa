package messages

import (
	"time"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

// ValveStateChanged is published on every valve transition.
type ValveStateChanged struct {
	Planter   string                 `json:"planter"`
	Valve     string                 `json:"valve"`
	NewState  entities.ValvePosition `json:"new_state"`
	Source    string                 `json:"source"` // "schedule" | "manual" | "boot"
	Timestamp time.Time              `json:"timestamp"`
}
