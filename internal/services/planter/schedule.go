package planter

import (
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
)

// Snapshot is an immutable copy of the watering parameters.
type Snapshot struct {
	WaterTimes    [2]int    `json:"water_times"`
	WaterDuration int       `json:"water_duration_s"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Due reports whether hour matches one of the configured watering hours.
func (s Snapshot) Due(hour int) bool {
	for _, h := range s.WaterTimes {
		if h != messages.Unset && h == hour {
			return true
		}
	}
	return false
}

// Duration is the per-valve watering time.
func (s Snapshot) Duration() time.Duration {
	return time.Duration(s.WaterDuration) * time.Second
}

// Params converts the snapshot back to the remote representation.
func (s Snapshot) Params() messages.RemoteParams {
	return messages.RemoteParams{WaterDuration: s.WaterDuration, WaterTimes: s.WaterTimes}
}

// Schedule holds the watering parameters shared by the sync and record loops.
type Schedule struct {
	mu  sync.RWMutex
	cur Snapshot
}

// NewSchedule starts with both hours unset and a zero duration.
func NewSchedule() *Schedule {
	return &Schedule{cur: Snapshot{WaterTimes: [2]int{messages.Unset, messages.Unset}}}
}

func (s *Schedule) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Apply replaces the parameters and reports whether they changed.
func (s *Schedule) Apply(p messages.RemoteParams, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.cur.WaterDuration != p.WaterDuration || s.cur.WaterTimes != p.WaterTimes
	s.cur = Snapshot{WaterTimes: p.WaterTimes, WaterDuration: p.WaterDuration, UpdatedAt: at}
	return changed
}
