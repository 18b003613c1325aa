package messages

import "time"

// WateringResult is published when a manually requested watering cycle ends.
type WateringResult struct {
	Planter   string    `json:"planter"`
	Valve     string    `json:"valve"`
	TicketID  string    `json:"ticket_id"`
	Status    string    `json:"status"` // "OK" | "FAIL"
	Reason    string    `json:"reason"` // "done" | "cancelled" | "error"
	Duration  int       `json:"duration_s"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}
