package remote

import (
	"encoding/json"
	"fmt"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
)

// ParseParams decodes a remote configuration. Both fields are required; any
// missing or out of range value rejects the whole payload.
func ParseParams(body []byte) (messages.RemoteParams, error) {
	var raw struct {
		Duration *int   `json:"Water_Duration_Set"`
		Times    []*int `json:"Water_Times_Set"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return messages.RemoteParams{}, fmt.Errorf("decode params: %w: %w", model.ErrParse, err)
	}
	if raw.Duration == nil {
		return messages.RemoteParams{}, fmt.Errorf("missing Water_Duration_Set: %w", model.ErrParse)
	}
	if raw.Times == nil {
		return messages.RemoteParams{}, fmt.Errorf("missing Water_Times_Set: %w", model.ErrParse)
	}
	if *raw.Duration < 0 {
		return messages.RemoteParams{}, fmt.Errorf("negative Water_Duration_Set %d: %w", *raw.Duration, model.ErrParse)
	}
	if len(raw.Times) != 2 {
		return messages.RemoteParams{}, fmt.Errorf("Water_Times_Set has %d entries, want 2: %w", len(raw.Times), model.ErrParse)
	}
	p := messages.RemoteParams{WaterDuration: *raw.Duration}
	for i, hp := range raw.Times {
		if hp == nil {
			return messages.RemoteParams{}, fmt.Errorf("Water_Times_Set[%d] is null: %w", i, model.ErrParse)
		}
		h := *hp
		if h != messages.Unset && (h < 0 || h > 23) {
			return messages.RemoteParams{}, fmt.Errorf("Water_Times_Set[%d]=%d out of range: %w", i, h, model.ErrParse)
		}
		p.WaterTimes[i] = h
	}
	return p, nil
}
