package planter

import (
	"context"
	"fmt"
	"log"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_planter/internal/remote"
	"github.com/LeonardoBeccarini/smart_planter/pkg/dedup"
)

// chipTempUnknown is reported when the thermometer cannot be read.
const chipTempUnknown = -1

// SyncParameters fetches the watering parameters, applies them and confirms
// them back together with the chip temperature. On a fetch or parse error the
// current schedule is left untouched.
func (c *Controller) SyncParameters(ctx context.Context) error {
	p, err := c.deps.Remote.FetchParams(ctx)
	if err != nil {
		c.recordSync(err)
		return fmt.Errorf("fetch parameters: %w", err)
	}
	if c.schedule.Apply(p, c.now()) {
		log.Printf("planter: schedule updated: hours %v, duration %ds", p.WaterTimes, p.WaterDuration)
	}

	report := messages.StatusReport{
		ChipTemp:             c.chipTemp(),
		WaterDurationConfirm: p.WaterDuration,
		WaterTimesConfirm:    p.WaterTimes,
	}
	if err := c.deps.Remote.PatchStatus(ctx, report); err != nil {
		c.recordSync(err)
		return fmt.Errorf("confirm parameters: %w", err)
	}
	c.recordSync(nil)
	return nil
}

func (c *Controller) chipTemp() float64 {
	if c.deps.Thermometer == nil {
		return chipTempUnknown
	}
	t, err := c.deps.Thermometer.Celsius()
	if err != nil {
		log.Printf("planter: chip temperature: %v", err)
		return chipTempUnknown
	}
	c.deps.Metrics.setChipTemp(t)
	return t
}

// ConfigMessage is one delivery on a config topic.
type ConfigMessage struct {
	Topic     string
	ID        uint16 // MQTT packet id
	Duplicate bool   // set by the broker on QoS1 redelivery
	Payload   []byte
}

// HandleConfigMessage applies a schedule pushed on the config topic. The
// payload uses the same layout as the remote parameters table. A redelivery
// of a packet already handled is ignored; a new push is always applied, even
// when it repeats an earlier payload. When the remote client can store
// parameters the new values are written back so the next sync does not
// revert them.
func (c *Controller) HandleConfigMessage(ctx context.Context, m ConfigMessage) error {
	key := dedup.MessageKey(m.Topic, m.ID)
	if m.Duplicate && m.ID != 0 {
		if !c.deduper.ShouldProcess(key) {
			return nil
		}
	} else if m.ID != 0 {
		c.deduper.Mark(key)
	}
	topic := m.Topic
	p, err := remote.ParseParams(m.Payload)
	if err != nil {
		return fmt.Errorf("config from %s: %w", topic, err)
	}
	if !c.schedule.Apply(p, c.now()) {
		return nil
	}
	log.Printf("planter: schedule set from %s: hours %v, duration %ds", topic, p.WaterTimes, p.WaterDuration)

	w, ok := c.deps.Remote.(ParamsWriter)
	if !ok {
		return nil
	}
	if err := w.PatchParams(ctx, p); err != nil {
		return fmt.Errorf("store pushed config: %w", err)
	}
	return nil
}
