package planter

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/LeonardoBeccarini/smart_planter/internal/valve"
)

// WaterIfDue runs one watering cycle per valve, one valve after the other,
// when the hour of now matches a configured watering hour. A failing valve
// does not prevent the others from being watered.
func (c *Controller) WaterIfDue(ctx context.Context, now time.Time) error {
	snap := c.schedule.Snapshot()
	hour := now.In(c.loc).Hour()
	if !snap.Due(hour) {
		return nil
	}
	d := snap.Duration()
	if d <= 0 {
		log.Printf("planter: hour %d is scheduled but duration is 0, nothing to do", hour)
		return nil
	}

	log.Printf("planter: watering %d valve(s) for %s", len(c.valves), d)
	var errs []error
	for _, v := range c.valves {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := c.deps.Valves.Water(ctx, v, d, valve.SourceSchedule); err != nil {
			errs = append(errs, err)
			continue
		}
		c.deps.Metrics.cycle(valve.SourceSchedule)
	}
	return errors.Join(errs...)
}
