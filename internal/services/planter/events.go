package planter

import (
	"log"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_planter/internal/valve"
	"github.com/LeonardoBeccarini/smart_planter/pkg/broker"
)

func (c *Controller) topic(levels ...string) string {
	return broker.Topic(append([]string{c.prefix, c.name}, levels...)...)
}

// ConfigTopics are the topics a schedule can be pushed on: the planter's own
// and the one shared by every planter.
func (c *Controller) ConfigTopics() []string {
	return []string{
		c.topic("config"),
		broker.Topic(c.prefix, "all", "config"),
	}
}

// onTransition records every valve change and publishes it as a retained state.
func (c *Controller) onTransition(t valve.Transition) {
	c.deps.Metrics.transition(t.Valve.Name, string(t.Position))
	if c.deps.Publisher == nil {
		return
	}
	ev := messages.ValveStateChanged{
		Planter:   c.name,
		Valve:     t.Valve.Name,
		NewState:  t.Position,
		Source:    t.Source,
		Timestamp: t.At,
	}
	if err := c.deps.Publisher.PublishJSON(c.topic("valve", t.Valve.Name), ev); err != nil {
		log.Printf("planter: publish valve state: %v", err)
	}
}
