// Package model holds the error kinds shared by every layer and aliases for
// the domain types services pass around.
package model

import (
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
)

type (
	Sensor         = entities.Sensor
	Valve          = entities.Valve
	ValvePosition  = entities.ValvePosition
	WateringResult = messages.WateringResult
)

const ValveClosed = entities.ValveClosed
