package messages

// Unset marks a watering hour that has not been configured yet.
const Unset = -1

// RemoteParams is the watering configuration stored in the remote database.
type RemoteParams struct {
	WaterDuration int    `json:"Water_Duration_Set"` // seconds
	WaterTimes    [2]int `json:"Water_Times_Set"`    // hours 0..23, -1 unset
}

// StatusReport is patched back after every successful sync to confirm what
// the planter is running with.
type StatusReport struct {
	ChipTemp             float64 `json:"Chip_Temp"`
	WaterDurationConfirm int     `json:"Water_Duration_Confirm"`
	WaterTimesConfirm    [2]int  `json:"Water_Times_Confirm"`
}
