package model

import "errors"

var (
	// ErrHardwareConfig is returned when a pin or channel cannot be set up or driven.
	ErrHardwareConfig = errors.New("hardware configuration error")
	// ErrCalibrationDegenerate is returned when a sensor's dry and wet references coincide.
	ErrCalibrationDegenerate = errors.New("calibration degenerate")
	// ErrConnectivity marks a failed reachability check. Never fatal.
	ErrConnectivity = errors.New("connectivity error")
	// ErrTransport wraps HTTP failures talking to the remote database.
	ErrTransport = errors.New("transport error")
	// ErrParse is returned for malformed or incomplete remote payloads.
	ErrParse = errors.New("parse error")
)
