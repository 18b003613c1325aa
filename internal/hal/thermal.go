package hal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SysfsThermometer reads a Linux thermal zone, reported in millidegrees.
type SysfsThermometer struct {
	Path string
}

func (t SysfsThermometer) Celsius() (float64, error) {
	b, err := os.ReadFile(t.Path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", t.Path, err)
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", t.Path, err)
	}
	return milli / 1000, nil
}
