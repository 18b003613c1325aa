// Package calibration derives the dry and wet reference means of soil sensors.
//
// The operator places every sensor in dry soil, presses the button, waits for
// the samples to be taken, then moves the sensors to saturated soil and presses
// the button again.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
)

const (
	DefaultSamples  = 5
	DefaultInterval = 500 * time.Millisecond
)

// Phase identifies which reference is being sampled.
type Phase string

const (
	PhaseDry Phase = "dry"
	PhaseWet Phase = "wet"
)

// Reader reads one raw ADC value from a channel.
type Reader interface {
	ReadRaw(ctx context.Context, channel int) (int, error)
}

// Trigger blocks until the operator confirms the sensors are in place.
type Trigger interface {
	WaitAsserted(ctx context.Context) error
}

type Options struct {
	Samples  int           // per sensor and phase, at least 1
	Interval time.Duration // delay between two samples of the same sensor
	// TriggerTimeout bounds each wait for the operator. Zero waits forever.
	TriggerTimeout time.Duration
	// OnPhase is invoked right before waiting for the operator.
	OnPhase func(Phase)
}

func (o Options) withDefaults() Options {
	if o.Samples <= 0 {
		o.Samples = DefaultSamples
	}
	if o.Interval < 0 {
		o.Interval = 0
	}
	return o
}

// Calibrate runs the dry phase then the wet phase over all sensors. A sensor
// whose reads fail keeps its previous references; the others are still
// calibrated. Failures are joined in the returned error.
func Calibrate(ctx context.Context, sensors []*entities.Sensor, r Reader, trig Trigger, opts Options) error {
	opts = opts.withDefaults()

	var errs []error
	for _, phase := range []Phase{PhaseDry, PhaseWet} {
		if opts.OnPhase != nil {
			opts.OnPhase(phase)
		}
		log.Printf("calibration: waiting for operator (%s phase)", phase)
		if err := waitTrigger(ctx, trig, opts.TriggerTimeout); err != nil {
			return fmt.Errorf("calibration %s phase: %w", phase, err)
		}

		for _, s := range sensors {
			mean, err := sampleMean(ctx, r, s.Channel, opts)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("calibration: sensor %s %s phase failed: %v", s.Name, phase, err)
				errs = append(errs, fmt.Errorf("sensor %s %s phase: %w", s.Name, phase, err))
				continue
			}
			if phase == PhaseDry {
				s.MeanDry = mean
			} else {
				s.MeanWet = mean
			}
			log.Printf("calibration: sensor %s mean_%s=%.2f", s.Name, phase, mean)
		}
	}

	for _, s := range sensors {
		if !s.Calibrated() {
			log.Printf("calibration: WARN sensor %s is degenerate (dry=%.2f wet=%.2f)", s.Name, s.MeanDry, s.MeanWet)
		}
	}
	return errors.Join(errs...)
}

// Mean is the plain arithmetic mean. No outlier rejection.
func Mean(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, errors.New("mean of empty sample set")
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples)), nil
}

func sampleMean(ctx context.Context, r Reader, channel int, opts Options) (float64, error) {
	samples := make([]float64, 0, opts.Samples)
	for i := range opts.Samples {
		if i > 0 {
			if err := sleep(ctx, opts.Interval); err != nil {
				return 0, err
			}
		}
		raw, err := r.ReadRaw(ctx, channel)
		if err != nil {
			return 0, fmt.Errorf("sample %d: %w", i+1, err)
		}
		samples = append(samples, float64(raw))
	}
	return Mean(samples)
}

func waitTrigger(ctx context.Context, trig Trigger, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return trig.WaitAsserted(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
