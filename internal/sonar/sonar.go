// Package sonar measures distance with an HC-SR04 style ultrasonic ranger:
// a trigger pulse starts a ping and the width of the echo pulse is the
// round-trip time of flight.
package sonar

import (
	"math"
	"time"

	"github.com/sweeney/treadmill-sensor/internal/logic"
)

// SpeedOfSoundCMPerUS is the speed of sound (340 m/s) in centimetres per microsecond.
const SpeedOfSoundCMPerUS = 0.034

// TriggerPulse is how long the trigger line is held high to start a ping.
const TriggerPulse = 10 * time.Microsecond

// Defaults for the two timeout budgets.
const (
	DefaultStartTimeout = 30 * time.Millisecond
	DefaultMaxRangeCM   = 220.0
)

// Clock is a monotonic time source. github.com/benbjohnson/clock satisfies it.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
}

// Pins is the part of the GPIO driver the ranger needs.
type Pins interface {
	SetTrigger(high bool) error
	Echo() (bool, error)
}

// Ranger performs one ranging measurement.
type Ranger interface {
	Measure() logic.Measurement
}

// Config holds the timeout budgets for a measurement.
type Config struct {
	// StartTimeout bounds the wait for the echo line to rise.
	StartTimeout time.Duration
	// WidthTimeout bounds the echo pulse width.
	WidthTimeout time.Duration
}

// DefaultConfig returns the default budgets.
func DefaultConfig() Config {
	return Config{
		StartTimeout: DefaultStartTimeout,
		WidthTimeout: WidthForRange(DefaultMaxRangeCM),
	}
}

// WidthForRange returns the echo width of an object at rangeCM.
func WidthForRange(rangeCM float64) time.Duration {
	us := rangeCM * 2 / SpeedOfSoundCMPerUS
	return time.Duration(math.Round(us * float64(time.Microsecond)))
}

// DistanceCM converts an echo pulse width into a one-way distance.
func DistanceCM(width time.Duration) float64 {
	us := float64(width) / float64(time.Microsecond)
	return us * SpeedOfSoundCMPerUS / 2
}

// Finder is a Ranger driving real or fake pins.
// Not safe for concurrent use.
type Finder struct {
	pins  Pins
	clock Clock
	cfg   Config
}

// New creates a Finder. Zero budgets in cfg take the defaults.
func New(pins Pins, clk Clock, cfg Config) *Finder {
	def := DefaultConfig()
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = def.StartTimeout
	}
	if cfg.WidthTimeout <= 0 {
		cfg.WidthTimeout = def.WidthTimeout
	}
	return &Finder{pins: pins, clock: clk, cfg: cfg}
}

// Config returns the budgets in use.
func (f *Finder) Config() Config {
	return f.cfg
}

// Measure fires one ping and times the echo. It never fails: a missing or
// unterminated echo, or a GPIO error, yields an invalid measurement with
// the matching fault. Measure blocks for at most
// TriggerPulse + StartTimeout + WidthTimeout plus one read.
func (f *Finder) Measure() logic.Measurement {
	if err := f.pins.SetTrigger(true); err != nil {
		return gpioFault(err)
	}
	f.clock.Sleep(TriggerPulse)
	if err := f.pins.SetTrigger(false); err != nil {
		return gpioFault(err)
	}

	start := f.clock.Now()
	for {
		high, err := f.pins.Echo()
		if err != nil {
			return gpioFault(err)
		}
		if high {
			break
		}
		if f.clock.Since(start) > f.cfg.StartTimeout {
			return logic.NoReading(logic.FaultNoEchoStart)
		}
	}

	rise := f.clock.Now()
	for {
		high, err := f.pins.Echo()
		if err != nil {
			return gpioFault(err)
		}
		if !high {
			break
		}
		if f.clock.Since(rise) > f.cfg.WidthTimeout {
			return logic.NoReading(logic.FaultNoEchoEnd)
		}
	}

	return logic.Distance(DistanceCM(f.clock.Since(rise)))
}

func gpioFault(err error) logic.Measurement {
	m := logic.NoReading(logic.FaultGPIO)
	m.Err = err
	return m
}
