package gpio

import (
	"errors"
	"math"
	"time"
)

// SimClock is a manually advanced clock shared by FakePins and the code
// under test. It satisfies the monotonic clock the ranging code expects.
type SimClock struct {
	now time.Time
}

// NewSimClock creates a SimClock starting at start.
func NewSimClock(start time.Time) *SimClock {
	return &SimClock{now: start}
}

// Now returns the simulated time.
func (c *SimClock) Now() time.Time { return c.now }

// Since returns the simulated time elapsed since t.
func (c *SimClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }

// Sleep advances the clock by d without blocking.
func (c *SimClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// Advance moves the clock forward by d.
func (c *SimClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// Echo describes the echo pulse the simulated sensor returns for one trigger.
// Times are measured from the trigger's falling edge.
type Echo struct {
	Delay time.Duration // echo line rises after Delay
	Width time.Duration // and stays high for Width
	Never bool          // echo never rises
	Stuck bool          // echo rises and never falls
}

// echoLeadIn is the delay before the simulated echo rises.
const echoLeadIn = 50 * time.Microsecond

// EchoFor returns the pulse an object at distanceCM would produce,
// rounded to whole microseconds.
func EchoFor(distanceCM float64) Echo {
	us := math.Round(distanceCM * 2 / 0.034)
	return Echo{Delay: echoLeadIn, Width: time.Duration(us) * time.Microsecond}
}

// NoEcho returns a pulse that never starts.
func NoEcho() Echo { return Echo{Never: true} }

// StuckEcho returns a pulse that starts and never ends.
func StuckEcho() Echo { return Echo{Delay: echoLeadIn, Stuck: true} }

// FakePins is a test double that simulates an HC-SR04 against a SimClock.
// Each falling edge on the trigger starts the next scripted Echo; once
// Echoes are exhausted the last one repeats.
// Every Echo() read advances the clock by Step, standing in for the time
// a real GPIO read takes.
type FakePins struct {
	Clock *SimClock
	Step  time.Duration

	// Echoes contains the scripted pulses.
	Echoes []Echo
	index  int

	active  *Echo
	fellAt  time.Time
	roseAt  time.Time
	trigger bool

	// TriggerPulses records the width of every completed trigger pulse.
	TriggerPulses []time.Duration

	// EchoReads counts calls to Echo().
	EchoReads int

	// Indicator is the last value written to the LED.
	Indicator bool
	// IndicatorWrites counts SetIndicator calls.
	IndicatorWrites int

	// Errors, if set, are returned by the matching method.
	TriggerError   error
	EchoError      error
	IndicatorError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePins creates FakePins stepping clk by one microsecond per read.
func NewFakePins(clk *SimClock, echoes ...Echo) *FakePins {
	return &FakePins{Clock: clk, Step: time.Microsecond, Echoes: echoes}
}

// SetTrigger records the level and starts an echo on the falling edge.
func (f *FakePins) SetTrigger(high bool) error {
	if f.TriggerError != nil {
		return f.TriggerError
	}

	now := f.Clock.Now()
	switch {
	case high && !f.trigger:
		f.roseAt = now
	case !high && f.trigger:
		f.TriggerPulses = append(f.TriggerPulses, now.Sub(f.roseAt))
		f.fellAt = now
		f.active = f.next()
	}
	f.trigger = high
	return nil
}

func (f *FakePins) next() *Echo {
	if len(f.Echoes) == 0 {
		return nil
	}
	e := f.Echoes[f.index]
	if f.index < len(f.Echoes)-1 {
		f.index++
	}
	return &e
}

// Echo advances the clock by Step and returns the simulated echo level.
func (f *FakePins) Echo() (bool, error) {
	f.EchoReads++
	if f.EchoError != nil {
		return false, f.EchoError
	}
	if f.Clock == nil {
		return false, errors.New("fake pins: no clock configured")
	}

	f.Clock.Advance(f.Step)
	if f.active == nil || f.active.Never {
		return false, nil
	}

	elapsed := f.Clock.Now().Sub(f.fellAt)
	if elapsed < f.active.Delay {
		return false, nil
	}
	if f.active.Stuck {
		return true, nil
	}
	return elapsed < f.active.Delay+f.active.Width, nil
}

// SetIndicator records the LED level.
func (f *FakePins) SetIndicator(on bool) error {
	if f.IndicatorError != nil {
		return f.IndicatorError
	}
	f.Indicator = on
	f.IndicatorWrites++
	return nil
}

// Close marks the pins as closed.
func (f *FakePins) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the script to the first echo.
func (f *FakePins) Reset() {
	f.index = 0
	f.active = nil
	f.trigger = false
	f.TriggerPulses = nil
	f.EchoReads = 0
	f.Closed = false
}
