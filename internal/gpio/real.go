//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// RealPins drives actual hardware using the Linux GPIO character device.
type RealPins struct {
	chip    *gpiocdev.Chip
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line
	led     *gpiocdev.Line
}

// NewRealPins requests the trigger, echo and (optional) LED lines.
func NewRealPins(cfg Config) (*RealPins, error) {
	chipName := cfg.Chip
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	p := &RealPins{chip: chip}

	// Trigger idles low; the sensor fires on a high pulse.
	p.trigger, err = chip.RequestLine(cfg.Trigger, gpiocdev.AsOutput(0))
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("request trigger pin %d: %w", cfg.Trigger, err)
	}

	p.echo, err = chip.RequestLine(cfg.Echo, gpiocdev.AsInput)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("request echo pin %d: %w", cfg.Echo, err)
	}

	if cfg.LED >= 0 {
		p.led, err = chip.RequestLine(cfg.LED, gpiocdev.AsOutput(0))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request LED pin %d: %w", cfg.LED, err)
		}
	}

	return p, nil
}

// SetTrigger drives the trigger line.
func (p *RealPins) SetTrigger(high bool) error {
	if err := p.trigger.SetValue(level(high)); err != nil {
		return fmt.Errorf("set trigger pin: %w", err)
	}
	return nil
}

// Echo reads the echo line.
func (p *RealPins) Echo() (bool, error) {
	v, err := p.echo.Value()
	if err != nil {
		return false, fmt.Errorf("read echo pin: %w", err)
	}
	return v == 1, nil
}

// SetIndicator drives the LED line, if configured.
func (p *RealPins) SetIndicator(on bool) error {
	if p.led == nil {
		return nil
	}
	if err := p.led.SetValue(level(on)); err != nil {
		return fmt.Errorf("set LED pin: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// Outputs are reconfigured to input with pull-down (matching Pi boot
// defaults) before closing so the lines are left in a clean state.
func (p *RealPins) Close() error {
	var err error
	for _, out := range []struct {
		name string
		line *gpiocdev.Line
	}{{"trigger", p.trigger}, {"LED", p.led}} {
		if out.line == nil {
			continue
		}
		if rerr := out.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure %s pin: %w", out.name, rerr))
		}
		if cerr := out.line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s pin: %w", out.name, cerr))
		}
	}
	if p.echo != nil {
		if cerr := p.echo.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close echo pin: %w", cerr))
		}
	}
	if p.chip != nil {
		if cerr := p.chip.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", cerr))
		}
	}
	return err
}

func level(high bool) int {
	if high {
		return 1
	}
	return 0
}
