// Package gpio provides access to the HC-SR04 trigger/echo lines and the
// occupancy indicator LED, with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation simulates echo pulses against a SimClock so
// ranging can be tested without hardware.
package gpio

// Pins drives the ranging sensor and the indicator LED.
type Pins interface {
	// SetTrigger drives the sensor trigger line.
	SetTrigger(high bool) error

	// Echo reads the sensor echo line. true = active (high).
	Echo() (bool, error)

	// SetIndicator drives the occupancy LED. A no-op when no LED is configured.
	SetIndicator(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Line definitions (BCM numbering). These match wiringPi pins 0, 4 and 5
// on the original wiring.
const (
	DefaultChip       = "gpiochip0"
	DefaultPinLED     = 17
	DefaultPinTrigger = 23
	DefaultPinEcho    = 24
)

// Config selects the chip and line offsets. A negative LED disables the indicator.
type Config struct {
	Chip    string
	Trigger int
	Echo    int
	LED     int
}
