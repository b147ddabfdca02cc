// Package config loads daemon settings from TREADMILL_* environment
// variables and command-line flags. Flags override the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/treadmill-sensor/internal/gpio"
	"github.com/sweeney/treadmill-sensor/internal/influx"
	"github.com/sweeney/treadmill-sensor/internal/logic"
	"github.com/sweeney/treadmill-sensor/internal/sonar"
)

// Off disables an optional sink when passed as its address.
const Off = "off"

// Config holds every tunable of the daemon.
type Config struct {
	Interval      time.Duration `env:"TREADMILL_INTERVAL" envDefault:"1s"`
	Confirmations int           `env:"TREADMILL_CONFIRMATIONS" envDefault:"6"`
	Heartbeat     time.Duration `env:"TREADMILL_HEARTBEAT" envDefault:"15m"`

	Chip       string `env:"TREADMILL_GPIO_CHIP" envDefault:"gpiochip0"`
	PinTrigger int    `env:"TREADMILL_PIN_TRIGGER" envDefault:"23"`
	PinEcho    int    `env:"TREADMILL_PIN_ECHO" envDefault:"24"`
	PinLED     int    `env:"TREADMILL_PIN_LED" envDefault:"17"`

	StartTimeout time.Duration `env:"TREADMILL_START_TIMEOUT" envDefault:"30ms"`
	MaxRangeCM   float64       `env:"TREADMILL_MAX_RANGE_CM" envDefault:"220"`

	InfluxURL       string `env:"TREADMILL_INFLUX_URL" envDefault:"http://bigpi3:8086"`
	InfluxDatabase  string `env:"TREADMILL_INFLUX_DATABASE" envDefault:"test_db"`
	InfluxRetention string `env:"TREADMILL_INFLUX_RETENTION"`
	InfluxUsername  string `env:"TREADMILL_INFLUX_USERNAME"`
	InfluxPassword  string `env:"TREADMILL_INFLUX_PASSWORD"`
	InfluxOrg       string `env:"TREADMILL_INFLUX_ORG"`
	RecordOccupied  bool   `env:"TREADMILL_RECORD_OCCUPIED"`

	Broker string `env:"TREADMILL_BROKER" envDefault:"tcp://192.168.1.200:1883"`

	DBPath   string `env:"TREADMILL_DB" envDefault:"/var/lib/treadmill-sensor/events.db"`
	HTTPAddr string `env:"TREADMILL_HTTP" envDefault:":80"`

	LogLevel string `env:"TREADMILL_LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"TREADMILL_LOG_JSON"`

	MeasureOnce bool
}

// Load reads the environment, then parses args (without the program name)
// on top of it.
func Load(args []string, output io.Writer) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("treadmill-sensor", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	cfg.register(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) register(fs *flag.FlagSet) {
	fs.DurationVar(&c.Interval, "interval", c.Interval, "Sampling interval")
	fs.IntVar(&c.Confirmations, "confirmations", c.Confirmations, "Consecutive disagreeing samples needed to change state")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "Heartbeat interval (0 to disable)")

	fs.StringVar(&c.Chip, "chip", c.Chip, "GPIO chip")
	fs.IntVar(&c.PinTrigger, "pin-trigger", c.PinTrigger, "BCM pin number for the sonar trigger")
	fs.IntVar(&c.PinEcho, "pin-echo", c.PinEcho, "BCM pin number for the sonar echo")
	fs.IntVar(&c.PinLED, "pin-led", c.PinLED, "BCM pin number for the indicator LED (-1 to disable)")

	fs.DurationVar(&c.StartTimeout, "start-timeout", c.StartTimeout, "Maximum wait for the echo to start")
	fs.Float64Var(&c.MaxRangeCM, "max-range", c.MaxRangeCM, "Maximum measurable distance in cm (bounds the echo width)")

	fs.StringVar(&c.InfluxURL, "influx", c.InfluxURL, `InfluxDB URL ("off" disables)`)
	fs.StringVar(&c.InfluxDatabase, "influx-db", c.InfluxDatabase, "InfluxDB database")
	fs.StringVar(&c.InfluxRetention, "influx-rp", c.InfluxRetention, "InfluxDB retention policy (empty for default)")
	fs.StringVar(&c.InfluxUsername, "influx-user", c.InfluxUsername, "InfluxDB username")
	fs.StringVar(&c.InfluxPassword, "influx-password", c.InfluxPassword, "InfluxDB password")
	fs.StringVar(&c.InfluxOrg, "influx-org", c.InfluxOrg, "InfluxDB organisation (2.x only)")
	fs.BoolVar(&c.RecordOccupied, "record-occupied", c.RecordOccupied, "Write a distance point on every occupied tick")

	fs.StringVar(&c.Broker, "broker", c.Broker, `MQTT broker address ("off" disables)`)
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite event log path (empty to disable)")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP status address (empty to disable)")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.BoolVar(&c.LogJSON, "log-json", c.LogJSON, "Log as JSON")
	fs.BoolVar(&c.MeasureOnce, "measure-once", false, "Take one measurement, print it and exit")
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var err error
	if c.Interval <= 0 {
		err = multierr.Append(err, fmt.Errorf("interval must be positive, got %v", c.Interval))
	}
	if c.Confirmations < 1 {
		err = multierr.Append(err, fmt.Errorf("confirmations must be at least 1, got %d", c.Confirmations))
	}
	if c.Heartbeat < 0 {
		err = multierr.Append(err, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.Chip == "" {
		err = multierr.Append(err, errors.New("gpio chip must be set"))
	}
	if c.PinTrigger < 0 || c.PinEcho < 0 {
		err = multierr.Append(err, fmt.Errorf("trigger and echo pins must not be negative, got %d/%d", c.PinTrigger, c.PinEcho))
	}
	if c.PinTrigger == c.PinEcho || c.PinLED == c.PinTrigger || c.PinLED == c.PinEcho {
		err = multierr.Append(err, fmt.Errorf("pins must be distinct: trigger=%d echo=%d led=%d", c.PinTrigger, c.PinEcho, c.PinLED))
	}
	if c.StartTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("start timeout must be positive, got %v", c.StartTimeout))
	}
	if c.MaxRangeCM <= logic.MaxValidCM {
		err = multierr.Append(err, fmt.Errorf("max range must exceed %.0fcm, got %v", logic.MaxValidCM, c.MaxRangeCM))
	}
	if c.InfluxEnabled() {
		if u, perr := url.Parse(c.InfluxURL); perr != nil || u.Host == "" {
			err = multierr.Append(err, fmt.Errorf("invalid influx url %q", c.InfluxURL))
		}
		if c.InfluxDatabase == "" {
			err = multierr.Append(err, errors.New("influx database must be set"))
		}
	}
	if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	return err
}

// InfluxEnabled reports whether telemetry should be written.
func (c Config) InfluxEnabled() bool {
	return c.InfluxURL != "" && c.InfluxURL != Off
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.Broker != "" && c.Broker != Off
}

// GPIO returns the pin configuration.
func (c Config) GPIO() gpio.Config {
	return gpio.Config{
		Chip:    c.Chip,
		Trigger: c.PinTrigger,
		Echo:    c.PinEcho,
		LED:     c.PinLED,
	}
}

// Sonar returns the ranging timeouts.
func (c Config) Sonar() sonar.Config {
	return sonar.Config{
		StartTimeout: c.StartTimeout,
		WidthTimeout: sonar.WidthForRange(c.MaxRangeCM),
	}
}

// Influx returns the client configuration for the given (resolved) URL.
func (c Config) Influx(resolvedURL string) influx.Config {
	return influx.Config{
		URL:    resolvedURL,
		Token:  influx.Token(c.InfluxUsername, c.InfluxPassword),
		Org:    c.InfluxOrg,
		Bucket: influx.Bucket(c.InfluxDatabase, c.InfluxRetention),
	}
}
