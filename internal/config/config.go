package config

import (
	"io"
	"os"
	"time"

	"github.com/ahmedkamals/geostream/internal/errors"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the geostream configuration file.
	Config struct {
		Log      Log      `yaml:"log"`
		Pool     Pool     `yaml:"pool"`
		Services Services `yaml:"services"`
	}

	// Log configures the zap logger.
	Log struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	}

	// Pool configures request defaults.
	Pool struct {
		Timeout     time.Duration `yaml:"timeout"`
		TimeoutMode string        `yaml:"timeout_mode"`
	}

	// Services configures the HTTP producers.
	Services struct {
		IPAPI     IPAPI     `yaml:"ipapi"`
		Nominatim Nominatim `yaml:"nominatim"`
	}

	// IPAPI configures the IP lookup producer.
	IPAPI struct {
		Endpoint          string        `yaml:"endpoint"`
		APIKey            string        `yaml:"api_key"`
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerMinute int           `yaml:"requests_per_minute"`
		MaxRetries        uint64        `yaml:"max_retries"`
	}

	// Nominatim configures the geocoding producer.
	Nominatim struct {
		Endpoint   string        `yaml:"endpoint"`
		UserAgent  string        `yaml:"user_agent"`
		Language   string        `yaml:"language"`
		Limit      int           `yaml:"limit"`
		Timeout    time.Duration `yaml:"timeout"`
		MaxRetries uint64        `yaml:"max_retries"`
	}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: Log{
			Level:    "info",
			Encoding: "console",
		},
		Pool: Pool{
			Timeout:     10 * time.Second,
			TimeoutMode: "immediate",
		},
		Services: Services{
			IPAPI: IPAPI{
				Endpoint:          "http://ip-api.com/json",
				Timeout:           5 * time.Second,
				RequestsPerMinute: 45,
				MaxRetries:        2,
			},
			Nominatim: Nominatim{
				Endpoint:   "https://nominatim.openstreetmap.org",
				UserAgent:  "geostream",
				Language:   "en",
				Limit:      5,
				Timeout:    5 * time.Second,
				MaxRetries: 2,
			},
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	const op errors.Operation = "config.Load"

	if path == "" {
		return Default(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.E(op, errors.NotFound, err)
	}
	defer file.Close()

	return Decode(file)
}

// Decode reads YAML from r over the defaults and validates the result.
func Decode(r io.Reader) (*Config, error) {
	const op errors.Operation = "config.Decode"

	c := Default()
	if err := yaml.NewDecoder(r).Decode(c); err != nil && err != io.EOF {
		return nil, errors.E(op, errors.Parsing, err)
	}

	if err := c.Validate(); err != nil {
		return nil, errors.E(op, err)
	}

	return c, nil
}

// Validate rejects negative durations, empty endpoints and unknown enumerations.
func (c *Config) Validate() error {
	const op errors.Operation = "Config.Validate"

	switch c.Log.Encoding {
	case "json", "console":
	default:
		return errors.E(op, errors.Invalid, errors.Errorf("log.encoding %q", c.Log.Encoding))
	}

	switch c.Pool.TimeoutMode {
	case "immediate", "delayed":
	default:
		return errors.E(op, errors.Invalid, errors.Errorf("pool.timeout_mode %q", c.Pool.TimeoutMode))
	}

	durations := map[string]time.Duration{
		"pool.timeout":               c.Pool.Timeout,
		"services.ipapi.timeout":     c.Services.IPAPI.Timeout,
		"services.nominatim.timeout": c.Services.Nominatim.Timeout,
	}
	for name, duration := range durations {
		if duration < 0 {
			return errors.E(op, errors.Invalid, errors.Errorf("%s is negative", name))
		}
	}

	if c.Services.IPAPI.Endpoint == "" {
		return errors.E(op, errors.Invalid, "services.ipapi.endpoint is empty")
	}

	if c.Services.Nominatim.Endpoint == "" {
		return errors.E(op, errors.Invalid, "services.nominatim.endpoint is empty")
	}

	if c.Services.IPAPI.RequestsPerMinute < 0 || c.Services.Nominatim.Limit < 0 {
		return errors.E(op, errors.Invalid, "rates and limits must not be negative")
	}

	return nil
}
