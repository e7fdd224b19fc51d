package config

import (
	"flag"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"codeberg.org/mutker/nvidiamon/internal/errors"
)

const (
	DefaultInterval    = 250 // milliseconds
	DefaultListen      = ":5000"
	DefaultHistorySize = 40
	DefaultRateWindow  = 10 // seconds
	DefaultProvider    = "auto"
	DefaultTelemetryDB = "/var/lib/nvidiamon/telemetry.db"
)

type Config struct {
	Interval       int    // sampling interval in milliseconds
	Listen         string // HTTP listen address
	HistorySize    int    // samples kept per device
	RateWindow     int    // rate-of-change lookback in seconds
	Provider       string // auto, nvml or smi
	BurnMarkers    []string
	ProcessFilters []string
	Telemetry      bool
	TelemetryDB    string
	Debug          bool
	Verbose        bool
}

// Load reads configuration from the config file and command line flags.
// Flags win over file values, file values win over defaults.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()
	config := &Config{}

	fs := flag.NewFlagSet("nvidiamon", flag.ContinueOnError)
	fs.Int("interval", DefaultInterval, "Sampling interval in milliseconds")
	fs.String("listen", DefaultListen, "HTTP listen address")
	fs.String("provider", DefaultProvider, "GPU provider: auto, nvml or smi")
	fs.Bool("telemetry", false, "Enable telemetry persistence")
	fs.String("database", DefaultTelemetryDB, "Path to the telemetry database")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	v := viper.New()
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("historysize", DefaultHistorySize)
	v.SetDefault("ratewindow", DefaultRateWindow)
	v.SetDefault("provider", DefaultProvider)
	v.SetDefault("burnmarkers", []string{"gpu-burn"})
	v.SetDefault("processfilters", []string{"xorg", "shell"})
	v.SetDefault("telemetry", false)
	v.SetDefault("telemetrydb", DefaultTelemetryDB)

	v.SetConfigType("toml")
	if path := os.Getenv("NVIDIAMON_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nvidiamon")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	// Command line flags override config file values
	fs.Visit(func(f *flag.Flag) {
		var value any = f.Value.String()
		if getter, ok := f.Value.(flag.Getter); ok {
			value = getter.Get()
		}
		if f.Name == "database" {
			v.Set("telemetrydb", value)
			return
		}
		v.Set(f.Name, value)
	})

	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else if config.Verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	return config, nil
}

// Validate rejects configuration the aggregation core must never see.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.HistorySize <= 0 {
		return errFactory.WithData(errors.ErrInvalidHistorySize, c.HistorySize)
	}
	if c.RateWindow <= 0 {
		return errFactory.WithData(errors.ErrInvalidRateWindow, c.RateWindow)
	}
	if len(c.BurnMarkers) == 0 {
		return errFactory.New(errors.ErrMissingMarkers)
	}

	switch strings.ToLower(c.Provider) {
	case "auto", "nvml", "smi":
	default:
		return errFactory.WithData(errors.ErrInvalidProvider, c.Provider)
	}

	return nil
}
