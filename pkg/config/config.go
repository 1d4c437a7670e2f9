package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"VolScreen/pkg/util"
)

// Budget configures a provider's token budget for the rate controller.
type Budget struct {
	Capacity     float64 `yaml:"capacity" default:"30" validate:"gt=0"`
	RefillPerSec float64 `yaml:"refill_per_sec" default:"1" validate:"gt=0"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`

	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`

	// Symbols is the universe scanned on every fetch pass.
	Symbols []string `yaml:"symbols" validate:"min=1"`

	// MetricSetVersion is baked into every cache key; bumping it orphans
	// entries written with an older record shape.
	MetricSetVersion string `yaml:"metric_set_version" default:"v1"`

	// HVFloor is the historical volatility floor used downstream when
	// dividing by near-zero volatility. Passed through verbatim.
	HVFloor float64 `yaml:"hv_floor" default:"1.0" validate:"gt=0"`

	Orchestrator struct {
		Concurrency   int     `yaml:"concurrency" default:"16" validate:"gte=1,lte=128"`
		FailFastRatio float64 `yaml:"fail_fast_ratio" default:"0.2" validate:"gte=0,lte=1"`
		// RefreshInterval of 0 runs a single fetch pass and exits.
		RefreshInterval time.Duration `yaml:"refresh_interval"`
	} `yaml:"orchestrator"`

	Providers struct {
		Metrics struct {
			BaseURL string        `yaml:"base_url" validate:"required,url"`
			APIKey  string        `yaml:"api_key"`
			Timeout time.Duration `yaml:"timeout" default:"15s"`
			Budget  Budget        `yaml:"budget"`
		} `yaml:"metrics"`
		Yahoo struct {
			QuoteSummaryURL string        `yaml:"quote_summary_url" default:"https://query1.finance.yahoo.com/v10/finance/quoteSummary"`
			ReturnsDays     int           `yaml:"returns_days" default:"30" validate:"gte=2,lte=252"`
			Timeout         time.Duration `yaml:"timeout" default:"15s"`
			Budget          Budget        `yaml:"budget"`
		} `yaml:"yahoo"`
	} `yaml:"providers"`

	Stream struct {
		URL        string        `yaml:"url" validate:"required"`
		APIKey     string        `yaml:"api_key"`
		WindowDays int           `yaml:"window_days" default:"90" validate:"gte=20"`
		MinSamples int           `yaml:"min_samples" default:"50" validate:"gte=2"`
		Timeout    time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"stream"`

	Cache struct {
		Backend string `yaml:"backend" default:"bolt" validate:"oneof=bolt redis memory"`
		Path    string `yaml:"path" default:"volscreen-cache.db"`
		Redis   struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"volscreen"`
		} `yaml:"redis"`
		Session struct {
			Open     string `yaml:"open" default:"09:30"`
			Close    string `yaml:"close" default:"16:00"`
			Timezone string `yaml:"timezone" default:"America/New_York"`
		} `yaml:"session"`
	} `yaml:"cache"`

	// Proxies maps a stream-only symbol to the listed instrument whose
	// price stands in for it. Records built from such a pair carry a
	// cross_asset_proxy warning.
	Proxies map[string]string `yaml:"proxies"`

	Export struct {
		Backend string `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
		Kafka   struct {
			Brokers      []string      `yaml:"brokers"`
			Topic        string        `yaml:"topic" default:"volscreen.records"`
			Compression  string        `yaml:"compression" default:"gzip"`
			RequiredAcks int           `yaml:"required_acks" default:"-1"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"kafka"`
		ClickHouse struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"9000"`
			Database string `yaml:"database" default:"volscreen"`
			User     string `yaml:"user" default:"default"`
			Password string `yaml:"password"`
			Table    string `yaml:"table" default:"market_records"`
		} `yaml:"clickhouse"`
	} `yaml:"export"`

	Server struct {
		Enabled         bool          `yaml:"enabled"`
		Host            string        `yaml:"host" default:"127.0.0.1"`
		Port            int           `yaml:"port" default:"8317"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
}

// Load reads and parses a YAML configuration file, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML (plus an optional .env file) and
// overrides selected fields with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("VOLSCREEN_METRICS_API_KEY"); v != "" {
		c.Providers.Metrics.APIKey = v
	}
	if v := os.Getenv("VOLSCREEN_STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("VOLSCREEN_SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("VOLSCREEN_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("VOLSCREEN_EXPORT_BACKEND"); v != "" {
		c.Export.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Export.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Orchestrator.Concurrency = util.ParseIntDefault(
		os.Getenv("VOLSCREEN_CONCURRENCY"), c.Orchestrator.Concurrency)

	if err := c.finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) finalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Validate checks structural constraints plus the cross-field rules the
// struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Export.Backend == "kafka" && len(c.Export.Kafka.Brokers) == 0 {
		return fmt.Errorf("export.kafka.brokers required when export.backend is kafka")
	}
	if c.Stream.MinSamples > c.Stream.WindowDays {
		return fmt.Errorf("stream.min_samples (%d) cannot exceed stream.window_days (%d)",
			c.Stream.MinSamples, c.Stream.WindowDays)
	}
	return nil
}
