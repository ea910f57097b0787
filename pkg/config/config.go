package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"VolCast/pkg/logger"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         logger.Config `yaml:"log"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Sources struct {
		DataDir          string `yaml:"data_dir" default:"data"`
		HistoricalIndex  string `yaml:"historical_index" default:"MASI_cleaned.csv" validate:"required"`
		WeeklyIndex      string `yaml:"weekly_index" default:"weekly_masi_data.csv"`
		Fund             string `yaml:"fund" default:"DIVERSIFIE_ALL.csv" validate:"required"`
		Sheet            string `yaml:"sheet"`
		WeeklyOffsetDays int    `yaml:"weekly_offset_days" default:"2" validate:"gte=0"`
	} `yaml:"sources"`
	Columns struct {
		Date        string            `yaml:"date" default:"Date" validate:"required"`
		IndexValue  string            `yaml:"index_value" default:"weekly_mean" validate:"required"`
		Variation   string            `yaml:"variation" default:"Variation %"`
		Liquidative string            `yaml:"liquidative" default:"Valeur Liquidative" validate:"required"`
		Drop        []string          `yaml:"drop"`
		Performance map[string]string `yaml:"performance"` // horizon key -> header, merged over the built-in headers
	} `yaml:"columns"`
	Outputs struct {
		Dir           string `yaml:"dir" default:"data"`
		CombinedIndex string `yaml:"combined_index" default:"MASI_combined"`
		CleanedFund   string `yaml:"cleaned_fund" default:"attijari_diversifie"`
		Features      string `yaml:"features" default:"final_dataset"`
		Forecast      string `yaml:"forecast" default:"volatility_forecasted_dataset" validate:"required"`
		Format        string `yaml:"format" default:"csv" validate:"oneof=csv parquet json"`
	} `yaml:"outputs"`
	Model struct {
		Backend     string   `yaml:"backend" default:"gbt" validate:"required"`
		Target      string   `yaml:"target" default:"target_vol_2w" validate:"required"`
		Features    []string `yaml:"features"`
		AllFeatures bool     `yaml:"all_features"`
		GBT         struct {
			NEstimators     int     `yaml:"n_estimators" default:"1200" validate:"min=1"`
			LearningRate    float64 `yaml:"learning_rate" default:"0.01" validate:"gt=0,lte=1"`
			MaxDepth        int     `yaml:"max_depth" default:"3" validate:"min=1"`
			MinChildWeight  float64 `yaml:"min_child_weight" default:"5" validate:"gte=0"`
			Subsample       float64 `yaml:"subsample" default:"0.8" validate:"gt=0,lte=1"`
			ColsampleByTree float64 `yaml:"colsample_bytree" default:"1" validate:"gt=0,lte=1"`
			Lambda          float64 `yaml:"lambda" default:"1" validate:"gte=0"`
		} `yaml:"gbt"`
		Forest struct {
			NEstimators    int `yaml:"n_estimators" default:"200" validate:"min=1"`
			MaxDepth       int `yaml:"max_depth" validate:"gte=0"`
			MinSamplesLeaf int `yaml:"min_samples_leaf" default:"1" validate:"min=1"`
			Workers        int `yaml:"workers" validate:"gte=0"`
		} `yaml:"forest"`
		Seed uint64 `yaml:"seed" default:"42"`
	} `yaml:"model"`
	Runner struct {
		DefaultTimeout time.Duration `yaml:"default_timeout" default:"120s"`
		MaxTimeout     time.Duration `yaml:"max_timeout" default:"15m"`
	} `yaml:"runner"`
	Serving struct {
		CacheTTL  time.Duration `yaml:"cache_ttl" default:"10m"`
		CacheSize int           `yaml:"cache_size" default:"32" validate:"min=1"`
		RateLimit struct {
			Requests int           `yaml:"requests" default:"3" validate:"min=1"`
			Window   time.Duration `yaml:"window" default:"1m"`
		} `yaml:"rate_limit"`
	} `yaml:"serving"`
	Schedule struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron" default:"0 7 * * 1"`
	} `yaml:"schedule"`
	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix" default:"volcast"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"volcast"`
		Table            string        `yaml:"table" default:"forecasts"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"volcast.runs"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// Default returns a configuration populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Keys absent from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment lookup.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("VOLCAST_DATA_DIR"); v != "" {
		c.Sources.DataDir = v
		c.Outputs.Dir = v
	}
	if v := getenv("VOLCAST_MODEL_BACKEND"); v != "" {
		c.Model.Backend = v
	}
	if v := getenv("VOLCAST_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Runner.DefaultTimeout <= 0 || c.Runner.DefaultTimeout > c.Runner.MaxTimeout {
		return fmt.Errorf("runner.default_timeout must be in (0, max_timeout]")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return errors.New("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: %w", err)
		}
	}
	return nil
}

// SourcePath resolves an input file name against the data directory.
func (c *Config) SourcePath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Sources.DataDir, name)
}

// OutputPath resolves an artifact base name and appends the configured format
// extension. An empty name disables the artifact and returns "".
func (c *Config) OutputPath(name string) string {
	if name == "" {
		return ""
	}
	if filepath.Ext(name) == "" {
		name += "." + c.Outputs.Format
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Outputs.Dir, name)
}
