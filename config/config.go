// Package config 汇总整条流水线的配置, 各组件在构造时接收它而不是读全局变量.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/jing2uo/spt2db/model"
)

const EnvPrefix = "SPT2DB_"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, layout := range []string{"15:04", "15:04:05"} {
			if _, err := time.Parse(layout, s); err == nil {
				return true
			}
		}
		return false
	})
	return v
}

// Duration 让 yaml 里可以写 "3h20m"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

type Window struct {
	Start string `yaml:"start" validate:"clock"`
	End   string `yaml:"end" validate:"clock"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format" validate:"omitempty,oneof=console json"`
	Output     string `yaml:"output"` // stdout | stderr | 文件路径
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Config struct {
	RawRoot      string         `yaml:"raw_root" validate:"required"`
	ArtifactRoot string         `yaml:"artifact_root" validate:"required"`
	MetaDB       model.DBConfig `yaml:"meta_db"`
	KlineDB      model.DBConfig `yaml:"kline_db"`

	Delimiter string `yaml:"delimiter" validate:"len=1"`
	Encoding  string `yaml:"encoding"`

	// 时间戳合理范围 (开区间)
	MinDate string `yaml:"min_date"`
	MaxDate string `yaml:"max_date"`

	MinRows    int `yaml:"min_rows" validate:"gt=0"`
	MaxDupTime int `yaml:"max_dup_time" validate:"gte=0"`

	TradingDayShift Duration          `yaml:"trading_day_shift"`
	Sessions        map[string]Window `yaml:"sessions" validate:"dive"`
	SkipMarkets     []int             `yaml:"skip_markets"`

	ArtifactVersion int `yaml:"artifact_version"`
	Concurrency     int `yaml:"concurrency"`

	KlineLevels []string `yaml:"kline_levels" validate:"dive,required"`
	KlineOffset Duration `yaml:"kline_offset"`
	BatchSize   int      `yaml:"batch_size" validate:"gt=0"`

	ClaimTTL Duration    `yaml:"claim_ttl"`
	Redis    RedisConfig `yaml:"redis"`

	Log         LogConfig `yaml:"log"`
	MetricsFile string    `yaml:"metrics_file"`
}

// Default 文档化的默认值
func Default() *Config {
	return &Config{
		RawRoot:      "./raw",
		ArtifactRoot: "./ticks",
		MetaDB:       model.DBConfig{Type: model.DBTypeDuckDB, DSN: "spt2db.duckdb"},
		KlineDB:      model.DBConfig{Type: model.DBTypeDuckDB, DSN: ""},
		Delimiter:    ",",
		Encoding:     "utf-8",
		MinDate:      "2000-01-01",
		MaxDate:      "2050-01-01",
		MinRows:      200,
		MaxDupTime:   100,

		TradingDayShift: Duration{3*time.Hour + 20*time.Minute},
		Sessions: map[string]Window{
			string(model.SessionFam):   {Start: "09:00", End: "10:15"},
			string(model.SessionBam):   {Start: "10:30", End: "11:30"},
			string(model.SessionPm):    {Start: "13:00", End: "15:01"},
			string(model.SessionNight): {Start: "21:00", End: "03:00"},
		},
		SkipMarkets:     []int{int(model.MarketCFFEX)},
		ArtifactVersion: 2,
		Concurrency:     runtime.NumCPU(),
		KlineLevels:     []string{"3min", "5min", "15min", "30min", "1H", "2H", "1d"},
		KlineOffset:     Duration{6 * time.Hour},
		BatchSize:       1000,
		ClaimTTL:        Duration{30 * time.Minute},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
		},
	}
}

// Load 默认值 <- yaml 文件 <- .env / 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// .env 不存在不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides 只列允许从环境变量覆盖的项, 指针为 nil 表示未设置
type envOverrides struct {
	RawRoot       *string `envconfig:"RAW_ROOT"`
	ArtifactRoot  *string `envconfig:"ARTIFACT_ROOT"`
	MetaDSN       *string `envconfig:"META_DSN"`
	KlineDSN      *string `envconfig:"KLINE_DSN"`
	KlineType     *string `envconfig:"KLINE_TYPE"`
	Encoding      *string `envconfig:"ENCODING"`
	LogLevel      *string `envconfig:"LOG_LEVEL"`
	MetricsFile   *string `envconfig:"METRICS_FILE"`
	RedisAddr     *string `envconfig:"REDIS_ADDR"`
	RedisPassword *string `envconfig:"REDIS_PASSWORD"`
	Concurrency   *int    `envconfig:"CONCURRENCY"`
	BatchSize     *int    `envconfig:"BATCH_SIZE"`
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(strings.TrimSuffix(EnvPrefix, "_"), &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.RawRoot, env.RawRoot)
	set(&c.ArtifactRoot, env.ArtifactRoot)
	set(&c.MetaDB.DSN, env.MetaDSN)
	set(&c.KlineDB.DSN, env.KlineDSN)
	set(&c.Encoding, env.Encoding)
	set(&c.Log.Level, env.LogLevel)
	set(&c.MetricsFile, env.MetricsFile)
	set(&c.Redis.Addr, env.RedisAddr)
	set(&c.Redis.Password, env.RedisPassword)

	if env.KlineType != nil && *env.KlineType != "" {
		c.KlineDB.Type = model.DBType(strings.ToLower(*env.KlineType))
	}
	if env.Concurrency != nil {
		c.Concurrency = *env.Concurrency
	}
	if env.BatchSize != nil {
		c.BatchSize = *env.BatchSize
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: failed on %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, _, err := c.DateRange(); err != nil {
		return err
	}
	for _, name := range model.Sessions {
		if _, ok := c.Sessions[string(name)]; !ok {
			return fmt.Errorf("session window %s is not configured", name)
		}
	}
	return nil
}

// DateRange 解析 min_date / max_date
func (c *Config) DateRange() (time.Time, time.Time, error) {
	lo, err := time.ParseInLocation("2006-01-02", c.MinDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid min_date %q: %w", c.MinDate, err)
	}
	hi, err := time.ParseInLocation("2006-01-02", c.MaxDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid max_date %q: %w", c.MaxDate, err)
	}
	if !lo.Before(hi) {
		return time.Time{}, time.Time{}, fmt.Errorf("min_date %s must be before max_date %s", c.MinDate, c.MaxDate)
	}
	return lo, hi, nil
}

func (c *Config) SkipMarket(m model.Market) bool {
	for _, s := range c.SkipMarkets {
		if s == int(m) {
			return true
		}
	}
	return false
}
