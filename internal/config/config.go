package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type DataConfig struct {
	Dir string `mapstructure:"dir"`
	Ext string `mapstructure:"ext"`
}

// RedisConfig switches tile storage to redis when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

type TelemetryConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const envPrefix = "RGEOTILE"

// Load reads defaults, an optional config file and RGEOTILE_* environment variables,
// RGEOTILE_DATA_DIR maps to data.dir. A .env file in the working directory is loaded
// first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.ext", ".json.gz")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "data/")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.Redis.Addr == "" && c.Data.Dir == "" {
		errs = append(errs, "data.dir is required when redis.addr is not set")
	}
	if c.Data.Ext == "" {
		errs = append(errs, "data.ext is required")
	} else if !strings.HasPrefix(c.Data.Ext, ".") {
		errs = append(errs, fmt.Sprintf("data.ext must start with a dot, got %q", c.Data.Ext))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, "redis.db must not be negative")
	}
	if c.Server.Listen == "" {
		errs = append(errs, "server.listen is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
