package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the studyflow service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	YouCom    YouComConfig    `mapstructure:"youcom"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// YouComConfig contains the upstream search/agent API settings
type YouComConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	SearchBaseURL string        `mapstructure:"search_base_url"`
	AgentBaseURL  string        `mapstructure:"agent_base_url"`
	DefaultAgent  string        `mapstructure:"default_agent"`
	MaxRetries    int           `mapstructure:"max_retries"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
	AgentTimeout  time.Duration `mapstructure:"agent_timeout"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
	OEmbedTimeout time.Duration `mapstructure:"oembed_timeout"`
}

func (y YouComConfig) Validate() error {
	if strings.TrimSpace(y.APIKey) == "" {
		return fmt.Errorf("youcom.api_key is required")
	}
	return nil
}

// ResourcesConfig controls per-module resource fetching
type ResourcesConfig struct {
	MaxArticles      int    `mapstructure:"max_articles"`
	MaxVideos        int    `mapstructure:"max_videos"`
	GeneralCount     int    `mapstructure:"general_count"`
	VideoCount       int    `mapstructure:"video_count"`
	VideoQuerySuffix string `mapstructure:"video_query_suffix"`
}

// StorageConfig selects and configures the session store
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // memory, redis
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func (s StorageConfig) Validate() error {
	switch s.Type {
	case "", "memory":
		return nil
	case "redis":
		return s.Redis.Validate()
	default:
		return fmt.Errorf("storage.type must be memory or redis, got %q", s.Type)
	}
}

// LoadConfig loads config from file and environment
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":10010")
	// registered with an empty default so the env override binds on Unmarshal
	v.SetDefault("youcom.api_key", "")
	v.SetDefault("youcom.search_base_url", "https://ydc-index.io/v1")
	v.SetDefault("youcom.agent_base_url", "https://api.you.com/v1")
	v.SetDefault("youcom.default_agent", "express")
	v.SetDefault("youcom.max_retries", 3)
	v.SetDefault("youcom.search_timeout", 30*time.Second)
	v.SetDefault("youcom.agent_timeout", 60*time.Second)
	v.SetDefault("youcom.stream_timeout", 120*time.Second)
	v.SetDefault("youcom.oembed_timeout", 5*time.Second)
	v.SetDefault("resources.max_articles", 4)
	v.SetDefault("resources.max_videos", 3)
	v.SetDefault("resources.general_count", 10)
	v.SetDefault("resources.video_count", 5)
	v.SetDefault("resources.video_query_suffix", " tutorial video youtube")
	v.SetDefault("storage.type", "memory")
	v.SetDefault("telemetry.enabled", true)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("STUDYFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// config file is optional; env and defaults still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.YouCom.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
