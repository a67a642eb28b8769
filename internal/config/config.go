// Package config loads the core's typed configuration from environment
// variables and/or a config file via viper. Every recognized key has a
// fixed default; unknown keys in a supplied config file are rejected at
// load time rather than silently ignored.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// Config is the complete set of options the core recognizes.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Circuit CircuitConfig `mapstructure:"circuit"`
	Health  HealthConfig  `mapstructure:"health"`

	MaxRetries           int `mapstructure:"max_retries"`
	DefaultCallTimeoutMs int `mapstructure:"default_call_timeout_ms"`

	LoadBalancer LoadBalancerConfig `mapstructure:"load_balancer"`
	Ranker       RankerConfig       `mapstructure:"ranker"`
	FanOut       FanOutConfig       `mapstructure:"fanout"`

	Redis RedisConfig `mapstructure:"redis"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type CircuitConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	SuccessThreshold int `mapstructure:"success_threshold"`
	TimeoutMs        int `mapstructure:"timeout_ms"`
}

type HealthConfig struct {
	WindowSize int `mapstructure:"window_size"`
}

type LoadBalancerConfig struct {
	DefaultStrategy string `mapstructure:"default_strategy"`
}

type RankerConfig struct {
	Weights RankerWeights `mapstructure:"weights"`
}

type RankerWeights struct {
	Capability float64 `mapstructure:"capability"`
	Cost       float64 `mapstructure:"cost"`
	Latency    float64 `mapstructure:"latency"`
	Health     float64 `mapstructure:"health"`
	Quality    float64 `mapstructure:"quality"`
}

type FanOutConfig struct {
	DefaultMode string `mapstructure:"default_mode"`
}

// RedisConfig configures the optional response cache. Ambient concern, not
// named by the public configuration surface in the spec, but wired in
// because the core ships a real cache implementation.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// recognizedKeys is every key this core understands, used to reject
// unknown keys found in a loaded config file.
var recognizedKeys = []string{
	"server.host", "server.port",
	"circuit.failure_threshold", "circuit.success_threshold", "circuit.timeout_ms",
	"health.window_size",
	"max_retries", "default_call_timeout_ms",
	"load_balancer.default_strategy",
	"ranker.weights.capability", "ranker.weights.cost", "ranker.weights.latency",
	"ranker.weights.health", "ranker.weights.quality",
	"fanout.default_mode",
	"redis.addr", "redis.password", "redis.db", "redis.enabled",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.success_threshold", 2)
	v.SetDefault("circuit.timeout_ms", 60000)

	v.SetDefault("health.window_size", 100)

	v.SetDefault("max_retries", 1)
	v.SetDefault("default_call_timeout_ms", 60000)

	v.SetDefault("load_balancer.default_strategy", "round_robin")

	v.SetDefault("ranker.weights.capability", 0.40)
	v.SetDefault("ranker.weights.cost", 0.15)
	v.SetDefault("ranker.weights.latency", 0.15)
	v.SetDefault("ranker.weights.health", 0.15)
	v.SetDefault("ranker.weights.quality", 0.15)

	v.SetDefault("fanout.default_mode", "all")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
}

// Load reads configuration from (in order of increasing precedence) fixed
// defaults, an optional config file at path, and environment variables
// prefixed ORCHESTRATOR_. A missing config file is not an error. Returns a
// plain error if the file cannot be read or parsed, if it names any key
// outside recognizedKeys, or if unmarshaling fails.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/orchestrator")
	}

	setDefaults(v)

	v.SetEnvPrefix("ORCHESTRATOR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := rejectUnknownKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func rejectUnknownKeys(v *viper.Viper) error {
	known := make(map[string]struct{}, len(recognizedKeys))
	for _, k := range recognizedKeys {
		known[k] = struct{}{}
	}

	for _, k := range v.AllKeys() {
		if _, ok := known[k]; !ok {
			return fmt.Errorf("config: unrecognized key %q", k)
		}
	}
	return nil
}
