package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	DB          DBConfig          `yaml:"db"`
	Log         LogConfig         `yaml:"log"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Rewrite     RewriteConfig     `yaml:"rewrite"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Users       []SeedUser        `yaml:"users"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// RecognitionConfig points at the external OCR service. An empty base URL
// or API key means the service is unconfigured and recognition jobs fall
// through to manual entry.
type RecognitionConfig struct {
	BaseURL      string   `yaml:"base_url"`
	APIKey       string   `yaml:"api_key"`
	PollInterval Duration `yaml:"poll_interval"`
	PollTimeout  Duration `yaml:"poll_timeout"`
}

// RewriteConfig points at the external rewrite generation service.
type RewriteConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	PollInterval   Duration `yaml:"poll_interval"`
	PollTimeout    Duration `yaml:"poll_timeout"`
	PromptTemplate string   `yaml:"prompt_template"`
	PromptVersion  int      `yaml:"prompt_version"`
}

// JobsConfig sizes the async worker pool.
type JobsConfig struct {
	Workers     int      `yaml:"workers"`
	QueueSize   int      `yaml:"queue_size"`
	MaxAttempts int      `yaml:"max_attempts"`
	BackoffBase Duration `yaml:"backoff_base"`
}

// SeedUser is one account upserted at startup. Tokens are plain here and
// hashed before storage.
type SeedUser struct {
	Username  string `yaml:"username"`
	FullName  string `yaml:"full_name"`
	Role      string `yaml:"role"`
	Superuser bool   `yaml:"superuser"`
	Token     string `yaml:"token"`
}

// Duration parses YAML scalars like "30s" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "shangji.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Recognition: RecognitionConfig{
			PollInterval: Duration(3 * time.Second),
			PollTimeout:  Duration(2 * time.Minute),
		},
		Rewrite: RewriteConfig{
			PollInterval:  Duration(3 * time.Second),
			PollTimeout:   Duration(5 * time.Minute),
			PromptVersion: 1,
		},
		Jobs: JobsConfig{
			Workers:     4,
			QueueSize:   64,
			MaxAttempts: 3,
			BackoffBase: Duration(time.Second),
		},
	}

	if path := os.Getenv("SHANGJI_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("SHANGJI_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("SHANGJI_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHANGJI_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("SHANGJI_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("SHANGJI_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	cfg.Recognition.BaseURL = envString("SHANGJI_RECOGNITION_BASE_URL", cfg.Recognition.BaseURL)
	cfg.Recognition.APIKey = envString("SHANGJI_RECOGNITION_API_KEY", cfg.Recognition.APIKey)
	cfg.Rewrite.BaseURL = envString("SHANGJI_REWRITE_BASE_URL", cfg.Rewrite.BaseURL)
	cfg.Rewrite.APIKey = envString("SHANGJI_REWRITE_API_KEY", cfg.Rewrite.APIKey)
	cfg.Rewrite.Model = envString("SHANGJI_REWRITE_MODEL", cfg.Rewrite.Model)
	cfg.Jobs.Workers = envInt("SHANGJI_JOBS_WORKERS", cfg.Jobs.Workers)
	cfg.Jobs.QueueSize = envInt("SHANGJI_JOBS_QUEUE_SIZE", cfg.Jobs.QueueSize)
	cfg.Jobs.MaxAttempts = envInt("SHANGJI_JOBS_MAX_ATTEMPTS", cfg.Jobs.MaxAttempts)

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
