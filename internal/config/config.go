// Package config provides unified configuration loading for nanoslide.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline.
type Config struct {
	OutputDir     string              `yaml:"output_dir"`
	Generation    GenerationConfig    `yaml:"generation"`
	Render        RenderConfig        `yaml:"render"`
	Fusion        FusionConfig        `yaml:"fusion"`
	Lineage       LineageConfig       `yaml:"lineage"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// GenerationConfig holds generative collaborator settings.
type GenerationConfig struct {
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url"`
	PlanModel         string        `yaml:"plan_model"`
	ImageModel        string        `yaml:"image_model"`
	VideoModel        string        `yaml:"video_model"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	VideoPollInterval time.Duration `yaml:"video_poll_interval"`
	VideoTimeout      time.Duration `yaml:"video_timeout"`
}

// RenderConfig holds per-unit rendering settings.
type RenderConfig struct {
	Workers           int  `yaml:"workers"`
	MaxAttempts       int  `yaml:"max_attempts"`
	UseStyleReference bool `yaml:"use_style_reference"`
}

// FusionConfig holds video fusion settings.
type FusionConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// LineageConfig holds lineage recording settings.
type LineageConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FileName string `yaml:"file_name"`
}

// ServerConfig holds the status API server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir: "outputs",
		Generation: GenerationConfig{
			APIKeyEnv:         "GEMINI_API_KEY",
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
			PlanModel:         "gemini-3-pro-preview",
			ImageModel:        "gemini-3-pro-image-preview",
			VideoModel:        "veo-3.1-generate-preview",
			RequestTimeout:    2 * time.Minute,
			VideoPollInterval: 10 * time.Second,
			VideoTimeout:      10 * time.Minute,
		},
		Render: RenderConfig{
			Workers:           2,
			MaxAttempts:       2,
			UseStyleReference: true,
		},
		Fusion: FusionConfig{
			FFmpegPath: "ffmpeg",
		},
		Lineage: LineageConfig{
			Enabled:  true,
			FileName: "lineage.db",
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8093,
			RequestTimeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}

	if c.Render.Workers < 1 {
		return fmt.Errorf("render workers must be at least 1, got %d", c.Render.Workers)
	}

	if c.Render.MaxAttempts < 1 {
		return fmt.Errorf("render max_attempts must be at least 1, got %d", c.Render.MaxAttempts)
	}

	if c.Generation.APIKeyEnv == "" {
		return fmt.Errorf("generation api_key_env must not be empty")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// APIKey returns the generative collaborator credential from the environment.
// Absence is reported by the first stage that needs it, not at startup.
func (c *Config) APIKey() string {
	return os.Getenv(c.Generation.APIKeyEnv)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NANOSLIDE_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}

	if v := os.Getenv("NANOSLIDE_PLAN_MODEL"); v != "" {
		cfg.Generation.PlanModel = v
	}

	if v := os.Getenv("NANOSLIDE_IMAGE_MODEL"); v != "" {
		cfg.Generation.ImageModel = v
	}

	if v := os.Getenv("NANOSLIDE_VIDEO_MODEL"); v != "" {
		cfg.Generation.VideoModel = v
	}

	if v := os.Getenv("NANOSLIDE_WORKERS"); v != "" {
		var workers int
		if _, err := fmt.Sscanf(v, "%d", &workers); err == nil {
			cfg.Render.Workers = workers
		}
	}

	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		cfg.Fusion.FFmpegPath = v
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
