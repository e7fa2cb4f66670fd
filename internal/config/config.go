package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Source     SourceConfig     `yaml:"source"`
	GitStore   GitStoreConfig   `yaml:"gitstore"`
	Drive      DriveConfig      `yaml:"drive"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Sync       SyncConfig       `yaml:"sync"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	DocSet     DocSetConfig     `yaml:"docset"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	API        APIConfig        `yaml:"api"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// SourceConfig points at the upstream catalog API the records are fetched from.
type SourceConfig struct {
	BaseURL string  `yaml:"base_url"`
	APIKey  string  `yaml:"api_key"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
	Timeout int     `yaml:"timeout_seconds"`
}

// GitStoreConfig points at the versioned store the mirrors are committed to.
type GitStoreConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
}

type DriveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	FolderID        string `yaml:"folder_id"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type SyncConfig struct {
	Workers int `yaml:"workers"`
}

type SchedulerConfig struct {
	PollInterval     int `yaml:"poll_interval_seconds"`
	ProgressInterval int `yaml:"progress_interval_seconds"`
	WaitCeiling      int `yaml:"wait_ceiling_seconds"`
	ReconcileGrace   int `yaml:"reconcile_grace_seconds"`
}

type DocSetConfig struct {
	BaseURL  string `yaml:"base_url"`
	RepoName string `yaml:"repo_name"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен, но переменные из него нужны до подстановки в YAML
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

var dailyTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ValidDailyTime reports whether s is an HH:MM wall-clock time.
func ValidDailyTime(s string) bool {
	return dailyTimeRe.MatchString(s)
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Source.BaseURL == "" {
		return errors.New("source base_url is required")
	}
	if c.GitStore.Token == "" || c.GitStore.Org == "" {
		return errors.New("gitstore token and org are required")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram is enabled")
	}
	if c.Drive.Enabled && c.Drive.CredentialsFile == "" {
		return errors.New("drive credentials_file is required when drive is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = 2
	}
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = 30
	}
	if c.Scheduler.ProgressInterval <= 0 {
		c.Scheduler.ProgressInterval = 5
	}
	if c.Scheduler.WaitCeiling <= 0 {
		c.Scheduler.WaitCeiling = 3600
	}
	if c.Scheduler.ReconcileGrace <= 0 {
		c.Scheduler.ReconcileGrace = 300
	}
	if c.Source.RPS <= 0 {
		c.Source.RPS = 5
	}
	if c.Source.Burst <= 0 {
		c.Source.Burst = 5
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 60
	}
	if c.GitStore.BaseURL == "" {
		c.GitStore.BaseURL = "https://api.github.com"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.DocSet.RepoName == "" {
		c.DocSet.RepoName = "source-docs"
	}
}

// PollDuration returns the scheduler poll interval as a duration.
func (s SchedulerConfig) PollDuration() time.Duration {
	return time.Duration(s.PollInterval) * time.Second
}

// ProgressDuration returns the bulk progress poll interval as a duration.
func (s SchedulerConfig) ProgressDuration() time.Duration {
	return time.Duration(s.ProgressInterval) * time.Second
}

// CeilingDuration returns the hard wait ceiling as a duration.
func (s SchedulerConfig) CeilingDuration() time.Duration {
	return time.Duration(s.WaitCeiling) * time.Second
}

// GraceDuration returns the startup reconcile grace period as a duration.
func (s SchedulerConfig) GraceDuration() time.Duration {
	return time.Duration(s.ReconcileGrace) * time.Second
}
