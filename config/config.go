package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"time"

	"code.cloudfoundry.org/cpuwatcher/helpers"
	"code.cloudfoundry.org/cpuwatcher/models"
	"github.com/joho/godotenv"
)

var (
	ErrReadYaml      = helpers.ErrReadYaml
	ErrConfiguration = helpers.ErrConfiguration
	ErrReadEnvFile   = errors.New("failed to read env file")
)

const (
	DefaultLoggingLevel                   = "info"
	DefaultHealthServerPort               = 8081
	DefaultThresholdPercent               = 50.0
	DefaultCheckInterval                  = 1 * time.Second
	DefaultCooldown                       = 600 * time.Second
	DefaultProcMount                      = "/proc"
	DefaultTelegramAPIURL                 = "https://api.telegram.org"
	DefaultRequestTimeout                 = 10 * time.Second
	DefaultMaxAttempts                    = 3
	DefaultBackoffInitialInterval         = 500 * time.Millisecond
	DefaultBackoffMaxInterval             = 5 * time.Second
	DefaultMessagesPerSecond              = 1.0
	DefaultBreakerConsecutiveFailureCount = 5
	DefaultBreakerBackOffInitialInterval  = 30 * time.Second
	DefaultBreakerBackOffMaxInterval      = 10 * time.Minute
)

// Environment variables that override the file configuration.
const (
	EnvCPUThreshold     = "CPU_THRESHOLD"
	EnvCheckInterval    = "CHECK_INTERVAL"
	EnvCooldownSeconds  = "COOLDOWN_SECONDS"
	EnvTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "TELEGRAM_CHAT_ID"
	EnvLogLevel         = "LOG_LEVEL"
)

type WatcherConfig struct {
	ThresholdPercent float64              `yaml:"threshold_percent" json:"threshold_percent"`
	CheckInterval    time.Duration        `yaml:"check_interval" json:"check_interval"`
	Cooldown         time.Duration        `yaml:"cooldown" json:"cooldown"`
	CPUConvention    models.CPUConvention `yaml:"cpu_convention" json:"cpu_convention"`
	ProcMount        string               `yaml:"proc_mount" json:"proc_mount"`
}

type CircuitBreakerConfig struct {
	BackOffInitialInterval  time.Duration `yaml:"back_off_initial_interval" json:"back_off_initial_interval"`
	BackOffMaxInterval      time.Duration `yaml:"back_off_max_interval" json:"back_off_max_interval"`
	ConsecutiveFailureCount int64         `yaml:"consecutive_failure_count" json:"consecutive_failure_count"`
}

type TelegramConfig struct {
	APIURL                 string               `yaml:"api_url" json:"api_url"`
	BotToken               string               `yaml:"bot_token" json:"bot_token"`
	ChatID                 string               `yaml:"chat_id" json:"chat_id"`
	RequestTimeout         time.Duration        `yaml:"request_timeout" json:"request_timeout"`
	MaxAttempts            int                  `yaml:"max_attempts" json:"max_attempts"`
	BackoffInitialInterval time.Duration        `yaml:"backoff_initial_interval" json:"backoff_initial_interval"`
	BackoffMaxInterval     time.Duration        `yaml:"backoff_max_interval" json:"backoff_max_interval"`
	MessagesPerSecond      float64              `yaml:"messages_per_second" json:"messages_per_second"`
	CircuitBreaker         CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type Config struct {
	Logging  helpers.LoggingConfig `yaml:"logging" json:"logging"`
	Health   helpers.HealthConfig  `yaml:"health" json:"health"`
	Watcher  WatcherConfig         `yaml:"watcher" json:"watcher"`
	Telegram TelegramConfig        `yaml:"telegram" json:"telegram"`
}

func (c *Config) GetLogging() *helpers.LoggingConfig {
	return &c.Logging
}

// LoadConfig layers the defaults, the yaml file at path, the optional env
// file and finally the process environment. Variables already present in the
// process environment win over the env file.
func LoadConfig(path string, envFile string) (*Config, error) {
	conf := defaultConfig()

	if err := helpers.LoadYamlFile(path, &conf); err != nil {
		return nil, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("%w '%s': %w", ErrReadEnvFile, envFile, err)
		}
	}

	if err := applyEnvOverrides(&conf, os.LookupEnv); err != nil {
		return nil, err
	}

	return &conf, nil
}

func defaultConfig() Config {
	return Config{
		Logging: helpers.LoggingConfig{
			Level: DefaultLoggingLevel,
		},
		Health: helpers.HealthConfig{
			ServerConfig: helpers.ServerConfig{
				Port: DefaultHealthServerPort,
			},
			ReadinessCheckEnabled: true,
		},
		Watcher: WatcherConfig{
			ThresholdPercent: DefaultThresholdPercent,
			CheckInterval:    DefaultCheckInterval,
			Cooldown:         DefaultCooldown,
			CPUConvention:    models.CPUConventionPerCore,
			ProcMount:        DefaultProcMount,
		},
		Telegram: TelegramConfig{
			APIURL:                 DefaultTelegramAPIURL,
			RequestTimeout:         DefaultRequestTimeout,
			MaxAttempts:            DefaultMaxAttempts,
			BackoffInitialInterval: DefaultBackoffInitialInterval,
			BackoffMaxInterval:     DefaultBackoffMaxInterval,
			MessagesPerSecond:      DefaultMessagesPerSecond,
			CircuitBreaker: CircuitBreakerConfig{
				BackOffInitialInterval:  DefaultBreakerBackOffInitialInterval,
				BackOffMaxInterval:      DefaultBreakerBackOffMaxInterval,
				ConsecutiveFailureCount: DefaultBreakerConsecutiveFailureCount,
			},
		},
	}
}

func applyEnvOverrides(conf *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvCPUThreshold); ok && v != "" {
		threshold, err := parseFiniteFloat(EnvCPUThreshold, v)
		if err != nil {
			return err
		}
		conf.Watcher.ThresholdPercent = threshold
	}

	if v, ok := lookup(EnvCheckInterval); ok && v != "" {
		seconds, err := parseFiniteFloat(EnvCheckInterval, v)
		if err != nil {
			return err
		}
		conf.Watcher.CheckInterval = time.Duration(seconds * float64(time.Second))
	}

	if v, ok := lookup(EnvCooldownSeconds); ok && v != "" {
		seconds, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s must be a non-negative integer, got '%s'", ErrConfiguration, EnvCooldownSeconds, v)
		}
		conf.Watcher.Cooldown = time.Duration(seconds) * time.Second
	}

	if v, ok := lookup(EnvTelegramBotToken); ok && v != "" {
		conf.Telegram.BotToken = v
	}

	if v, ok := lookup(EnvTelegramChatID); ok && v != "" {
		conf.Telegram.ChatID = v
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		conf.Logging.Level = v
	}

	return nil
}

func parseFiniteFloat(name string, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be a number, got '%s'", ErrConfiguration, name, v)
	}
	return f, nil
}

func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateWatcher(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	return c.Health.Validate()
}

func (c *Config) validateLogging() error {
	if _, err := helpers.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validateWatcher() error {
	w := c.Watcher
	if !w.CPUConvention.IsValid() {
		return fmt.Errorf("%w: watcher.cpu_convention '%s' is not one of '%s', '%s'", ErrConfiguration, w.CPUConvention, models.CPUConventionPerCore, models.CPUConventionNormalized)
	}

	maxThreshold := 100.0
	if w.CPUConvention == models.CPUConventionPerCore {
		maxThreshold = 100.0 * float64(runtime.NumCPU())
	}
	if w.ThresholdPercent <= 0 || w.ThresholdPercent > maxThreshold {
		return fmt.Errorf("%w: watcher.threshold_percent %.1f must be within (0, %.1f]", ErrConfiguration, w.ThresholdPercent, maxThreshold)
	}

	if w.CheckInterval <= 0 {
		return fmt.Errorf("%w: watcher.check_interval is less-equal than 0", ErrConfiguration)
	}
	if w.Cooldown < 0 {
		return fmt.Errorf("%w: watcher.cooldown is less than 0", ErrConfiguration)
	}
	if w.ProcMount == "" {
		return fmt.Errorf("%w: watcher.proc_mount is empty", ErrConfiguration)
	}
	return nil
}

func (c *Config) validateTelegram() error {
	t := c.Telegram
	u, err := url.Parse(t.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: telegram.api_url '%s' is not a valid http(s) url", ErrConfiguration, t.APIURL)
	}
	if t.BotToken == "" {
		return fmt.Errorf("%w: telegram.bot_token is empty", ErrConfiguration)
	}
	if t.ChatID == "" {
		return fmt.Errorf("%w: telegram.chat_id is empty", ErrConfiguration)
	}
	if t.RequestTimeout <= 0 {
		return fmt.Errorf("%w: telegram.request_timeout is less-equal than 0", ErrConfiguration)
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("%w: telegram.max_attempts is less than 1", ErrConfiguration)
	}
	if t.BackoffInitialInterval <= 0 {
		return fmt.Errorf("%w: telegram.backoff_initial_interval is less-equal than 0", ErrConfiguration)
	}
	if t.BackoffMaxInterval < t.BackoffInitialInterval {
		return fmt.Errorf("%w: telegram.backoff_max_interval is less than telegram.backoff_initial_interval", ErrConfiguration)
	}
	if t.MessagesPerSecond <= 0 {
		return fmt.Errorf("%w: telegram.messages_per_second is less-equal than 0", ErrConfiguration)
	}
	cb := t.CircuitBreaker
	if cb.ConsecutiveFailureCount < 0 {
		return fmt.Errorf("%w: telegram.circuit_breaker.consecutive_failure_count is less than 0", ErrConfiguration)
	}
	if cb.ConsecutiveFailureCount > 0 && (cb.BackOffInitialInterval <= 0 || cb.BackOffMaxInterval < cb.BackOffInitialInterval) {
		return fmt.Errorf("%w: telegram.circuit_breaker back off intervals are invalid", ErrConfiguration)
	}
	return nil
}
