// Package config loads the process configuration from the environment and an
// optional .env file. All components receive the loaded value; nothing reads
// the environment after startup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env string `mapstructure:"ENV"`

	// portal / live adapter
	PortalURL      string `mapstructure:"PORTAL_URL"`
	PortalUsername string `mapstructure:"PORTAL_USERNAME"`
	PortalPassword string `mapstructure:"PORTAL_PASSWORD"`

	// browser automation
	BotURL           string `mapstructure:"BOT_URL"` // automation sidecar endpoint
	BrowserKind      string `mapstructure:"BROWSER_KIND"` // A, B or C
	Headless         bool   `mapstructure:"HEADLESS"`
	PageLoadTimeoutS int    `mapstructure:"PAGE_LOAD_TIMEOUT_S"`
	ImplicitWaitS    int    `mapstructure:"IMPLICIT_WAIT_S"`

	// llm
	LLMAPIKey      string  `mapstructure:"LLM_API_KEY"`
	LLMModel       string  `mapstructure:"LLM_MODEL"`
	LLMTemperature float64 `mapstructure:"LLM_TEMPERATURE"`
	LLMMaxTokens   int     `mapstructure:"LLM_MAX_TOKENS"`
	AIProvider     string  `mapstructure:"AI_PROVIDER"` // primary | secondary

	// logging and artifacts
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	LogFile           string `mapstructure:"LOG_FILE"`
	ScreenshotDir     string `mapstructure:"SCREENSHOT_DIR"`
	EnableScreenshots bool   `mapstructure:"ENABLE_SCREENSHOTS"`

	// pipeline behavior
	CheckIntervalS       int     `mapstructure:"CHECK_INTERVAL_S"`
	MaxRetryAttempts     int     `mapstructure:"MAX_RETRY_ATTEMPTS"`
	AutoApproveThreshold float64 `mapstructure:"AUTO_APPROVE_THRESHOLD"`
	ProcessDelayMS       int     `mapstructure:"PROCESS_DELAY_MS"`

	// persistence and review surface
	DatabasePath string `mapstructure:"DATABASE_PATH"`
	Port         string `mapstructure:"PORT"`
	APIKey       string `mapstructure:"API_KEY"` // review surface guard, empty disables
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("BOT_URL", "http://localhost:9515")
	v.SetDefault("BROWSER_KIND", "A")
	v.SetDefault("HEADLESS", true)
	v.SetDefault("PAGE_LOAD_TIMEOUT_S", 30)
	v.SetDefault("IMPLICIT_WAIT_S", 10)
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TEMPERATURE", 0.0)
	v.SetDefault("LLM_MAX_TOKENS", 1500)
	v.SetDefault("AI_PROVIDER", "primary")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "logs/rxguard.log")
	v.SetDefault("SCREENSHOT_DIR", "screenshots")
	v.SetDefault("ENABLE_SCREENSHOTS", false)
	v.SetDefault("CHECK_INTERVAL_S", 60)
	v.SetDefault("MAX_RETRY_ATTEMPTS", 3)
	v.SetDefault("AUTO_APPROVE_THRESHOLD", 0.85)
	v.SetDefault("PROCESS_DELAY_MS", 500)
	v.SetDefault("DATABASE_PATH", "database/rxguard.db")
	v.SetDefault("PORT", "8000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"ENV", "PORTAL_URL", "PORTAL_USERNAME", "PORTAL_PASSWORD",
		"BOT_URL", "BROWSER_KIND", "HEADLESS", "PAGE_LOAD_TIMEOUT_S", "IMPLICIT_WAIT_S",
		"LLM_API_KEY", "LLM_MODEL", "LLM_TEMPERATURE", "LLM_MAX_TOKENS", "AI_PROVIDER",
		"LOG_LEVEL", "LOG_FILE", "SCREENSHOT_DIR", "ENABLE_SCREENSHOTS",
		"CHECK_INTERVAL_S", "MAX_RETRY_ATTEMPTS", "AUTO_APPROVE_THRESHOLD", "PROCESS_DELAY_MS",
		"DATABASE_PATH", "PORT", "API_KEY",
	} {
		v.BindEnv(key)
	}

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ProcessDelay is the pause between prescriptions, bounding the LLM rate.
func (c *Config) ProcessDelay() time.Duration {
	return time.Duration(c.ProcessDelayMS) * time.Millisecond
}

// PortalStepTimeout bounds each portal driver interaction.
func (c *Config) PortalStepTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeoutS) * time.Second
}

// Validate checks the configuration before any prescription is processed.
// A failure here aborts the process with a configuration-error exit code.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.BrowserKind) {
	case "A", "B", "C":
	default:
		return fmt.Errorf("BROWSER_KIND must be A, B or C, got %q", c.BrowserKind)
	}
	switch c.AIProvider {
	case "primary", "secondary":
	default:
		return fmt.Errorf("AI_PROVIDER must be \"primary\" or \"secondary\", got %q", c.AIProvider)
	}
	if c.AutoApproveThreshold < 0 || c.AutoApproveThreshold > 1 {
		return fmt.Errorf("AUTO_APPROVE_THRESHOLD must be in [0,1], got %v", c.AutoApproveThreshold)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be in [0,2], got %v", c.LLMTemperature)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.PageLoadTimeoutS <= 0 || c.ImplicitWaitS <= 0 {
		return fmt.Errorf("portal timeouts must be positive")
	}
	return nil
}
