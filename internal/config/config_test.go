package config

import "testing"

func validConfig() *Config {
	return &Config{
		Env:                  "development",
		BrowserKind:          "A",
		PageLoadTimeoutS:     30,
		ImplicitWaitS:        10,
		LLMTemperature:       0,
		AIProvider:           "primary",
		AutoApproveThreshold: 0.85,
		DatabasePath:         "database/rxguard.db",
	}
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateBrowserKind(t *testing.T) {
	c := validConfig()
	c.BrowserKind = "D"
	if err := c.Validate(); err == nil {
		t.Error("expected error for browser kind D")
	}
	c.BrowserKind = "b" // case-insensitive
	if err := c.Validate(); err != nil {
		t.Errorf("lowercase browser kind rejected: %v", err)
	}
}

func TestValidateAIProvider(t *testing.T) {
	c := validConfig()
	c.AIProvider = "tertiary"
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestValidateThreshold(t *testing.T) {
	c := validConfig()
	c.AutoApproveThreshold = 1.5
	if err := c.Validate(); err == nil {
		t.Error("expected error for threshold > 1")
	}
}

func TestValidateDatabasePath(t *testing.T) {
	c := validConfig()
	c.DatabasePath = ""
	if err := c.Validate(); err == nil {
		t.Error("expected error for empty database path")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ProcessDelayMS != 500 {
		t.Errorf("PROCESS_DELAY_MS default = %d, want 500", cfg.ProcessDelayMS)
	}
	if cfg.AIProvider != "primary" {
		t.Errorf("AI_PROVIDER default = %q, want primary", cfg.AIProvider)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
