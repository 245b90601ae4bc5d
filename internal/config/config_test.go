package config

import "testing"

func TestValidate_InvalidUsageAction(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 3333},
		Usage: UsageConfig{Action: "invalid_action"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid usage action")
	}

	expected := `usage.action must be "warn" or "reject", got "invalid_action"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidUsageActions(t *testing.T) {
	validActions := []string{"warn", "reject"}

	for _, action := range validActions {
		t.Run("action="+action, func(t *testing.T) {
			cfg := Config{
				HTTP:  HTTPConfig{Port: 3333},
				Usage: UsageConfig{Action: action},
			}

			err := cfg.Validate()
			if err != nil {
				t.Fatalf("unexpected error for valid action %q: %v", action, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 70000},
		Usage: UsageConfig{Action: "warn"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_EmptyReplacementOld(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 3333},
		Usage: UsageConfig{Action: "warn"},
		Pipeline: PipelineConfig{
			Replacements: []ReplacementConfig{{Old: "", New: "x"}},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty replacement pattern")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 3333 {
		t.Errorf("expected Port=3333, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 0 {
		t.Errorf("expected WriteTimeoutSec=0 (no deadline for streams), got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Redis.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Redis.ReadinessTimeout)
	}
	if cfg.Usage.Action != "warn" {
		t.Errorf("expected Action='warn', got %q", cfg.Usage.Action)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 8080, ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Redis: RedisConfig{ReadinessTimeout: 15},
		Usage: UsageConfig{Action: "reject"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Usage.Action != "reject" {
		t.Errorf("expected Action='reject', got %q", cfg.Usage.Action)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("no-such-environment")
	if err != nil {
		t.Fatalf("Load() error = %v, want defaults for missing file", err)
	}
	if cfg.HTTP.Port != 3333 {
		t.Errorf("expected default Port=3333, got %d", cfg.HTTP.Port)
	}
}
