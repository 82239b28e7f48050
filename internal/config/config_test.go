package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("CLIENT_CONFIG", "")
	t.Setenv("GAME_BASE_URL", "http://game.local")
	t.Setenv("ANALYSIS_BASE_URL", "http://analysis.local")
	t.Setenv("ENGINE_BACKEND", "")
	t.Setenv("TURN_BUDGET_SEC", "")
	t.Setenv("FAILURE_THRESHOLD", "")
	t.Setenv("POLL_INTERVAL_MS", "500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GameBaseURL != "http://game.local" {
		t.Fatalf("env not applied: %q", cfg.GameBaseURL)
	}
	if cfg.PollIntervalMS != 500 {
		t.Fatalf("int env not applied: %d", cfg.PollIntervalMS)
	}
	if cfg.EngineBackend != "remote" || cfg.TurnBudgetSec != 60 || cfg.FailureThreshold != 5 {
		t.Fatalf("defaults missing: %+v", cfg)
	}
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	yaml := `
game_base_url: http://yaml.local
analysis_base_url: http://yaml-analysis.local
engine_skill_level: 3
turn_budget_sec: 90
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CLIENT_CONFIG", path)
	t.Setenv("GAME_BASE_URL", "http://env.local")
	t.Setenv("ANALYSIS_BASE_URL", "")
	t.Setenv("ENGINE_SKILL_LEVEL", "")
	t.Setenv("TURN_BUDGET_SEC", "")
	t.Setenv("POLL_INTERVAL_MS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Env beats file; file beats defaults.
	if cfg.GameBaseURL != "http://env.local" {
		t.Fatalf("env should override yaml: %q", cfg.GameBaseURL)
	}
	if cfg.AnalysisBaseURL != "http://yaml-analysis.local" {
		t.Fatalf("yaml value lost: %q", cfg.AnalysisBaseURL)
	}
	if cfg.EngineSkillLevel != 3 || cfg.TurnBudgetSec != 90 {
		t.Fatalf("yaml ints lost: %+v", cfg)
	}
	if cfg.PollIntervalMS != 2000 {
		t.Fatalf("default int lost: %d", cfg.PollIntervalMS)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing base url", map[string]string{
			"GAME_BASE_URL": "",
		}},
		{"bad backend", map[string]string{
			"GAME_BASE_URL": "http://game.local", "ENGINE_BACKEND": "cloud",
		}},
		{"local without binary", map[string]string{
			"GAME_BASE_URL": "http://game.local", "ENGINE_BACKEND": "local",
		}},
		{"remote without analysis url", map[string]string{
			"GAME_BASE_URL": "http://game.local", "ENGINE_BACKEND": "remote",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CLIENT_CONFIG", "")
			t.Setenv("GAME_BASE_URL", "")
			t.Setenv("ANALYSIS_BASE_URL", "")
			t.Setenv("ENGINE_BACKEND", "")
			t.Setenv("ENGINE_BINARY_PATH", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
