package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the runtime configuration for the game client.
// Values are layered: built-in defaults, then an optional YAML file
// (CLIENT_CONFIG path), then environment variables.
type AppConfig struct {
	GameBaseURL     string `yaml:"game_base_url"`
	AnalysisBaseURL string `yaml:"analysis_base_url"`

	AuthToken string `yaml:"auth_token"`

	EngineBackend      string `yaml:"engine_backend"` // local | remote
	EngineBinaryPath   string `yaml:"engine_binary_path"`
	EngineFallbackPath string `yaml:"engine_fallback_path"`
	EngineSkillLevel   int    `yaml:"engine_skill_level"`

	TurnBudgetSec           int `yaml:"turn_budget_sec"`
	PollIntervalMS          int `yaml:"poll_interval_ms"`
	DrawPollIntervalMS      int `yaml:"draw_poll_interval_ms"`
	ChallengePollIntervalMS int `yaml:"challenge_poll_interval_ms"`
	FailureThreshold        int `yaml:"failure_threshold"`

	RedisURL     string `yaml:"redis_url"`
	IdentityFile string `yaml:"identity_file"`
}

func defaults() *AppConfig {
	return &AppConfig{
		EngineBackend:           "remote",
		EngineSkillLevel:        10,
		TurnBudgetSec:           60,
		PollIntervalMS:          2000,
		DrawPollIntervalMS:      5000,
		ChallengePollIntervalMS: 10000,
		FailureThreshold:        5,
	}
}

// Load builds the configuration. GAME_BASE_URL is the only required value.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CLIENT_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.GameBaseURL == "" {
		return nil, errors.New("GAME_BASE_URL is required")
	}
	if cfg.EngineBackend != "local" && cfg.EngineBackend != "remote" {
		return nil, errors.New("ENGINE_BACKEND must be local or remote")
	}
	if cfg.EngineBackend == "local" && cfg.EngineBinaryPath == "" {
		return nil, errors.New("ENGINE_BINARY_PATH is required for local backend")
	}
	if cfg.EngineBackend == "remote" && cfg.AnalysisBaseURL == "" {
		return nil, errors.New("ANALYSIS_BASE_URL is required for remote backend")
	}

	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	setStr(&cfg.GameBaseURL, "GAME_BASE_URL")
	setStr(&cfg.AnalysisBaseURL, "ANALYSIS_BASE_URL")
	setStr(&cfg.AuthToken, "AUTH_TOKEN")
	setStr(&cfg.EngineBackend, "ENGINE_BACKEND")
	setStr(&cfg.EngineBinaryPath, "ENGINE_BINARY_PATH")
	setStr(&cfg.EngineFallbackPath, "ENGINE_FALLBACK_PATH")
	setStr(&cfg.RedisURL, "REDIS_URL")
	setStr(&cfg.IdentityFile, "IDENTITY_FILE")

	setInt(&cfg.EngineSkillLevel, "ENGINE_SKILL_LEVEL")
	setInt(&cfg.TurnBudgetSec, "TURN_BUDGET_SEC")
	setInt(&cfg.PollIntervalMS, "POLL_INTERVAL_MS")
	setInt(&cfg.DrawPollIntervalMS, "DRAW_POLL_INTERVAL_MS")
	setInt(&cfg.ChallengePollIntervalMS, "CHALLENGE_POLL_INTERVAL_MS")
	setInt(&cfg.FailureThreshold, "FAILURE_THRESHOLD")
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
