package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv applies SAVESBENCH_* environment overrides to cfg.
// Env always wins over the config file.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SAVESBENCH_BASE_URL"); v != "" {
		cfg.Target.BaseURL = v
	}
	if v := os.Getenv("SAVESBENCH_BEARER_TOKEN"); v != "" {
		cfg.Target.Auth.BearerToken = v
	}
	if v := os.Getenv("SAVESBENCH_JWT_SECRET"); v != "" {
		cfg.Target.Auth.JWTSecret = v
	}
	if v := os.Getenv("SAVESBENCH_PROFILE"); v != "" {
		cfg.Run.Profile = v
	}
	if v := os.Getenv("SAVESBENCH_USERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.Users = n
		}
	}
	if v := os.Getenv("SAVESBENCH_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Run.Duration = d
		}
	}
	if v := os.Getenv("SAVESBENCH_TARGET_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.TargetRPS = n
		}
	}
	if v := os.Getenv("SAVESBENCH_CSV_PREFIX"); v != "" {
		cfg.Run.CSVPrefix = v
	}
	if v := os.Getenv("SAVESBENCH_HISTORY_DSN"); v != "" {
		cfg.History.DSN = v
	}
	if v := os.Getenv("SAVESBENCH_S3_BUCKET"); v != "" {
		cfg.Artifacts.S3Bucket = v
	}
	if v := os.Getenv("SAVESBENCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
