// Package config loads savesbench configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Target     TargetConfig     `yaml:"target"`
	Run        RunConfig        `yaml:"run"`
	Simple     SimpleConfig     `yaml:"simple"`
	Structured StructuredConfig `yaml:"structured"`
	Verify     VerifyConfig     `yaml:"verify"`
	Status     StatusConfig     `yaml:"status"`
	History    HistoryConfig    `yaml:"history"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Log        LogConfig        `yaml:"log"`
}

type TargetConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Auth    AuthConfig    `yaml:"auth"`
}

type AuthConfig struct {
	BearerToken string      `yaml:"bearer_token"`
	JWTSecret   string      `yaml:"jwt_secret"`
	OAuth       OAuthConfig `yaml:"oauth"`
}

type OAuthConfig struct {
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type RunConfig struct {
	Profile       string        `yaml:"profile"`
	Users         int           `yaml:"users"`
	SpawnRate     float64       `yaml:"spawn_rate"`
	Duration      time.Duration `yaml:"duration"`
	WaitMin       time.Duration `yaml:"wait_min"`
	WaitMax       time.Duration `yaml:"wait_max"`
	TargetRPS     int           `yaml:"target_rps"`
	CSVPrefix     string        `yaml:"csv_prefix"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// SimpleConfig tunes the flat weighted-task driver. Weights of zero fall
// back to defaults; a task is only removed from rotation by disabling it
// (cleanup) rather than zeroing its weight.
type SimpleConfig struct {
	Weights TaskWeights `yaml:"weights"`

	MaxRecordsPerStore     int           `yaml:"max_records_per_store"`
	MinRecordsBeforeDelete int           `yaml:"min_records_before_delete"`
	CleanupProbability     float64       `yaml:"cleanup_probability"`
	CleanupEnabled         bool          `yaml:"cleanup_enabled"`
	VerifyInterval         time.Duration `yaml:"verify_interval"`
	GameIDs                []string      `yaml:"game_ids"`
	BlobSizeKB             int           `yaml:"blob_size_kb"`
}

type TaskWeights struct {
	GetRecord        int `yaml:"get_record"`
	CreateRecord     int `yaml:"create_record"`
	CreateBlobRecord int `yaml:"create_blob_record"`
	GetBlobRecord    int `yaml:"get_blob_record"`
	UpdateRecord     int `yaml:"update_record"`
	UpdateBlobRecord int `yaml:"update_blob_record"`
	QueryByOwner     int `yaml:"query_by_owner"`
	QueryByGame      int `yaml:"query_by_game"`
	ListRecords      int `yaml:"list_records"`
	GetStore         int `yaml:"get_store"`
	DeleteRecord     int `yaml:"delete_record"`
}

type StructuredConfig struct {
	StoreWeight    int  `yaml:"store_weight"`
	RecordWeight   int  `yaml:"record_weight"`
	BlobWeight     int  `yaml:"blob_weight"`
	MetadataWeight int  `yaml:"metadata_weight"`
	CleanupEnabled bool `yaml:"cleanup_enabled"`
}

type VerifyConfig struct {
	SchemaSampleRate float64 `yaml:"schema_sample_rate"`
}

type StatusConfig struct {
	Addr string `yaml:"addr"`
}

type HistoryConfig struct {
	DSN string `yaml:"dsn"`
}

type ArtifactsConfig struct {
	Dir      string `yaml:"dir"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a config with every tunable at its default value.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Run: RunConfig{
			Profile:       "simple",
			Users:         10,
			SpawnRate:     1,
			Duration:      time.Minute,
			WaitMin:       time.Second,
			WaitMax:       3 * time.Second,
			CSVPrefix:     "opensaves",
			FlushInterval: 10 * time.Second,
		},
		Simple: SimpleConfig{
			Weights: TaskWeights{
				GetRecord:        10,
				CreateRecord:     5,
				CreateBlobRecord: 4,
				GetBlobRecord:    3,
				UpdateRecord:     3,
				UpdateBlobRecord: 2,
				QueryByOwner:     3,
				QueryByGame:      3,
				ListRecords:      1,
				GetStore:         1,
				DeleteRecord:     2,
			},
			MaxRecordsPerStore:     50,
			MinRecordsBeforeDelete: 10,
			CleanupProbability:     0.1,
			CleanupEnabled:         false,
			VerifyInterval:         30 * time.Second,
			GameIDs:                []string{"game_1", "game_2", "game_3", "game_4", "game_5"},
			BlobSizeKB:             32,
		},
		Structured: StructuredConfig{
			StoreWeight:    1,
			RecordWeight:   3,
			BlobWeight:     2,
			MetadataWeight: 1,
		},
		Verify: VerifyConfig{
			SchemaSampleRate: 0,
		},
		Status: StatusConfig{
			Addr: ":9090",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file on top of defaults, then applies
// environment overrides. An empty path returns defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that YAML parsing cannot express.
func (c *Config) Validate() error {
	if c.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url is required")
	}
	if c.Run.Users < 1 {
		return fmt.Errorf("run.users must be at least 1, got %d", c.Run.Users)
	}
	if c.Run.SpawnRate <= 0 {
		return fmt.Errorf("run.spawn_rate must be positive, got %g", c.Run.SpawnRate)
	}
	if c.Run.WaitMin > c.Run.WaitMax {
		return fmt.Errorf("run.wait_min %s exceeds run.wait_max %s", c.Run.WaitMin, c.Run.WaitMax)
	}
	if p := c.Run.Profile; p != "simple" && p != "structured" {
		return fmt.Errorf("run.profile must be simple or structured, got %q", p)
	}
	if r := c.Verify.SchemaSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("verify.schema_sample_rate must be in [0,1], got %g", r)
	}
	if len(c.Simple.GameIDs) == 0 {
		return fmt.Errorf("simple.game_ids must not be empty")
	}
	return nil
}
