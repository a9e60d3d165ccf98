// Package config loads the pipeline's configuration from YAML with
// environment-variable overrides, following the teacher's
// backend/internal/config/config.go pattern (ServerConfig / DatabaseFullConfig
// structs with yaml + env + default tags).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete pipeline configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Workspace WorkspaceConfig `yaml:"workspace" json:"workspace"`
	Tools     ToolsConfig     `yaml:"tools" json:"tools"`
	Queue     QueueConfig     `yaml:"queue" json:"queue"`
	Workers   WorkersConfig   `yaml:"workers" json:"workers"`
	HLS       HLSConfig       `yaml:"hls" json:"hls"`
}

// ServerConfig controls the HTTP listener for the segment server and admin API.
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"MEDIAPIPE_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" json:"port" env:"MEDIAPIPE_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"MEDIAPIPE_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"MEDIAPIPE_WRITE_TIMEOUT" default:"0s"`
}

// DatabaseConfig controls the job queue / media metadata persistence layer.
type DatabaseConfig struct {
	Path          string        `yaml:"path" json:"path" env:"MEDIAPIPE_DB_PATH" default:"./mediapipe.db"`
	MaxOpenConns  int           `yaml:"max_open_conns" json:"max_open_conns" env:"MEDIAPIPE_DB_MAX_OPEN_CONNS" default:"20"`
	SlowQueryWarn time.Duration `yaml:"slow_query_warn" json:"slow_query_warn" default:"200ms"`
}

// WorkspaceConfig controls where the action executor stages per-job temp files.
type WorkspaceConfig struct {
	RootDir string `yaml:"root_dir" json:"root_dir" env:"MEDIAPIPE_WORKSPACE_DIR" default:"./workspace"`
}

// ToolsConfig names the external CLI binaries the pipeline shells out to
// (spec.md §6 "CLI contracts") and the default timeout for invoking them.
type ToolsConfig struct {
	FFmpegPath      string        `yaml:"ffmpeg_path" json:"ffmpeg_path" default:"ffmpeg"`
	FFprobePath     string        `yaml:"ffprobe_path" json:"ffprobe_path" default:"ffprobe"`
	MkvmergePath    string        `yaml:"mkvmerge_path" json:"mkvmerge_path" default:"mkvmerge"`
	DoviToolPath    string        `yaml:"dovi_tool_path" json:"dovi_tool_path" default:"dovi_tool"`
	MediainfoPath   string        `yaml:"mediainfo_path" json:"mediainfo_path" default:"mediainfo"`
	DefaultTimeout  time.Duration `yaml:"default_timeout" json:"default_timeout" default:"5m"`
	EncodeTimeout   time.Duration `yaml:"encode_timeout" json:"encode_timeout" default:"24h"`
	HardwareAccel   string        `yaml:"hardware_accel" json:"hardware_accel"` // "", videotoolbox, nvenc, vaapi, qsv
}

// QueueConfig controls job retry policy defaults.
type QueueConfig struct {
	DefaultMaxRetries int `yaml:"default_max_retries" json:"default_max_retries" default:"3"`
}

// WorkersConfig controls the worker pool (spec.md §4.H).
type WorkersConfig struct {
	Count              int           `yaml:"count" json:"count" env:"MEDIAPIPE_WORKERS" default:"0"` // 0 = auto
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period" json:"shutdown_grace_period" default:"30s"`
}

// HLSConfig controls precompute and cache defaults (spec.md §4.I/§4.J).
type HLSConfig struct {
	TargetSegmentSeconds int `yaml:"target_segment_seconds" json:"target_segment_seconds" default:"6"`
	CacheCapacity        int `yaml:"cache_capacity" json:"cache_capacity" default:"200"`
	PopulateMaxRetries   int `yaml:"populate_max_retries" json:"populate_max_retries" default:"2"`
}

// Default returns the configuration with every default tag applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
		},
		Database: DatabaseConfig{
			Path:          "./mediapipe.db",
			MaxOpenConns:  20,
			SlowQueryWarn: 200 * time.Millisecond,
		},
		Workspace: WorkspaceConfig{RootDir: "./workspace"},
		Tools: ToolsConfig{
			FFmpegPath:     "ffmpeg",
			FFprobePath:    "ffprobe",
			MkvmergePath:   "mkvmerge",
			DoviToolPath:   "dovi_tool",
			MediainfoPath:  "mediainfo",
			DefaultTimeout: 5 * time.Minute,
			EncodeTimeout:  24 * time.Hour,
		},
		Queue:   QueueConfig{DefaultMaxRetries: 3},
		Workers: WorkersConfig{Count: 0, ShutdownGracePeriod: 30 * time.Second},
		HLS: HLSConfig{
			TargetSegmentSeconds: 6,
			CacheCapacity:        200,
			PopulateMaxRetries:   2,
		},
	}
}

// Load reads a YAML config file, falling back to defaults for anything the
// file doesn't set, then applies a small set of environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEDIAPIPE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MEDIAPIPE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("MEDIAPIPE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("MEDIAPIPE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("MEDIAPIPE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MEDIAPIPE_DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MaxOpenConns = n
		}
	}
	if v := os.Getenv("MEDIAPIPE_WORKSPACE_DIR"); v != "" {
		cfg.Workspace.RootDir = v
	}
	if v := os.Getenv("MEDIAPIPE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Count = n
		}
	}
}
