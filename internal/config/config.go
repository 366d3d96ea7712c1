package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Port string `toml:"port"`

	// Auth
	APIKey string `toml:"api_key"`

	// DokuWiki target
	Root            string `toml:"root"`
	InvalidateCache bool   `toml:"invalidate_cache"`

	// Namespace table used when a source does not provide its own.
	FileNamespace string   `toml:"file_namespace"`
	FileAliases   []string `toml:"file_aliases"`

	// Worker pool
	WorkerCount  int `toml:"worker_count"`
	MaxQueueSize int `toml:"max_queue_size"`
	Lanes        int `toml:"lanes"`

	// Upload limits
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
	SpoolDir       string `toml:"spool_dir"`

	// Job state
	JobTTL      time.Duration `toml:"job_ttl"`
	StatsWindow time.Duration `toml:"stats_window"`

	LogLevel string `toml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:            "8090",
		InvalidateCache: true,
		FileNamespace:   "File",
		FileAliases:     []string{"File", "Image"},
		WorkerCount:     1,
		MaxQueueSize:    16,
		Lanes:           4,
		MaxUploadBytes:  1 << 30, // 1GB
		SpoolDir:        os.TempDir(),
		JobTTL:          1 * time.Hour,
		StatsWindow:     1 * time.Hour,
		LogLevel:        "info",
	}
}

// Load builds the configuration from defaults, the TOML file named by
// WIKIPORT_CONFIG (if any) and then the environment.
func Load() (Config, error) {
	return LoadFile(os.Getenv("WIKIPORT_CONFIG"))
}

// LoadFile is Load with an explicit config file. An empty path skips the
// file. Environment variables override file values.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("WIKIPORT_API_KEY", cfg.APIKey)
	cfg.Root = envOr("WIKIPORT_ROOT", cfg.Root)
	cfg.InvalidateCache = envBool("WIKIPORT_INVALIDATE_CACHE", cfg.InvalidateCache)
	cfg.FileNamespace = envOr("WIKIPORT_FILE_NAMESPACE", cfg.FileNamespace)
	cfg.FileAliases = envList("WIKIPORT_FILE_ALIASES", cfg.FileAliases)
	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.Lanes = envInt("WIKIPORT_LANES", cfg.Lanes)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.SpoolDir = envOr("WIKIPORT_SPOOL_DIR", cfg.SpoolDir)
	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)
	cfg.StatsWindow = envDuration("WIKIPORT_STATS_WINDOW", cfg.StatsWindow)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)

	def := Defaults()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.Lanes <= 0 {
		cfg.Lanes = def.Lanes
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = def.JobTTL
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = def.StatsWindow
	}

	return cfg, nil
}

// Validate checks what every command needs.
func (c Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("WIKIPORT_ROOT is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// ValidateServer additionally checks what the HTTP service needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("WIKIPORT_API_KEY is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return l, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
