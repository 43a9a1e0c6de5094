package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort              = 8080
	defaultRetention         = 24 * time.Hour
	defaultSweepInterval     = 10 * time.Minute
	defaultJobTimeout        = 300 * time.Second
	defaultSearchTimeout     = 30 * time.Second
	defaultMaxConcurrentJobs = 2
	defaultCORSOrigins       = "http://localhost:3000,http://localhost:5173,http://localhost:5174"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Port              int           `yaml:"port"`
	DownloadDir       string        `yaml:"downloadDir"`
	RetentionMaxAge   time.Duration `yaml:"retention"`
	SweepInterval     time.Duration `yaml:"sweepInterval"`
	JobTimeout        time.Duration `yaml:"jobTimeout"`
	SearchTimeout     time.Duration `yaml:"searchTimeout"`
	MaxConcurrentJobs int           `yaml:"maxConcurrentJobs"`
	CORSOrigins       []string      `yaml:"corsOrigins"`
	SpotdlPath        string        `yaml:"spotdlPath"`
	YtdlpPath         string        `yaml:"ytdlpPath"`
	GinMode           string        `yaml:"ginMode"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:              defaultPort,
		DownloadDir:       defaultDownloadDir(),
		RetentionMaxAge:   defaultRetention,
		SweepInterval:     defaultSweepInterval,
		JobTimeout:        defaultJobTimeout,
		SearchTimeout:     defaultSearchTimeout,
		MaxConcurrentJobs: defaultMaxConcurrentJobs,
		CORSOrigins:       splitList(defaultCORSOrigins),
		SpotdlPath:        "spotdl",
		YtdlpPath:         "yt-dlp",
	}
}

// Load builds the configuration from defaults, an optional .env file, an
// optional YAML file named by SOUNDRY_CONFIG and finally the environment.
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("SOUNDRY_CONFIG")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("SERVER_PORT", c.Port)
	c.DownloadDir = getEnv("DOWNLOAD_DIR", c.DownloadDir)
	c.RetentionMaxAge = getEnvAsDuration("RETENTION_HOURS", time.Hour, c.RetentionMaxAge)
	c.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL_MINUTES", time.Minute, c.SweepInterval)
	c.JobTimeout = getEnvAsDuration("JOB_TIMEOUT_SECONDS", time.Second, c.JobTimeout)
	c.SearchTimeout = getEnvAsDuration("SEARCH_TIMEOUT_SECONDS", time.Second, c.SearchTimeout)
	c.MaxConcurrentJobs = getEnvAsInt("MAX_CONCURRENT_JOBS", c.MaxConcurrentJobs)
	c.SpotdlPath = getEnv("SPOTDL_PATH", c.SpotdlPath)
	c.YtdlpPath = getEnv("YTDLP_PATH", c.YtdlpPath)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		c.CORSOrigins = splitList(origins)
	}
}

// validate resets unusable values and makes sure the download directory exists.
func (c *Config) validate() error {
	if c.MaxConcurrentJobs < 1 {
		log.Printf("Warning: MAX_CONCURRENT_JOBS must be at least 1, using %d", defaultMaxConcurrentJobs)
		c.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if c.RetentionMaxAge < 0 {
		c.RetentionMaxAge = defaultRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = defaultSearchTimeout
	}

	abs, err := filepath.Abs(expandHome(c.DownloadDir))
	if err != nil {
		return fmt.Errorf("resolve download dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	c.DownloadDir = abs
	return nil
}

func defaultDownloadDir() string {
	if dir := os.Getenv("DOWNLOAD_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(".", "downloads")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if val, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return val
	}
	return fallback
}

// getEnvAsDuration reads a non-negative integer count of unit.
func getEnvAsDuration(key string, unit time.Duration, fallback time.Duration) time.Duration {
	val, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || val < 0 {
		return fallback
	}
	return time.Duration(val) * unit
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
