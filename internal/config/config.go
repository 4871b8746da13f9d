// Package config handles detector configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/fingerprint"
)

type Config struct {
	ExamplesDir       string        `env:"EXAMPLES_DIR"       envDefault:"/app/examples"`
	Threshold         int           `env:"THRESHOLD"          envDefault:"5"`
	WorkingDir        string        `env:"WORKING_DIR"        envDefault:"/tmp"`
	ExampleExtensions []string      `env:"EXAMPLE_EXTENSIONS" envDefault:".png,.jpg" envSeparator:","`
	VideoExtensions   []string      `env:"VIDEO_EXTENSIONS"   envDefault:".avi,.mp4,.mkv,.mov,.vob" envSeparator:","`
	HashAlgorithm     string        `env:"HASH_ALGORITHM"     envDefault:"phash"`
	HashSize          int           `env:"HASH_SIZE"          envDefault:"16"`
	HashWorkers       int           `env:"HASH_WORKERS"       envDefault:"8"`
	BatchWorkers      int           `env:"BATCH_WORKERS"      envDefault:"1"`
	FFmpegPath        string        `env:"FFMPEG_PATH"        envDefault:"ffmpeg"`
	FFprobePath       string        `env:"FFPROBE_PATH"       envDefault:"ffprobe"`
	ToolTimeout       time.Duration `env:"TOOL_TIMEOUT"       envDefault:"60s"`
	LogLevel          string        `env:"LOG_LEVEL"          envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT"         envDefault:"text"`
	HTTPAddr          string        `env:"HTTP_ADDR"          envDefault:":8000"`
	GRPCAddr          string        `env:"GRPC_ADDR"          envDefault:":50061"`
	MetricsPort       int           `env:"METRICS_PORT"       envDefault:"9090"`
	RemoteAddr        string        `env:"REMOTE_ADDR"`
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "parse environment")
	}
	cfg.ExampleExtensions = NormalizeExtensions(cfg.ExampleExtensions)
	cfg.VideoExtensions = NormalizeExtensions(cfg.VideoExtensions)
	return cfg, nil
}

// Validate checks the values the detector cannot run without.
func (c *Config) Validate() error {
	if c.Threshold < 0 {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "threshold must be a non-negative integer, got %d", c.Threshold)
	}
	if err := fingerprint.ValidateSize(c.HashSize); err != nil {
		return err
	}
	if len(c.ExampleExtensions) == 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "at least one example extension is required")
	}
	if len(c.VideoExtensions) == 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "at least one video extension is required")
	}
	if c.ToolTimeout < 0 {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "tool timeout must not be negative, got %s", c.ToolTimeout)
	}
	for name, dir := range map[string]string{"examples": c.ExamplesDir, "working": c.WorkingDir} {
		if _, err := ParsePath(dir); err != nil {
			return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "%s directory", name)
		}
	}
	return nil
}

// ParsePath resolves value to an absolute path that exists and is not the filesystem root.
func ParsePath(value string) (string, error) {
	if value == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "a path must be provided")
	}
	abs, err := filepath.Abs(value)
	if err != nil || abs == string(filepath.Separator) {
		return "", apperrors.Newf(apperrors.CodeInvalidArgument, "a valid path must be provided: %q", value)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", apperrors.Wrapf(err, apperrors.CodeInvalidArgument, "a valid path must be provided: %q", value)
	}
	return abs, nil
}

// ParseThreshold accepts only non-negative integers.
func ParseThreshold(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0, apperrors.Newf(apperrors.CodeInvalidArgument, "a positive integer must be provided: %q", value)
	}
	return n, nil
}

// ParseExtensions splits a comma separated list into normalized extensions.
func ParseExtensions(value string) []string {
	return NormalizeExtensions(strings.Split(value, ","))
}

// NormalizeExtensions trims, lower-cases and dot-prefixes each extension, dropping blanks.
func NormalizeExtensions(exts []string) []string {
	result := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		result = append(result, ext)
	}
	return result
}

// HasExtension reports whether name ends in one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

func (c *Config) String() string {
	return fmt.Sprintf("examples=%s threshold=%d workdir=%s hash=%s/%d", c.ExamplesDir, c.Threshold, c.WorkingDir, c.HashAlgorithm, c.HashSize)
}
