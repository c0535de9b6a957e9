package server

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/curve-forecast/internal/config"
	"github.com/iwvelando/curve-forecast/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Config defines runtime parameters for the HTTP server.
type Config struct {
	Address       string               `yaml:"address"`
	MaxUploadSize string               `yaml:"maxUploadSize"`
	Fit           FitLimits            `yaml:"fit"`
	Logging       config.LoggingConfig `yaml:"logging"`

	uploadSizeBytes int64
	fitTimeout      time.Duration
}

// FitLimits bounds the fitting work a single request may trigger.
type FitLimits struct {
	// CacheEntries caps the fit response cache; negative disables it.
	CacheEntries int `yaml:"cacheEntries"`
	// Timeout is a Go duration such as "30s".
	Timeout string `yaml:"timeout"`
	// MaxConcurrency caps fit.concurrency of incoming configurations.
	MaxConcurrency int `yaml:"maxConcurrency"`
	// MaxIterations caps the simplex iterations of incoming configurations.
	MaxIterations int `yaml:"maxIterations"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Address:       constants.DefaultServerAddress,
		MaxUploadSize: strconv.FormatInt(constants.DefaultMaxUploadSizeBytes, 10),
		Fit: FitLimits{
			CacheEntries:   constants.DefaultFitCacheEntries,
			Timeout:        constants.DefaultFitTimeout.String(),
			MaxConcurrency: constants.DefaultMaxFitConcurrency,
			MaxIterations:  constants.DefaultMaxFitIterations,
		},
		uploadSizeBytes: constants.DefaultMaxUploadSizeBytes,
		fitTimeout:      constants.DefaultFitTimeout,
	}
}

// LoadConfig loads the server configuration from YAML. A missing file yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UploadSizeBytes returns the configured upload size in bytes.
func (c *Config) UploadSizeBytes() int64 {
	return c.uploadSizeBytes
}

// SetUploadSizeBytes overrides the configured upload size.
func (c *Config) SetUploadSizeBytes(size int64) {
	if size > 0 {
		c.uploadSizeBytes = size
		c.MaxUploadSize = strconv.FormatInt(size, 10)
	}
}

// FitTimeout returns how long a request may spend fitting. Zero means no
// limit beyond the request context.
func (c *Config) FitTimeout() time.Duration {
	return c.fitTimeout
}

// limit applies the server caps to a resolved configuration before it is
// fitted.
func (l FitLimits) limit(fit *config.FitConfig) {
	if l.MaxConcurrency > 0 && (fit.Concurrency <= 0 || fit.Concurrency > l.MaxConcurrency) {
		fit.Concurrency = l.MaxConcurrency
	}
	if l.MaxIterations > 0 {
		if fit.Adoption.MaxIterations <= 0 || fit.Adoption.MaxIterations > l.MaxIterations {
			fit.Adoption.MaxIterations = l.MaxIterations
		}
		if fit.Persistency.MaxIterations <= 0 || fit.Persistency.MaxIterations > l.MaxIterations {
			fit.Persistency.MaxIterations = l.MaxIterations
		}
	}
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = constants.DefaultServerAddress
	}
	if c.Fit.CacheEntries == 0 {
		c.Fit.CacheEntries = constants.DefaultFitCacheEntries
	}
	if c.Fit.MaxConcurrency < 0 {
		return fmt.Errorf("fit.maxConcurrency must not be negative, got %d", c.Fit.MaxConcurrency)
	}
	if c.Fit.MaxIterations < 0 {
		return fmt.Errorf("fit.maxIterations must not be negative, got %d", c.Fit.MaxIterations)
	}

	timeout := strings.TrimSpace(c.Fit.Timeout)
	if timeout == "" {
		c.fitTimeout = constants.DefaultFitTimeout
		c.Fit.Timeout = c.fitTimeout.String()
	} else {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid fit.timeout %q: %w", c.Fit.Timeout, err)
		}
		if d < 0 {
			return fmt.Errorf("fit.timeout must not be negative, got %s", d)
		}
		c.fitTimeout = d
	}

	size, err := ParseSize(c.MaxUploadSize)
	if err != nil {
		return err
	}
	if size <= 0 {
		size = constants.DefaultMaxUploadSizeBytes
	}
	c.uploadSizeBytes = size
	c.MaxUploadSize = strconv.FormatInt(size, 10)
	return nil
}

var sizeUnits = []struct {
	suffix     string
	multiplier float64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
	{"B", 1},
}

// ParseSize converts a size such as "256K", "1.5M" or "4096" into bytes.
// An empty value is the default upload limit.
func ParseSize(value string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	if s == "" {
		return constants.DefaultMaxUploadSizeBytes, nil
	}

	multiplier := 1.0
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			multiplier = u.multiplier
			break
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if n < 0 || math.IsNaN(n) {
		return 0, fmt.Errorf("invalid size %q", value)
	}
	bytes := n * multiplier
	if bytes > math.MaxInt64 {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return int64(bytes), nil
}
