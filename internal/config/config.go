// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"meal-kcal/internal/nutrition"
	"meal-kcal/internal/vision"
)

// ErrMissingCredential is returned by Validate when a mode needs a key
// that is not configured.
var ErrMissingCredential = errors.New("missing credential")

const (
	BackendGemini  = "gemini"
	BackendGateway = "gateway"
)

const (
	ModeRecognize = "recognize"
	ModeReport    = "report"
	ModeRun       = "run"
	ModeServe     = "serve"
)

type Config struct {
	GoogleAPIKey string
	USDAAPIKey   string
	USDABaseURL  string

	VisionBackend   string
	VisionModel     string
	ProxyURL        string
	ProxyAPIKey     string
	OpenRouterModel string

	RequestInterval   time.Duration
	LookupConcurrency int
	LookupRatePerHour int

	DataDir        string
	ArtifactBucket string
	AWSRegion      string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
		USDAAPIKey:        os.Getenv("USDA_API_KEY"),
		USDABaseURL:       getenv("USDA_BASE_URL", nutrition.DefaultBaseURL),
		VisionBackend:     strings.ToLower(getenv("VISION_BACKEND", BackendGemini)),
		VisionModel:       getenv("VISION_MODEL", vision.DefaultGeminiModel),
		ProxyURL:          getenv("MCP_PROXY_URL", vision.DefaultGatewayURL),
		ProxyAPIKey:       os.Getenv("MCP_PROXY_API_KEY"),
		OpenRouterModel:   getenv("OPENROUTER_MODEL", vision.DefaultGatewayModel),
		LookupConcurrency: 4,
		LookupRatePerHour: 1000,
		DataDir:           getenv("DATA_DIR", "data"),
		ArtifactBucket:    os.Getenv("ARTIFACT_BUCKET"),
		AWSRegion:         os.Getenv("AWS_REGION"),
	}

	var err error
	if cfg.RequestInterval, err = parseInterval(getenv("REQUEST_INTERVAL", "")); err != nil {
		return nil, err
	}
	if cfg.LookupConcurrency, err = getInt("LOOKUP_CONCURRENCY", cfg.LookupConcurrency); err != nil {
		return nil, err
	}
	if cfg.LookupRatePerHour, err = getInt("LOOKUP_RATE_PER_HOUR", cfg.LookupRatePerHour); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the credentials mode needs are present, so a run
// fails before any image is touched.
func (c *Config) Validate(mode string) error {
	needVision, needLookup := false, false
	switch mode {
	case ModeRecognize:
		needVision = true
	case ModeReport:
		needLookup = true
	case ModeRun, ModeServe:
		needVision, needLookup = true, true
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	if needVision {
		switch c.VisionBackend {
		case BackendGemini:
			if c.GoogleAPIKey == "" {
				return fmt.Errorf("GOOGLE_API_KEY: %w", ErrMissingCredential)
			}
		case BackendGateway:
			if c.ProxyURL == "" {
				return fmt.Errorf("MCP_PROXY_URL: %w", ErrMissingCredential)
			}
		default:
			return fmt.Errorf("unknown vision backend %q", c.VisionBackend)
		}
	}
	if needLookup && c.USDAAPIKey == "" {
		return fmt.Errorf("USDA_API_KEY: %w", ErrMissingCredential)
	}
	return nil
}

func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "meal-kcal.db") }
func (c *Config) ProcessedDir() string { return filepath.Join(c.DataDir, "processed") }
func (c *Config) ReportDir() string { return filepath.Join(c.DataDir, "reports") }
func (c *Config) RecognitionCSV() string { return filepath.Join(c.DataDir, "recognitions.csv") }

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

// parseInterval accepts a Go duration ("7s") or plain seconds ("7", "0.5").
func parseInterval(v string) (time.Duration, error) {
	if v == "" {
		return vision.DefaultInterval, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("invalid REQUEST_INTERVAL %q: negative", v)
		}
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid REQUEST_INTERVAL %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
