package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the service settings read from the environment.
type Config struct {
	Port string

	AssetsDir  string
	ModelFile  string
	LabelsFile string
	InputSize  int

	SharedLibraryPath string
	Workers           int
	IntraOpThreads    int
	InferenceTimeout  time.Duration

	RedisAddr string
	CacheTTL  time.Duration

	JWTSecret   string
	JWTAudience string

	ShutdownTimeout time.Duration
	Debug           bool
}

// Load reads Config from the environment, applying defaults for unset keys.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	cfg := Config{
		Port:              p.stringValue("PORT", "8080"),
		AssetsDir:         p.stringValue("ASSETS_DIR", "./models"),
		ModelFile:         p.stringValue("MODEL_FILE", "model.onnx"),
		LabelsFile:        p.stringValue("LABELS_FILE", "labels.txt"),
		InputSize:         p.intValue("INPUT_SIZE", 224),
		SharedLibraryPath: p.stringValue("ONNXRUNTIME_SHARED_LIBRARY_PATH", ""),
		Workers:           p.intValue("INFERENCE_WORKERS", 1),
		IntraOpThreads:    p.intValue("INTRA_OP_THREADS", 0),
		InferenceTimeout:  p.durationValue("INFERENCE_TIMEOUT", 10*time.Second),
		RedisAddr:         p.stringValue("REDIS_ADDR", ""),
		CacheTTL:          p.durationValue("CACHE_TTL", 10*time.Minute),
		JWTSecret:         p.stringValue("JWT_SECRET", ""),
		JWTAudience:       p.stringValue("JWT_AUDIENCE", ""),
		ShutdownTimeout:   p.durationValue("SHUTDOWN_TIMEOUT", 15*time.Second),
		Debug:             p.boolValue("DEBUG", false),
	}
	if p.err != nil {
		return Config{}, p.err
	}

	if cfg.InputSize <= 0 {
		return Config{}, fmt.Errorf("INPUT_SIZE must be positive, got %d", cfg.InputSize)
	}
	if cfg.Workers <= 0 {
		return Config{}, fmt.Errorf("INFERENCE_WORKERS must be positive, got %d", cfg.Workers)
	}
	return cfg, nil
}

// parser records the first malformed value and keeps returning defaults after it.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) stringValue(key, fallback string) string {
	if value := p.getenv(key); value != "" {
		return value
	}
	return fallback
}

func (p *parser) intValue(key string, fallback int) int {
	value := p.getenv(key)
	if value == "" || p.err != nil {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		return fallback
	}
	return n
}

func (p *parser) durationValue(key string, fallback time.Duration) time.Duration {
	value := p.getenv(key)
	if value == "" || p.err != nil {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		return fallback
	}
	return d
}

func (p *parser) boolValue(key string, fallback bool) bool {
	value := p.getenv(key)
	if value == "" || p.err != nil {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		return fallback
	}
	return b
}
