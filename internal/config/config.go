// Package config reads daemon settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderBackend = "backend"
	ProviderOpenAI  = "openai"
	ProviderCompat  = "compat"
)

type Config struct {
	APIBaseURL    string
	APITimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	SocksProxy    string

	ActivityCapacity int
	ProgressTick     time.Duration
	ProgressStepMin  int
	ProgressStepMax  int

	WhisperModel    string
	SpeechLanguage  string
	PartialInterval time.Duration
	BeepFile        string
	TriggersFile    string

	AgentProvider string
	OpenAIKey     string
	AgentBaseURL  string
	AgentModel    string

	BusURL     string
	SocketPath string
	DuckFactor float64
}

// Load reads envFile (a missing file is fine) and then the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var p parser
	c := Config{
		APIBaseURL:    p.str("API_BASE_URL", "http://0.0.0.0:8000/api/v1"),
		APITimeout:    p.duration("API_TIMEOUT", 10*time.Second),
		RetryAttempts: p.int("API_RETRY_ATTEMPTS", 3),
		RetryDelay:    p.duration("API_RETRY_DELAY", time.Second),
		SocksProxy:    p.str("SOCKS_PROXY", ""),

		ActivityCapacity: p.int("ACTIVITY_CAPACITY", 10),
		ProgressTick:     p.duration("PROGRESS_TICK", 300*time.Millisecond),
		ProgressStepMin:  p.int("PROGRESS_STEP_MIN", 5),
		ProgressStepMax:  p.int("PROGRESS_STEP_MAX", 20),

		WhisperModel:    p.str("WHISPER_MODEL", ""),
		SpeechLanguage:  p.str("SPEECH_LANGUAGE", "en"),
		PartialInterval: p.duration("PARTIAL_INTERVAL", 1500*time.Millisecond),
		BeepFile:        p.str("BEEP_FILE", "beep.mp3"),
		TriggersFile:    p.str("TRIGGERS_FILE", ""),

		AgentProvider: strings.ToLower(p.str("AGENT_PROVIDER", ProviderBackend)),
		OpenAIKey:     p.str("OPENAI_API_KEY", ""),
		AgentBaseURL:  p.str("AGENT_BASE_URL", ""),
		AgentModel:    p.str("AGENT_MODEL", ""),

		BusURL:     p.str("BUS_URL", ""),
		SocketPath: p.str("SOCKET_PATH", "/tmp/orchestra.sock"),
		DuckFactor: p.float("DUCK_FACTOR", 0.3),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL is empty"))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, errors.New("API_TIMEOUT must be positive"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("API_RETRY_ATTEMPTS must be at least 1"))
	}
	if c.ActivityCapacity <= 0 {
		errs = append(errs, errors.New("ACTIVITY_CAPACITY must be positive"))
	}
	if c.ProgressTick <= 0 {
		errs = append(errs, errors.New("PROGRESS_TICK must be positive"))
	}
	if c.ProgressStepMin <= 0 || c.ProgressStepMin > c.ProgressStepMax {
		errs = append(errs, fmt.Errorf("progress steps out of order: %d > %d", c.ProgressStepMin, c.ProgressStepMax))
	}
	if c.DuckFactor < 0 || c.DuckFactor > 1 {
		errs = append(errs, errors.New("DUCK_FACTOR must be within [0, 1]"))
	}

	switch c.AgentProvider {
	case ProviderBackend:
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	case ProviderCompat:
		if c.AgentBaseURL == "" {
			errs = append(errs, errors.New("AGENT_BASE_URL not set"))
		}
		if c.AgentModel == "" {
			errs = append(errs, errors.New("AGENT_MODEL not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AGENT_PROVIDER %q", c.AgentProvider))
	}

	return errors.Join(errs...)
}

// parser keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

// duration accepts Go durations ("1.5s") or plain milliseconds ("1500").
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}
