package architect

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for a Scheduler.
type Config struct {
	// StartRate is the maximum number of jobs per second admitted to start
	// once released from the pause queue. Zero disables the limit.
	StartRate float64 `yaml:"start_rate"`

	// StartBurst is the limiter burst used together with StartRate.
	StartBurst int `yaml:"start_burst"`

	// HandlerTimeout bounds each handler invocation. Zero means no bound.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`

	// MessageReplay bounds how many outbound and channel messages a job
	// keeps for cursors opened later. Zero keeps every message.
	MessageReplay int `yaml:"message_replay"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StartRate:      0,
		StartBurst:     1,
		HandlerTimeout: 0,
		MessageReplay:  0,
	}
}

// LoadConfig decodes a YAML document over DefaultConfig.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("architect: decode config: %w", err)
	}
	if cfg.StartRate < 0 {
		return Config{}, fmt.Errorf("architect: start_rate must not be negative, got %v", cfg.StartRate)
	}
	if cfg.MessageReplay < 0 {
		return Config{}, fmt.Errorf("architect: message_replay must not be negative, got %v", cfg.MessageReplay)
	}
	if cfg.StartBurst < 1 {
		cfg.StartBurst = 1
	}
	return cfg, nil
}
