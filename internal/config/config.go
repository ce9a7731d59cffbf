// Package config loads gateway settings from an optional YAML file,
// layered under command-line flags and built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as a YAML string like
// "5m" or "100ms" instead of a raw nanosecond count.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("100ms") or a bare
// integer (nanoseconds).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil && value.ShortTag() != "!!int" {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var asNanos int64
	if err := value.Decode(&asNanos); err != nil {
		return fmt.Errorf("config: duration must be a string or integer nanoseconds")
	}
	*d = Duration(asNanos)
	return nil
}

// Config holds every tunable the gateway needs at startup.
type Config struct {
	// ListenAddr is the HTTP front dispatcher's bind address.
	ListenAddr string `yaml:"listen_addr"`

	// BackendPath and BackendArgs describe how to launch each session's
	// backend process.
	BackendPath string   `yaml:"backend_path"`
	BackendArgs []string `yaml:"backend_args"`

	// MaxSessions bounds the number of concurrent sessions the registry
	// will hold.
	MaxSessions int `yaml:"max_sessions"`

	// SessionTimeout is how long a non-idle session may go untouched
	// before the watchdog retires it.
	SessionTimeout Duration `yaml:"session_timeout"`

	// EvalTimeout bounds how long the dispatcher waits for a terminal eval
	// reply before returning whatever is available.
	EvalTimeout Duration `yaml:"eval_timeout"`

	// SweepInterval is how often the watchdog sweeps the registry.
	SweepInterval Duration `yaml:"sweep_interval"`

	// MonitorAddr, if non-empty, enables the read-only admin diagnostics
	// websocket on this bind address.
	MonitorAddr string `yaml:"monitor_addr"`
}

// Default returns the built-in baseline, used when no config file is
// given and no flag overrides a field.
func Default() Config {
	return Config{
		ListenAddr:     ":1441",
		BackendPath:    "./backend",
		BackendArgs:    nil,
		MaxSessions:    4,
		SessionTimeout: Duration(20 * time.Second),
		EvalTimeout:    Duration(500 * time.Millisecond),
		SweepInterval:  Duration(100 * time.Millisecond),
		MonitorAddr:    "",
	}
}

// Load reads path as YAML over top of Default(), leaving any field the
// file doesn't mention at its default. An empty path is a no-op — callers
// get the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
