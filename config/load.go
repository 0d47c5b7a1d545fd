package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tetratelabs/multierror"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding file settings.
const (
	EnvServiceName = "CTRACE_SERVICE_NAME"
	EnvSampleRate  = "CTRACE_SAMPLE_RATE"
	EnvPropagators = "CTRACE_PROPAGATORS"
	EnvZipkinURL   = "CTRACE_ZIPKIN_URL"
)

// Load reads the YAML file at path, then applies defaults and environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %q", path)
	}
	return cfg, nil
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return finish(&cfg)
}

// FromEnv builds a configuration from the defaults and the environment only.
func FromEnv() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var mErr error

	if v := os.Getenv(EnvServiceName); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv(EnvSampleRate); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			mErr = multierror.Append(mErr, errors.Wrap(err, EnvSampleRate))
		} else {
			cfg.SampleRate = &rate
		}
	}
	if v := os.Getenv(EnvPropagators); v != "" {
		var names []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		cfg.Propagators = names
	}
	if v := os.Getenv(EnvZipkinURL); v != "" {
		cfg.Zipkin.URL = v
	}

	return mErr
}
