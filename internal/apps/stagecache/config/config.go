// Package appconfig holds the stagecache CLI configuration: file locations
// and the optional config.yaml.
package appconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	RuntimeLocal  = "local"
	RuntimeDocker = "docker"
)

const envPrefix = "STAGECACHE_"

// Config is the merged configuration. Command-line flags take precedence
// over it.
type Config struct {
	// Runtime executes instructions: "local" records artifacts without running
	// anything, "docker" builds on the Docker engine.
	Runtime string `yaml:"runtime"`

	// Concurrency bounds the number of stages executing at once. Zero means
	// one per CPU.
	Concurrency int `yaml:"concurrency"`

	// StateDB is the sqlite database of the local runtime.
	StateDB string `yaml:"state_db"`

	// CacheFrom lists cache sources consulted on every build.
	CacheFrom []string `yaml:"cache_from"`

	// RunLogs keeps a full log of every invocation under the config dir.
	RunLogs bool `yaml:"run_logs"`
}

func Default() Config {
	return Config{
		Runtime: RuntimeLocal,
		StateDB: StateDBFile(),
	}
}

// Load reads the config file at path (a missing file yields defaults) and
// applies STAGECACHE_* overrides from the environment.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookupEnv func(string) (string, bool)) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	if v, ok := lookupEnv(envPrefix + "RUNTIME"); ok {
		cfg.Runtime = v
	}
	if v, ok := lookupEnv(envPrefix + "CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCONCURRENCY: %w", envPrefix, err)
		}
		cfg.Concurrency = n
	}
	if v, ok := lookupEnv(envPrefix + "STATE_DB"); ok {
		cfg.StateDB = v
	}
	if v, ok := lookupEnv(envPrefix + "CACHE_FROM"); ok {
		cfg.CacheFrom = nil
		for ref := range strings.SplitSeq(v, ",") {
			if ref = strings.TrimSpace(ref); ref != "" {
				cfg.CacheFrom = append(cfg.CacheFrom, ref)
			}
		}
	}
	if v, ok := lookupEnv(envPrefix + "RUN_LOGS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sRUN_LOGS: %w", envPrefix, err)
		}
		cfg.RunLogs = b
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Runtime {
	case RuntimeLocal, RuntimeDocker:
	default:
		return fmt.Errorf("unknown runtime %q (want %s or %s)", c.Runtime, RuntimeLocal, RuntimeDocker)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Runtime == RuntimeLocal && c.StateDB == "" {
		return errors.New("state_db is required by the local runtime")
	}
	return nil
}
