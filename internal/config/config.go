// Package config loads the CLI configuration from synchro.yaml, SYNCHRO_*
// environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/syssam/synchro/compiler/gen"
)

// Environment variable prefix for synchro configuration.
const envPrefix = "SYNCHRO"

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "synchro.yaml"

// Config is the CLI configuration.
type Config struct {
	Output         string `mapstructure:"output"`
	RuntimePath    string `mapstructure:"runtime_path"`
	RuntimeVersion string `mapstructure:"runtime_version"`
	RuntimeDir     string `mapstructure:"runtime_dir"`
	GoVersion      string `mapstructure:"go_version"`
	Workers        int    `mapstructure:"workers"`
	Verbose        bool   `mapstructure:"verbose"`
}

// Loader handles loading and merging configuration from multiple sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("output", "out")
	v.SetDefault("runtime_path", gen.DefaultRuntimePath)
	v.SetDefault("runtime_version", gen.DefaultRuntimeVersion)
	v.SetDefault("go_version", gen.DefaultGoVersion)
	v.SetDefault("workers", 0)
	v.SetDefault("verbose", false)

	return &Loader{v: v}
}

// BindFlags binds command flags to configuration keys. Flag names use
// dashes where keys use underscores. Flags set on the command line take
// precedence over the environment and the file.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !l.known(key) {
			return
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func (l *Loader) known(key string) bool {
	switch key {
	case "output", "runtime_path", "runtime_version", "runtime_dir", "go_version", "workers", "verbose":
		return true
	}
	return false
}

// Load loads configuration from the given file path. If configFile is
// empty, synchro.yaml in the working directory is used when present.
// Environment variables take precedence over file values.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			configFile = DefaultFile
		}
	}
	if configFile != "" {
		l.v.SetConfigFile(configFile)
		l.v.SetConfigType("yaml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// GenOptions returns the code generation options of the configuration.
func (c *Config) GenOptions() []gen.Option {
	opts := []gen.Option{
		gen.WithRuntimePath(c.RuntimePath),
		gen.WithRuntimeVersion(c.RuntimeVersion),
		gen.WithGoVersion(c.GoVersion),
	}
	if c.RuntimeDir != "" {
		opts = append(opts, gen.WithRuntimeDir(c.RuntimeDir))
	}
	if c.Workers > 0 {
		opts = append(opts, gen.WithWorkers(c.Workers))
	}
	return opts
}
