package gen

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
)

// Defaults of the generated project.
const (
	DefaultRuntimePath    = "github.com/syssam/synchro"
	DefaultRuntimeVersion = "v0.0.0"
	DefaultGoVersion      = "1.24"
	// DescriptorExt is the extension of the build descriptor.
	DescriptorExt = ".mod"
)

// Config holds the generation settings.
type Config struct {
	// Target is the output directory of the generated project.
	Target string
	// Name is the transformation name. It names the build descriptor and the
	// executable. Defaults to the module name.
	Name string
	// ModulePath is the module path of the generated project.
	ModulePath string
	// RuntimePath is the import path of the runtime package.
	RuntimePath string
	// RuntimeVersion is the required version of the runtime module.
	RuntimeVersion string
	// RuntimeDir, if set, replaces the runtime module with a local directory.
	RuntimeDir string
	// GoVersion is the go directive of the generated project.
	GoVersion string
	// Header is written at the top of generated files.
	Header string
	// Workers bounds parallel file rendering.
	Workers int
	// Logger receives progress messages.
	Logger *log.Logger
}

// Option configures code generation.
type Option func(*Config) error

// WithTarget sets the output directory.
func WithTarget(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return NewConfigError("Target", nil, "target directory cannot be empty")
		}
		c.Target = dir
		return nil
	}
}

// WithName sets the transformation name.
func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" || strings.ContainsAny(name, `/\ `) {
			return NewConfigError("Name", name, "name must be a non-empty file name")
		}
		c.Name = name
		return nil
	}
}

// WithModulePath sets the module path of the generated project.
func WithModulePath(path string) Option {
	return func(c *Config) error {
		if err := module.CheckImportPath(path); err != nil {
			return NewConfigError("ModulePath", path, err.Error())
		}
		c.ModulePath = path
		return nil
	}
}

// WithRuntimePath sets the import path of the runtime package.
func WithRuntimePath(path string) Option {
	return func(c *Config) error {
		if err := module.CheckImportPath(path); err != nil {
			return NewConfigError("RuntimePath", path, err.Error())
		}
		c.RuntimePath = path
		return nil
	}
}

// WithRuntimeVersion sets the required runtime module version.
func WithRuntimeVersion(version string) Option {
	return func(c *Config) error {
		if !semver.IsValid(version) {
			return NewConfigError("RuntimeVersion", version, "version must be a semantic version such as v1.2.3")
		}
		c.RuntimeVersion = version
		return nil
	}
}

// WithRuntimeDir replaces the runtime module with a local directory.
func WithRuntimeDir(dir string) Option {
	return func(c *Config) error {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return NewConfigError("RuntimeDir", dir, err.Error())
		}
		c.RuntimeDir = abs
		return nil
	}
}

// WithGoVersion sets the go directive of the generated project.
func WithGoVersion(version string) Option {
	return func(c *Config) error {
		if !semver.IsValid("v" + version) {
			return NewConfigError("GoVersion", version, "version must look like 1.24 or 1.24.1")
		}
		c.GoVersion = version
		return nil
	}
}

// WithHeader sets the file header comment.
// The header is added at the top of each generated file.
func WithHeader(header string) Option {
	return func(c *Config) error {
		c.Header = header
		return nil
	}
}

// WithWorkers sets the number of parallel rendering workers.
func WithWorkers(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return NewConfigError("Workers", n, "workers cannot be negative")
		}
		c.Workers = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return NewConfigError("Logger", nil, "logger cannot be nil")
		}
		c.Logger = l
		return nil
	}
}

// Apply applies options to the config.
// It returns the first error encountered.
func (c *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// ApplyAll applies options and collects all errors.
// Returns a joined error if any options failed.
func (c *Config) ApplyAll(opts ...Option) error {
	var errs []error
	for _, opt := range opts {
		if err := opt(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewConfig creates a new Config with the given options and fills in
// defaults.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{}
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	c.defaults()
	return c, nil
}

// MustNewConfig creates a new Config with the given options.
// It panics if any option fails.
func MustNewConfig(opts ...Option) *Config {
	c, err := NewConfig(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Config) defaults() {
	if c.RuntimePath == "" {
		c.RuntimePath = DefaultRuntimePath
	}
	if c.RuntimeVersion == "" {
		c.RuntimeVersion = DefaultRuntimeVersion
	}
	if c.GoVersion == "" {
		c.GoVersion = DefaultGoVersion
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

