// Package build compiles generated projects and runs the resulting
// programs.
package build

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/syssam/synchro/compiler/gen"
)

// Output directories of a generated project.
const (
	BinDir = "bin"
	ObjDir = "obj"
)

// Option configures Build and Run.
type Option func(*options)

type options struct {
	goTool string
	env    []string
	logger *log.Logger
}

// WithGoTool sets the go command used by Build.
func WithGoTool(path string) Option {
	return func(o *options) {
		if path != "" {
			o.goTool = path
		}
	}
}

// WithEnv adds environment variables, as KEY=value, to the build and the
// program.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{goTool: "go", logger: log.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) environ() []string {
	if len(o.env) == 0 {
		return nil
	}
	return append(os.Environ(), o.env...)
}

// Executable returns the path of the program built for the project in dir.
func Executable(dir, name string) string {
	exe := filepath.Join(dir, BinDir, name)
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}
	return exe
}

// Clean removes the build outputs of the project in dir.
func Clean(dir string) error {
	for _, sub := range []string{BinDir, ObjDir} {
		if err := os.RemoveAll(filepath.Join(dir, sub)); err != nil {
			return err
		}
	}
	return nil
}

// Build compiles the project described by descriptorPath and returns the
// path of the executable. On failure the returned *BuildError carries the
// toolchain output verbatim.
func Build(ctx context.Context, descriptorPath string, opts ...Option) (string, error) {
	o := newOptions(opts)
	dir := filepath.Dir(descriptorPath)
	base := filepath.Base(descriptorPath)
	if filepath.Ext(base) != gen.DescriptorExt {
		return "", &BuildError{Descriptor: descriptorPath, Err: errors.New("descriptor must have the " + gen.DescriptorExt + " extension")}
	}
	exe := Executable(dir, strings.TrimSuffix(base, gen.DescriptorExt))
	cmd := exec.CommandContext(ctx, o.goTool, "build", "-modfile="+base, "-mod=mod", "-o", exe, ".")
	cmd.Dir = dir
	cmd.Env = o.environ()
	o.logger.Debug("building", "dir", dir, "cmd", strings.Join(cmd.Args, " "))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &BuildError{Descriptor: descriptorPath, Output: string(out), Err: err}
	}
	if _, err := os.Stat(exe); err != nil {
		return "", &BuildError{Descriptor: descriptorPath, Output: string(out), Err: err}
	}
	o.logger.Info("built", "executable", exe)
	return exe, nil
}

// Run executes a generated program in workDir with the in-model paths
// followed by the out-model paths. It fails when the program exits with a
// non-zero status or an out-model file is missing afterwards.
func Run(ctx context.Context, executable, workDir string, inputs, outputs []string, opts ...Option) error {
	o := newOptions(opts)
	args := append(append([]string{}, inputs...), outputs...)
	cmd := exec.CommandContext(ctx, executable, args...)
	cmd.Dir = workDir
	cmd.Env = o.environ()
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	o.logger.Debug("running", "executable", executable, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		execErr := &ExecutionError{Executable: executable, Args: args, ExitCode: -1, Output: buf.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		return execErr
	}
	var missing []string
	for _, out := range outputs {
		path := out
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, out)
		}
	}
	if len(missing) > 0 {
		return &ExecutionError{Executable: executable, Args: args, Output: buf.String(), Missing: missing}
	}
	return nil
}
