// Package output holds the CLI logger. Every line carries the synchro prefix;
// compiler stages log through a child logger tagged with the stage name.
package output

import (
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/syssam/synchro/compiler/gen"
)

// Prefix starts every CLI log line.
const Prefix = "synchro"

// Pipeline stages used as the "stage" field.
const (
	StageGenerate = "generate"
	StageBuild    = "build"
	StageRun      = "run"
	StageWatch    = "watch"
	StageInspect  = "inspect"
)

// Logger is the CLI logger. It is replaced by SetupLogging.
var Logger = newLogger(os.Stderr, false)

func newLogger(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          Prefix,
		Level:           level,
		ReportTimestamp: verbose,
		ReportCaller:    verbose,
	})
}

// SetupLogging configures the logger based on verbosity.
func SetupLogging(verbose bool) {
	SetupLoggingTo(os.Stderr, verbose)
}

// SetupLoggingTo is SetupLogging writing to w.
func SetupLoggingTo(w io.Writer, verbose bool) {
	Logger = newLogger(w, verbose)
}

// Stage returns a logger whose lines carry stage=name. The compiler and the
// build driver receive it through their WithLogger options.
func Stage(name string) *log.Logger {
	return Logger.With("stage", name)
}

// Failed logs err for a stage. Compiler errors also report their kind so a
// NameConflict or DuplicateDeclaration reads without parsing the message.
func Failed(stage string, err error) {
	keyvals := []any{"stage", stage}
	if kind := gen.KindOf(err); kind != "" {
		keyvals = append(keyvals, "kind", string(kind))
	}
	Logger.Error(err.Error(), keyvals...)
}

// Debug logs a debug message.
func Debug(msg string, keyvals ...any) {
	Logger.Debug(msg, keyvals...)
}

// Info logs an info message.
func Info(msg string, keyvals ...any) {
	Logger.Info(msg, keyvals...)
}

// Warn logs a warning message.
func Warn(msg string, keyvals ...any) {
	Logger.Warn(msg, keyvals...)
}
