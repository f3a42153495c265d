// Package synchro is the runtime of generated synchronization programs. It
// loads in-models, keeps the trace of rule applications, evaluates binding
// values and writes the out-models once every rule has completed.
package synchro

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/syssam/synchro/metamodel"
)

// Transformation is implemented by generated programs.
type Transformation interface {
	// Name returns the transformation name.
	Name() string
	// InModels returns the in-model roles in declaration order.
	InModels() []ModelDecl
	// OutModels returns the out-model roles in declaration order.
	OutModels() []ModelDecl
	// Transform applies every rule in creation order.
	Transform(c *Context) error
}

// ModelDecl declares a model role of a transformation.
type ModelDecl struct {
	Role      string
	Metamodel *metamodel.Metamodel
	// Rules lists the rules producing elements of an out-model, in
	// creation order.
	Rules []string
	// New instantiates an empty out-model.
	New func() *Model
}

// elementNamespace seeds the ids of created target elements.
var elementNamespace = uuid.MustParse("5c3f8f2e-8a47-4f43-9d7e-2f6c1b0e9a31")

// NewElementID derives the id of a target element from the rule, the target
// variable and the matched sources, so repeated runs produce the same ids.
func NewElementID(rule, variable string, sources []*Element) string {
	return uuid.NewSHA1(elementNamespace, []byte(rule+"\x00"+variable+"\x00"+sourceKey(sources))).String()
}

// Option configures Execute.
type Option func(*options)

type options struct {
	logger *log.Logger
}

// WithLogger sets the logger used during execution.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Execute runs t. inPaths and outPaths are ordered like the declared roles.
// All in-models are loaded before any rule runs and the out-models are
// written only after Transform succeeded. On failure no out-model file is
// created or replaced: outputs already moved into place are rolled back to
// their previous content.
func Execute(ctx context.Context, t Transformation, inPaths, outPaths []string, opts ...Option) (*Context, error) {
	o := &options{logger: log.Default()}
	for _, opt := range opts {
		opt(o)
	}
	ins, outs := t.InModels(), t.OutModels()
	if len(inPaths) != len(ins) || len(outPaths) != len(outs) {
		return nil, &UsageError{Want: roles(ins, outs), Got: len(inPaths) + len(outPaths)}
	}

	inModels := make([]*Model, len(ins))
	for i, d := range ins {
		m, err := LoadModel(inPaths[i], d.Role, d.Metamodel)
		if err != nil {
			return nil, err
		}
		o.logger.Debug("loaded model", "role", d.Role, "path", inPaths[i], "elements", m.Len())
		inModels[i] = m
	}
	outModels := make([]*Model, len(outs))
	for i, d := range outs {
		if d.New != nil {
			outModels[i] = d.New()
		} else {
			outModels[i] = NewModel(d.Role, d.Metamodel)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := NewContext(inModels, outModels)
	c.SetLogger(o.logger)
	if err := t.Transform(c); err != nil {
		return c, fmt.Errorf("%s: %w", t.Name(), err)
	}
	if err := c.Err(); err != nil {
		return c, fmt.Errorf("%s: %w", t.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return c, err
	}

	staged := make([]string, 0, len(outs))
	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}
	for i, m := range outModels {
		tmp, err := stageModel(outPaths[i], m)
		if err != nil {
			cleanup()
			return c, NewModelError("save", m.role, outPaths[i], err)
		}
		staged = append(staged, tmp)
	}
	if i, err := publishModels(staged, outPaths); err != nil {
		cleanup()
		return c, NewModelError("save", outModels[i].role, outPaths[i], err)
	}
	for i := range outModels {
		o.logger.Info("wrote model", "role", outs[i].Role, "path", outPaths[i], "elements", outModels[i].Len(), "rules", strings.Join(outs[i].Rules, ","))
	}
	return c, nil
}

func roles(ins, outs []ModelDecl) []string {
	out := make([]string, 0, len(ins)+len(outs))
	for _, d := range ins {
		out = append(out, d.Role)
	}
	for _, d := range outs {
		out = append(out, d.Role)
	}
	return out
}

// Main is the entry point of generated programs. args holds one path per
// in-role followed by one path per out-role. It returns the process exit code.
func Main(ctx context.Context, t Transformation, args []string) int {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: t.Name()})
	if os.Getenv("SYNCHRO_DEBUG") != "" {
		logger.SetLevel(log.DebugLevel)
	}
	if len(args) == 1 && (args[0] == "-h" || args[0] == "--help") {
		fmt.Fprintf(os.Stderr, "usage: %s %s\n", t.Name(), strings.Join(roles(t.InModels(), t.OutModels()), " "))
		return 0
	}
	n := min(len(t.InModels()), len(args))
	if _, err := Execute(ctx, t, args[:n], args[n:], WithLogger(logger)); err != nil {
		logger.Error("transformation failed", "err", err)
		var usage *UsageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}
