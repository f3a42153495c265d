package gen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"
)

// Generated file names.
const (
	MainFile           = "main.go"
	TransformationFile = "transformation.go"
	MetamodelsFile     = "metamodels.go"
	HelpersFile        = "helpers.go"
	GoModFile          = "go.mod"
)

// GeneratedHeader marks the files owned by the generator.
const GeneratedHeader = "Code generated by synchro. DO NOT EDIT."

// Project describes a generated project.
type Project struct {
	// Name is the transformation name.
	Name string
	// Dir is the project directory.
	Dir string
	// Descriptor is the path of the build descriptor.
	Descriptor string
	// Files lists the generated file names, sorted.
	Files []string
	// Order is the creation order of the rules.
	Order []*Rule
}

// JenniferGenerator generates the synchronization program with Jennifer.
// Files are emitted in creation order, rendered in parallel into a staging
// directory and published into the target directory only when every file
// succeeded.
type JenniferGenerator struct {
	annotated *Annotated
	config    *Config
	dialect   MinimalDialect
}

// NewJenniferGenerator creates a new Jennifer-based generator.
// You must call WithDialect() to set a dialect before calling Generate().
//
// Example:
//
//	import "github.com/syssam/synchro/compiler/gen/gosync"
//
//	gen := gen.NewJenniferGenerator(annotated, cfg)
//	gen.WithDialect(gosync.NewDialect(gen))
//	project, err := gen.Generate(ctx)
func NewJenniferGenerator(a *Annotated, c *Config) *JenniferGenerator {
	return &JenniferGenerator{annotated: a, config: c}
}

// WithDialect sets the dialect generator.
func (g *JenniferGenerator) WithDialect(d MinimalDialect) *JenniferGenerator {
	if d != nil {
		g.dialect = d
	}
	return g
}

// fileTask renders one file of the project.
type fileTask struct {
	name   string
	render func(path string) ([]byte, error)
}

// Generate writes the project into the configured target directory.
// Returns an error if no dialect has been set via WithDialect(). On error
// nothing is written to the target directory.
func (g *JenniferGenerator) Generate(ctx context.Context) (*Project, error) {
	if g.dialect == nil {
		return nil, NewConfigError("Dialect", nil, "no dialect set: call WithDialect() before Generate()")
	}
	if g.config == nil || g.config.Target == "" {
		return nil, NewConfigError("Target", nil, "missing target directory in config")
	}
	if err := checkNames(g.annotated.Graph); err != nil {
		return nil, err
	}
	final, err := g.finalize()
	if err != nil {
		return nil, err
	}
	g.annotated = final
	logger := g.config.Logger
	logger.Debug("resolved creation order", "rules", ruleNames(final.Order))

	tasks, err := g.emit()
	if err != nil {
		return nil, err
	}
	target, err := filepath.Abs(g.config.Target)
	if err != nil {
		return nil, NewGenerationError(KindIO, "", "resolve target directory", err)
	}
	staging, err := g.stage(ctx, target, tasks)
	if staging != "" {
		defer os.RemoveAll(staging)
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.name
	}
	slices.Sort(names)
	if err := publish(staging, target, names); err != nil {
		return nil, err
	}
	name := g.name()
	logger.Info("generated transformation", "name", name, "dir", target, "files", len(names), "rules", len(final.Order))
	return &Project{
		Name:       name,
		Dir:        target,
		Descriptor: filepath.Join(target, name+DescriptorExt),
		Files:      names,
		Order:      final.Order,
	}, nil
}

// finalize schedules the deferred containment bindings against every rule
// that could produce their values. A cycle introduced by them is a
// containment cycle.
func (g *JenniferGenerator) finalize() (*Annotated, error) {
	a := g.annotated
	if len(a.Deferred) == 0 {
		return a, nil
	}
	extra := make(map[*Rule][]*Rule)
	for _, d := range a.Deferred {
		if d.Binding.Feature == nil {
			continue
		}
		extra[d.Rule] = append(extra[d.Rule], a.Producers(nil, d.Binding.Feature, d.Rule)...)
	}
	order, err := Schedule(a, extra)
	if err != nil {
		var re *ResolutionError
		if errors.As(err, &re) {
			return nil, NewGenerationError(KindContainmentCycle, re.Element, re.Message, nil)
		}
		return nil, err
	}
	final := *a
	final.Order = order
	return &final, nil
}

// emit calls the dialect sequentially, in a fixed order.
func (g *JenniferGenerator) emit() ([]fileTask, error) {
	var tasks []fileTask
	add := func(name string, gen func() (*jen.File, error)) error {
		f, err := gen()
		if err != nil {
			return err
		}
		if f == nil {
			return nil
		}
		tasks = append(tasks, fileTask{name: name, render: renderJen(f)})
		return nil
	}
	if err := add(TransformationFile, g.dialect.GenTransformation); err != nil {
		return nil, err
	}
	if err := add(MetamodelsFile, g.dialect.GenMetamodels); err != nil {
		return nil, err
	}
	if err := add(HelpersFile, g.dialect.GenHelpers); err != nil {
		return nil, err
	}
	for _, r := range g.annotated.Order {
		if err := add(r.FileName(), func() (*jen.File, error) { return g.dialect.GenRule(r) }); err != nil {
			return nil, err
		}
	}
	w, err := NewTemplateWriter()
	if err != nil {
		return nil, err
	}
	data := mainData{RuntimePkg: g.RuntimePkg(), Header: g.headerLines()}
	tasks = append(tasks, fileTask{name: MainFile, render: func(path string) ([]byte, error) {
		return w.Render(path, "main", data)
	}})
	desc := func(string) ([]byte, error) { return g.descriptor() }
	tasks = append(tasks,
		fileTask{name: g.name() + DescriptorExt, render: desc},
		fileTask{name: GoModFile, render: desc},
	)
	return tasks, nil
}

func renderJen(f *jen.File) func(string) ([]byte, error) {
	return func(string) ([]byte, error) {
		var buf bytes.Buffer
		if err := f.Render(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// stage renders the tasks in parallel into a new directory next to target.
func (g *JenniferGenerator) stage(ctx context.Context, target string, tasks []fileTask) (string, error) {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", NewGenerationError(KindIO, "", "create output directory", err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(target)+"-*")
	if err != nil {
		return "", NewGenerationError(KindIO, "", "create staging directory", err)
	}
	errg, ctx := errgroup.WithContext(ctx)
	errg.SetLimit(g.config.Workers)
	for _, t := range tasks {
		errg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(staging, t.name)
			data, err := t.render(path)
			if err != nil {
				return wrapRender(t.name, err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return NewGenerationError(KindIO, t.name, "write file", err)
			}
			return nil
		})
	}
	return staging, errg.Wait()
}

func wrapRender(name string, err error) error {
	var genErr *GenerationError
	if errors.As(err, &genErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewGenerationError(KindIO, name, "render file", err)
}

// publish moves the staged files into target and prunes generated files a
// previous run left behind. Files moved before a failure are removed again.
func publish(staging, target string, names []string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return NewGenerationError(KindIO, "", "create target directory", err)
	}
	for i, name := range names {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(target, name)); err != nil {
			for _, done := range names[:i] {
				os.Remove(filepath.Join(target, done))
			}
			return NewGenerationError(KindIO, name, "publish file", err)
		}
	}
	return prune(target, names)
}

// prune removes generated Go files of target that are not in keep.
func prune(target string, keep []string) error {
	entries, err := os.ReadDir(target)
	if err != nil {
		return NewGenerationError(KindIO, "", "read target directory", err)
	}
	header := []byte("// " + GeneratedHeader)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".go" || slices.Contains(keep, e.Name()) {
			continue
		}
		path := filepath.Join(target, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return NewGenerationError(KindIO, e.Name(), "read stale file", err)
		}
		if bytes.HasPrefix(data, header) {
			if err := os.Remove(path); err != nil {
				return NewGenerationError(KindIO, e.Name(), "remove stale file", err)
			}
		}
	}
	return nil
}

func ruleNames(rules []*Rule) string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return strings.Join(names, ",")
}

// name returns the transformation name.
func (g *JenniferGenerator) name() string {
	if g.config.Name != "" {
		return g.config.Name
	}
	return g.annotated.Graph.Module.Name
}

// modulePath returns the module path of the generated project.
func (g *JenniferGenerator) modulePath() string {
	if g.config.ModulePath != "" {
		return g.config.ModulePath
	}
	return snake(g.name())
}

func (g *JenniferGenerator) headerLines() []string {
	if g.config.Header == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(g.config.Header, "\n"), "\n")
}

// =============================================================================
// GeneratorHelper interface implementation
// =============================================================================

// NewFile creates a new Jennifer file with the header comment.
func (g *JenniferGenerator) NewFile(pkg string) *jen.File {
	f := jen.NewFile(pkg)
	f.HeaderComment(GeneratedHeader)
	for _, line := range g.headerLines() {
		f.HeaderComment(line)
	}
	return f
}

// Annotated returns the annotated graph with the final creation order.
func (g *JenniferGenerator) Annotated() *Annotated {
	return g.annotated
}

// Config returns the generation config.
func (g *JenniferGenerator) Config() *Config {
	return g.config
}

// RuntimePkg returns the import path of the runtime package.
func (g *JenniferGenerator) RuntimePkg() string {
	return g.config.RuntimePath
}

// MetamodelPkg returns the import path of the metamodel package.
func (g *JenniferGenerator) MetamodelPkg() string {
	return path.Join(g.config.RuntimePath, "metamodel")
}

// Describe renders the creation order and role table of a as text.
func Describe(a *Annotated) string {
	var b strings.Builder
	g := a.Graph
	fmt.Fprintf(&b, "module %s\n", g.Module.Name)
	for _, r := range g.In {
		fmt.Fprintf(&b, "  in  %-8s %s\n", r.Name, r.Metamodel.Name)
	}
	for _, r := range g.Out {
		fmt.Fprintf(&b, "  out %-8s %s\n", r.Name, r.Metamodel.Name)
	}
	b.WriteString("order\n")
	for i, r := range a.Order {
		ri := a.RuleInfo(r)
		var flags []string
		if r.Lazy {
			flags = append(flags, "lazy")
		}
		if r.Abstract {
			flags = append(flags, "abstract")
		}
		if ri.Parent != nil {
			flags = append(flags, "extends "+ri.Parent.Name)
		}
		var src, dst []string
		for _, p := range ri.Sources {
			src = append(src, fmt.Sprintf("%s:%s@%s", p.Var, p.Class.Name, p.Role.Name))
		}
		for _, p := range ri.Targets {
			dst = append(dst, fmt.Sprintf("%s:%s@%s", p.Var, p.Class.Name, p.Role.Name))
		}
		fmt.Fprintf(&b, "  %2d %s (%s) -> (%s)", i+1, r.Name, strings.Join(src, ", "), strings.Join(dst, ", "))
		if len(flags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(flags, ", "))
		}
		if len(ri.Deps) > 0 {
			fmt.Fprintf(&b, " after %s", ruleNames(ri.Deps))
		}
		b.WriteString("\n")
	}
	return b.String()
}
