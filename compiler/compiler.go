// Package compiler compiles a transformation module into a Go
// synchronization program: parse, build the rule graph, resolve and
// generate.
package compiler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/syssam/synchro/compiler/gen"
	"github.com/syssam/synchro/compiler/gen/gosync"
	"github.com/syssam/synchro/compiler/load"
	"github.com/syssam/synchro/metamodel"
)

// Generate compiles the module at specPath into a project under outputPath.
// inMetamodels and outMetamodels hold one metamodel file per in- and
// out-model binding, in declaration order; when a list is empty the paths
// declared by the bindings are used. name defaults to the module name.
// Nothing is written when any phase fails.
func Generate(ctx context.Context, name, specPath, outputPath string, inMetamodels, outMetamodels []string, opts ...gen.Option) (*gen.Project, error) {
	base := []gen.Option{gen.WithTarget(outputPath)}
	if name != "" {
		base = append(base, gen.WithName(name))
	}
	a, err := Resolve(specPath, inMetamodels, outMetamodels, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return gosync.Generate(ctx, a, a.Graph.Config)
}

// Resolve parses the module at specPath with its metamodels, builds the rule
// graph and resolves it.
func Resolve(specPath string, inMetamodels, outMetamodels []string, opts ...gen.Option) (*gen.Annotated, error) {
	cfg, err := gen.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	m, err := load.ParseFile(specPath)
	if err != nil {
		return nil, gen.NewParseError(gen.KindSyntax, "", "load module", err)
	}
	cfg.Logger.Debug("parsed module", "module", m.Name, "elements", len(m.Elements))

	l := &metamodels{dir: filepath.Dir(specPath), byPath: make(map[string]*metamodel.Metamodel)}
	in, err := l.bind(m.InModels, inMetamodels, "in")
	if err != nil {
		return nil, err
	}
	out, err := l.bind(m.OutModels, outMetamodels, "out")
	if err != nil {
		return nil, err
	}
	g, err := gen.NewGraph(cfg, m, append(in, out...)...)
	if err != nil {
		return nil, err
	}
	a, err := gen.Resolve(g)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Debug("resolved module", "module", m.Name, "rules", len(a.Order), "deferred", len(a.Deferred))
	return a, nil
}

// metamodels loads metamodel files once per path.
type metamodels struct {
	dir    string
	byPath map[string]*metamodel.Metamodel
}

// bind loads the metamodel of each binding, from paths when given and from
// the binding's declared path otherwise.
func (l *metamodels) bind(bindings []*load.ModelBinding, paths []string, dir string) ([]*metamodel.Metamodel, error) {
	if len(paths) > 0 && len(paths) != len(bindings) {
		return nil, gen.NewParseError(gen.KindMissingModel, "", fmt.Sprintf("%d %s-metamodel paths given for %d %s-model bindings", len(paths), dir, len(bindings), dir), nil)
	}
	out := make([]*metamodel.Metamodel, len(bindings))
	for i, b := range bindings {
		var path string
		switch {
		case len(paths) > 0:
			path = paths[i]
		case b.Path != "":
			path = b.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(l.dir, path)
			}
		default:
			err := gen.NewParseError(gen.KindMissingModel, b.Role, fmt.Sprintf("no metamodel path for %s-model %s", dir, b.Role), nil)
			err.Pos = b.Pos.String()
			return nil, err
		}
		mm, err := l.load(path)
		if err != nil {
			return nil, gen.NewParseError(gen.KindUnknownMetamodel, b.Role, "load metamodel", err)
		}
		if mm.Name != b.Metamodel {
			err := gen.NewParseError(gen.KindUnknownMetamodel, b.Role, fmt.Sprintf("%s-model %s conforms to %s, %s declares %s", dir, b.Role, b.Metamodel, path, mm.Name), nil)
			err.Pos = b.Pos.String()
			return nil, err
		}
		out[i] = mm
	}
	return out, nil
}

func (l *metamodels) load(path string) (*metamodel.Metamodel, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if mm, ok := l.byPath[abs]; ok {
		return mm, nil
	}
	mm, err := metamodel.Load(abs)
	if err != nil {
		return nil, err
	}
	l.byPath[abs] = mm
	return mm, nil
}
