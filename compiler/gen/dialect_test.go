package gen_test

import (
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/synchro/compiler/gen"
)

// mockDialect writes one marker declaration per generated file.
type mockDialect struct {
	h gen.GeneratorHelper
	// failRule makes GenRule fail for the named rule.
	failRule string
	// rules records the GenRule calls in order.
	rules []string
}

var _ gen.MinimalDialect = (*mockDialect)(nil)

func (m *mockDialect) Name() string { return "mock" }

func (m *mockDialect) GenRule(r *gen.Rule) (*jen.File, error) {
	m.rules = append(m.rules, r.Name)
	if r.Name == m.failRule {
		return nil, gen.NewGenerationError(gen.KindFeatureResolution, r.Name, "forced failure", nil)
	}
	f := m.h.NewFile("main")
	f.Var().Id(r.SpecVar()).Op("=").Lit(r.Name)
	return f, nil
}

func (m *mockDialect) GenTransformation() (*jen.File, error) {
	f := m.h.NewFile("main")
	f.Var().Id("order").Op("=").Index().String().ValuesFunc(func(g *jen.Group) {
		for _, r := range m.h.Annotated().Order {
			g.Lit(r.Name)
		}
	})
	return f, nil
}

func (m *mockDialect) GenMetamodels() (*jen.File, error) {
	f := m.h.NewFile("main")
	for _, mm := range m.h.Annotated().Graph.Metamodels {
		f.Var().Id(gen.MetamodelVar(mm)).Op("=").Lit(mm.Name)
	}
	return f, nil
}

func (m *mockDialect) GenHelpers() (*jen.File, error) {
	f := m.h.NewFile("main")
	f.Comment(fmt.Sprintf("%d helpers", len(m.h.Annotated().Graph.Helpers)))
	return f, nil
}
