package gen_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/syssam/synchro/compiler/gen"
	"github.com/syssam/synchro/compiler/load"
	"github.com/syssam/synchro/metamodel"
)

// testdata returns the path of a file under the repository testdata
// directory.
func testdata(elem ...string) string {
	return filepath.Join(append([]string{"..", "..", "testdata"}, elem...)...)
}

func quietConfig(t *testing.T, opts ...gen.Option) *gen.Config {
	t.Helper()
	opts = append([]gen.Option{gen.WithLogger(log.New(io.Discard))}, opts...)
	c, err := gen.NewConfig(opts...)
	require.NoError(t, err)
	return c
}

// graphOf parses the module at path and builds its graph with the
// metamodels its bindings declare.
func graphOf(t *testing.T, path string, opts ...gen.Option) (*gen.Graph, error) {
	t.Helper()
	m, err := load.ParseFile(path)
	require.NoError(t, err)
	var mms []*metamodel.Metamodel
	for _, b := range append(append([]*load.ModelBinding{}, m.InModels...), m.OutModels...) {
		mm, err := metamodel.Load(filepath.Join(filepath.Dir(path), b.Path))
		require.NoError(t, err)
		mms = append(mms, mm)
	}
	return gen.NewGraph(quietConfig(t, opts...), m, dedupe(mms)...)
}

// dedupe keeps the first metamodel of each name, as the compiler loads
// each file once.
func dedupe(mms []*metamodel.Metamodel) []*metamodel.Metamodel {
	var out []*metamodel.Metamodel
	seen := make(map[string]bool)
	for _, mm := range mms {
		if !seen[mm.Name] {
			seen[mm.Name] = true
			out = append(out, mm)
		}
	}
	return out
}

// resolveFixture resolves a module of the testdata directory.
func resolveFixture(t *testing.T, elem ...string) *gen.Annotated {
	t.Helper()
	g, err := graphOf(t, testdata(elem...))
	require.NoError(t, err)
	a, err := gen.Resolve(g)
	require.NoError(t, err)
	return a
}

// A and B are small metamodels for inline modules.
const (
	metamodelA = `
name: A
classes:
  - name: Root
    features:
      - {name: name, type: string}
      - {name: items, type: Item, many: true, containment: true}
  - name: Item
    features:
      - {name: name, type: string}
  - name: Special
    supertypes: [Item]
`
	metamodelB = `
name: B
classes:
  - name: Container
    features:
      - {name: label, type: string}
      - {name: children, type: Node, many: true, containment: true}
  - name: Node
    features:
      - {name: label, type: string}
      - {name: inner, type: Node, containment: true}
`
	header = `
in "IN" {
  metamodel = "A"
}
out "OUT" {
  metamodel = "B"
}
`
)

// graphSource builds the graph of an inline module over A and B.
func graphSource(t *testing.T, src string) (*gen.Graph, error) {
	t.Helper()
	m, err := load.Parse([]byte(header+src), "inline.hcl")
	require.NoError(t, err)
	a, err := metamodel.Parse([]byte(metamodelA))
	require.NoError(t, err)
	b, err := metamodel.Parse([]byte(metamodelB))
	require.NoError(t, err)
	return gen.NewGraph(quietConfig(t, gen.WithTarget(t.TempDir())), m, a, b)
}

// resolveSource resolves an inline module over A and B.
func resolveSource(t *testing.T, src string) (*gen.Annotated, error) {
	t.Helper()
	g, err := graphSource(t, src)
	require.NoError(t, err)
	return gen.Resolve(g)
}

func ruleNames(rules []*gen.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Name
	}
	return out
}
