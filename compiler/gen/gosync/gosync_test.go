package gosync_test

import (
	"context"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/synchro/compiler"
	"github.com/syssam/synchro/compiler/gen"
)

func testdata(elem ...string) string {
	return filepath.Join(append([]string{"..", "..", "..", "testdata"}, elem...)...)
}

// generate compiles a testdata module and returns the generated files by
// name. Every file must be valid Go source.
func generate(t *testing.T, elem ...string) map[string]string {
	t.Helper()
	target := t.TempDir()
	p, err := compiler.Generate(context.Background(), "", testdata(elem...), target, nil, nil, gen.WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	files := make(map[string]string, len(p.Files))
	fset := token.NewFileSet()
	for _, name := range p.Files {
		data, err := os.ReadFile(filepath.Join(target, name))
		require.NoError(t, err)
		files[name] = string(data)
		if filepath.Ext(name) == ".go" {
			_, err := parser.ParseFile(fset, name, data, parser.AllErrors)
			require.NoError(t, err, "%s:\n%s", name, data)
		}
	}
	return files
}

func TestFamilies2Persons(t *testing.T) {
	files := generate(t, "families2persons", "families2persons.hcl")

	helpers := files[gen.HelpersFile]
	assert.Contains(t, helpers, "func attrFamilyName(c *synchro.Context, self any) any {")
	assert.Contains(t, helpers, `c.Memo("familyName", vSelf, func() any {`)
	assert.Contains(t, helpers, `c.Cast(self, "Families", "Member", "familyName")`)
	assert.Contains(t, helpers, "func opIsFemale(c *synchro.Context, self any) any {")
	assert.NotContains(t, helpers, "func navigate(")
	assert.Less(t, strings.Index(helpers, "attrFamilyName"), strings.Index(helpers, "opIsFemale"), "helpers keep declaration order")

	male := files["rule_member2male.go"]
	assert.Contains(t, male, "var ruleMember2Male = &synchro.RuleSpec{")
	assert.Contains(t, male, "func matchMember2Male(c *synchro.Context, vS *synchro.Element) bool {")
	assert.Contains(t, male, `!vS.IsKindOf("Families", "Member")`)
	assert.Contains(t, male, "c.Truthy(c.Not(opIsFemale(c, vS)))")
	assert.Contains(t, male, "func createMember2Male(c *synchro.Context) error {")
	assert.Contains(t, male, `c.AllOf("IN", "Member")`)
	assert.Contains(t, male, "c.Instantiate(ruleMember2Male, vS)")
	assert.Contains(t, male, "func bindMember2Male(c *synchro.Context, l *synchro.Link) {")
	assert.Contains(t, male, `c.Bind("Member2Male", vT, "fullName", c.Concat(c.Get(vS, "firstName"), " ", attrFamilyName(c, vS)))`)
	assert.Contains(t, male, "func applyMember2Male(c *synchro.Context) {")
	assert.NotContains(t, male, "lazyMember2Male")

	tr := files[gen.TransformationFile]
	assert.Contains(t, tr, `return "Families2Persons"`)
	assert.Contains(t, tr, "func (transformation) Transform(c *synchro.Context) error {")
	assert.Contains(t, tr, "func newModelOut() *synchro.Model {")
	create := strings.Index(tr, "createMember2Male(c)")
	assert.Less(t, create, strings.Index(tr, "createMember2Female(c)"))
	assert.Less(t, strings.Index(tr, "createMember2Female(c)"), strings.Index(tr, "applyMember2Male(c)"), "every element exists before binding")

	mms := files[gen.MetamodelsFile]
	assert.Contains(t, mms, "var mmFamilies = metamodel.MustInit(&metamodel.Metamodel{")
	assert.Contains(t, mms, "var mmPersons = metamodel.MustInit(&metamodel.Metamodel{")
	assert.Contains(t, mms, `"http://synchro.dev/families"`)

	assert.Contains(t, files["Families2Persons.mod"], "module families2persons")
	assert.Equal(t, files["Families2Persons.mod"], files[gen.GoModFile])
}

func TestContainment(t *testing.T) {
	files := generate(t, "a2b", "a2b.hcl")
	root := files["rule_root2container.go"]
	assert.Contains(t, root, `c.Contain("Root2Container", vC, "children", c.Get(vR, "items"))`)
	assert.Contains(t, root, `c.Bind("Root2Container", vC, "label", c.Get(vR, "name"))`)

	node := files["rule_item2node.go"]
	assert.Contains(t, node, `c.ToUpper(c.Get(vI, "name"))`)
	assert.Contains(t, node, `c.Size(c.Get(vI, "name"))`)

	tr := files[gen.TransformationFile]
	assert.Less(t, strings.Index(tr, "createItem2Node(c)"), strings.Index(tr, "createRoot2Container(c)"))
}

func TestLazyAndContextFreeHelpers(t *testing.T) {
	files := generate(t, "lazy", "lazy.hcl")

	lazy := files["rule_make_node.go"]
	assert.Contains(t, lazy, "func lazyMakeNode(c *synchro.Context, a0 any) any {")
	assert.Contains(t, lazy, `c.Cast(a0, "A", "Item", "MakeNode")`)
	assert.Contains(t, lazy, "c.Lazy(ruleMakeNode, bindMakeNode, vI)")
	assert.Contains(t, lazy, "Lazy:")
	assert.NotContains(t, lazy, "createMakeNode")

	root := files["rule_root2container.go"]
	assert.Contains(t, root, "lazyMakeNode(c, vIt)")
	assert.Contains(t, root, `opLabelOf(c, c.Get(vR, "name"))`)

	helpers := files[gen.HelpersFile]
	assert.Contains(t, helpers, "func attrPrefix(c *synchro.Context) any {")
	assert.Contains(t, helpers, `c.Memo("prefix", nil, func() any {`)
	assert.Contains(t, helpers, "func opLabelOf(c *synchro.Context, vName any) any {")
	assert.Contains(t, helpers, "c.Concat(attrPrefix(c), vName)")

	tr := files[gen.TransformationFile]
	assert.NotContains(t, tr, "createMakeNode")
	assert.NotContains(t, tr, "applyMakeNode")
}

func TestInheritance(t *testing.T) {
	files := generate(t, "inheritance", "inheritance.hcl")

	parent := files["rule_item2node.go"]
	assert.Contains(t, parent, "func matchItem2Node(")
	assert.Contains(t, parent, "func bindItem2Node(")
	assert.NotContains(t, parent, "func createItem2Node(", "abstract rules create nothing")

	child := files["rule_weighted.go"]
	assert.Contains(t, child, "if !matchItem2Node(c, vI) {")
	assert.Contains(t, child, "bindItem2Node(c, l)")
	assert.Contains(t, child, `c.Bind("Weighted", vN, "weight", c.Size(c.Get(vI, "name")))`)
	assert.NotContains(t, child, `"label"`, "the parent binds label")
	assert.Less(t, strings.Index(child, "bindItem2Node(c, l)"), strings.Index(child, `"weight"`))
}

func TestMultipleModels(t *testing.T) {
	t.Run("cross-model rule", func(t *testing.T) {
		files := generate(t, "multiin", "multiin.hcl")
		tagged := files["rule_tagged.go"]
		roots := strings.Index(tagged, `c.AllOf("ROOTS", "Root")`)
		tags := strings.Index(tagged, `c.AllOf("TAGS", "Tag")`)
		require.NotEqual(t, -1, roots)
		assert.Less(t, roots, tags, "the first source variable is the outer loop")
		assert.Contains(t, tagged, "c.Instantiate(ruleTagged, vR, vT)")

		tr := files[gen.TransformationFile]
		assert.Less(t, strings.Index(tr, `Role:      "ROOTS"`), strings.Index(tr, `Role:      "TAGS"`))
	})

	t.Run("same metamodel in two roles", func(t *testing.T) {
		files := generate(t, "multiin", "same.hcl")
		assert.Contains(t, files[gen.HelpersFile], `c.Instances("RIGHT", "Item")`)
		assert.Contains(t, files["rule_left2node.go"], `c.AllOf("LEFT", "Item")`)
		assert.Contains(t, files["rule_right2node.go"], `c.AllOf("RIGHT", "Item")`)
	})

	t.Run("several out-models", func(t *testing.T) {
		files := generate(t, "multiout", "multiout.hcl")
		tr := files[gen.TransformationFile]
		assert.Contains(t, tr, "func newModelTree() *synchro.Model {")
		assert.Contains(t, tr, "func newModelFlat() *synchro.Model {")
		items := files["rule_item2nodes.go"]
		assert.Contains(t, items, `Role:  "TREE"`)
		assert.Contains(t, items, `Role:  "FLAT"`)
	})

	t.Run("several in- and out-models", func(t *testing.T) {
		files := generate(t, "multiinout", "multiinout.hcl")
		tr := files[gen.TransformationFile]
		for _, role := range []string{"ROOTS", "TAGS", "TREE", "FLAT"} {
			assert.Contains(t, tr, `Role:      "`+role+`"`)
		}
		assert.Contains(t, tr, "func newModelTree() *synchro.Model {")
		assert.Contains(t, tr, "func newModelFlat() *synchro.Model {")
		assert.Less(t, strings.Index(tr, "createItem2Nodes(c)"), strings.Index(tr, "createTagged(c)"), "contained nodes exist first")

		tagged := files["rule_tagged.go"]
		assert.Contains(t, tagged, "c.Instantiate(ruleTagged, vR, vT)")
		assert.Contains(t, tagged, `c.Contain("Tagged", vC, "children", c.Get(vR, "items"))`)
		assert.Contains(t, files["rule_tag2node.go"], `c.AllOf("TAGS", "Tag")`)
	})
}

func TestContainerNavigation(t *testing.T) {
	files := generate(t, "composite", "composite.hcl")
	node := files["rule_item2node.go"]
	assert.Contains(t, node, `c.Get(c.Container(vI), "name")`)
	assert.Contains(t, node, `c.Size(c.Get(c.Container(vI), "name"))`, "refImmediateComposite is an alias")
	assert.Contains(t, files["rule_root2container.go"], "c.Defined(c.Container(vR))")
}

func TestHelperLibrary(t *testing.T) {
	files := generate(t, "families2persons", "families2persons_lib.hcl")
	helpers := files[gen.HelpersFile]
	assert.Contains(t, helpers, "func attrFamilyName(c *synchro.Context, self any) any {")
	assert.Contains(t, helpers, "func opIsFemale(c *synchro.Context, self any) any {")
	assert.Contains(t, files["rule_member2male.go"], "c.Truthy(c.Not(opIsFemale(c, vS)))")
	assert.Contains(t, files[gen.TransformationFile], `return "Families2PersonsWithLibrary"`)
}

func TestVariableNameConflict(t *testing.T) {
	path := writeModule(t, `
rule "S2T" {
  from "s" {
    type = "A!Item"
  }

  to "S" {
    type = "B!Node"
    bind {
      label = s.name
    }
  }
}
`)
	_, err := compiler.Generate(context.Background(), "", path, t.TempDir(), nil, nil, gen.WithLogger(log.New(io.Discard)))
	require.Error(t, err)
	assert.Equal(t, gen.KindNameConflict, gen.KindOf(err))
}

// writeModule writes an inline module bound to the a2b metamodels.
func writeModule(t *testing.T, body string) string {
	t.Helper()
	mmA, err := filepath.Abs(testdata("a2b", "A.yaml"))
	require.NoError(t, err)
	mmB, err := filepath.Abs(testdata("a2b", "B.yaml"))
	require.NoError(t, err)
	src := `
in "IN" {
  metamodel = "A"
  path      = "` + filepath.ToSlash(mmA) + `"
}
out "OUT" {
  metamodel = "B"
  path      = "` + filepath.ToSlash(mmB) + `"
}
` + body
	path := filepath.Join(t.TempDir(), "module.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestFeatureResolution(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown target feature",
			body: `
rule "R" {
  from "i" {
    type = "A!Item"
  }
  to "n" {
    type = "B!Node"
    bind {
      colour = i.name
    }
  }
}`,
		},
		{
			name: "unknown source feature",
			body: `
rule "R" {
  from "i" {
    type = "A!Item"
  }
  to "n" {
    type = "B!Node"
    bind {
      label = i.colour
    }
  }
}`,
		},
		{
			name: "containment on a plain feature",
			body: `
rule "R" {
  from "i" {
    type = "A!Item"
  }
  to "n" {
    type = "B!Node"
    contain {
      label = i.name
    }
  }
}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := filepath.Join(t.TempDir(), "out")
			_, err := compiler.Generate(context.Background(), "", writeModule(t, tt.body), target, nil, nil, gen.WithLogger(log.New(io.Discard)))
			require.Error(t, err)
			assert.True(t, gen.IsGenerationError(err), "got %v", err)
			assert.Equal(t, gen.KindFeatureResolution, gen.KindOf(err))

			_, statErr := os.Stat(target)
			assert.True(t, os.IsNotExist(statErr), "nothing is written")
		})
	}
}

func TestDeterministicOutput(t *testing.T) {
	first := generate(t, "families2persons", "families2persons.hcl")
	for range 3 {
		assert.Equal(t, first, generate(t, "families2persons", "families2persons.hcl"))
	}
}
