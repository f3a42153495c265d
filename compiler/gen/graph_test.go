package gen_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/synchro/compiler/gen"
	"github.com/syssam/synchro/compiler/load"
	"github.com/syssam/synchro/metamodel"
)

func TestNewGraphFamilies2Persons(t *testing.T) {
	g, err := graphOf(t, testdata("families2persons", "families2persons.hcl"))
	require.NoError(t, err)

	require.Len(t, g.In, 1)
	require.Len(t, g.Out, 1)
	assert.Equal(t, "IN", g.In[0].Name)
	assert.Equal(t, "Families", g.In[0].Metamodel.Name)
	assert.False(t, g.In[0].Output)
	assert.True(t, g.Out[0].Output)

	var helpers []string
	for _, h := range g.Helpers {
		helpers = append(helpers, h.Name)
	}
	assert.Equal(t, []string{"familyName", "isFemale"}, helpers)
	assert.Equal(t, []string{"Member2Male", "Member2Female"}, ruleNames(g.Rules))

	// Declaration order covers helpers and rules together.
	var elements []string
	for _, el := range g.Module.Elements {
		elements = append(elements, el.Kind.String()+" "+el.Name())
	}
	assert.Equal(t, []string{
		"attribute familyName",
		"operation isFemale",
		"rule Member2Male",
		"rule Member2Female",
	}, elements)
	assert.Equal(t, 2, g.Rules[0].Index)
	assert.Equal(t, 0, g.Rules[0].Order)
	assert.Equal(t, 1, g.Rules[1].Order)

	r, ok := g.Rule("Member2Female")
	require.True(t, ok)
	assert.Same(t, g.Rules[1], r)
	_, ok = g.Helper("familyName")
	assert.True(t, ok)
	_, ok = g.OutRole("IN")
	assert.False(t, ok)
}

func TestNewGraphMultipleRoles(t *testing.T) {
	g, err := graphOf(t, testdata("multiin", "multiin.hcl"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ROOTS", "TAGS"}, []string{g.In[0].Name, g.In[1].Name})
	assert.Len(t, g.Metamodels, 3)

	g, err = graphOf(t, testdata("multiout", "multiout.hcl"))
	require.NoError(t, err)
	require.Len(t, g.Out, 2)
	assert.Same(t, g.Out[0].Metamodel, g.Out[1].Metamodel, "both out-models conform to B")
	assert.Len(t, g.Metamodels, 2)
}

func TestNewGraphWithLibrary(t *testing.T) {
	g, err := graphOf(t, testdata("families2persons", "families2persons_lib.hcl"))
	require.NoError(t, err)
	var helpers []string
	for _, h := range g.Helpers {
		helpers = append(helpers, h.Name)
	}
	assert.Equal(t, []string{"familyName", "isFemale"}, helpers)
	assert.Equal(t, []string{"Member2Male", "Member2Female"}, ruleNames(g.Rules))
	assert.Equal(t, 2, g.Rules[0].Index, "library helpers precede the module's own elements")
}

func TestNewGraphLibraryRedeclaration(t *testing.T) {
	lib, err := filepath.Abs(testdata("families2persons", "library.hcl"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dup.hcl")
	src := fmt.Sprintf(`
uses %q {}

in "IN" {
  metamodel = "Families"
}
out "OUT" {
  metamodel = "Persons"
}

operation "isFemale" {
  context = "Families!Member"
  type    = "Boolean"
  body    = false
}
`, lib)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	m, err := load.ParseFile(path)
	require.NoError(t, err)

	var mms []*metamodel.Metamodel
	for _, name := range []string{"Families.yaml", "Persons.yaml"} {
		mm, err := metamodel.Load(testdata("families2persons", name))
		require.NoError(t, err)
		mms = append(mms, mm)
	}
	_, err = gen.NewGraph(quietConfig(t), m, mms...)
	require.Error(t, err)
	assert.Equal(t, gen.KindDuplicateDeclaration, gen.KindOf(err))
	assert.Contains(t, err.Error(), "isFemale")
}

func TestNewGraphErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind gen.ErrorKind
	}{
		{
			name: "unknown out-model role",
			src: `
rule "R" {
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type  = "B!Node"
    model = "NOPE"
  }
}`,
			kind: gen.KindUnknownModelRole,
		},
		{
			name: "unknown in-model role",
			src: `
rule "R" {
  from "s" {
    type  = "A!Item"
    model = "NOPE"
  }
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindUnknownModelRole,
		},
		{
			name: "unknown role in allInstances",
			src: `
attribute "all" {
  type  = "Sequence(A!Item)"
  value = allInstances("A!Item", "NOPE")
}`,
			kind: gen.KindUnknownModelRole,
		},
		{
			name: "duplicate rule",
			src: `
rule "R" {
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}
rule "R" {
  from "s" {
    type = "A!Root"
  }
  to "t" {
    type = "B!Container"
  }
}`,
			kind: gen.KindDuplicateDeclaration,
		},
		{
			name: "helper and rule share a name",
			src: `
attribute "R" {
  type  = "Integer"
  value = 1
}
rule "R" {
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindDuplicateDeclaration,
		},
		{
			name: "duplicate pattern variable",
			src: `
rule "R" {
  from "s" {
    type = "A!Item"
  }
  to "s" {
    type = "B!Node"
  }
}`,
			kind: gen.KindDuplicateDeclaration,
		},
		{
			name: "rule without target",
			src: `
rule "R" {
  from "s" {
    type = "A!Item"
  }
}`,
			kind: gen.KindSyntax,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := graphSource(t, tt.src)
			require.Error(t, err)
			assert.True(t, gen.IsParseError(err))
			assert.Equal(t, tt.kind, gen.KindOf(err))
		})
	}
}

func TestNewGraphRequiresModels(t *testing.T) {
	m, err := load.Parse([]byte(`in "IN" {
  metamodel = "A"
}`), "x.hcl")
	require.NoError(t, err)
	_, err = gen.NewGraph(quietConfig(t), m)
	require.Error(t, err)
	assert.Equal(t, gen.KindMissingModel, gen.KindOf(err))

	_, err = gen.NewGraph(nil, m)
	assert.True(t, gen.IsConfigError(err))
}
