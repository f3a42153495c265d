package load_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/synchro/compiler/load"
)

func TestParseFileFamilies2Persons(t *testing.T) {
	m, err := load.ParseFile(filepath.Join("..", "..", "testdata", "families2persons", "families2persons.hcl"))
	require.NoError(t, err)

	assert.Equal(t, "Families2Persons", m.Name)
	require.Len(t, m.InModels, 1)
	require.Len(t, m.OutModels, 1)
	assert.Equal(t, "IN", m.InModels[0].Role)
	assert.Equal(t, "Families", m.InModels[0].Metamodel)
	assert.Equal(t, "Families.yaml", m.InModels[0].Path)
	assert.Equal(t, "OUT", m.OutModels[0].Role)

	var names []string
	var kinds []load.ElementKind
	for _, el := range m.Elements {
		names = append(names, el.Name())
		kinds = append(kinds, el.Kind)
	}
	assert.Equal(t, []string{"familyName", "isFemale", "Member2Male", "Member2Female"}, names)
	assert.Equal(t, []load.ElementKind{load.KindAttribute, load.KindOperation, load.KindRule, load.KindRule}, kinds)

	male := m.Elements[2].Rule
	require.Len(t, male.From, 1)
	assert.Equal(t, "s", male.From[0].Var)
	assert.Equal(t, "Families!Member", male.From[0].Type.String())
	require.IsType(t, &load.Unary{}, male.Filter)
	require.Len(t, male.To, 1)
	require.Len(t, male.To[0].Bindings, 1)
	b := male.To[0].Bindings[0]
	assert.Equal(t, "fullName", b.Feature)
	assert.False(t, b.Containment)
	assert.IsType(t, &load.Concat{}, b.Expr)
}

func TestParseFileWithLibrary(t *testing.T) {
	dir := filepath.Join("..", "..", "testdata", "families2persons")
	m, err := load.ParseFile(filepath.Join(dir, "families2persons_lib.hcl"))
	require.NoError(t, err)

	assert.Equal(t, "Families2PersonsWithLibrary", m.Name)
	assert.Equal(t, []string{filepath.Join(dir, "library.hcl")}, m.Libraries)
	var names []string
	for _, el := range m.Elements {
		names = append(names, el.Name())
	}
	assert.Equal(t, []string{"familyName", "isFemale", "Member2Male", "Member2Female"}, names)
	assert.Equal(t, "Families!Member", m.Elements[0].Attribute.Context.String())
}

func TestParseLibraryErrors(t *testing.T) {
	write := func(t *testing.T, dir, name, src string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
		return path
	}
	module := `
uses "lib.hcl" {}

in "IN" {
  metamodel = "A"
}
`
	tests := []struct {
		name string
		lib  string
		want string
	}{
		{name: "missing", want: "lib.hcl"},
		{name: "rule in library", lib: `
rule "R" {
  from "s" {
    type = "A!Item"
  }
}`, want: "failed to decode library"},
		{name: "invalid helper", lib: `
operation "bad" {
  type = "String"
  body = 1
  context = "Item"
}`, want: "invalid library"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.lib != "" {
				write(t, dir, "lib.hcl", tt.lib)
			}
			_, err := load.ParseFile(write(t, dir, "m.hcl", module))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "uses lib.hcl")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseKeepsDeclarationOrderAcrossKinds(t *testing.T) {
	src := `
in "IN" {
  metamodel = "A"
}
out "OUT" {
  metamodel = "B"
}
rule "First" {
  from "a" {
    type = "A!Item"
  }
}
attribute "second" {
  type  = "Integer"
  value = 2
}
rule "Third" {
  from "a" {
    type = "A!Item"
  }
}
operation "fourth" {
  type = "Boolean"
  body = true
}
`
	m, err := load.Parse([]byte(src), "order.hcl")
	require.NoError(t, err)
	assert.Equal(t, "order", m.Name)
	var names []string
	for _, el := range m.Elements {
		names = append(names, el.Name())
	}
	assert.Equal(t, []string{"First", "second", "Third", "fourth"}, names)
	assert.Equal(t, int64(2), m.Elements[1].Attribute.Expr.(*load.Literal).Value)
}

func TestParseBindingsAndContainment(t *testing.T) {
	src := `
in "IN" {
  metamodel = "A"
}
out "OUT" {
  metamodel = "B"
}
rule "R" {
  from "r" {
    type = "A!Root"
  }
  to "c" {
    type = "B!Container"
    bind {
      label = r.name
    }
    contain {
      children = [for x in r.items: x if x.name != ""]
    }
  }
}
`
	m, err := load.Parse([]byte(src), "r.hcl")
	require.NoError(t, err)
	bs := m.Elements[0].Rule.To[0].Bindings
	require.Len(t, bs, 2)
	assert.Equal(t, "label", bs[0].Feature)
	assert.False(t, bs[0].Containment)
	assert.Equal(t, "children", bs[1].Feature)
	assert.True(t, bs[1].Containment)

	c, ok := bs[1].Expr.(*load.Collect)
	require.True(t, ok)
	assert.Equal(t, "x", c.Var)
	assert.Nil(t, c.Body, "selecting the variable itself is a pure filter")
	assert.NotNil(t, c.Filter)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "syntax",
			src:  `rule "R" {`,
			want: "failed to parse",
		},
		{
			name: "missing source pattern",
			src: `
rule "R" {
  to "t" {
    type = "B!Node"
  }
}`,
			want: "needs at least one from block",
		},
		{
			name: "primitive source type",
			src: `
rule "R" {
  from "s" {
    type = "String"
  }
}`,
			want: "must have a class type",
		},
		{
			name: "unqualified class type",
			src: `
attribute "a" {
  type  = "Member"
  value = 1
}`,
			want: "Metamodel!Class",
		},
		{
			name: "duplicate binding",
			src: `
rule "R" {
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
    bind {
      label = s.name
    }
    contain {
      label = s.name
    }
  }
}`,
			want: "bound more than once",
		},
		{
			name: "pattern variable is not an identifier",
			src: `
rule "R" {
  from "a+b" {
    type = "A!Item"
  }
}`,
			want: `Pattern variable "a+b" is not a valid identifier`,
		},
		{
			name: "target variable is not an identifier",
			src: `
rule "R" {
  from "s" {
    type = "A!Item"
  }
  to "1t" {
    type = "B!Node"
  }
}`,
			want: `Pattern variable "1t" is not a valid identifier`,
		},
		{
			name: "parameter is not an identifier",
			src: `
operation "twice" {
  param "n m" {
    type = "Integer"
  }
  type = "Integer"
  body = 2
}`,
			want: `Parameter "n m" is not a valid identifier`,
		},
		{
			name: "helper name is not an identifier",
			src: `
attribute "a.b" {
  type  = "Integer"
  value = 1
}`,
			want: `Helper "a.b" is not a valid identifier`,
		},
		{
			name: "missing library",
			src:  `uses "missing-library.hcl" {}`,
			want: "uses missing-library.hcl",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load.Parse([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Families!Member", want: "Families!Member"},
		{in: "String", want: "String"},
		{in: "Sequence(Families!Member)", want: "Sequence(Families!Member)"},
		{in: " Integer ", want: "Integer"},
		{in: "Sequence(Sequence(String))", wantErr: true},
		{in: "Sequence(String", wantErr: true},
		{in: "Member", wantErr: true},
		{in: "a!b!c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := load.ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestWalk(t *testing.T) {
	e := load.NewBinary("+", load.NewNav(load.NewVar("s"), "name"), load.NewCall("size", load.NewLiteral("x")))
	var seen []string
	load.Walk(e, func(x load.Expr) bool {
		switch x := x.(type) {
		case *load.VarRef:
			seen = append(seen, "var "+x.Name)
		case *load.Nav:
			seen = append(seen, "nav "+x.Name)
		case *load.Call:
			seen = append(seen, "call "+x.Name)
		}
		return true
	})
	assert.ElementsMatch(t, []string{"nav name", "var s", "call size"}, seen)
}
