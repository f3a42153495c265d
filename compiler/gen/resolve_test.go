package gen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/synchro/compiler/gen"
	"github.com/syssam/synchro/compiler/load"
)

func TestResolveFamilies2Persons(t *testing.T) {
	a := resolveFixture(t, "families2persons", "families2persons.hcl")
	g := a.Graph

	assert.Equal(t, []string{"Member2Male", "Member2Female"}, ruleNames(a.Order))
	for _, r := range g.Rules {
		ri := a.RuleInfo(r)
		require.Len(t, ri.Sources, 1)
		require.Len(t, ri.Targets, 1)
		assert.Same(t, g.In[0], ri.Sources[0].Role)
		assert.Equal(t, "Member", ri.Sources[0].Class.Name)
		assert.Same(t, g.Out[0], ri.Targets[0].Role)
		assert.Equal(t, []string{"s"}, ri.Feeds["t"])
		assert.False(t, ri.CrossModel())
		assert.True(t, ri.Creates())
		assert.Empty(t, ri.Deps)
	}
	assert.Equal(t, "Male", a.RuleInfo(g.Rules[0]).Targets[0].Class.Name)
	assert.Equal(t, "Female", a.RuleInfo(g.Rules[1]).Targets[0].Class.Name)

	name, _ := g.Helper("familyName")
	hi := a.HelperInfo(name)
	assert.Equal(t, "Member", hi.Context.Name)
	assert.Equal(t, "String", hi.Type.String())

	// s.familyName reads the context attribute.
	b := a.RuleInfo(g.Rules[0]).Targets[0].Bindings[0]
	assert.Equal(t, "fullName", b.Feature.Name)
	var refs []gen.RefKind
	load.Walk(b.Expr, func(x load.Expr) bool {
		if nav, ok := x.(*load.Nav); ok && nav.Name == "familyName" {
			refs = append(refs, a.ExprInfo(x).Ref)
		}
		return true
	})
	assert.Equal(t, []gen.RefKind{gen.RefAttribute}, refs)

	filter := a.ExprInfo(g.Rules[1].Filter)
	require.NotNil(t, filter)
	assert.Equal(t, gen.RefOperation, filter.Ref)
	assert.Equal(t, "Boolean", filter.Type.String())

	out := a.RulesOf(g.Out[0])
	assert.Equal(t, []string{"Member2Male", "Member2Female"}, ruleNames(out))
}

func TestResolveContainmentOrder(t *testing.T) {
	a := resolveFixture(t, "a2b", "a2b.hcl")
	g := a.Graph

	// Root2Container attaches the nodes created by Item2Node.
	assert.Equal(t, []string{"Item2Node", "Root2Container"}, ruleNames(a.Order))
	root, _ := g.Rule("Root2Container")
	ri := a.RuleInfo(root)
	assert.Equal(t, []string{"Item2Node"}, ruleNames(ri.Deps))

	bs := ri.Targets[0].Bindings
	require.Len(t, bs, 2)
	assert.False(t, bs[0].Containment)
	assert.True(t, bs[1].Containment)
	assert.Empty(t, a.Deferred)
}

func TestResolveLazyOrder(t *testing.T) {
	a := resolveFixture(t, "lazy", "lazy.hcl")
	g := a.Graph
	assert.Equal(t, []string{"MakeNode", "Root2Container"}, ruleNames(a.Order))

	root, _ := g.Rule("Root2Container")
	lazy, _ := g.Rule("MakeNode")
	assert.Equal(t, []*gen.Rule{lazy}, a.RuleInfo(root).Lazy)
	assert.False(t, a.RuleInfo(lazy).Creates())

	// Only creating rules are listed under their out-model.
	assert.Equal(t, []string{"Root2Container"}, ruleNames(a.RulesOf(g.Out[0])))

	prefix, _ := g.Helper("prefix")
	assert.Nil(t, a.HelperInfo(prefix).Context)
}

func TestResolveMultipleModels(t *testing.T) {
	t.Run("cross-model source pattern", func(t *testing.T) {
		a := resolveFixture(t, "multiin", "multiin.hcl")
		r, _ := a.Graph.Rule("Tagged")
		ri := a.RuleInfo(r)
		assert.True(t, ri.CrossModel())
		require.Len(t, ri.Roles(), 2)
		assert.Equal(t, "ROOTS", ri.Roles()[0].Name)
		assert.Equal(t, "TAGS", ri.Roles()[1].Name)
		assert.Equal(t, []string{"r", "t"}, ri.Feeds["c"])
	})

	t.Run("same metamodel twice keeps both roles", func(t *testing.T) {
		a := resolveFixture(t, "multiin", "same.hcl")
		left, _ := a.Graph.Rule("Left2Node")
		right, _ := a.Graph.Rule("Right2Node")
		assert.Equal(t, "LEFT", a.RuleInfo(left).Sources[0].Role.Name)
		assert.Equal(t, "RIGHT", a.RuleInfo(right).Sources[0].Role.Name)
		assert.NotSame(t, a.RuleInfo(left).Sources[0].Role, a.RuleInfo(right).Sources[0].Role)
	})

	t.Run("targets in several out-models", func(t *testing.T) {
		a := resolveFixture(t, "multiout", "multiout.hcl")
		r, _ := a.Graph.Rule("Item2Nodes")
		ri := a.RuleInfo(r)
		require.Len(t, ri.Targets, 2)
		assert.Equal(t, "TREE", ri.Targets[0].Role.Name)
		assert.Equal(t, "FLAT", ri.Targets[1].Role.Name)
		tree, _ := a.Graph.OutRole("TREE")
		flat, _ := a.Graph.OutRole("FLAT")
		assert.Equal(t, []string{"Root2Container", "Item2Nodes"}, ruleNames(a.RulesOf(tree)))
		assert.Equal(t, []string{"Item2Nodes"}, ruleNames(a.RulesOf(flat)))
	})
}

func TestResolveInheritance(t *testing.T) {
	a := resolveFixture(t, "inheritance", "inheritance.hcl")
	g := a.Graph
	parent, _ := g.Rule("Item2Node")
	child, _ := g.Rule("Weighted")
	pi, ci := a.RuleInfo(parent), a.RuleInfo(child)

	assert.Same(t, parent, ci.Parent)
	assert.Equal(t, []*gen.Rule{parent, child}, ci.Chain)
	assert.Equal(t, []*gen.Rule{child}, pi.Children)
	assert.False(t, pi.Creates())
	assert.Empty(t, pi.Claims, "abstract rules create nothing")

	// The child carries the parent's binding then its own.
	require.Len(t, ci.Targets, 1)
	var features []string
	var owners []string
	for _, b := range ci.Targets[0].Bindings {
		features = append(features, b.Feature.Name)
		owners = append(owners, b.Rule.Name)
	}
	assert.Equal(t, []string{"label", "weight"}, features)
	assert.Equal(t, []string{"Item2Node", "Weighted"}, owners)
	// The parent keeps its own bindings only.
	assert.Len(t, pi.Targets[0].Bindings, 1)
}

func TestResolveClaims(t *testing.T) {
	a, err := resolveSource(t, `
rule "Item2Node" {
  from "i" {
    type = "A!Item"
  }
  to "n" {
    type = "B!Node"
    bind {
      label = i.name
    }
  }
}
rule "Special2Node" {
  extends = "Item2Node"
  from "i" {
    type = "A!Special"
  }
  to "n" {
    type = "B!Node"
  }
}
`)
	require.NoError(t, err)
	parent, _ := a.Graph.Rule("Item2Node")
	child, _ := a.Graph.Rule("Special2Node")
	assert.Equal(t, []*gen.Rule{child}, a.RuleInfo(parent).Claims)
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind gen.ErrorKind
	}{
		{
			name: "inheritance cycle",
			src: `
rule "P" {
  extends = "Q"
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}
rule "Q" {
  extends = "P"
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindInheritanceCycle,
		},
		{
			name: "self inheritance",
			src: `
rule "P" {
  extends = "P"
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindInheritanceCycle,
		},
		{
			name: "child without the parent variable",
			src: `
rule "P" {
  abstract = true
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}
rule "C" {
  extends = "P"
  from "x" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindInvalidInheritance,
		},
		{
			name: "child source widens the parent type",
			src: `
rule "P" {
  abstract = true
  from "s" {
    type = "A!Special"
  }
  to "t" {
    type = "B!Node"
  }
}
rule "C" {
  extends = "P"
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindInvalidInheritance,
		},
		{
			name: "child target changes class",
			src: `
rule "P" {
  abstract = true
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}
rule "C" {
  extends = "P"
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Container"
  }
}`,
			kind: gen.KindInvalidInheritance,
		},
		{
			name: "unknown helper",
			src: `
rule "R" {
  from "s" {
    type = "A!Item"
  }
  filter = missing(s)
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindUnknownHelper,
		},
		{
			name: "context helper unreachable from receiver",
			src: `
operation "isBig" {
  context = "A!Root"
  type    = "Boolean"
  body    = true
}
rule "R" {
  from "s" {
    type = "A!Item"
  }
  filter = isBig(s)
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindUnknownHelper,
		},
		{
			name: "unknown parent",
			src: `
rule "R" {
  extends = "Nope"
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindUnknownRule,
		},
		{
			name: "unknown class",
			src: `
rule "R" {
  from "s" {
    type = "A!Missing"
  }
  to "t" {
    type = "B!Node"
  }
}`,
			kind: gen.KindUnknownType,
		},
		{
			name: "pattern metamodel mismatch",
			src: `
rule "R" {
  from "s" {
    type  = "A!Item"
    model = "IN"
  }
  to "t" {
    type  = "A!Item"
    model = "OUT"
  }
}`,
			kind: gen.KindModelMismatch,
		},
		{
			name: "lazy rule cycle",
			src: `
rule "P" {
  lazy = true
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
    contain {
      inner = Q(s)
    }
  }
}
rule "Q" {
  lazy = true
  from "s" {
    type = "A!Item"
  }
  to "t" {
    type = "B!Node"
    contain {
      inner = P(s)
    }
  }
}`,
			kind: gen.KindDependencyCycle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveSource(t, tt.src)
			require.Error(t, err)
			assert.True(t, gen.IsResolutionError(err), "got %v", err)
			assert.Equal(t, tt.kind, gen.KindOf(err))
		})
	}
}

func TestResolveArithmeticTypes(t *testing.T) {
	a, err := resolveSource(t, `
attribute "half" {
  type  = "Real"
  value = 4 / 2
}
attribute "twice" {
  type  = "Integer"
  value = 4 * 2
}
attribute "mean" {
  type  = "Real"
  value = 4.5 / 2
}
`)
	require.NoError(t, err)
	for name, want := range map[string]string{"half": "Real", "twice": "Integer", "mean": "Real"} {
		h, ok := a.Graph.Helper(name)
		require.True(t, ok)
		info := a.ExprInfo(h.Attribute.Expr)
		require.NotNil(t, info, name)
		assert.Equal(t, want, info.Type.String(), name)
	}
}

// opaqueExpr is an expression node the resolver does not know.
type opaqueExpr struct{ load.Literal }

func TestResolveUnsupportedExpression(t *testing.T) {
	g, err := graphSource(t, `
attribute "odd" {
  type  = "Integer"
  value = 1
}
`)
	require.NoError(t, err)
	h, ok := g.Helper("odd")
	require.True(t, ok)
	h.Attribute.Expr = &opaqueExpr{}

	_, err = gen.Resolve(g)
	require.Error(t, err)
	assert.True(t, gen.IsResolutionError(err))
	assert.Equal(t, gen.KindUnsupportedExpression, gen.KindOf(err))
	assert.Contains(t, err.Error(), "opaqueExpr")
}

func TestResolveAmbiguousRole(t *testing.T) {
	g, err := graphOf(t, testdata("multiin", "same.hcl"))
	require.NoError(t, err)
	// Unqualified patterns must name one of the roles sharing a metamodel.
	g.Module.Elements[1].Rule.From[0].Model = ""
	_, err = gen.Resolve(g)
	require.Error(t, err)
	assert.Equal(t, gen.KindAmbiguousModelRole, gen.KindOf(err))
}

func TestResolveIsDeterministic(t *testing.T) {
	first := resolveFixture(t, "lazy", "lazy.hcl")
	for range 5 {
		again := resolveFixture(t, "lazy", "lazy.hcl")
		assert.Equal(t, ruleNames(first.Order), ruleNames(again.Order))
		assert.Equal(t, gen.Describe(first), gen.Describe(again))
	}
}
