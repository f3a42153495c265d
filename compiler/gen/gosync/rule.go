package gosync

import (
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/synchro/compiler/gen"
)

// genRule generates the rule file ({rule}.go): descriptor, match predicate,
// creation, bind and apply routines and, for lazy rules, the entry point.
func genRule(h gen.GeneratorHelper, r *gen.Rule) (*jen.File, error) {
	f := h.NewFile("main")
	a := h.Annotated()
	ri := a.RuleInfo(r)
	rt := h.RuntimePkg()
	e := newEmitter(a, r.Name)

	genRuleSpec(f, rt, ri)
	genMatch(f, rt, ri, e)
	if err := genBind(f, rt, ri, e); err != nil {
		return nil, err
	}
	if e.err != nil {
		return nil, e.err
	}
	switch {
	case r.Abstract:
	case r.Lazy:
		genLazy(f, rt, ri)
	default:
		genCreate(f, rt, a, ri)
		genApply(f, rt, ri)
	}
	return f, nil
}

func elementParam(rt, name string) jen.Code {
	return jen.Id(gen.VarIdent(name)).Op("*").Qual(rt, "Element")
}

func sourceIdents(ri *gen.RuleInfo) []jen.Code {
	out := make([]jen.Code, len(ri.Sources))
	for i, p := range ri.Sources {
		out[i] = jen.Id(gen.VarIdent(p.Var))
	}
	return out
}

// genRuleSpec generates the runtime descriptor of the rule.
func genRuleSpec(f *jen.File, rt string, ri *gen.RuleInfo) {
	r := ri.Rule
	d := jen.Dict{
		jen.Id("Name"): jen.Lit(r.Name),
		jen.Id("Sources"): jen.Index().String().ValuesFunc(func(g *jen.Group) {
			for _, p := range ri.Sources {
				g.Lit(p.Var)
			}
		}),
		jen.Id("Targets"): jen.Index().Qual(rt, "TargetSpec").ValuesFunc(func(g *jen.Group) {
			for _, p := range ri.Targets {
				t := jen.Dict{
					jen.Id("Var"):   jen.Lit(p.Var),
					jen.Id("Role"):  jen.Lit(p.Role.Name),
					jen.Id("Class"): jen.Lit(p.Class.Name),
				}
				if feeds := ri.Feeds[p.Var]; len(feeds) > 0 {
					t[jen.Id("Feeds")] = jen.Index().String().ValuesFunc(func(g *jen.Group) {
						for _, v := range feeds {
							g.Lit(v)
						}
					})
				}
				g.Values(t)
			}
		}),
	}
	if r.Lazy {
		d[jen.Id("Lazy")] = jen.True()
	}
	f.Commentf("%s describes the rule %s.", r.SpecVar(), r.Name)
	f.Var().Id(r.SpecVar()).Op("=").Op("&").Qual(rt, "RuleSpec").Values(d)
}

// genMatch generates the match predicate: the parent's predicate, the
// source types and the filter.
func genMatch(f *jen.File, rt string, ri *gen.RuleInfo, e *emitter) {
	r := ri.Rule
	params := []jen.Code{jen.Id("c").Op("*").Qual(rt, "Context")}
	for _, p := range ri.Sources {
		params = append(params, elementParam(rt, p.Var))
	}
	f.Commentf("%s reports whether the sources match %s.", r.MatchFunc(), r.Name)
	f.Func().Id(r.MatchFunc()).Params(params...).Bool().BlockFunc(func(g *jen.Group) {
		if ri.Parent != nil {
			pi := e.a.RuleInfo(ri.Parent)
			g.If(jen.Op("!").Id(ri.Parent.MatchFunc()).Call(append([]jen.Code{jen.Id("c")}, sourceIdents(pi)...)...)).Block(
				jen.Return(jen.False()),
			)
		}
		var kinds *jen.Statement
		for i, p := range ri.Sources {
			check := jen.Op("!").Id(gen.VarIdent(p.Var)).Dot("IsKindOf").Call(jen.Lit(p.Class.Metamodel().Name), jen.Lit(p.Class.Name))
			if i == 0 {
				kinds = check
			} else {
				kinds = kinds.Op("||").Add(check)
			}
		}
		if kinds != nil {
			g.If(kinds).Block(jen.Return(jen.False()))
		}
		if r.Filter == nil {
			g.Return(jen.True())
			return
		}
		g.Return(truthy(e.expr(r.Filter)))
	})
}

// genBind generates the binding routine of the rule's own bindings. The
// parent's routine runs first.
func genBind(f *jen.File, rt string, ri *gen.RuleInfo, e *emitter) error {
	r := ri.Rule
	var stmts []jen.Code
	if ri.Parent != nil {
		stmts = append(stmts, jen.Id(ri.Parent.BindFunc()).Call(jen.Id("c"), jen.Id("l")))
	}
	var bindings []*gen.BindingInfo
	for _, p := range ri.Targets {
		for _, b := range p.Bindings {
			if b.Rule != r {
				continue
			}
			if b.Feature == nil {
				err := gen.NewGenerationError(gen.KindFeatureResolution, r.Name, fmt.Sprintf("%s has no feature %s", p.Class.QualifiedName(), b.Binding.Feature), nil)
				err.Pos = b.Pos.String()
				return err
			}
			if b.Binding.Containment && !b.Feature.Containment {
				err := gen.NewGenerationError(gen.KindFeatureResolution, r.Name, fmt.Sprintf("%s.%s is not a containment feature", p.Class.QualifiedName(), b.Feature.Name), nil)
				err.Pos = b.Pos.String()
				return err
			}
			bindings = append(bindings, b)
		}
	}
	used := func(name string) bool {
		for _, b := range bindings {
			if uses(b.Expr, name) {
				return true
			}
		}
		return false
	}
	for _, p := range ri.Sources {
		if used(p.Var) {
			stmts = append(stmts, jen.Id(gen.VarIdent(p.Var)).Op(":=").Id("l").Dot("Source").Call(jen.Lit(p.Var)))
		}
	}
	for _, p := range ri.Targets {
		if bindsTarget(p, r) || used(p.Var) {
			stmts = append(stmts, jen.Id(gen.VarIdent(p.Var)).Op(":=").Id("l").Dot("Target").Call(jen.Lit(p.Var)))
		}
	}
	for _, p := range ri.Targets {
		for _, b := range p.Bindings {
			if b.Rule != r {
				continue
			}
			method := "Bind"
			if b.Containment {
				method = "Contain"
			}
			stmts = append(stmts, jen.Id("c").Dot(method).Call(
				jen.Lit(r.Name), jen.Id(gen.VarIdent(p.Var)), jen.Lit(b.Feature.Name), e.expr(b.Expr),
			))
		}
	}
	f.Commentf("%s binds the features set by %s on the targets of l.", r.BindFunc(), r.Name)
	f.Func().Id(r.BindFunc()).Params(
		jen.Id("c").Op("*").Qual(rt, "Context"),
		jen.Id("l").Op("*").Qual(rt, "Link"),
	).Block(stmts...)
	return nil
}

// bindsTarget reports whether r itself declares a binding of target p.
func bindsTarget(p *gen.Pattern, r *gen.Rule) bool {
	for _, b := range p.Bindings {
		if b.Rule == r {
			return true
		}
	}
	return false
}

// genCreate generates the creation routine: every match of the source
// pattern not claimed by a more specific rule gets its targets, once.
func genCreate(f *jen.File, rt string, a *gen.Annotated, ri *gen.RuleInfo) {
	r := ri.Rule
	args := append([]jen.Code{jen.Id("c")}, sourceIdents(ri)...)
	var inner []jen.Code
	inner = append(inner, jen.If(jen.Op("!").Id(r.MatchFunc()).Call(args...)).Block(jen.Continue()))
	if len(ri.Claims) > 0 {
		var claimed *jen.Statement
		for i, child := range ri.Claims {
			call := jen.Id(child.MatchFunc()).Call(append([]jen.Code{jen.Id("c")}, sourceIdents(a.RuleInfo(child))...)...)
			if i == 0 {
				claimed = call
			} else {
				claimed = claimed.Op("||").Add(call)
			}
		}
		inner = append(inner, jen.If(claimed).Block(jen.Continue()))
	}
	inner = append(inner, jen.If(
		jen.List(jen.Id("_"), jen.Id("_"), jen.Err()).Op(":=").Id("c").Dot("Instantiate").Call(append([]jen.Code{jen.Id(r.SpecVar())}, sourceIdents(ri)...)...),
		jen.Err().Op("!=").Nil(),
	).Block(
		jen.Id("c").Dot("Fail").Call(jen.Lit(r.Name), jen.Err()),
		jen.Return(jen.Id("c").Dot("Err").Call()),
	))

	// Nest one loop per source variable, the first outermost.
	body := inner
	for i := len(ri.Sources) - 1; i >= 0; i-- {
		p := ri.Sources[i]
		loop := jen.For(
			jen.List(jen.Id("_"), jen.Id(gen.VarIdent(p.Var))).Op(":=").Range().Id("c").Dot("AllOf").Call(jen.Lit(p.Role.Name), jen.Lit(p.Class.Name)),
		).Block(body...)
		body = []jen.Code{loop}
	}
	body = append(body, jen.Return(jen.Id("c").Dot("Err").Call()))

	f.Commentf("%s creates the targets of %s for every match.", r.CreateFunc(), r.Name)
	f.Func().Id(r.CreateFunc()).Params(jen.Id("c").Op("*").Qual(rt, "Context")).Error().Block(body...)
}

// genApply generates the routine binding the targets of every link of the
// rule.
func genApply(f *jen.File, rt string, ri *gen.RuleInfo) {
	r := ri.Rule
	f.Commentf("%s binds the targets created by %s.", r.ApplyFunc(), r.Name)
	f.Func().Id(r.ApplyFunc()).Params(jen.Id("c").Op("*").Qual(rt, "Context")).Block(
		jen.For(jen.List(jen.Id("_"), jen.Id("l")).Op(":=").Range().Id("c").Dot("Trace").Call().Dot("LinksOf").Call(jen.Id(r.SpecVar()).Dot("Name"))).Block(
			jen.Id(r.BindFunc()).Call(jen.Id("c"), jen.Id("l")),
		),
	)
}

// genLazy generates the entry point of a lazy rule. Its targets are created
// and bound on the first call for a source tuple.
func genLazy(f *jen.File, rt string, ri *gen.RuleInfo) {
	r := ri.Rule
	params := []jen.Code{jen.Id("c").Op("*").Qual(rt, "Context")}
	var stmts []jen.Code
	for i, p := range ri.Sources {
		arg := fmt.Sprintf("a%d", i)
		params = append(params, jen.Id(arg).Any())
		stmts = append(stmts,
			jen.List(jen.Id(gen.VarIdent(p.Var)), jen.Id("ok")).Op(":=").Id("c").Dot("Cast").Call(
				jen.Id(arg), jen.Lit(p.Class.Metamodel().Name), jen.Lit(p.Class.Name), jen.Lit(r.Name),
			),
			jen.If(jen.Op("!").Id("ok")).Block(jen.Return(jen.Nil())),
		)
	}
	args := append([]jen.Code{jen.Id("c")}, sourceIdents(ri)...)
	stmts = append(stmts,
		jen.If(jen.Op("!").Id(r.MatchFunc()).Call(args...)).Block(jen.Return(jen.Nil())),
		jen.Return(jen.Id("c").Dot("Lazy").Call(append([]jen.Code{jen.Id(r.SpecVar()), jen.Id(r.BindFunc())}, sourceIdents(ri)...)...)),
	)
	f.Commentf("%s applies the lazy rule %s and returns its first target.", r.LazyFunc(), r.Name)
	f.Func().Id(r.LazyFunc()).Params(params...).Any().Block(stmts...)
}
