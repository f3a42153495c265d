package gosync

import (
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/synchro/compiler/gen"
	"github.com/syssam/synchro/compiler/load"
)

// genHelpers generates one accessor per helper, in declaration order.
// Attributes are memoized per context element; operations are evaluated
// on every call.
func genHelpers(h gen.GeneratorHelper) (*jen.File, error) {
	f := h.NewFile("main")
	a := h.Annotated()
	rt := h.RuntimePkg()
	dynamic := false
	for _, hp := range a.Graph.Helpers {
		e := newEmitter(a, hp.Name)
		genHelper(f, rt, a.HelperInfo(hp), e)
		if e.err != nil {
			return nil, e.err
		}
		dynamic = dynamic || e.dynamic
	}
	if !dynamic {
		dynamic = rulesUseNavigate(a)
	}
	if dynamic {
		genNavigate(f, rt)
	}
	return f, nil
}

func genHelper(f *jen.File, rt string, hi *gen.HelperInfo, e *emitter) {
	hp := hi.Helper
	body := hp.Body()
	params := []jen.Code{jen.Id("c").Op("*").Qual(rt, "Context")}
	var stmts []jen.Code
	self := jen.Nil()
	if hi.Context != nil {
		params = append(params, jen.Id("self").Any())
		cast := jen.Id("c").Dot("Cast").Call(jen.Id("self"), jen.Lit(hi.Context.Metamodel().Name), jen.Lit(hi.Context.Name), jen.Lit(hp.Name))
		if hp.IsAttribute() || uses(body, "self") {
			self = jen.Id(gen.VarIdent("self"))
			stmts = append(stmts,
				jen.List(self, jen.Id("ok")).Op(":=").Add(cast),
				jen.If(jen.Op("!").Id("ok")).Block(jen.Return(jen.Nil())),
			)
		} else {
			stmts = append(stmts,
				jen.If(jen.List(jen.Id("_"), jen.Id("ok")).Op(":=").Add(cast), jen.Op("!").Id("ok")).Block(jen.Return(jen.Nil())),
			)
		}
	}
	for _, p := range hp.Params() {
		params = append(params, jen.Id(gen.VarIdent(p.Name)).Any())
	}
	value := e.expr(body)
	if hp.IsAttribute() {
		value = jen.Id("c").Dot("Memo").Call(jen.Lit(hp.Name), self, jen.Func().Params().Any().Block(
			jen.Return(value),
		))
	}
	stmts = append(stmts, jen.Return(value))

	f.Comment(helperComment(hi))
	f.Func().Id(hp.FuncName()).Params(params...).Any().Block(stmts...)
}

func helperComment(hi *gen.HelperInfo) string {
	hp := hi.Helper
	kind := "operation"
	if hp.IsAttribute() {
		kind = "attribute"
	}
	if hi.Context == nil {
		return fmt.Sprintf("%s evaluates the helper %s %s.", hp.FuncName(), kind, hp.Name)
	}
	return fmt.Sprintf("%s evaluates the helper %s %s of %s.", hp.FuncName(), kind, hp.Name, hi.Context.QualifiedName())
}

// rulesUseNavigate reports whether a rule filter or binding reads a helper
// attribute whose context is known only at run time.
func rulesUseNavigate(a *gen.Annotated) bool {
	found := false
	check := func(x load.Expr) bool {
		if info := a.ExprInfo(x); info != nil && info.Ref == gen.RefDynamic {
			found = true
		}
		return !found
	}
	for _, r := range a.Graph.Rules {
		load.Walk(r.Filter, check)
		for _, p := range r.To {
			for _, b := range p.Bindings {
				load.Walk(b.Expr, check)
			}
		}
	}
	return found
}

// genNavigate generates the navigation of a name that is either a feature
// or a helper attribute, decided on the class of each receiver.
func genNavigate(f *jen.File, rt string) {
	f.Comment("navigate reads name on v: the helper attribute attr when v conforms to")
	f.Comment("mm!class, the feature otherwise. Sequences are navigated item by item.")
	f.Func().Id("navigate").Params(
		jen.Id("c").Op("*").Qual(rt, "Context"),
		jen.Id("v").Any(),
		jen.List(jen.Id("name"), jen.Id("mm"), jen.Id("class")).String(),
		jen.Id("attr").Func().Params(jen.Op("*").Qual(rt, "Context"), jen.Any()).Any(),
	).Any().Block(
		jen.Switch(jen.Id("x").Op(":=").Id("v").Assert(jen.Type())).Block(
			jen.Case(jen.Index().Any()).Block(
				jen.Return(jen.Id("c").Dot("Flatten").Call(jen.Id("c").Dot("Collect").Call(
					jen.Id("x"),
					jen.Func().Params(jen.Id("it").Any()).Any().Block(
						jen.Return(jen.Id("navigate").Call(jen.Id("c"), jen.Id("it"), jen.Id("name"), jen.Id("mm"), jen.Id("class"), jen.Id("attr"))),
					),
					jen.Nil(),
				))),
			),
			jen.Case(jen.Op("*").Qual(rt, "Element")).Block(
				jen.If(jen.Id("x").Op("!=").Nil().Op("&&").Id("x").Dot("IsKindOf").Call(jen.Id("mm"), jen.Id("class"))).Block(
					jen.Return(jen.Id("attr").Call(jen.Id("c"), jen.Id("x"))),
				),
			),
		),
		jen.Return(jen.Id("c").Dot("Get").Call(jen.Id("v"), jen.Id("name"))),
	)
}
