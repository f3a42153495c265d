package gosync

import (
	"fmt"
	"math"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/synchro/compiler/gen"
	"github.com/syssam/synchro/compiler/load"
)

// Runtime methods of the builtin operations with a direct mapping.
var builtinMethods = map[string]string{
	"size":        "Size",
	"isEmpty":     "IsEmpty",
	"notEmpty":    "NotEmpty",
	"first":       "First",
	"last":        "Last",
	"at":          "At",
	"defined":     "Defined",
	"undefined":   "Undefined",
	"concat":      "Concat",
	"flatten":     "Flatten",
	"toString":    "ToString",
	"toUpper":     "ToUpper",
	"toLower":     "ToLower",
	"includes":    "Includes",
	"resolveTemp": "ResolveTemp",
	"container":   "Container",

	"refImmediateComposite": "Container",
}

// Runtime methods of the binary operators, except the logical ones.
var binaryMethods = map[string]string{
	"==": "Eq",
	"!=": "Ne",
	"<":  "Lt",
	"<=": "Le",
	">":  "Gt",
	">=": "Ge",
	"+":  "Add",
	"-":  "Sub",
	"*":  "Mul",
	"/":  "Div",
	"%":  "Mod",
}

// emitter lowers resolved expressions of one module element to Go. The
// first error is kept; the code returned after it is discarded.
type emitter struct {
	a     *gen.Annotated
	owner string
	err   error
	// dynamic is set when the navigate helper is referenced.
	dynamic bool
}

func newEmitter(a *gen.Annotated, owner string) *emitter {
	return &emitter{a: a, owner: owner}
}

func (e *emitter) failf(at load.Expr, kind gen.ErrorKind, format string, args ...any) {
	if e.err != nil {
		return
	}
	err := gen.NewGenerationError(kind, e.owner, fmt.Sprintf(format, args...), nil)
	if at != nil {
		err.Pos = at.Pos().String()
	}
	e.err = err
}

// ctx calls a method of the evaluation context.
func ctx(method string, args ...jen.Code) *jen.Statement {
	return jen.Id("c").Dot(method).Call(args...)
}

// truthy converts a value to a Go boolean.
func truthy(v jen.Code) *jen.Statement {
	return ctx("Truthy", v)
}

func literal(v any) jen.Code {
	switch x := v.(type) {
	case nil:
		return jen.Nil()
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return jen.Float64().Call(jen.Lit(x))
		}
		return jen.Lit(x)
	default:
		return jen.Lit(v)
	}
}

func (e *emitter) expr(x load.Expr) jen.Code {
	if x == nil {
		return jen.Nil()
	}
	info := e.a.ExprInfo(x)
	if info == nil {
		e.failf(x, gen.KindFeatureResolution, "expression %T was not resolved", x)
		return jen.Nil()
	}
	switch x := x.(type) {
	case *load.Literal:
		return literal(x.Value)
	case *load.VarRef:
		return jen.Id(gen.VarIdent(x.Name))
	case *load.ModuleAttr:
		return jen.Id(info.Helper.FuncName()).Call(jen.Id("c"))
	case *load.Nav:
		return e.nav(x, info)
	case *load.Call:
		return e.call(x, info)
	case *load.Unary:
		if x.Op == "-" {
			return ctx("Neg", e.expr(x.X))
		}
		return ctx("Not", e.expr(x.X))
	case *load.Binary:
		return e.binary(x)
	case *load.Cond:
		return jen.Func().Params().Any().Block(
			jen.If(truthy(e.expr(x.Cond))).Block(
				jen.Return(e.expr(x.Then)),
			),
			jen.Return(e.expr(x.Else)),
		).Call()
	case *load.Collect:
		v := gen.VarIdent(x.Var)
		var body, filter jen.Code = jen.Nil(), jen.Nil()
		if x.Body != nil {
			body = jen.Func().Params(jen.Id(v).Any()).Any().Block(jen.Return(e.expr(x.Body)))
		}
		if x.Filter != nil {
			filter = jen.Func().Params(jen.Id(v).Any()).Bool().Block(jen.Return(truthy(e.expr(x.Filter))))
		}
		return ctx("Collect", e.expr(x.Source), body, filter)
	case *load.SeqLit:
		return jen.Index().Any().ValuesFunc(func(g *jen.Group) {
			for _, item := range x.Items {
				g.Add(e.expr(item))
			}
		})
	case *load.Concat:
		return ctx("Concat", e.exprs(x.Parts)...)
	}
	e.failf(x, gen.KindFeatureResolution, "unsupported expression %T", x)
	return jen.Nil()
}

func (e *emitter) exprs(xs []load.Expr) []jen.Code {
	out := make([]jen.Code, len(xs))
	for i, x := range xs {
		out[i] = e.expr(x)
	}
	return out
}

func (e *emitter) nav(x *load.Nav, info *gen.ExprInfo) jen.Code {
	recv := e.expr(x.Recv)
	switch info.Ref {
	case gen.RefAttribute:
		fn := info.Helper.FuncName()
		if info.Recv != nil && info.Recv.Many {
			return ctx("Flatten", ctx("Collect", recv,
				jen.Func().Params(jen.Id("it").Any()).Any().Block(
					jen.Return(jen.Id(fn).Call(jen.Id("c"), jen.Id("it"))),
				),
				jen.Nil(),
			))
		}
		return jen.Id(fn).Call(jen.Id("c"), recv)
	case gen.RefDynamic:
		e.dynamic = true
		cls := e.a.HelperInfo(info.Helper).Context
		return jen.Id("navigate").Call(
			jen.Id("c"), recv, jen.Lit(x.Name),
			jen.Lit(cls.Metamodel().Name), jen.Lit(cls.Name),
			jen.Id(info.Helper.FuncName()),
		)
	}
	if info.Unresolved() {
		e.failf(x, gen.KindFeatureResolution, "%s has no feature %s", info.Recv, x.Name)
	}
	return ctx("Get", recv, jen.Lit(x.Name))
}

func (e *emitter) call(x *load.Call, info *gen.ExprInfo) jen.Code {
	switch info.Ref {
	case gen.RefOperation:
		return jen.Id(info.Helper.FuncName()).Call(append([]jen.Code{jen.Id("c")}, e.exprs(x.Args)...)...)
	case gen.RefLazyRule:
		return jen.Id(info.Rule.LazyFunc()).Call(append([]jen.Code{jen.Id("c")}, e.exprs(x.Args)...)...)
	case gen.RefBuiltin:
	default:
		e.failf(x, gen.KindFeatureResolution, "call to %s was not resolved", x.Name)
		return jen.Nil()
	}
	switch info.Builtin {
	case "allInstances":
		if info.Role != nil {
			return ctx("Instances", jen.Lit(info.Role.Name), jen.Lit(info.Class.Name))
		}
		return ctx("AllInstances", jen.Lit(info.Class.Metamodel().Name), jen.Lit(info.Class.Name))
	case "isKindOf", "isTypeOf":
		method := "IsKindOf"
		if info.Builtin == "isTypeOf" {
			method = "IsTypeOf"
		}
		return ctx(method, e.expr(x.Args[0]), jen.Lit(info.Class.Metamodel().Name), jen.Lit(info.Class.Name))
	}
	method, ok := builtinMethods[info.Builtin]
	if !ok {
		e.failf(x, gen.KindFeatureResolution, "builtin %s has no runtime mapping", info.Builtin)
		return jen.Nil()
	}
	return ctx(method, e.exprs(x.Args)...)
}

func (e *emitter) binary(x *load.Binary) jen.Code {
	l, r := e.expr(x.X), e.expr(x.Y)
	switch x.Op {
	case "&&", "||":
		return jen.Parens(truthy(l).Op(x.Op).Add(truthy(r)))
	}
	method, ok := binaryMethods[x.Op]
	if !ok {
		e.failf(x, gen.KindFeatureResolution, "unsupported operator %s", x.Op)
		return jen.Nil()
	}
	return ctx(method, l, r)
}

// uses reports whether e reads variable name, honoring comprehension
// variables that shadow it.
func uses(e load.Expr, name string) bool {
	found := false
	load.Walk(e, func(x load.Expr) bool {
		switch x := x.(type) {
		case *load.VarRef:
			if x.Name == name {
				found = true
			}
		case *load.Collect:
			if x.Var == name {
				found = found || uses(x.Source, name)
				return false
			}
		}
		return !found
	})
	return found
}
