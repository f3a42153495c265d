package gen

import (
	"fmt"

	"github.com/syssam/synchro/compiler/load"
	"github.com/syssam/synchro/metamodel"
)

// Type is the static type of an expression. A nil *Type is unknown and is
// checked at run time only.
type Type struct {
	// Class is set for element types.
	Class *metamodel.Class
	// Prim is one of the load.Type* primitive names.
	Prim string
	Many bool
}

func (t *Type) String() string {
	if t == nil {
		return "unknown"
	}
	s := t.Prim
	if t.Class != nil {
		s = t.Class.QualifiedName()
	}
	if t.Many {
		s = "Sequence(" + s + ")"
	}
	return s
}

// Elem returns the item type of a sequence type.
func (t *Type) Elem() *Type {
	if t == nil {
		return nil
	}
	return &Type{Class: t.Class, Prim: t.Prim}
}

// Seq returns the sequence type of t.
func (t *Type) Seq() *Type {
	if t == nil {
		return nil
	}
	return &Type{Class: t.Class, Prim: t.Prim, Many: true}
}

func (t *Type) equal(o *Type) bool {
	return t != nil && o != nil && t.Class == o.Class && t.Prim == o.Prim && t.Many == o.Many
}

// unify returns the common type of two branches, or unknown.
func unify(a, b *Type) *Type {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.equal(b):
		return a
	case a.Class != nil && b.Class != nil && a.Many == b.Many:
		if a.Class.IsSubtypeOf(b.Class) {
			return b
		}
		if b.Class.IsSubtypeOf(a.Class) {
			return a
		}
	}
	return nil
}

var (
	typeString  = &Type{Prim: load.TypeString}
	typeInteger = &Type{Prim: load.TypeInteger}
	typeReal    = &Type{Prim: load.TypeReal}
	typeBoolean = &Type{Prim: load.TypeBoolean}
)

// primitives maps metamodel attribute types to expression types.
var primitives = map[string]string{
	metamodel.String: load.TypeString,
	metamodel.Int:    load.TypeInteger,
	metamodel.Float:  load.TypeReal,
	metamodel.Bool:   load.TypeBoolean,
}

func featureType(f *metamodel.Feature, many bool) *Type {
	return &Type{Class: f.Class(), Prim: primitives[f.Type], Many: f.Many || many}
}

func literalType(v any) *Type {
	switch v.(type) {
	case string:
		return typeString
	case int64:
		return typeInteger
	case float64:
		return typeReal
	case bool:
		return typeBoolean
	}
	return nil
}

// RefKind tells the generator how an expression node is evaluated.
type RefKind int

// Expression reference kinds.
const (
	RefNone RefKind = iota
	// RefFeature navigates a metamodel feature.
	RefFeature
	// RefAttribute reads a helper attribute.
	RefAttribute
	// RefDynamic reads a feature or a context helper attribute, chosen on
	// the class of the receiver at run time.
	RefDynamic
	// RefOperation calls a helper operation.
	RefOperation
	// RefLazyRule applies a lazy rule.
	RefLazyRule
	// RefBuiltin calls a builtin operation.
	RefBuiltin
	// RefSource reads a source pattern variable.
	RefSource
	// RefTarget reads a target pattern variable.
	RefTarget
	// RefLocal reads a parameter, self or a comprehension variable.
	RefLocal
)

// ExprInfo annotates one expression node.
type ExprInfo struct {
	Type *Type
	Ref  RefKind
	// Recv is the receiver type of a navigation.
	Recv    *Type
	Feature *metamodel.Feature
	Helper  *Helper
	Rule    *Rule
	Builtin string
	// Class is the type argument of allInstances, isKindOf and isTypeOf.
	Class *metamodel.Class
	// Role is the in-model role of allInstances, if given.
	Role *Role
}

// Unresolved reports whether a navigation names no feature of a statically
// known receiver.
func (i *ExprInfo) Unresolved() bool {
	return i.Ref == RefFeature && i.Feature == nil && i.Recv != nil
}

type builtin struct {
	min, max int // max < 0 is variadic
	result   func(args []*Type) *Type
}

func constant(t *Type) func([]*Type) *Type {
	return func([]*Type) *Type { return t }
}

func elemOfFirst(args []*Type) *Type { return args[0].Elem() }

var builtins = map[string]builtin{
	"allInstances": {1, 2, nil},
	"isKindOf":     {2, 2, constant(typeBoolean)},
	"isTypeOf":     {2, 2, constant(typeBoolean)},
	"resolveTemp":  {2, 2, constant(nil)},
	"size":         {1, 1, constant(typeInteger)},
	"isEmpty":      {1, 1, constant(typeBoolean)},
	"notEmpty":     {1, 1, constant(typeBoolean)},
	"first":        {1, 1, elemOfFirst},
	"last":         {1, 1, elemOfFirst},
	"at":           {2, 2, elemOfFirst},
	"defined":      {1, 1, constant(typeBoolean)},
	"undefined":    {1, 1, constant(typeBoolean)},
	"concat":       {1, -1, constant(typeString)},
	"flatten":      {1, 1, func(args []*Type) *Type { return args[0].Elem().Seq() }},
	"toString":     {1, 1, constant(typeString)},
	"toUpper":      {1, 1, constant(typeString)},
	"toLower":      {1, 1, constant(typeString)},
	"includes":     {2, 2, constant(typeBoolean)},
	"container":    {1, 1, constant(nil)},

	// refImmediateComposite is the OCL spelling of container.
	"refImmediateComposite": {1, 1, constant(nil)},
}

// IsBuiltin reports whether name is a builtin operation.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

type variable struct {
	kind RefKind
	typ  *Type
}

// scope maps variable names visible to an expression.
type scope map[string]variable

func (s scope) with(name string, v variable) scope {
	out := make(scope, len(s)+1)
	for k, x := range s {
		out[k] = x
	}
	out[name] = v
	return out
}

// typer annotates the expressions of one module element.
type typer struct {
	g     *Graph
	a     *Annotated
	owner string
	// Lazy rules and helpers invoked by the element.
	lazy  []*Rule
	calls []*Helper
	// feeds collects the source variables read, when non-nil.
	feeds map[string]bool
}

func (t *typer) errorf(kind ErrorKind, at load.Expr, format string, args ...any) error {
	err := NewResolutionError(kind, t.owner, fmt.Sprintf(format, args...), nil)
	if at != nil {
		err.Pos = at.Pos().String()
	}
	return err
}

func (t *typer) expr(e load.Expr, sc scope) (*Type, error) {
	if e == nil {
		return nil, nil
	}
	info := &ExprInfo{}
	var err error
	switch x := e.(type) {
	case *load.Literal:
		info.Type = literalType(x.Value)
	case *load.VarRef:
		v, ok := sc[x.Name]
		if !ok {
			return nil, t.errorf(KindUnknownVariable, x, "undefined variable %q", x.Name)
		}
		info.Ref, info.Type = v.kind, v.typ
		if v.kind == RefSource && t.feeds != nil {
			t.feeds[x.Name] = true
		}
	case *load.ModuleAttr:
		h, ok := t.g.Helper(x.Name)
		if !ok || !h.IsAttribute() || h.Context() != nil {
			return nil, t.errorf(KindUnknownHelper, x, "thisModule.%s is not a context-free helper attribute", x.Name)
		}
		info.Ref, info.Helper, info.Type = RefAttribute, h, t.a.helpers[h].Type
		t.calls = append(t.calls, h)
	case *load.Nav:
		err = t.nav(x, sc, info)
	case *load.Call:
		err = t.call(x, sc, info)
	case *load.Unary:
		var xt *Type
		if xt, err = t.expr(x.X, sc); err == nil {
			info.Type = typeBoolean
			if x.Op == "-" {
				info.Type = xt
			}
		}
	case *load.Binary:
		err = t.binary(x, sc, info)
	case *load.Cond:
		var then, els *Type
		if _, err = t.expr(x.Cond, sc); err != nil {
			break
		}
		if then, err = t.expr(x.Then, sc); err != nil {
			break
		}
		if els, err = t.expr(x.Else, sc); err != nil {
			break
		}
		info.Type = unify(then, els)
	case *load.Collect:
		err = t.collect(x, sc, info)
	case *load.SeqLit:
		var item *Type
		for i, it := range x.Items {
			var tt *Type
			if tt, err = t.expr(it, sc); err != nil {
				break
			}
			if i == 0 {
				item = tt
			} else {
				item = unify(item, tt)
			}
		}
		info.Type = item.Seq()
	case *load.Concat:
		for _, p := range x.Parts {
			if _, err = t.expr(p, sc); err != nil {
				break
			}
		}
		info.Type = typeString
	default:
		return nil, t.errorf(KindUnsupportedExpression, e, "unsupported expression %T", e)
	}
	if err != nil {
		return nil, err
	}
	t.a.exprs[e] = info
	return info.Type, nil
}

// nav resolves x.Name: a feature of the receiver class first, then a
// helper attribute whose context the receiver conforms to.
func (t *typer) nav(x *load.Nav, sc scope, info *ExprInfo) error {
	recv, err := t.expr(x.Recv, sc)
	if err != nil {
		return err
	}
	info.Recv = recv
	info.Ref = RefFeature
	h, isHelper := t.g.Helper(x.Name)
	isAttr := isHelper && h.IsAttribute() && h.Context() != nil
	if recv == nil {
		if isAttr {
			info.Ref, info.Helper = RefDynamic, h
			t.calls = append(t.calls, h)
		}
		return nil
	}
	if recv.Class == nil {
		return nil
	}
	if f, ok := recv.Class.Feature(x.Name); ok {
		info.Feature = f
		info.Type = featureType(f, recv.Many)
		return nil
	}
	if !isAttr {
		if isHelper {
			return t.errorf(KindUnknownHelper, x, "%s is not a context helper attribute of %s", x.Name, recv.Class.QualifiedName())
		}
		return nil
	}
	ctx := t.a.helpers[h].Context
	info.Helper = h
	t.calls = append(t.calls, h)
	switch {
	case recv.Class.IsSubtypeOf(ctx):
		info.Ref = RefAttribute
		info.Type = t.a.helpers[h].Type
		if recv.Many {
			info.Type = info.Type.Elem().Seq()
		}
	case ctx.IsSubtypeOf(recv.Class):
		info.Ref = RefDynamic
	default:
		return t.errorf(KindUnknownHelper, x, "helper %s is defined on %s and is not reachable from %s", x.Name, ctx.QualifiedName(), recv.Class.QualifiedName())
	}
	return nil
}

// call resolves a call to a helper operation, a lazy rule or a builtin, in
// that order.
func (t *typer) call(x *load.Call, sc scope, info *ExprInfo) error {
	args := make([]*Type, len(x.Args))
	for i, a := range x.Args {
		var err error
		if args[i], err = t.expr(a, sc); err != nil {
			return err
		}
	}
	if h, ok := t.g.Helper(x.Name); ok {
		if h.IsAttribute() {
			return t.errorf(KindUnknownHelper, x, "helper attribute %s cannot be called", x.Name)
		}
		hi := t.a.helpers[h]
		want := len(hi.Params)
		if hi.Context != nil {
			want++
		}
		if len(args) != want {
			return t.errorf(KindUnknownHelper, x, "helper %s takes %d arguments, got %d", x.Name, want, len(args))
		}
		if hi.Context != nil && args[0] != nil {
			self := args[0]
			if self.Class == nil || self.Many || !self.Class.Compatible(hi.Context) {
				return t.errorf(KindUnknownHelper, x, "helper %s is defined on %s and is not reachable from %s", x.Name, hi.Context.QualifiedName(), self)
			}
		}
		info.Ref, info.Helper, info.Type = RefOperation, h, hi.Type
		t.calls = append(t.calls, h)
		return nil
	}
	if r, ok := t.g.Rule(x.Name); ok {
		switch {
		case !r.Lazy:
			return t.errorf(KindUnknownRule, x, "rule %s is not lazy and cannot be called", r.Name)
		case r.Abstract:
			return t.errorf(KindUnknownRule, x, "abstract rule %s cannot be called", r.Name)
		case len(args) != len(r.From):
			return t.errorf(KindUnknownRule, x, "lazy rule %s takes %d arguments, got %d", r.Name, len(r.From), len(args))
		}
		info.Ref, info.Rule = RefLazyRule, r
		if ri := t.a.rules[r]; ri != nil && len(ri.Targets) > 0 {
			info.Type = &Type{Class: ri.Targets[0].Class}
		}
		t.lazy = append(t.lazy, r)
		return nil
	}
	b, ok := builtins[x.Name]
	if !ok {
		return t.errorf(KindUnknownHelper, x, "no helper, lazy rule or builtin named %s", x.Name)
	}
	if len(args) < b.min || (b.max >= 0 && len(args) > b.max) {
		return t.errorf(KindUnknownHelper, x, "builtin %s called with %d arguments", x.Name, len(args))
	}
	info.Ref, info.Builtin = RefBuiltin, x.Name
	switch x.Name {
	case "allInstances":
		cls, err := t.typeArg(x, 0)
		if err != nil {
			return err
		}
		info.Class = cls
		info.Type = &Type{Class: cls, Many: true}
		if len(x.Args) == 2 {
			role, ok := t.g.InRole(stringLit(x.Args[1]))
			if !ok {
				return t.errorf(KindUnknownModelRole, x, "allInstances expects an in-model role name")
			}
			if role.Metamodel != cls.Metamodel() {
				return t.errorf(KindModelMismatch, x, "in-model %s conforms to %s, not %s", role.Name, role.Metamodel.Name, cls.Metamodel().Name)
			}
			info.Role = role
			return nil
		}
		for _, r := range t.g.In {
			if r.Metamodel == cls.Metamodel() {
				return nil
			}
		}
		return t.errorf(KindModelMismatch, x, "no in-model conforms to %s", cls.Metamodel().Name)
	case "isKindOf", "isTypeOf":
		cls, err := t.typeArg(x, 1)
		if err != nil {
			return err
		}
		info.Class = cls
	case "resolveTemp":
		if _, ok := x.Args[1].(*load.Literal); !ok || stringLit(x.Args[1]) == "" {
			return t.errorf(KindUnknownVariable, x, "resolveTemp expects a target variable name")
		}
	}
	info.Type = b.result(args)
	return nil
}

// typeArg resolves a class named by a string literal argument.
func (t *typer) typeArg(x *load.Call, i int) (*metamodel.Class, error) {
	ref, err := load.ParseType(stringLit(x.Args[i]))
	if err != nil || ref.Seq || ref.IsPrimitive() {
		return nil, t.errorf(KindUnknownType, x, "%s expects a class name such as \"Metamodel!Class\"", x.Name)
	}
	return t.class(ref, x)
}

func (t *typer) class(ref *load.TypeRef, at load.Expr) (*metamodel.Class, error) {
	mm, ok := t.g.Metamodel(ref.Metamodel)
	if !ok {
		return nil, t.errorf(KindUnknownType, at, "metamodel %s is not bound by the module", ref.Metamodel)
	}
	cls, ok := mm.Class(ref.Name)
	if !ok {
		return nil, t.errorf(KindUnknownType, at, "metamodel %s has no class %s", mm.Name, ref.Name)
	}
	return cls, nil
}

// typeOf converts a declared type reference.
func (t *typer) typeOf(ref *load.TypeRef) (*Type, error) {
	if ref == nil {
		return nil, nil
	}
	if ref.IsPrimitive() {
		return &Type{Prim: ref.Name, Many: ref.Seq}, nil
	}
	cls, err := t.class(ref, nil)
	if err != nil {
		return nil, err
	}
	return &Type{Class: cls, Many: ref.Seq}, nil
}

func (t *typer) binary(x *load.Binary, sc scope, info *ExprInfo) error {
	xt, err := t.expr(x.X, sc)
	if err != nil {
		return err
	}
	yt, err := t.expr(x.Y, sc)
	if err != nil {
		return err
	}
	switch x.Op {
	case "&&", "||", "==", "!=", "<", "<=", ">", ">=":
		info.Type = typeBoolean
	case "+":
		if (xt != nil && xt.equal(typeString)) || (yt != nil && yt.equal(typeString)) {
			info.Type = typeString
			return nil
		}
		info.Type = numeric(xt, yt)
	case "/":
		if numeric(xt, yt) != nil {
			info.Type = typeReal
		}
	default:
		info.Type = numeric(xt, yt)
	}
	return nil
}

func numeric(x, y *Type) *Type {
	switch {
	case x.equal(typeInteger) && y.equal(typeInteger):
		return typeInteger
	case (x.equal(typeReal) || x.equal(typeInteger)) && (y.equal(typeReal) || y.equal(typeInteger)):
		return typeReal
	}
	return nil
}

func (t *typer) collect(x *load.Collect, sc scope, info *ExprInfo) error {
	src, err := t.expr(x.Source, sc)
	if err != nil {
		return err
	}
	inner := sc.with(x.Var, variable{kind: RefLocal, typ: src.Elem()})
	if _, err := t.expr(x.Filter, inner); err != nil {
		return err
	}
	if x.Body == nil {
		info.Type = src.Elem().Seq()
		return nil
	}
	body, err := t.expr(x.Body, inner)
	if err != nil {
		return err
	}
	info.Type = body.Elem().Seq()
	return nil
}

func stringLit(e load.Expr) string {
	if lit, ok := e.(*load.Literal); ok {
		s, _ := lit.Value.(string)
		return s
	}
	return ""
}
