package load

import (
	"cmp"
	"fmt"
	"math/big"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// hclModule is the top-level structure of a transformation file.
type hclModule struct {
	Name       string          `hcl:"module,optional"`
	Uses       []*hclUses      `hcl:"uses,block"`
	In         []*hclModel     `hcl:"in,block"`
	Out        []*hclModel     `hcl:"out,block"`
	Attributes []*hclAttribute `hcl:"attribute,block"`
	Operations []*hclOperation `hcl:"operation,block"`
	Rules      []*hclRule      `hcl:"rule,block"`
}

// hclLibrary is the top-level structure of a helper library file.
type hclLibrary struct {
	Attributes []*hclAttribute `hcl:"attribute,block"`
	Operations []*hclOperation `hcl:"operation,block"`
}

type hclUses struct {
	Path     string    `hcl:"path,label"`
	DefRange hcl.Range `hcl:",def_range"`
}

type hclModel struct {
	Role      string    `hcl:"role,label"`
	Metamodel string    `hcl:"metamodel"`
	Path      string    `hcl:"path,optional"`
	DefRange  hcl.Range `hcl:",def_range"`
}

type hclAttribute struct {
	Name     string         `hcl:"name,label"`
	Context  string         `hcl:"context,optional"`
	Type     string         `hcl:"type"`
	Value    hcl.Expression `hcl:"value"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type hclParam struct {
	Name string `hcl:"name,label"`
	Type string `hcl:"type"`
}

type hclOperation struct {
	Name     string         `hcl:"name,label"`
	Context  string         `hcl:"context,optional"`
	Params   []*hclParam    `hcl:"param,block"`
	Type     string         `hcl:"type"`
	Body     hcl.Expression `hcl:"body"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type hclRule struct {
	Name     string         `hcl:"name,label"`
	Lazy     bool           `hcl:"lazy,optional"`
	Abstract bool           `hcl:"abstract,optional"`
	Extends  string         `hcl:"extends,optional"`
	Filter   *hcl.Attribute `hcl:"filter,optional"`
	From     []*hclFrom     `hcl:"from,block"`
	To       []*hclTo       `hcl:"to,block"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type hclFrom struct {
	Var      string    `hcl:"var,label"`
	Type     string    `hcl:"type"`
	Model    string    `hcl:"model,optional"`
	DefRange hcl.Range `hcl:",def_range"`
}

type hclTo struct {
	Var      string     `hcl:"var,label"`
	Type     string     `hcl:"type"`
	Model    string     `hcl:"model,optional"`
	Bind     []*hclBind `hcl:"bind,block"`
	Contain  []*hclBind `hcl:"contain,block"`
	DefRange hcl.Range  `hcl:",def_range"`
}

type hclBind struct {
	Attrs hcl.Attributes `hcl:",remain"`
}

// ParseFile parses the transformation module at path.
func ParseFile(path string) (*Module, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse transformation %s: %w", path, diags)
	}
	return decode(path, file)
}

// Parse parses a transformation module from src. filename is used in
// positions and as the default module name.
func Parse(src []byte, filename string) (*Module, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse transformation %s: %w", filename, diags)
	}
	return decode(filename, file)
}

func decode(path string, file *hcl.File) (*Module, error) {
	var parsed hclModule
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode transformation %s: %w", path, diags)
	}
	m, diags := parsed.module(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid transformation %s: %w", path, diags)
	}
	// Library helpers come first, in uses order, and share the module's
	// namespace.
	var helpers []*Element
	for _, u := range parsed.Uses {
		lib := u.Path
		if !filepath.IsAbs(lib) {
			lib = filepath.Join(filepath.Dir(path), lib)
		}
		els, err := parseLibrary(lib)
		if err != nil {
			return nil, fmt.Errorf("transformation %s uses %s: %w", path, u.Path, err)
		}
		m.Libraries = append(m.Libraries, lib)
		helpers = append(helpers, els...)
	}
	m.Elements = append(helpers, m.Elements...)
	return m, nil
}

// parseLibrary reads the helpers of a library file in declaration order.
func parseLibrary(path string) ([]*Element, error) {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse library %s: %w", path, diags)
	}
	var lib hclLibrary
	if diags := gohcl.DecodeBody(file.Body, nil, &lib); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode library %s: %w", path, diags)
	}
	elements, diags := declareHelpers(nil, lib.Attributes, lib.Operations)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid library %s: %w", path, diags)
	}
	return sortDeclared(elements), nil
}

// declared is a module element with the byte offset of its declaration.
type declared struct {
	offset int
	el     *Element
}

func declareHelpers(elements []declared, attrs []*hclAttribute, ops []*hclOperation) ([]declared, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	for _, a := range attrs {
		h, d := a.helper()
		diags = append(diags, d...)
		elements = append(elements, declared{a.DefRange.Start.Byte, &Element{Kind: KindAttribute, Attribute: h}})
	}
	for _, o := range ops {
		h, d := o.helper()
		diags = append(diags, d...)
		elements = append(elements, declared{o.DefRange.Start.Byte, &Element{Kind: KindOperation, Operation: h}})
	}
	return elements, diags
}

func sortDeclared(elements []declared) []*Element {
	slices.SortStableFunc(elements, func(a, b declared) int { return cmp.Compare(a.offset, b.offset) })
	out := make([]*Element, len(elements))
	for i, d := range elements {
		out[i] = d.el
	}
	return out
}

func (f *hclModule) module(path string) (*Module, hcl.Diagnostics) {
	m := &Module{Name: f.Name, Path: path}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for _, b := range f.In {
		m.InModels = append(m.InModels, b.binding())
	}
	for _, b := range f.Out {
		m.OutModels = append(m.OutModels, b.binding())
	}

	elements, diags := declareHelpers(nil, f.Attributes, f.Operations)
	for _, r := range f.Rules {
		rule, d := r.rule()
		diags = append(diags, d...)
		elements = append(elements, declared{r.DefRange.Start.Byte, &Element{Kind: KindRule, Rule: rule}})
	}
	m.Elements = sortDeclared(elements)
	return m, diags
}

func (b *hclModel) binding() *ModelBinding {
	return &ModelBinding{Role: b.Role, Metamodel: b.Metamodel, Path: b.Path, Pos: posOf(b.DefRange)}
}

func (a *hclAttribute) helper() (*HelperAttribute, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	h := &HelperAttribute{Name: a.Name, Pos: posOf(a.DefRange)}
	checkIdent("Helper", a.Name, a.DefRange, &diags)
	h.Context = optionalType(a.Context, a.DefRange, &diags)
	h.Type = requiredType(a.Type, a.DefRange, &diags)
	h.Expr = lower(a.Value, &diags)
	return h, diags
}

func (o *hclOperation) helper() (*HelperOperation, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	h := &HelperOperation{Name: o.Name, Pos: posOf(o.DefRange)}
	checkIdent("Helper", o.Name, o.DefRange, &diags)
	h.Context = optionalType(o.Context, o.DefRange, &diags)
	for _, p := range o.Params {
		checkIdent("Parameter", p.Name, o.DefRange, &diags)
		h.Params = append(h.Params, &Param{Name: p.Name, Type: requiredType(p.Type, o.DefRange, &diags)})
	}
	h.Type = requiredType(o.Type, o.DefRange, &diags)
	h.Body = lower(o.Body, &diags)
	return h, diags
}

func (r *hclRule) rule() (*MatchedRule, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	rule := &MatchedRule{
		Name:     r.Name,
		Lazy:     r.Lazy,
		Abstract: r.Abstract,
		Extends:  r.Extends,
		Pos:      posOf(r.DefRange),
	}
	checkIdent("Rule", r.Name, r.DefRange, &diags)
	if len(r.From) == 0 {
		diags = append(diags, errorAt(r.DefRange, "Missing source pattern", fmt.Sprintf("Rule %q needs at least one from block.", r.Name)))
	}
	for _, from := range r.From {
		checkIdent("Pattern variable", from.Var, from.DefRange, &diags)
		t := requiredType(from.Type, from.DefRange, &diags)
		if t != nil && (t.IsPrimitive() || t.Seq) {
			diags = append(diags, errorAt(from.DefRange, "Invalid source pattern", fmt.Sprintf("Pattern %q must have a class type, got %s.", from.Var, t)))
		}
		rule.From = append(rule.From, &InPattern{Var: from.Var, Type: t, Model: from.Model, Pos: posOf(from.DefRange)})
	}
	if r.Filter != nil {
		rule.Filter = lower(r.Filter.Expr, &diags)
	}
	for _, to := range r.To {
		checkIdent("Pattern variable", to.Var, to.DefRange, &diags)
		t := requiredType(to.Type, to.DefRange, &diags)
		if t != nil && (t.IsPrimitive() || t.Seq) {
			diags = append(diags, errorAt(to.DefRange, "Invalid target pattern", fmt.Sprintf("Pattern %q must have a class type, got %s.", to.Var, t)))
		}
		rule.To = append(rule.To, &OutPattern{
			Var:      to.Var,
			Type:     t,
			Model:    to.Model,
			Bindings: to.bindings(&diags),
			Pos:      posOf(to.DefRange),
		})
	}
	return rule, diags
}

// bindings returns the bindings of bind and contain blocks in source order.
func (t *hclTo) bindings(diags *hcl.Diagnostics) []*Binding {
	var attrs []*hcl.Attribute
	containment := make(map[*hcl.Attribute]bool)
	for _, b := range t.Bind {
		for _, a := range b.Attrs {
			attrs = append(attrs, a)
		}
	}
	for _, b := range t.Contain {
		for _, a := range b.Attrs {
			attrs = append(attrs, a)
			containment[a] = true
		}
	}
	slices.SortFunc(attrs, func(a, b *hcl.Attribute) int { return cmp.Compare(a.Range.Start.Byte, b.Range.Start.Byte) })
	out := make([]*Binding, 0, len(attrs))
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if seen[a.Name] {
			*diags = append(*diags, errorAt(a.NameRange, "Duplicate binding", fmt.Sprintf("Feature %q of %q is bound more than once.", a.Name, t.Var)))
			continue
		}
		seen[a.Name] = true
		out = append(out, &Binding{
			Feature:     a.Name,
			Expr:        lower(a.Expr, diags),
			Containment: containment[a],
			Pos:         posOf(a.Range),
		})
	}
	return out
}

func optionalType(s string, rng hcl.Range, diags *hcl.Diagnostics) *TypeRef {
	if s == "" {
		return nil
	}
	return requiredType(s, rng, diags)
}

func requiredType(s string, rng hcl.Range, diags *hcl.Diagnostics) *TypeRef {
	t, err := ParseType(s)
	if err != nil {
		*diags = append(*diags, errorAt(rng, "Invalid type", err.Error()))
		return nil
	}
	return t
}

// checkIdent reports a declared name that cannot be referenced from
// expressions.
func checkIdent(what, name string, rng hcl.Range, diags *hcl.Diagnostics) {
	if !hclsyntax.ValidIdentifier(name) {
		*diags = append(*diags, errorAt(rng, "Invalid name", fmt.Sprintf("%s %q is not a valid identifier.", what, name)))
	}
}

func posOf(r hcl.Range) Pos {
	return Pos{File: r.Filename, Line: r.Start.Line, Column: r.Start.Column}
}

func errorAt(rng hcl.Range, summary, detail string) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   detail,
		Subject:  rng.Ptr(),
	}
}

// itVar names the item of a splat expression.
const itVar = "it"

var binaryOps = map[*hclsyntax.Operation]string{
	hclsyntax.OpLogicalOr:          "||",
	hclsyntax.OpLogicalAnd:         "&&",
	hclsyntax.OpEqual:              "==",
	hclsyntax.OpNotEqual:           "!=",
	hclsyntax.OpGreaterThan:        ">",
	hclsyntax.OpGreaterThanOrEqual: ">=",
	hclsyntax.OpLessThan:           "<",
	hclsyntax.OpLessThanOrEqual:    "<=",
	hclsyntax.OpAdd:                "+",
	hclsyntax.OpSubtract:           "-",
	hclsyntax.OpMultiply:           "*",
	hclsyntax.OpDivide:             "/",
	hclsyntax.OpModulo:             "%",
}

func lower(expr hcl.Expression, diags *hcl.Diagnostics) Expr {
	e, ok := expr.(hclsyntax.Expression)
	if !ok {
		*diags = append(*diags, errorAt(expr.Range(), "Unsupported expression", "Expressions must use native HCL syntax."))
		return nil
	}
	return lowerSyntax(e, diags)
}

// lowerSyntax converts an HCL syntax tree into an expression tree.
func lowerSyntax(expr hclsyntax.Expression, diags *hcl.Diagnostics) Expr {
	n := node{pos: posOf(expr.Range())}
	switch e := expr.(type) {
	case *hclsyntax.LiteralValueExpr:
		v, err := literal(e.Val)
		if err != nil {
			*diags = append(*diags, errorAt(e.SrcRange, "Unsupported literal", err.Error()))
			return nil
		}
		return &Literal{node: n, Value: v}
	case *hclsyntax.TemplateExpr:
		parts := make([]Expr, 0, len(e.Parts))
		for _, p := range e.Parts {
			parts = append(parts, lowerSyntax(p, diags))
		}
		switch {
		case len(parts) == 0:
			return &Literal{node: n, Value: ""}
		case len(parts) == 1:
			if lit, ok := parts[0].(*Literal); ok {
				if _, ok := lit.Value.(string); ok {
					return lit
				}
			}
		}
		return &Concat{node: n, Parts: parts}
	case *hclsyntax.TemplateWrapExpr:
		return lowerSyntax(e.Wrapped, diags)
	case *hclsyntax.ParenthesesExpr:
		return lowerSyntax(e.Expression, diags)
	case *hclsyntax.ScopeTraversalExpr:
		root := e.Traversal.RootName()
		rest := e.Traversal[1:]
		if root == "thisModule" {
			var attr hcl.TraverseAttr
			ok := len(rest) > 0
			if ok {
				attr, ok = rest[0].(hcl.TraverseAttr)
			}
			if !ok {
				*diags = append(*diags, errorAt(e.SrcRange, "Invalid module reference", "thisModule must be followed by a helper attribute name."))
				return nil
			}
			return traverse(&ModuleAttr{node: n, Name: attr.Name}, rest[1:], diags)
		}
		return traverse(&VarRef{node: n, Name: root}, rest, diags)
	case *hclsyntax.RelativeTraversalExpr:
		return traverse(lowerSyntax(e.Source, diags), e.Traversal, diags)
	case *hclsyntax.AnonSymbolExpr:
		return &VarRef{node: n, Name: itVar}
	case *hclsyntax.SplatExpr:
		return &Collect{node: n, Source: lowerSyntax(e.Source, diags), Var: itVar, Body: lowerSyntax(e.Each, diags)}
	case *hclsyntax.IndexExpr:
		return &Call{node: n, Name: "at", Args: []Expr{lowerSyntax(e.Collection, diags), lowerSyntax(e.Key, diags)}}
	case *hclsyntax.FunctionCallExpr:
		if e.ExpandFinal {
			*diags = append(*diags, errorAt(e.CloseParenRange, "Unsupported expansion", "Argument expansion is not supported."))
		}
		args := make([]Expr, 0, len(e.Args))
		for _, a := range e.Args {
			args = append(args, lowerSyntax(a, diags))
		}
		return &Call{node: n, Name: e.Name, Args: args}
	case *hclsyntax.UnaryOpExpr:
		op := "!"
		if e.Op == hclsyntax.OpNegate {
			op = "-"
		}
		return &Unary{node: n, Op: op, X: lowerSyntax(e.Val, diags)}
	case *hclsyntax.BinaryOpExpr:
		return &Binary{node: n, Op: binaryOps[e.Op], X: lowerSyntax(e.LHS, diags), Y: lowerSyntax(e.RHS, diags)}
	case *hclsyntax.ConditionalExpr:
		return &Cond{
			node: n,
			Cond: lowerSyntax(e.Condition, diags),
			Then: lowerSyntax(e.TrueResult, diags),
			Else: lowerSyntax(e.FalseResult, diags),
		}
	case *hclsyntax.TupleConsExpr:
		items := make([]Expr, 0, len(e.Exprs))
		for _, item := range e.Exprs {
			items = append(items, lowerSyntax(item, diags))
		}
		return &SeqLit{node: n, Items: items}
	case *hclsyntax.ForExpr:
		if e.KeyExpr != nil || e.KeyVar != "" || e.Group {
			*diags = append(*diags, errorAt(e.SrcRange, "Unsupported for expression", "Only [for v in source: body if filter] is supported."))
			return nil
		}
		c := &Collect{node: n, Source: lowerSyntax(e.CollExpr, diags), Var: e.ValVar}
		if e.CondExpr != nil {
			c.Filter = lowerSyntax(e.CondExpr, diags)
		}
		// [for v in xs: v if cond] selects.
		if v, ok := e.ValExpr.(*hclsyntax.ScopeTraversalExpr); !ok || len(v.Traversal) != 1 || v.Traversal.RootName() != e.ValVar {
			c.Body = lowerSyntax(e.ValExpr, diags)
		}
		return c
	default:
		*diags = append(*diags, errorAt(expr.Range(), "Unsupported expression", fmt.Sprintf("%T is not supported in transformations.", expr)))
		return nil
	}
}

func traverse(recv Expr, tr hcl.Traversal, diags *hcl.Diagnostics) Expr {
	for _, step := range tr {
		n := node{pos: posOf(step.SourceRange())}
		switch s := step.(type) {
		case hcl.TraverseAttr:
			recv = &Nav{node: n, Recv: recv, Name: s.Name}
		case hcl.TraverseIndex:
			key, err := literal(s.Key)
			if err != nil {
				*diags = append(*diags, errorAt(s.SrcRange, "Unsupported index", err.Error()))
				return nil
			}
			recv = &Call{node: n, Name: "at", Args: []Expr{recv, &Literal{node: n, Value: key}}}
		default:
			*diags = append(*diags, errorAt(step.SourceRange(), "Unsupported traversal", "Only attribute and index steps are supported."))
			return nil
		}
	}
	return recv
}

func literal(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return v.True(), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	default:
		return nil, fmt.Errorf("literal of type %s is not supported", v.Type().FriendlyName())
	}
}
