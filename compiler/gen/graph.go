package gen

import (
	"fmt"

	"github.com/syssam/synchro/compiler/load"
	"github.com/syssam/synchro/metamodel"
)

// Role is a model role of the transformation bound to a metamodel.
type Role struct {
	Name      string
	Metamodel *metamodel.Metamodel
	Output    bool
	// Index is the declaration index within the role's direction.
	Index   int
	Binding *load.ModelBinding
}

// Rule is a matched rule of the graph.
type Rule struct {
	*load.MatchedRule
	// Index is the declaration index among all module elements.
	Index int
	// Order is the declaration index among rules.
	Order int
}

// Helper is a helper attribute or operation of the graph.
type Helper struct {
	Name      string
	Kind      load.ElementKind
	Attribute *load.HelperAttribute
	Operation *load.HelperOperation
	// Index is the declaration index among all module elements.
	Index int
}

// Context returns the context type, nil for context-free helpers.
func (h *Helper) Context() *load.TypeRef {
	if h.Kind == load.KindAttribute {
		return h.Attribute.Context
	}
	return h.Operation.Context
}

// Type returns the declared result type.
func (h *Helper) Type() *load.TypeRef {
	if h.Kind == load.KindAttribute {
		return h.Attribute.Type
	}
	return h.Operation.Type
}

// Body returns the helper expression.
func (h *Helper) Body() load.Expr {
	if h.Kind == load.KindAttribute {
		return h.Attribute.Expr
	}
	return h.Operation.Body
}

// Params returns the operation parameters; attributes have none.
func (h *Helper) Params() []*load.Param {
	if h.Kind == load.KindOperation {
		return h.Operation.Params
	}
	return nil
}

// IsAttribute reports whether the helper is an attribute.
func (h *Helper) IsAttribute() bool { return h.Kind == load.KindAttribute }

// Pos returns the declaration position.
func (h *Helper) Pos() load.Pos {
	if h.Kind == load.KindAttribute {
		return h.Attribute.Pos
	}
	return h.Operation.Pos
}

// Graph is the validated rule graph of a module. Declaration order is kept
// in every slice.
type Graph struct {
	Config     *Config
	Module     *load.Module
	In         []*Role
	Out        []*Role
	Rules      []*Rule
	Helpers    []*Helper
	Metamodels []*metamodel.Metamodel

	inRoles    map[string]*Role
	outRoles   map[string]*Role
	rules      map[string]*Rule
	helpers    map[string]*Helper
	metamodels map[string]*metamodel.Metamodel
}

// NewGraph builds the rule graph of m. mms supplies the metamodels bound by
// the module's roles, matched by name. NewGraph has no side effects.
func NewGraph(c *Config, m *load.Module, mms ...*metamodel.Metamodel) (*Graph, error) {
	if c == nil {
		return nil, NewConfigError("Config", nil, "config cannot be nil")
	}
	g := &Graph{
		Config:     c,
		Module:     m,
		inRoles:    make(map[string]*Role),
		outRoles:   make(map[string]*Role),
		rules:      make(map[string]*Rule),
		helpers:    make(map[string]*Helper),
		metamodels: make(map[string]*metamodel.Metamodel),
	}
	for _, mm := range mms {
		if prev, ok := g.metamodels[mm.Name]; ok {
			if prev != mm {
				return nil, NewParseError(KindDuplicateDeclaration, mm.Name, "metamodel supplied more than once", nil)
			}
			continue
		}
		g.metamodels[mm.Name] = mm
	}
	if len(m.InModels) == 0 || len(m.OutModels) == 0 {
		return nil, NewParseError(KindMissingModel, m.Name, "a module needs at least one in-model and one out-model", nil)
	}
	var err error
	if g.In, err = g.roles(m.InModels, false, g.inRoles); err != nil {
		return nil, err
	}
	if g.Out, err = g.roles(m.OutModels, true, g.outRoles); err != nil {
		return nil, err
	}
	for i, el := range m.Elements {
		name := el.Name()
		if _, ok := g.rules[name]; ok {
			return nil, g.duplicate(el)
		}
		if _, ok := g.helpers[name]; ok {
			return nil, g.duplicate(el)
		}
		switch el.Kind {
		case load.KindRule:
			r := &Rule{MatchedRule: el.Rule, Index: i, Order: len(g.Rules)}
			if err := g.checkRule(r); err != nil {
				return nil, err
			}
			g.Rules = append(g.Rules, r)
			g.rules[name] = r
		case load.KindAttribute, load.KindOperation:
			h := &Helper{Name: name, Kind: el.Kind, Attribute: el.Attribute, Operation: el.Operation, Index: i}
			if err := g.checkExpr(name, h.Body()); err != nil {
				return nil, err
			}
			g.Helpers = append(g.Helpers, h)
			g.helpers[name] = h
		default:
			return nil, NewParseError(KindSyntax, name, fmt.Sprintf("unknown element kind %d", el.Kind), nil)
		}
	}
	return g, nil
}

func (g *Graph) duplicate(el *load.Element) error {
	err := NewParseError(KindDuplicateDeclaration, el.Name(), fmt.Sprintf("%s %q is already declared", el.Kind, el.Name()), nil)
	err.Pos = el.Pos().String()
	return err
}

func (g *Graph) roles(bindings []*load.ModelBinding, output bool, index map[string]*Role) ([]*Role, error) {
	roles := make([]*Role, 0, len(bindings))
	for i, b := range bindings {
		if _, ok := index[b.Role]; ok {
			err := NewParseError(KindDuplicateDeclaration, b.Role, "model role is already declared", nil)
			err.Pos = b.Pos.String()
			return nil, err
		}
		mm, ok := g.metamodels[b.Metamodel]
		if !ok {
			err := NewParseError(KindUnknownMetamodel, b.Role, fmt.Sprintf("metamodel %q was not supplied", b.Metamodel), nil)
			err.Pos = b.Pos.String()
			return nil, err
		}
		r := &Role{Name: b.Role, Metamodel: mm, Output: output, Index: i, Binding: b}
		index[b.Role] = r
		roles = append(roles, r)
		if !containsMetamodel(g.Metamodels, mm) {
			g.Metamodels = append(g.Metamodels, mm)
		}
	}
	return roles, nil
}

func containsMetamodel(mms []*metamodel.Metamodel, mm *metamodel.Metamodel) bool {
	for _, m := range mms {
		if m == mm {
			return true
		}
	}
	return false
}

func (g *Graph) checkRule(r *Rule) error {
	if len(r.From) == 0 || (len(r.To) == 0 && r.Extends == "") {
		err := NewParseError(KindSyntax, r.Name, "a rule needs a source and a target pattern", nil)
		err.Pos = r.Pos.String()
		return err
	}
	vars := make(map[string]bool)
	declare := func(name string, pos load.Pos) error {
		if vars[name] {
			err := NewParseError(KindDuplicateDeclaration, r.Name, fmt.Sprintf("pattern variable %q is already declared", name), nil)
			err.Pos = pos.String()
			return err
		}
		vars[name] = true
		return nil
	}
	for _, p := range r.From {
		if err := declare(p.Var, p.Pos); err != nil {
			return err
		}
		if p.Model != "" {
			if _, ok := g.inRoles[p.Model]; !ok {
				err := NewParseError(KindUnknownModelRole, r.Name, fmt.Sprintf("source pattern %q uses unknown in-model %q", p.Var, p.Model), nil)
				err.Pos = p.Pos.String()
				return err
			}
		}
	}
	if err := g.checkExpr(r.Name, r.Filter); err != nil {
		return err
	}
	for _, p := range r.To {
		if err := declare(p.Var, p.Pos); err != nil {
			return err
		}
		if p.Model != "" {
			if _, ok := g.outRoles[p.Model]; !ok {
				err := NewParseError(KindUnknownModelRole, r.Name, fmt.Sprintf("target pattern %q uses unknown out-model %q", p.Var, p.Model), nil)
				err.Pos = p.Pos.String()
				return err
			}
		}
		for _, b := range p.Bindings {
			if err := g.checkExpr(r.Name, b.Expr); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkExpr validates the role literals of allInstances calls.
func (g *Graph) checkExpr(owner string, e load.Expr) error {
	var err error
	load.Walk(e, func(x load.Expr) bool {
		call, ok := x.(*load.Call)
		if !ok || call.Name != "allInstances" || len(call.Args) != 2 || err != nil {
			return err == nil
		}
		lit, ok := call.Args[1].(*load.Literal)
		if !ok {
			return true
		}
		role, _ := lit.Value.(string)
		if _, ok := g.inRoles[role]; !ok {
			perr := NewParseError(KindUnknownModelRole, owner, fmt.Sprintf("allInstances uses unknown in-model %q", role), nil)
			perr.Pos = call.Pos().String()
			err = perr
		}
		return true
	})
	return err
}

// InRole returns the in-model role with the given name.
func (g *Graph) InRole(name string) (*Role, bool) {
	r, ok := g.inRoles[name]
	return r, ok
}

// OutRole returns the out-model role with the given name.
func (g *Graph) OutRole(name string) (*Role, bool) {
	r, ok := g.outRoles[name]
	return r, ok
}

// Rule returns the rule with the given name.
func (g *Graph) Rule(name string) (*Rule, bool) {
	r, ok := g.rules[name]
	return r, ok
}

// Helper returns the helper with the given name.
func (g *Graph) Helper(name string) (*Helper, bool) {
	h, ok := g.helpers[name]
	return h, ok
}

// Metamodel returns the supplied metamodel with the given name.
func (g *Graph) Metamodel(name string) (*metamodel.Metamodel, bool) {
	mm, ok := g.metamodels[name]
	return mm, ok
}
