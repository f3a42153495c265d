package gen

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/synchro/compiler/load"
	"github.com/syssam/synchro/metamodel"
)

// Pattern is a resolved source or target pattern variable.
type Pattern struct {
	Var   string
	Role  *Role
	Class *metamodel.Class
	// Bindings holds the bindings of a target, inherited ones first.
	Bindings []*BindingInfo
}

// BindingInfo is a resolved target binding.
type BindingInfo struct {
	*load.Binding
	// Rule is the rule declaring the binding.
	Rule *Rule
	// Feature is nil when the target class has no such feature.
	Feature *metamodel.Feature
	// Containment reports whether the bound elements are attached under the
	// target.
	Containment bool
}

// RuleInfo annotates a rule.
type RuleInfo struct {
	Rule   *Rule
	Parent *Rule
	// Chain lists the inheritance chain, root first, ending with Rule.
	Chain    []*Rule
	Children []*Rule
	// Claims lists the concrete descendants whose matches the rule skips.
	Claims  []*Rule
	Sources []*Pattern
	// Targets holds the merged target pattern, inherited variables first.
	Targets []*Pattern
	// Feeds maps a target variable to the source variables its bindings
	// read, in source order.
	Feeds map[string][]string
	// Lazy lists the lazy rules invoked by the filter and bindings, directly
	// or through helpers.
	Lazy []*Rule
	// Deps lists the rules scheduled before this one.
	Deps []*Rule

	calls []*Helper
}

// Source returns the source pattern variable with the given name.
func (ri *RuleInfo) Source(name string) *Pattern {
	for _, p := range ri.Sources {
		if p.Var == name {
			return p
		}
	}
	return nil
}

// Target returns the target pattern variable with the given name.
func (ri *RuleInfo) Target(name string) *Pattern {
	for _, p := range ri.Targets {
		if p.Var == name {
			return p
		}
	}
	return nil
}

// Roles returns the distinct in-model roles matched by the rule.
func (ri *RuleInfo) Roles() []*Role {
	var out []*Role
	for _, p := range ri.Sources {
		if !slices.Contains(out, p.Role) {
			out = append(out, p.Role)
		}
	}
	return out
}

// CrossModel reports whether the source pattern spans several in-models.
func (ri *RuleInfo) CrossModel() bool { return len(ri.Roles()) > 1 }

// Creates reports whether the rule has a creation routine.
func (ri *RuleInfo) Creates() bool { return !ri.Rule.Lazy && !ri.Rule.Abstract }

// HelperInfo annotates a helper.
type HelperInfo struct {
	Helper  *Helper
	Context *metamodel.Class
	Type    *Type
	Params  []*Type
	// Lazy lists the lazy rules invoked, directly or through other helpers.
	Lazy  []*Rule
	calls []*Helper
}

// Deferred is a containment binding whose value type is known only at run
// time. The generator schedules it against every possible producer.
type Deferred struct {
	Rule    *Rule
	Target  *Pattern
	Binding *BindingInfo
}

// Annotated is a rule graph with the resolver's annotations. The graph itself
// is not modified; annotations are keyed by rule, helper and expression.
type Annotated struct {
	Graph *Graph
	// Order is the creation order of all rules.
	Order    []*Rule
	Deferred []*Deferred

	rules   map[*Rule]*RuleInfo
	helpers map[*Helper]*HelperInfo
	exprs   map[load.Expr]*ExprInfo
}

// RuleInfo returns the annotations of r.
func (a *Annotated) RuleInfo(r *Rule) *RuleInfo { return a.rules[r] }

// HelperInfo returns the annotations of h.
func (a *Annotated) HelperInfo(h *Helper) *HelperInfo { return a.helpers[h] }

// ExprInfo returns the annotations of e, or nil.
func (a *Annotated) ExprInfo(e load.Expr) *ExprInfo { return a.exprs[e] }

// RulesOf returns the creating rules with a target in role, in creation
// order.
func (a *Annotated) RulesOf(role *Role) []*Rule {
	var out []*Rule
	for _, r := range a.Order {
		ri := a.rules[r]
		if r.Abstract {
			continue
		}
		for _, t := range ri.Targets {
			if t.Role == role {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Resolve annotates g: pattern roles and classes, inheritance chains, helper
// reachability, expression types and the creation order.
func Resolve(g *Graph) (*Annotated, error) {
	a := &Annotated{
		Graph:   g,
		rules:   make(map[*Rule]*RuleInfo, len(g.Rules)),
		helpers: make(map[*Helper]*HelperInfo, len(g.Helpers)),
		exprs:   make(map[load.Expr]*ExprInfo),
	}
	r := &resolver{g: g, a: a}
	steps := []func() error{
		r.signatures,
		r.patterns,
		r.inheritance,
		r.helperBodies,
		r.ruleBodies,
		r.schedule,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

type resolver struct {
	g *Graph
	a *Annotated
	// own holds the targets declared by each rule itself.
	own map[*Rule][]*Pattern
}

func (r *resolver) typer(owner string) *typer {
	return &typer{g: r.g, a: r.a, owner: owner}
}

// signatures resolves helper contexts, parameter and result types.
func (r *resolver) signatures() error {
	for _, h := range r.g.Helpers {
		t := r.typer(h.Name)
		hi := &HelperInfo{Helper: h}
		if ref := h.Context(); ref != nil {
			if ref.IsPrimitive() || ref.Seq {
				return t.errorf(KindUnknownType, nil, "helper context must be a class, got %s", ref)
			}
			cls, err := t.class(ref, nil)
			if err != nil {
				return err
			}
			hi.Context = cls
		}
		var err error
		if hi.Type, err = t.typeOf(h.Type()); err != nil {
			return err
		}
		for _, p := range h.Params() {
			pt, err := t.typeOf(p.Type)
			if err != nil {
				return err
			}
			hi.Params = append(hi.Params, pt)
		}
		r.a.helpers[h] = hi
	}
	return nil
}

// patterns resolves the roles and classes of the patterns each rule
// declares.
func (r *resolver) patterns() error {
	r.own = make(map[*Rule][]*Pattern, len(r.g.Rules))
	for _, rule := range r.g.Rules {
		ri := &RuleInfo{Rule: rule, Feeds: make(map[string][]string)}
		for _, p := range rule.From {
			pat, err := r.pattern(rule, p.Var, p.Type, p.Model, false)
			if err != nil {
				return err
			}
			ri.Sources = append(ri.Sources, pat)
		}
		for _, p := range rule.To {
			pat, err := r.pattern(rule, p.Var, p.Type, p.Model, true)
			if err != nil {
				return err
			}
			for _, b := range p.Bindings {
				bi := &BindingInfo{Binding: b, Rule: rule, Containment: b.Containment}
				if f, ok := pat.Class.Feature(b.Feature); ok {
					bi.Feature = f
					bi.Containment = bi.Containment || f.Containment
				}
				pat.Bindings = append(pat.Bindings, bi)
			}
			r.own[rule] = append(r.own[rule], pat)
		}
		r.a.rules[rule] = ri
	}
	return nil
}

// pattern binds a pattern variable to its role. An unqualified pattern takes
// the only role of its direction bound to the type's metamodel.
func (r *resolver) pattern(rule *Rule, name string, ref *load.TypeRef, model string, output bool) (*Pattern, error) {
	t := r.typer(rule.Name)
	cls, err := t.class(ref, nil)
	if err != nil {
		return nil, err
	}
	mm := cls.Metamodel()
	roles, dir := r.g.In, "in"
	if output {
		roles, dir = r.g.Out, "out"
	}
	if model != "" {
		var role *Role
		if output {
			role, _ = r.g.OutRole(model)
		} else {
			role, _ = r.g.InRole(model)
		}
		if role.Metamodel != mm {
			return nil, t.errorf(KindModelMismatch, nil, "pattern %s has type %s but %s-model %s conforms to %s", name, cls.QualifiedName(), dir, role.Name, role.Metamodel.Name)
		}
		return &Pattern{Var: name, Role: role, Class: cls}, nil
	}
	var candidates []string
	var found *Role
	for _, role := range roles {
		if role.Metamodel == mm {
			candidates = append(candidates, role.Name)
			found = role
		}
	}
	switch len(candidates) {
	case 0:
		return nil, t.errorf(KindModelMismatch, nil, "no %s-model conforms to %s for pattern %s", dir, mm.Name, name)
	case 1:
		return &Pattern{Var: name, Role: found, Class: cls}, nil
	default:
		return nil, t.errorf(KindAmbiguousModelRole, nil, "pattern %s of type %s must name one of the %s-models %s", name, cls.QualifiedName(), dir, strings.Join(candidates, ", "))
	}
}

// inheritance resolves parents, chains and merged targets.
func (r *resolver) inheritance() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Rule]int, len(r.g.Rules))
	var visit func(rule *Rule) error
	visit = func(rule *Rule) error {
		switch state[rule] {
		case done:
			return nil
		case visiting:
			return NewResolutionError(KindInheritanceCycle, rule.Name, fmt.Sprintf("rule %s inherits from itself", rule.Name), nil)
		}
		state[rule] = visiting
		ri := r.a.rules[rule]
		if rule.Extends == "" {
			ri.Chain = []*Rule{rule}
			ri.Targets = r.own[rule]
			state[rule] = done
			return nil
		}
		parent, ok := r.g.Rule(rule.Extends)
		if !ok {
			return NewResolutionError(KindUnknownRule, rule.Name, fmt.Sprintf("parent rule %s is not declared", rule.Extends), nil)
		}
		if err := visit(parent); err != nil {
			return err
		}
		pi := r.a.rules[parent]
		ri.Parent = parent
		ri.Chain = append(slices.Clone(pi.Chain), rule)
		pi.Children = append(pi.Children, rule)
		if err := r.inherit(ri, pi); err != nil {
			return err
		}
		state[rule] = done
		return nil
	}
	for _, rule := range r.g.Rules {
		if err := visit(rule); err != nil {
			return err
		}
	}
	for _, rule := range r.g.Rules {
		ri := r.a.rules[rule]
		if !ri.Creates() {
			continue
		}
		for _, d := range r.descendants(rule) {
			if r.a.rules[d].Creates() && len(r.a.rules[d].Sources) == len(ri.Sources) {
				ri.Claims = append(ri.Claims, d)
			}
		}
	}
	return nil
}

// inherit checks the source pattern of a child against its parent and merges
// the targets, parent first.
func (r *resolver) inherit(ri, pi *RuleInfo) error {
	fail := func(format string, args ...any) error {
		return NewResolutionError(KindInvalidInheritance, ri.Rule.Name, fmt.Sprintf(format, args...), nil)
	}
	for _, ps := range pi.Sources {
		cs := ri.Source(ps.Var)
		switch {
		case cs == nil:
			return fail("source variable %s of %s is missing", ps.Var, pi.Rule.Name)
		case cs.Role != ps.Role:
			return fail("source variable %s matches %s, parent %s matches %s", cs.Var, cs.Role.Name, pi.Rule.Name, ps.Role.Name)
		case !cs.Class.IsSubtypeOf(ps.Class):
			return fail("source variable %s has type %s, not a subtype of %s", cs.Var, cs.Class.QualifiedName(), ps.Class.QualifiedName())
		}
	}
	for _, pt := range pi.Targets {
		merged := *pt
		merged.Bindings = slices.Clone(pt.Bindings)
		ri.Targets = append(ri.Targets, &merged)
	}
	for _, own := range r.own[ri.Rule] {
		inherited := ri.Target(own.Var)
		if inherited == nil {
			ri.Targets = append(ri.Targets, own)
			continue
		}
		if own.Role != inherited.Role || !own.Class.IsSubtypeOf(inherited.Class) {
			return fail("target variable %s has type %s, not a subtype of %s", own.Var, own.Class.QualifiedName(), inherited.Class.QualifiedName())
		}
		inherited.Class = own.Class
		inherited.Bindings = append(inherited.Bindings, own.Bindings...)
	}
	return nil
}

// descendants returns the transitive children of rule in declaration order.
func (r *resolver) descendants(rule *Rule) []*Rule {
	var out []*Rule
	for _, other := range r.g.Rules {
		if other != rule && slices.Contains(r.a.rules[other].Chain, rule) {
			out = append(out, other)
		}
	}
	return out
}

// helperBodies types the helper expressions and closes the lazy rules they
// invoke over helper calls.
func (r *resolver) helperBodies() error {
	for _, h := range r.g.Helpers {
		hi := r.a.helpers[h]
		t := r.typer(h.Name)
		sc := scope{}
		if hi.Context != nil {
			sc["self"] = variable{kind: RefLocal, typ: &Type{Class: hi.Context}}
		}
		for i, p := range h.Params() {
			if p.Name == "self" && hi.Context != nil {
				return t.errorf(KindUnknownVariable, nil, "parameter self shadows the context element")
			}
			sc[p.Name] = variable{kind: RefLocal, typ: hi.Params[i]}
		}
		if _, err := t.expr(h.Body(), sc); err != nil {
			return err
		}
		hi.Lazy, hi.calls = t.lazy, t.calls
	}
	for _, h := range r.g.Helpers {
		hi := r.a.helpers[h]
		hi.Lazy = r.closeLazy(hi.Lazy, hi.calls)
	}
	return nil
}

// closeLazy adds to lazy the rules invoked by helpers reachable from calls.
func (r *resolver) closeLazy(lazy []*Rule, calls []*Helper) []*Rule {
	seen := make(map[*Helper]bool)
	var out []*Rule
	add := func(rules []*Rule) {
		for _, l := range rules {
			if !slices.Contains(out, l) {
				out = append(out, l)
			}
		}
	}
	add(lazy)
	var walk func(hs []*Helper)
	walk = func(hs []*Helper) {
		for _, h := range hs {
			if seen[h] {
				continue
			}
			seen[h] = true
			hi := r.a.helpers[h]
			add(hi.Lazy)
			walk(hi.calls)
		}
	}
	walk(calls)
	return out
}

// ruleBodies types filters and bindings and records feeds and lazy calls.
func (r *resolver) ruleBodies() error {
	feeds := make(map[*Rule]map[string]map[string]bool, len(r.g.Rules))
	for _, rule := range r.g.Rules {
		ri := r.a.rules[rule]
		t := r.typer(rule.Name)
		sc := scope{}
		for _, p := range ri.Sources {
			sc[p.Var] = variable{kind: RefSource, typ: &Type{Class: p.Class}}
		}
		if _, err := t.expr(rule.Filter, sc); err != nil {
			return err
		}
		for _, p := range ri.Targets {
			sc[p.Var] = variable{kind: RefTarget, typ: &Type{Class: p.Class}}
		}
		feeds[rule] = make(map[string]map[string]bool)
		for _, p := range r.own[rule] {
			t.feeds = make(map[string]bool)
			for _, b := range p.Bindings {
				if _, err := t.expr(b.Expr, sc); err != nil {
					return err
				}
			}
			feeds[rule][p.Var] = t.feeds
		}
		ri.Lazy, ri.calls = t.lazy, t.calls
	}
	for _, rule := range r.g.Rules {
		ri := r.a.rules[rule]
		ri.Lazy = r.closeLazy(ri.Lazy, ri.calls)
		for _, p := range ri.Targets {
			read := make(map[string]bool)
			for _, link := range ri.Chain {
				for v := range feeds[link][p.Var] {
					read[v] = true
				}
			}
			var vars []string
			for _, s := range ri.Sources {
				if read[s.Var] {
					vars = append(vars, s.Var)
				}
			}
			ri.Feeds[p.Var] = vars
		}
	}
	return nil
}

// Producers returns the creating rules whose default target could be
// attached to feature f for a source element of class src. A nil src
// matches any single-source rule.
func (a *Annotated) Producers(src *metamodel.Class, f *metamodel.Feature, except *Rule) []*Rule {
	if f == nil || f.Class() == nil {
		return nil
	}
	var out []*Rule
	for _, rule := range a.Graph.Rules {
		ri := a.rules[rule]
		if rule == except || !ri.Creates() || len(ri.Sources) != 1 || len(ri.Targets) == 0 {
			continue
		}
		if src != nil && !ri.Sources[0].Class.Compatible(src) {
			continue
		}
		if ri.Targets[0].Class.IsSubtypeOf(f.Class()) {
			out = append(out, rule)
		}
	}
	return out
}

// schedule computes the creation order. A rule depends on the producers of
// the elements its containment bindings attach and on the lazy rules it
// invokes.
func (r *resolver) schedule() error {
	for _, rule := range r.g.Rules {
		ri := r.a.rules[rule]
		var deps []*Rule
		for _, p := range ri.Targets {
			for _, b := range p.Bindings {
				if !b.Containment {
					continue
				}
				info := r.a.exprs[b.Expr]
				if info == nil || info.Type == nil {
					r.a.Deferred = append(r.a.Deferred, &Deferred{Rule: rule, Target: p, Binding: b})
					continue
				}
				if info.Type.Class != nil && info.Ref != RefLazyRule && info.Ref != RefTarget {
					deps = append(deps, r.a.Producers(info.Type.Class, b.Feature, rule)...)
				}
			}
		}
		for _, l := range ri.Lazy {
			if l != rule {
				deps = append(deps, l)
			}
		}
		ri.Deps = dedupe(deps)
	}
	order, err := Schedule(r.a, nil)
	if err != nil {
		return err
	}
	r.a.Order = order
	return nil
}

// Schedule sorts the rules of a by their dependencies plus extra edges, ties
// kept in declaration order. extra maps a rule to additional prerequisites.
func Schedule(a *Annotated, extra map[*Rule][]*Rule) ([]*Rule, error) {
	rules := a.Graph.Rules
	order, err := topoSort(len(rules), func(i int) []int {
		rule := rules[i]
		var deps []int
		for _, d := range a.rules[rule].Deps {
			deps = append(deps, d.Order)
		}
		for _, d := range extra[rule] {
			if d != rule {
				deps = append(deps, d.Order)
			}
		}
		return deps
	})
	var cycle *cycleError
	if errors.As(err, &cycle) {
		names := make([]string, len(cycle.nodes))
		for i, n := range cycle.nodes {
			names[i] = rules[n].Name
		}
		return nil, NewResolutionError(KindDependencyCycle, names[0], "creation order cycle among rules "+strings.Join(names, ", "), nil)
	}
	if err != nil {
		return nil, NewResolutionError(KindDependencyCycle, "", "cannot order rules", err)
	}
	out := make([]*Rule, len(order))
	for i, n := range order {
		out[i] = rules[n]
	}
	return out, nil
}

func dedupe(rules []*Rule) []*Rule {
	var out []*Rule
	for _, r := range rules {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}
