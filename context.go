package synchro

import (
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

// RuleSpec describes a matched rule to the runtime: its source pattern
// variables and the target elements it creates.
type RuleSpec struct {
	Name    string
	Sources []string
	Targets []TargetSpec
	Lazy    bool
}

// TargetSpec describes one target pattern element.
type TargetSpec struct {
	Var   string
	Role  string
	Class string
	// Feeds lists the source variables the target's bindings read.
	Feeds []string
}

type memoKey struct {
	helper string
	self   *Element
}

// Context holds the models of one execution, the trace and helper caches.
// Evaluation errors are sticky: the first one is kept and returned by Err,
// and later evaluation becomes a no-op.
type Context struct {
	in     []*Model
	out    []*Model
	roles  map[string]*Model
	trace  *Trace
	logger *log.Logger

	memoMu sync.Mutex
	memo   map[memoKey]any

	errMu sync.Mutex
	err   error
}

// NewContext returns a context over loaded in-models and empty out-models.
func NewContext(in, out []*Model) *Context {
	c := &Context{
		in:     in,
		out:    out,
		roles:  make(map[string]*Model, len(in)+len(out)),
		trace:  NewTrace(),
		logger: log.Default(),
		memo:   make(map[memoKey]any),
	}
	for _, m := range in {
		c.roles[m.role] = m
	}
	for _, m := range out {
		c.roles[m.role] = m
	}
	return c
}

// SetLogger replaces the logger used for evaluation warnings.
func (c *Context) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Model returns the model bound to role.
func (c *Context) Model(role string) *Model { return c.roles[role] }

// Trace returns the trace of rule applications.
func (c *Context) Trace() *Trace { return c.trace }

// Err returns the first evaluation error.
func (c *Context) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Fail records an evaluation error raised while running rule.
func (c *Context) Fail(rule string, err error) {
	c.fail(rule, nil, err)
}

func (c *Context) fail(rule string, el *Element, err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err != nil {
		return
	}
	re := &RuleError{Rule: rule, Err: err}
	if el != nil {
		re.Element = el.String()
	}
	c.err = re
}

// AllOf returns the instances of class in the model bound to role.
func (c *Context) AllOf(role, class string) []*Element {
	m := c.roles[role]
	if m == nil {
		return nil
	}
	return m.AllOf(class)
}

// Instances is AllOf as a sequence value.
func (c *Context) Instances(role, class string) any {
	return toSeq(c.AllOf(role, class))
}

// AllInstances returns the instances of class across every in-model that
// conforms to metamodel mm, in role order.
func (c *Context) AllInstances(mm, class string) any {
	var out []*Element
	for _, m := range c.in {
		if m.metamodel.Name == mm {
			out = append(out, m.AllOf(class)...)
		}
	}
	return toSeq(out)
}

func toSeq(els []*Element) []any {
	out := make([]any, len(els))
	for i, e := range els {
		out[i] = e
	}
	return out
}

// Instantiate returns the trace link of rule for sources, creating its target
// elements on first use. created reports whether this call created them.
func (c *Context) Instantiate(rule *RuleSpec, sources ...*Element) (l *Link, created bool, err error) {
	sources = slices.Clone(sources)
	return c.trace.Insert(rule, sources, func() (*Link, error) {
		l := &Link{Rule: rule, Sources: sources, Targets: make([]*Element, len(rule.Targets))}
		for i, t := range rule.Targets {
			m := c.roles[t.Role]
			if m == nil || !m.output {
				return nil, fmt.Errorf("synchro: rule %s targets unknown out-model %q", rule.Name, t.Role)
			}
			el, err := m.NewElement(t.Class, NewElementID(rule.Name, t.Var, sources))
			if err != nil {
				return nil, err
			}
			l.Targets[i] = el
		}
		return l, nil
	})
}

// Lazy applies a lazy rule to sources. The targets are created and bound on
// first use only; the first target element is returned.
func (c *Context) Lazy(rule *RuleSpec, bind func(*Context, *Link), sources ...*Element) any {
	if c.Err() != nil {
		return nil
	}
	l, created, err := c.Instantiate(rule, sources...)
	if err != nil {
		c.fail(rule.Name, nil, err)
		return nil
	}
	if created {
		bind(c, l)
	}
	if len(l.Targets) == 0 {
		return nil
	}
	return l.Targets[0]
}

// Cast checks that v is an element of class mm!class. A nil v yields false
// without an error; any other mismatch is recorded against owner.
func (c *Context) Cast(v any, mm, class, owner string) (*Element, bool) {
	if v == nil {
		return nil, false
	}
	e, ok := v.(*Element)
	if !ok {
		c.fail(owner, nil, fmt.Errorf("expected %s!%s, got %T", mm, class, v))
		return nil, false
	}
	if e == nil {
		return nil, false
	}
	if !e.IsKindOf(mm, class) {
		c.fail(owner, e, fmt.Errorf("not applicable to %s (expects %s!%s)", e.class.QualifiedName(), mm, class))
		return nil, false
	}
	return e, true
}

// Memo returns the cached value of a helper attribute on self, computing it
// with fn on first access. Context-free attributes use a nil self.
func (c *Context) Memo(helper string, self *Element, fn func() any) any {
	key := memoKey{helper: helper, self: self}
	c.memoMu.Lock()
	if v, ok := c.memo[key]; ok {
		c.memoMu.Unlock()
		return v
	}
	c.memoMu.Unlock()
	v := fn()
	c.memoMu.Lock()
	defer c.memoMu.Unlock()
	if prev, ok := c.memo[key]; ok {
		return prev
	}
	c.memo[key] = v
	return v
}

// Bind assigns value to a feature of target. Sequences are flattened, source
// elements are replaced by the target their default rule created, and
// undefined values are skipped. Many-valued features accumulate.
func (c *Context) Bind(rule string, target *Element, feature string, value any) {
	c.bind(rule, target, feature, value, false)
}

// Contain is Bind for containment bindings: the bound elements are attached
// under target instead of remaining roots of their model.
func (c *Context) Contain(rule string, target *Element, feature string, value any) {
	c.bind(rule, target, feature, value, true)
}

func (c *Context) bind(rule string, target *Element, feature string, value any, containment bool) {
	if c.Err() != nil || target == nil {
		return
	}
	f, err := target.lookup(feature)
	if err != nil {
		c.fail(rule, target, err)
		return
	}
	if containment && !f.Containment {
		c.fail(rule, target, fmt.Errorf("%s.%s is not a containment feature", target.class.QualifiedName(), f.Name))
		return
	}
	var items []any
	for _, v := range flatten(value, nil) {
		if el, ok := v.(*Element); ok && f.IsReference() && !el.model.output {
			resolved, ok := c.trace.Resolve(el)
			if !ok {
				c.logger.Debug("unresolved source element skipped", "rule", rule, "feature", f.Name, "element", el.String())
				continue
			}
			v = resolved
		}
		items = append(items, v)
	}
	if f.Many {
		for _, v := range items {
			if err := target.Add(f.Name, v); err != nil {
				c.fail(rule, target, err)
				return
			}
		}
		return
	}
	switch len(items) {
	case 0:
	case 1:
		if err := target.Set(f.Name, items[0]); err != nil {
			c.fail(rule, target, err)
		}
	default:
		c.fail(rule, target, fmt.Errorf("%d values bound to single-valued feature %s", len(items), f.Name))
	}
}
