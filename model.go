package synchro

import (
	"fmt"

	"github.com/syssam/synchro/metamodel"
)

// Model is a set of elements conforming to one metamodel, bound to a role of
// the transformation.
type Model struct {
	role      string
	metamodel *metamodel.Metamodel
	output    bool

	elements []*Element
	byID     map[string]*Element
}

// NewModel returns an empty output model for the given role.
func NewModel(role string, mm *metamodel.Metamodel) *Model {
	return &Model{
		role:      role,
		metamodel: mm,
		output:    true,
		byID:      make(map[string]*Element),
	}
}

func newInputModel(role string, mm *metamodel.Metamodel) *Model {
	m := NewModel(role, mm)
	m.output = false
	return m
}

// Role returns the role the model is bound to.
func (m *Model) Role() string { return m.role }

// Metamodel returns the metamodel the model conforms to.
func (m *Model) Metamodel() *metamodel.Metamodel { return m.metamodel }

// IsOutput reports whether the model is written by the transformation.
func (m *Model) IsOutput() bool { return m.output }

// Len returns the number of elements.
func (m *Model) Len() int { return len(m.elements) }

// NewElement creates an element of the named class. Abstract classes cannot
// be instantiated and ids must be unique within the model.
func (m *Model) NewElement(class, id string) (*Element, error) {
	c, ok := m.metamodel.Class(class)
	if !ok {
		return nil, fmt.Errorf("synchro: %s has no class %q", m.metamodel.Name, class)
	}
	if c.Abstract {
		return nil, fmt.Errorf("synchro: cannot instantiate abstract class %s", c.QualifiedName())
	}
	if id == "" {
		return nil, fmt.Errorf("synchro: empty id for %s element", c.QualifiedName())
	}
	if _, ok := m.byID[id]; ok {
		return nil, fmt.Errorf("synchro: duplicate element id %q in model %s", id, m.role)
	}
	e := &Element{
		id:     id,
		class:  c,
		model:  m,
		values: make(map[string]any),
	}
	m.elements = append(m.elements, e)
	m.byID[id] = e
	return e, nil
}

// Elements returns all elements in creation order.
func (m *Model) Elements() []*Element { return m.elements }

// Element returns the element with the given id.
func (m *Model) Element(id string) (*Element, bool) {
	e, ok := m.byID[id]
	return e, ok
}

// Roots returns the elements without a container, in creation order.
func (m *Model) Roots() []*Element {
	var roots []*Element
	for _, e := range m.elements {
		if e.container == nil {
			roots = append(roots, e)
		}
	}
	return roots
}

// AllOf returns the instances of a class and its subclasses in creation order.
func (m *Model) AllOf(class string) []*Element {
	c, ok := m.metamodel.Class(class)
	if !ok {
		return nil
	}
	var out []*Element
	for _, e := range m.elements {
		if e.class.IsSubtypeOf(c) {
			out = append(out, e)
		}
	}
	return out
}
