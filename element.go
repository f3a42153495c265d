package synchro

import (
	"fmt"
	"slices"

	"github.com/syssam/synchro/metamodel"
)

// Element is a model element: an instance of a metamodel class holding
// attribute values and references to other elements.
//
// Single-valued attributes hold a scalar (string, int64, float64, bool) and
// many-valued attributes a []any. References hold *Element or []*Element.
type Element struct {
	id     string
	class  *metamodel.Class
	model  *Model
	values map[string]any

	container *Element
	feature   *metamodel.Feature // containing feature of container
}

// ID returns the element identifier, unique within its model.
func (e *Element) ID() string { return e.id }

// Class returns the element class.
func (e *Element) Class() *metamodel.Class { return e.class }

// Model returns the model the element was created in.
func (e *Element) Model() *Model { return e.model }

// Container returns the containing element, or nil for roots.
func (e *Element) Container() *Element { return e.container }

// IsKindOf reports whether the element class is the given class or a subclass.
func (e *Element) IsKindOf(mm, class string) bool {
	if e == nil || e.class.Metamodel().Name != mm {
		return false
	}
	c, ok := e.class.Metamodel().Class(class)
	return ok && e.class.IsSubtypeOf(c)
}

// IsTypeOf reports whether the element class is exactly the given class.
func (e *Element) IsTypeOf(mm, class string) bool {
	return e != nil && e.class.Metamodel().Name == mm && e.class.Name == class
}

func (e *Element) String() string {
	return fmt.Sprintf("%s#%s", e.class.QualifiedName(), e.id)
}

func (e *Element) lookup(name string) (*metamodel.Feature, error) {
	f, ok := e.class.Feature(name)
	if !ok {
		return nil, &FeatureError{Class: e.class.QualifiedName(), Feature: name}
	}
	return f, nil
}

// Get returns the value of a feature. Unset single-valued features yield nil
// and unset many-valued features an empty slice.
func (e *Element) Get(name string) (any, error) {
	f, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.get(f), nil
}

func (e *Element) get(f *metamodel.Feature) any {
	v, ok := e.values[f.Name]
	switch {
	case f.Many && f.IsReference():
		els, _ := v.([]*Element)
		out := make([]any, len(els))
		for i, el := range els {
			out[i] = el
		}
		return out
	case f.Many:
		vs, _ := v.([]any)
		return slices.Clone(vs)
	case !ok:
		return nil
	default:
		return v
	}
}

// Set assigns a single-valued feature. A nil value unsets it.
func (e *Element) Set(name string, v any) error {
	f, err := e.lookup(name)
	if err != nil {
		return err
	}
	if f.Many {
		return fmt.Errorf("synchro: %s.%s is many-valued", e.class.QualifiedName(), f.Name)
	}
	if !f.IsReference() {
		if v == nil {
			delete(e.values, f.Name)
			return nil
		}
		cv, err := coerce(f, v)
		if err != nil {
			return err
		}
		e.values[f.Name] = cv
		return nil
	}
	var target *Element
	if v != nil {
		t, err := e.checkRef(f, v)
		if err != nil {
			return err
		}
		target = t
	}
	return e.setRef(f, target, true)
}

// Add appends a value to a many-valued feature. References are kept unique.
func (e *Element) Add(name string, v any) error {
	f, err := e.lookup(name)
	if err != nil {
		return err
	}
	if !f.Many {
		return fmt.Errorf("synchro: %s.%s is single-valued", e.class.QualifiedName(), f.Name)
	}
	if v == nil {
		return nil
	}
	if !f.IsReference() {
		cv, err := coerce(f, v)
		if err != nil {
			return err
		}
		vs, _ := e.values[f.Name].([]any)
		e.values[f.Name] = append(vs, cv)
		return nil
	}
	t, err := e.checkRef(f, v)
	if err != nil {
		return err
	}
	return e.addRef(f, t, true)
}

func (e *Element) checkRef(f *metamodel.Feature, v any) (*Element, error) {
	t, ok := v.(*Element)
	if !ok || t == nil {
		return nil, fmt.Errorf("synchro: %s.%s expects %s, got %T", e.class.QualifiedName(), f.Name, f.Class().QualifiedName(), v)
	}
	if !t.class.IsSubtypeOf(f.Class()) {
		return nil, fmt.Errorf("synchro: %s.%s expects %s, got %s", e.class.QualifiedName(), f.Name, f.Class().QualifiedName(), t.class.QualifiedName())
	}
	return t, nil
}

func (e *Element) setRef(f *metamodel.Feature, t *Element, opposite bool) error {
	old, _ := e.values[f.Name].(*Element)
	if old == t {
		return nil
	}
	if t != nil && f.Containment {
		if err := e.adopt(f, t); err != nil {
			return err
		}
	}
	if old != nil {
		if f.Containment && old.container == e {
			old.container, old.feature = nil, nil
		}
		if o := f.OppositeFeature(); opposite && o != nil {
			old.unlink(o, e)
		}
	}
	if t == nil {
		delete(e.values, f.Name)
		return nil
	}
	e.values[f.Name] = t
	if o := f.OppositeFeature(); opposite && o != nil {
		return t.link(o, e)
	}
	return nil
}

func (e *Element) addRef(f *metamodel.Feature, t *Element, opposite bool) error {
	els, _ := e.values[f.Name].([]*Element)
	if slices.Contains(els, t) {
		return nil
	}
	if f.Containment {
		if err := e.adopt(f, t); err != nil {
			return err
		}
	}
	e.values[f.Name] = append(els, t)
	if o := f.OppositeFeature(); opposite && o != nil {
		return t.link(o, e)
	}
	return nil
}

// link records the reverse end of a reference without propagating further.
func (e *Element) link(f *metamodel.Feature, t *Element) error {
	if f.Many {
		return e.addRef(f, t, false)
	}
	return e.setRef(f, t, false)
}

func (e *Element) unlink(f *metamodel.Feature, t *Element) {
	if f.Many {
		els, _ := e.values[f.Name].([]*Element)
		e.values[f.Name] = slices.DeleteFunc(els, func(x *Element) bool { return x == t })
		return
	}
	if cur, _ := e.values[f.Name].(*Element); cur == t {
		delete(e.values, f.Name)
	}
}

// adopt moves child under e through f. An element has at most one container.
func (e *Element) adopt(f *metamodel.Feature, child *Element) error {
	for p := e; p != nil; p = p.container {
		if p == child {
			return &ContainmentError{Parent: e.String(), Child: child.String()}
		}
	}
	if child.container != nil && (child.container != e || child.feature != f) {
		child.container.unlink(child.feature, child)
	}
	child.container, child.feature = e, f
	return nil
}
