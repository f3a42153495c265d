// Package metamodel describes the class/feature schemas that source and target
// models conform to. A Metamodel is loaded from YAML by the compiler and
// emitted as a Go literal into generated programs, so both sides share one
// definition.
package metamodel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMetamodel is returned by Init for structurally broken metamodels.
var ErrInvalidMetamodel = errors.New("metamodel: invalid metamodel")

// Primitive feature types.
const (
	String = "string"
	Int    = "int"
	Float  = "float"
	Bool   = "bool"
)

// Metamodel is a named set of classes.
type Metamodel struct {
	Name    string   `yaml:"name" json:"name"`
	NsURI   string   `yaml:"nsURI,omitempty" json:"nsURI,omitempty"`
	Classes []*Class `yaml:"classes" json:"classes"`

	classes map[string]*Class
}

// Class is a metamodel class with single or multiple inheritance.
type Class struct {
	Name       string     `yaml:"name" json:"name"`
	Abstract   bool       `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Supertypes []string   `yaml:"supertypes,omitempty" json:"supertypes,omitempty"`
	Features   []*Feature `yaml:"features,omitempty" json:"features,omitempty"`

	mm       *Metamodel
	supers   []*Class
	all      []*Feature
	features map[string]*Feature
}

// Feature is an attribute (primitive type) or a reference (class type).
type Feature struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Many        bool   `yaml:"many,omitempty" json:"many,omitempty"`
	Containment bool   `yaml:"containment,omitempty" json:"containment,omitempty"`
	Opposite    string `yaml:"opposite,omitempty" json:"opposite,omitempty"`

	owner    *Class
	class    *Class
	opposite *Feature
}

// Init indexes the metamodel and resolves supertypes, feature types and
// opposites. It must be called before any lookup.
func (m *Metamodel) Init() error {
	if m.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidMetamodel)
	}
	m.classes = make(map[string]*Class, len(m.Classes))
	for _, c := range m.Classes {
		if c.Name == "" {
			return fmt.Errorf("%w: %s: class without name", ErrInvalidMetamodel, m.Name)
		}
		if _, ok := m.classes[c.Name]; ok {
			return fmt.Errorf("%w: %s: duplicate class %q", ErrInvalidMetamodel, m.Name, c.Name)
		}
		c.mm = m
		c.supers = nil
		c.all = nil
		c.features = nil
		m.classes[c.Name] = c
	}
	for _, c := range m.Classes {
		for _, s := range c.Supertypes {
			sc, ok := m.classes[s]
			if !ok {
				return fmt.Errorf("%w: %s: class %q extends unknown class %q", ErrInvalidMetamodel, m.Name, c.Name, s)
			}
			c.supers = append(c.supers, sc)
		}
	}
	for _, c := range m.Classes {
		if err := c.checkAcyclic(nil); err != nil {
			return err
		}
	}
	for _, c := range m.Classes {
		for _, f := range c.Features {
			f.owner = c
			f.class = nil
			f.opposite = nil
			switch f.Type {
			case String, Int, Float, Bool:
				if f.Containment || f.Opposite != "" {
					return fmt.Errorf("%w: %s: attribute %s.%s cannot be a containment or have an opposite", ErrInvalidMetamodel, m.Name, c.Name, f.Name)
				}
			default:
				fc, ok := m.classes[f.Type]
				if !ok {
					return fmt.Errorf("%w: %s: feature %s.%s has unknown type %q", ErrInvalidMetamodel, m.Name, c.Name, f.Name, f.Type)
				}
				f.class = fc
			}
		}
	}
	for _, c := range m.Classes {
		if err := c.index(); err != nil {
			return err
		}
	}
	for _, c := range m.Classes {
		for _, f := range c.Features {
			if f.Opposite == "" {
				continue
			}
			o, ok := f.class.Feature(f.Opposite)
			if !ok || o.class == nil {
				return fmt.Errorf("%w: %s: opposite %s of %s.%s not found", ErrInvalidMetamodel, m.Name, f.Opposite, c.Name, f.Name)
			}
			if o.Opposite != "" && o.Opposite != f.Name {
				return fmt.Errorf("%w: %s: opposites %s.%s and %s.%s disagree", ErrInvalidMetamodel, m.Name, c.Name, f.Name, f.class.Name, o.Name)
			}
			f.opposite = o
		}
	}
	return nil
}

// MustInit calls Init and panics on error. It is used by generated programs.
func MustInit(m *Metamodel) *Metamodel {
	if err := m.Init(); err != nil {
		panic(err)
	}
	return m
}

// Class returns the class with the given name.
func (m *Metamodel) Class(name string) (*Class, bool) {
	c, ok := m.classes[name]
	return c, ok
}

func (c *Class) checkAcyclic(path []*Class) error {
	for _, p := range path {
		if p == c {
			names := make([]string, 0, len(path)+1)
			for _, p := range path {
				names = append(names, p.Name)
			}
			names = append(names, c.Name)
			return fmt.Errorf("%w: %s: inheritance cycle %s", ErrInvalidMetamodel, c.mm.Name, strings.Join(names, " -> "))
		}
	}
	for _, s := range c.supers {
		if err := s.checkAcyclic(append(path, c)); err != nil {
			return err
		}
	}
	return nil
}

// index collects inherited features first, in supertype declaration order.
func (c *Class) index() error {
	if c.features != nil {
		return nil
	}
	c.features = make(map[string]*Feature)
	add := func(f *Feature) error {
		if prev, ok := c.features[f.Name]; ok {
			if prev == f {
				return nil
			}
			return fmt.Errorf("%w: %s: class %s declares feature %q twice", ErrInvalidMetamodel, c.mm.Name, c.Name, f.Name)
		}
		c.features[f.Name] = f
		c.all = append(c.all, f)
		return nil
	}
	for _, s := range c.supers {
		if err := s.index(); err != nil {
			return err
		}
		for _, f := range s.all {
			if err := add(f); err != nil {
				return err
			}
		}
	}
	for _, f := range c.Features {
		if err := add(f); err != nil {
			return err
		}
	}
	return nil
}

// Metamodel returns the metamodel owning the class.
func (c *Class) Metamodel() *Metamodel { return c.mm }

// QualifiedName returns the class name as "Metamodel!Class".
func (c *Class) QualifiedName() string {
	return c.mm.Name + "!" + c.Name
}

// Feature returns the named feature, including inherited ones.
func (c *Class) Feature(name string) (*Feature, bool) {
	f, ok := c.features[name]
	return f, ok
}

// AllFeatures returns inherited and own features in declaration order.
func (c *Class) AllFeatures() []*Feature { return c.all }

// Super returns the resolved direct supertypes.
func (c *Class) Super() []*Class { return c.supers }

// IsSubtypeOf reports whether c equals o or inherits from it.
func (c *Class) IsSubtypeOf(o *Class) bool {
	if c == o {
		return true
	}
	for _, s := range c.supers {
		if s.IsSubtypeOf(o) {
			return true
		}
	}
	return false
}

// Compatible reports whether one of the classes is a subtype of the other.
func (c *Class) Compatible(o *Class) bool {
	return c.IsSubtypeOf(o) || o.IsSubtypeOf(c)
}

// Owner returns the declaring class.
func (f *Feature) Owner() *Class { return f.owner }

// Class returns the referenced class, or nil for attributes.
func (f *Feature) Class() *Class { return f.class }

// IsReference reports whether the feature holds elements.
func (f *Feature) IsReference() bool { return f.class != nil }

// OppositeFeature returns the resolved opposite, if any.
func (f *Feature) OppositeFeature() *Feature { return f.opposite }
