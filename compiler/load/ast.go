// Package load reads transformation modules written in HCL into the AST
// consumed by the compiler.
package load

import (
	"fmt"
	"strings"
)

// Module represents a transformation module loaded from a source file.
type Module struct {
	Name      string
	Path      string
	InModels  []*ModelBinding
	OutModels []*ModelBinding
	// Elements holds helpers and rules in declaration order, library
	// helpers first.
	Elements []*Element
	// Libraries lists the resolved paths of the used helper libraries.
	Libraries []string
}

// ModelBinding binds a model role to a metamodel.
type ModelBinding struct {
	Role      string
	Metamodel string
	// Path is the optional schema location of the metamodel.
	Path string
	Pos  Pos
}

// Pos is a source position.
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) String() string {
	if p.File == "" && p.Line == 0 {
		return "-"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// ElementKind tags the variant held by an Element.
type ElementKind int

// Module element kinds.
const (
	KindAttribute ElementKind = iota + 1
	KindOperation
	KindRule
)

func (k ElementKind) String() string {
	switch k {
	case KindAttribute:
		return "attribute"
	case KindOperation:
		return "operation"
	case KindRule:
		return "rule"
	default:
		return "unknown"
	}
}

// Element is a module element. Exactly one of the variant fields is set,
// according to Kind.
type Element struct {
	Kind      ElementKind
	Attribute *HelperAttribute
	Operation *HelperOperation
	Rule      *MatchedRule
}

// Name returns the declared name of the element.
func (e *Element) Name() string {
	switch e.Kind {
	case KindAttribute:
		return e.Attribute.Name
	case KindOperation:
		return e.Operation.Name
	case KindRule:
		return e.Rule.Name
	}
	return ""
}

// Pos returns the declaration position of the element.
func (e *Element) Pos() Pos {
	switch e.Kind {
	case KindAttribute:
		return e.Attribute.Pos
	case KindOperation:
		return e.Operation.Pos
	case KindRule:
		return e.Rule.Pos
	}
	return Pos{}
}

// HelperAttribute is a named, memoized value, optionally defined on a
// context type.
type HelperAttribute struct {
	Name    string
	Context *TypeRef
	Type    *TypeRef
	Expr    Expr
	Pos     Pos
}

// HelperOperation is a parameterized helper, optionally defined on a context
// type.
type HelperOperation struct {
	Name    string
	Context *TypeRef
	Params  []*Param
	Type    *TypeRef
	Body    Expr
	Pos     Pos
}

// Param is a helper operation parameter.
type Param struct {
	Name string
	Type *TypeRef
}

// MatchedRule maps source elements matching its source pattern to target
// elements.
type MatchedRule struct {
	Name     string
	Lazy     bool
	Abstract bool
	Extends  string
	From     []*InPattern
	Filter   Expr
	To       []*OutPattern
	Pos      Pos
}

// InPattern is a typed source pattern variable. Model is the in-model role,
// empty when it is inferred from the type.
type InPattern struct {
	Var   string
	Type  *TypeRef
	Model string
	Pos   Pos
}

// OutPattern is a typed target element with its bindings.
type OutPattern struct {
	Var      string
	Type     *TypeRef
	Model    string
	Bindings []*Binding
	Pos      Pos
}

// Binding assigns the value of Expr to a feature of the target element.
type Binding struct {
	Feature     string
	Expr        Expr
	Containment bool
	Pos         Pos
}

// Primitive type names.
const (
	TypeString  = "String"
	TypeInteger = "Integer"
	TypeReal    = "Real"
	TypeBoolean = "Boolean"
)

// TypeRef references a metamodel class ("MM!Class"), a primitive type or a
// sequence of either.
type TypeRef struct {
	Metamodel string
	Name      string
	Seq       bool
}

// ParseType parses a type reference such as "Families!Member", "String" or
// "Sequence(Families!Member)".
func ParseType(s string) (*TypeRef, error) {
	s = strings.TrimSpace(s)
	if inner, ok := strings.CutPrefix(s, "Sequence("); ok {
		inner, ok = strings.CutSuffix(inner, ")")
		if !ok {
			return nil, fmt.Errorf("invalid type %q: unbalanced parenthesis", s)
		}
		t, err := ParseType(inner)
		if err != nil {
			return nil, err
		}
		if t.Seq {
			return nil, fmt.Errorf("invalid type %q: nested sequences are not supported", s)
		}
		t.Seq = true
		return t, nil
	}
	if mm, class, ok := strings.Cut(s, "!"); ok {
		if !isIdent(mm) || !isIdent(class) {
			return nil, fmt.Errorf("invalid type %q", s)
		}
		return &TypeRef{Metamodel: mm, Name: class}, nil
	}
	switch s {
	case TypeString, TypeInteger, TypeReal, TypeBoolean:
		return &TypeRef{Name: s}, nil
	}
	if isIdent(s) {
		return nil, fmt.Errorf("invalid type %q: class types are written Metamodel!Class", s)
	}
	return nil, fmt.Errorf("invalid type %q", s)
}

// IsPrimitive reports whether the type is a primitive or a sequence of one.
func (t *TypeRef) IsPrimitive() bool { return t.Metamodel == "" }

// Elem returns the item type of a sequence type.
func (t *TypeRef) Elem() *TypeRef {
	return &TypeRef{Metamodel: t.Metamodel, Name: t.Name}
}

func (t *TypeRef) String() string {
	s := t.Name
	if t.Metamodel != "" {
		s = t.Metamodel + "!" + t.Name
	}
	if t.Seq {
		s = "Sequence(" + s + ")"
	}
	return s
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
