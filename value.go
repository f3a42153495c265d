package synchro

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/syssam/synchro/metamodel"
)

// Values flowing through generated expressions are dynamically typed:
// nil (undefined), string, int64, float64, bool, *Element and []any.
// Navigation and operators propagate undefined instead of failing.

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case *Element:
		if x == nil {
			return nil
		}
		return x
	case []*Element:
		return toSeq(x)
	default:
		return v
	}
}

// coerce converts a decoded or computed value to the representation of an
// attribute feature.
func coerce(f *metamodel.Feature, v any) (any, error) {
	v = normalize(v)
	switch f.Type {
	case metamodel.String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case metamodel.Int:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			if x == math.Trunc(x) {
				return int64(x), nil
			}
		}
	case metamodel.Float:
		switch x := v.(type) {
		case int64:
			return float64(x), nil
		case float64:
			return x, nil
		}
	case metamodel.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("synchro: %s.%s expects %s, got %T", f.Owner().QualifiedName(), f.Name, f.Type, v)
}

func flatten(v any, out []any) []any {
	switch x := normalize(v).(type) {
	case nil:
		return out
	case []any:
		for _, item := range x {
			out = flatten(item, out)
		}
		return out
	default:
		return append(out, x)
	}
}

func seq(v any) []any {
	switch x := normalize(v).(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return []any{x}
	}
}

// Str renders a value as text. Undefined renders empty.
func Str(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case *Element:
		return x.String()
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = Str(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// Get navigates feature name. Navigation over a sequence collects and
// flattens the results.
func (c *Context) Get(v any, name string) any {
	switch x := normalize(v).(type) {
	case nil:
		return nil
	case *Element:
		r, err := x.Get(name)
		if err != nil {
			c.fail("", x, err)
			return nil
		}
		return r
	case []any:
		var out []any
		for _, item := range x {
			out = flatten(c.Get(item, name), out)
		}
		if out == nil {
			out = []any{}
		}
		return out
	default:
		c.fail("", nil, fmt.Errorf("cannot navigate %q on %T", name, v))
		return nil
	}
}

// Truthy returns the boolean value of v. Undefined is false.
func (c *Context) Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	default:
		c.fail("", nil, fmt.Errorf("expected Boolean, got %T", v))
		return false
	}
}

// Not negates a boolean.
func (c *Context) Not(v any) any {
	if v == nil {
		return nil
	}
	return !c.Truthy(v)
}

// Neg negates a number.
func (c *Context) Neg(v any) any {
	switch x := normalize(v).(type) {
	case nil:
		return nil
	case int64:
		return -x
	case float64:
		return -x
	default:
		c.fail("", nil, fmt.Errorf("cannot negate %T", v))
		return nil
	}
}

func numbers(a, b any) (ai, bi int64, af, bf float64, isInt, ok bool) {
	switch x := a.(type) {
	case int64:
		ai, af = x, float64(x)
		isInt = true
	case float64:
		af = x
	default:
		return 0, 0, 0, 0, false, false
	}
	switch y := b.(type) {
	case int64:
		bi, bf = y, float64(y)
	case float64:
		bf = y
		isInt = false
	default:
		return 0, 0, 0, 0, false, false
	}
	return ai, bi, af, bf, isInt, true
}

// Add adds numbers or concatenates strings.
func (c *Context) Add(a, b any) any {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return nil
	}
	if sa, ok := a.(string); ok {
		return sa + Str(b)
	}
	if sb, ok := b.(string); ok {
		return Str(a) + sb
	}
	return c.arith("+", a, b)
}

// Sub subtracts numbers.
func (c *Context) Sub(a, b any) any { return c.arith("-", normalize(a), normalize(b)) }

// Mul multiplies numbers.
func (c *Context) Mul(a, b any) any { return c.arith("*", normalize(a), normalize(b)) }

// Div divides numbers; the result is always Real.
func (c *Context) Div(a, b any) any { return c.arith("/", normalize(a), normalize(b)) }

// Mod returns the integer remainder.
func (c *Context) Mod(a, b any) any { return c.arith("%", normalize(a), normalize(b)) }

func (c *Context) arith(op string, a, b any) any {
	if a == nil || b == nil {
		return nil
	}
	ai, bi, af, bf, isInt, ok := numbers(a, b)
	if !ok {
		c.fail("", nil, fmt.Errorf("invalid operands %T %s %T", a, op, b))
		return nil
	}
	switch op {
	case "+":
		if isInt {
			return ai + bi
		}
		return af + bf
	case "-":
		if isInt {
			return ai - bi
		}
		return af - bf
	case "*":
		if isInt {
			return ai * bi
		}
		return af * bf
	case "/":
		if bf == 0 {
			c.fail("", nil, fmt.Errorf("division by zero"))
			return nil
		}
		return af / bf
	default:
		if !isInt || bi == 0 {
			c.fail("", nil, fmt.Errorf("invalid modulo %v %% %v", a, b))
			return nil
		}
		return ai % bi
	}
}

func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if _, _, af, bf, _, ok := numbers(a, b); ok {
		return af == bf
	}
	switch x := a.(type) {
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equal(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Eq compares two values for equality.
func (c *Context) Eq(a, b any) any { return equal(a, b) }

// Ne compares two values for inequality.
func (c *Context) Ne(a, b any) any { return !equal(a, b) }

func (c *Context) compare(a, b any) (int, bool) {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return 0, false
	}
	if _, _, af, bf, _, ok := numbers(a, b); ok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	sa, ok1 := a.(string)
	sb, ok2 := b.(string)
	if ok1 && ok2 {
		return strings.Compare(sa, sb), true
	}
	c.fail("", nil, fmt.Errorf("cannot compare %T and %T", a, b))
	return 0, false
}

// Lt reports a < b.
func (c *Context) Lt(a, b any) any {
	r, ok := c.compare(a, b)
	if !ok {
		return nil
	}
	return r < 0
}

// Le reports a <= b.
func (c *Context) Le(a, b any) any {
	r, ok := c.compare(a, b)
	if !ok {
		return nil
	}
	return r <= 0
}

// Gt reports a > b.
func (c *Context) Gt(a, b any) any {
	r, ok := c.compare(a, b)
	if !ok {
		return nil
	}
	return r > 0
}

// Ge reports a >= b.
func (c *Context) Ge(a, b any) any {
	r, ok := c.compare(a, b)
	if !ok {
		return nil
	}
	return r >= 0
}

// Concat joins the text of its parts.
func (c *Context) Concat(parts ...any) any {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(Str(p))
	}
	return b.String()
}

// Collect maps body over the items of src that satisfy filter. A nil body
// selects, a nil filter keeps every item.
func (c *Context) Collect(src any, body func(any) any, filter func(any) bool) any {
	out := []any{}
	for _, item := range seq(src) {
		if c.Err() != nil {
			return nil
		}
		item = normalize(item)
		if filter != nil && !filter(item) {
			continue
		}
		if body != nil {
			item = body(item)
		}
		out = append(out, item)
	}
	return out
}

// Size returns the length of a sequence or string.
func (c *Context) Size(v any) any {
	if s, ok := v.(string); ok {
		return int64(utf8.RuneCountInString(s))
	}
	return int64(len(seq(v)))
}

// IsEmpty reports whether a sequence has no items.
func (c *Context) IsEmpty(v any) any { return len(seq(v)) == 0 }

// NotEmpty reports whether a sequence has items.
func (c *Context) NotEmpty(v any) any { return len(seq(v)) > 0 }

// First returns the first item of a sequence.
func (c *Context) First(v any) any {
	s := seq(v)
	if len(s) == 0 {
		return nil
	}
	return normalize(s[0])
}

// Last returns the last item of a sequence.
func (c *Context) Last(v any) any {
	s := seq(v)
	if len(s) == 0 {
		return nil
	}
	return normalize(s[len(s)-1])
}

// At returns the zero-based index i of a sequence, or undefined.
func (c *Context) At(v, i any) any {
	s := seq(v)
	n, ok := normalize(i).(int64)
	if !ok || n < 0 || n >= int64(len(s)) {
		return nil
	}
	return normalize(s[n])
}

// Defined reports whether v is not undefined.
func (c *Context) Defined(v any) any { return normalize(v) != nil }

// Undefined reports whether v is undefined.
func (c *Context) Undefined(v any) any { return normalize(v) == nil }

// Flatten flattens nested sequences.
func (c *Context) Flatten(v any) any {
	out := flatten(v, nil)
	if out == nil {
		return []any{}
	}
	return out
}

// ToString renders v as text.
func (c *Context) ToString(v any) any { return Str(v) }

// ToUpper upper-cases a string.
func (c *Context) ToUpper(v any) any {
	if v == nil {
		return nil
	}
	return strings.ToUpper(Str(v))
}

// ToLower lower-cases a string.
func (c *Context) ToLower(v any) any {
	if v == nil {
		return nil
	}
	return strings.ToLower(Str(v))
}

// Includes reports whether the sequence contains v.
func (c *Context) Includes(s, v any) any {
	for _, item := range seq(s) {
		if equal(item, v) {
			return true
		}
	}
	return false
}

// IsKindOf reports whether v is an element of class mm!class or a subclass.
func (c *Context) IsKindOf(v any, mm, class string) any {
	e, ok := normalize(v).(*Element)
	return ok && e.IsKindOf(mm, class)
}

// IsTypeOf reports whether v is an element of exactly class mm!class.
func (c *Context) IsTypeOf(v any, mm, class string) any {
	e, ok := normalize(v).(*Element)
	return ok && e.IsTypeOf(mm, class)
}

// Container returns the element containing v, undefined for roots. On a
// sequence it returns the containers of its items.
func (c *Context) Container(v any) any {
	switch x := normalize(v).(type) {
	case *Element:
		if x == nil || x.container == nil {
			return nil
		}
		return x.container
	case []any:
		var out []any
		for _, item := range x {
			if p := c.Container(item); p != nil {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

// ResolveTemp returns the target created for variable name by the default
// rule of the source element v.
func (c *Context) ResolveTemp(v any, name any) any {
	e, ok := normalize(v).(*Element)
	if !ok {
		return nil
	}
	t, ok := c.trace.ResolveTemp(e, Str(name))
	if !ok {
		return nil
	}
	return t
}
