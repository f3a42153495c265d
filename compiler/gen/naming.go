package gen

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/synchro/compiler/load"
	"github.com/syssam/synchro/metamodel"
)

var (
	rules    = ruleset()
	acronyms = make(map[string]struct{})
	title    = cases.Title(language.English)
)

func ruleset() *inflect.Ruleset {
	rules := inflect.NewDefaultRuleset()
	for _, w := range []string{
		"ACL", "API", "ASCII", "CPU", "CSS", "DNS", "EOF", "GUID", "HCL", "HTML", "HTTP", "HTTPS",
		"ID", "IP", "JSON", "RPC", "SQL", "SSH", "TCP", "TLS", "TTL", "UDP", "UI", "UID", "UUID",
		"URI", "URL", "UTF8", "VM", "XML", "YAML",
	} {
		acronyms[w] = struct{}{}
		rules.AddAcronym(w)
	}
	return rules
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || r == ' ' || r == '.'
}

func pascalWords(words []string) string {
	for i, w := range words {
		upper := strings.ToUpper(w)
		if _, ok := acronyms[upper]; ok {
			words[i] = upper
		} else {
			words[i] = rules.Capitalize(w)
		}
	}
	return strings.Join(words, "")
}

// pascal converts the given name into PascalCase.
//
//	user_info => UserInfo
//	full-admin => FullAdmin
//	user_id => UserID
func pascal(s string) string {
	return pascalWords(strings.FieldsFunc(s, isSeparator))
}

// snake converts the given name into snake_case.
//
//	Username => username
//	FullName => full_name
//	HTTPCode => http_code
func snake(s string) string {
	var (
		j int
		b strings.Builder
	)
	for i := 0; i < len(s); i++ {
		r := rune(s[i])
		// Put '_' if it is not a start or end of a word, current letter is
		// uppercase, and previous is lowercase (cases like: "UserInfo"), or
		// next letter is also a lowercase and previous letter is not "_".
		if i > 0 && i < len(s)-1 && unicode.IsUpper(r) {
			if unicode.IsLower(rune(s[i-1])) ||
				j != i-1 && unicode.IsLower(rune(s[i+1])) && unicode.IsLetter(rune(s[i-1])) {
				j = i
				b.WriteString("_")
			}
		}
		if isSeparator(r) {
			r = '_'
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// VarIdent returns the Go identifier of a pattern variable, parameter or
// comprehension variable.
func VarIdent(name string) string { return "v" + pascal(name) }

// Title returns the role name in title case, as used in identifiers.
//
//	IN => In
//	OUT_2 => Out2
func (r *Role) Title() string {
	words := strings.FieldsFunc(r.Name, isSeparator)
	for i, w := range words {
		words[i] = title.String(w)
	}
	return strings.Join(words, "")
}

// NewModelFunc returns the name of the function creating the out-model.
func (r *Role) NewModelFunc() string { return "newModel" + r.Title() }

// SpecVar returns the name of the runtime rule descriptor variable.
func (r *Rule) SpecVar() string { return "rule" + pascal(r.Name) }

// MatchFunc returns the name of the match predicate.
func (r *Rule) MatchFunc() string { return "match" + pascal(r.Name) }

// CreateFunc returns the name of the creation routine.
func (r *Rule) CreateFunc() string { return "create" + pascal(r.Name) }

// BindFunc returns the name of the binding routine.
func (r *Rule) BindFunc() string { return "bind" + pascal(r.Name) }

// ApplyFunc returns the name of the apply routine.
func (r *Rule) ApplyFunc() string { return "apply" + pascal(r.Name) }

// LazyFunc returns the name of the lazy entry point.
func (r *Rule) LazyFunc() string { return "lazy" + pascal(r.Name) }

// FileName returns the name of the file holding the rule.
func (r *Rule) FileName() string { return fmt.Sprintf("rule_%s.go", snake(r.Name)) }

// FuncName returns the name of the helper accessor.
func (h *Helper) FuncName() string {
	if h.IsAttribute() {
		return "attr" + pascal(h.Name)
	}
	return "op" + pascal(h.Name)
}

// MetamodelVar returns the name of the variable holding a metamodel literal.
func MetamodelVar(mm *metamodel.Metamodel) string { return "mm" + pascal(mm.Name) }

// checkNames reports Go identifiers shared by differently named rules,
// helpers or metamodels.
func checkNames(g *Graph) error {
	seen := make(map[string]string)
	check := func(ident, name string) error {
		if prev, ok := seen[ident]; ok && prev != name {
			return NewGenerationError(KindNameConflict, name, fmt.Sprintf("%s and %s map to the same Go identifier %s", prev, name, ident), nil)
		}
		seen[ident] = name
		return nil
	}
	for _, r := range g.Rules {
		if err := check(r.SpecVar(), r.Name); err != nil {
			return err
		}
		if err := check(r.FileName(), r.Name); err != nil {
			return err
		}
	}
	for _, r := range g.Rules {
		var names []string
		for _, p := range r.From {
			names = append(names, p.Var)
		}
		for _, p := range r.To {
			names = append(names, p.Var)
		}
		exprs := []load.Expr{r.Filter}
		for _, p := range r.To {
			for _, b := range p.Bindings {
				exprs = append(exprs, b.Expr)
			}
		}
		if err := checkVars(r.Name, append(names, comprehensionVars(exprs...)...)); err != nil {
			return err
		}
	}
	for _, h := range g.Helpers {
		if err := check(h.FuncName(), h.Name); err != nil {
			return err
		}
		var names []string
		if h.Context() != nil {
			names = append(names, "self")
		}
		for _, p := range h.Params() {
			names = append(names, p.Name)
		}
		if err := checkVars(h.Name, append(names, comprehensionVars(h.Body())...)); err != nil {
			return err
		}
	}
	for _, mm := range g.Metamodels {
		if err := check(MetamodelVar(mm), mm.Name); err != nil {
			return err
		}
	}
	for _, r := range g.Out {
		if err := check(r.NewModelFunc(), r.Name); err != nil {
			return err
		}
	}
	return nil
}

// checkVars reports variables of one rule or helper whose Go identifiers
// collide. Repeated names are allowed; comprehensions may reuse a variable.
func checkVars(owner string, names []string) error {
	seen := make(map[string]string, len(names))
	for _, name := range names {
		ident := VarIdent(name)
		if prev, ok := seen[ident]; ok && prev != name {
			return NewGenerationError(KindNameConflict, owner, fmt.Sprintf("variables %s and %s map to the same Go identifier %s", prev, name, ident), nil)
		}
		seen[ident] = name
	}
	return nil
}

// comprehensionVars returns the variables introduced by comprehensions in
// exprs, in walk order.
func comprehensionVars(exprs ...load.Expr) []string {
	var out []string
	for _, e := range exprs {
		load.Walk(e, func(x load.Expr) bool {
			if c, ok := x.(*load.Collect); ok {
				out = append(out, c.Var)
			}
			return true
		})
	}
	return out
}
