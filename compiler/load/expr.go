package load

// Expr is an expression of a helper body, a rule filter or a binding.
// Expression nodes are pointers; their identity keys resolver annotations.
type Expr interface {
	Pos() Pos
	expr()
}

type node struct{ pos Pos }

func (n node) Pos() Pos { return n.pos }
func (node) expr()      {}

// Literal is a constant: nil, string, int64, float64 or bool.
type Literal struct {
	node
	Value any
}

// VarRef references a pattern variable, a parameter, self or a
// comprehension variable.
type VarRef struct {
	node
	Name string
}

// ModuleAttr references a context-free helper attribute (thisModule.name).
type ModuleAttr struct {
	node
	Name string
}

// Nav navigates a feature or a context helper attribute of Recv.
type Nav struct {
	node
	Recv Expr
	Name string
}

// Call invokes a helper operation, a lazy rule or a builtin.
type Call struct {
	node
	Name string
	Args []Expr
}

// Unary applies "!" or "-".
type Unary struct {
	node
	Op string
	X  Expr
}

// Binary applies an arithmetic, comparison or logical operator.
type Binary struct {
	node
	Op   string
	X, Y Expr
}

// Cond is a conditional expression.
type Cond struct {
	node
	Cond, Then, Else Expr
}

// Collect maps Body over the items of Source bound to Var, keeping the items
// that satisfy Filter. Filter may be nil.
type Collect struct {
	node
	Source Expr
	Var    string
	Body   Expr
	Filter Expr
}

// SeqLit is a sequence literal.
type SeqLit struct {
	node
	Items []Expr
}

// Concat joins the text of its parts.
type Concat struct {
	node
	Parts []Expr
}

// NewLiteral returns a literal expression.
func NewLiteral(v any) *Literal { return &Literal{Value: v} }

// NewVar returns a variable reference.
func NewVar(name string) *VarRef { return &VarRef{Name: name} }

// NewNav returns a navigation expression.
func NewNav(recv Expr, name string) *Nav { return &Nav{Recv: recv, Name: name} }

// NewCall returns a call expression.
func NewCall(name string, args ...Expr) *Call { return &Call{Name: name, Args: args} }

// NewBinary returns a binary expression.
func NewBinary(op string, x, y Expr) *Binary { return &Binary{Op: op, X: x, Y: y} }

// Walk calls fn for e and its sub-expressions in evaluation order, stopping
// at a node for which fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case *Nav:
		Walk(x.Recv, fn)
	case *Call:
		for _, a := range x.Args {
			Walk(a, fn)
		}
	case *Unary:
		Walk(x.X, fn)
	case *Binary:
		Walk(x.X, fn)
		Walk(x.Y, fn)
	case *Cond:
		Walk(x.Cond, fn)
		Walk(x.Then, fn)
		Walk(x.Else, fn)
	case *Collect:
		Walk(x.Source, fn)
		Walk(x.Filter, fn)
		Walk(x.Body, fn)
	case *SeqLit:
		for _, item := range x.Items {
			Walk(item, fn)
		}
	case *Concat:
		for _, p := range x.Parts {
			Walk(p, fn)
		}
	}
}
