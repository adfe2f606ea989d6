// Package ir defines the compiled selection-tree descriptors consumed by
// Reader, Normalizer, ReferenceMarker and DataChecker.
//
// A real deployment compiles these from GraphQL query/fragment text; this
// package only defines the immutable shape that compiler hands over. Nodes
// are never mutated after construction, so a single compiled tree is safely
// shared across every read/normalize/mark/check call that uses it.
package ir

// Variables is the concrete variable map bound to an operation at request
// time, e.g. {"id": "1", "first": 10}.
type Variables map[string]any

// ArgValue is either a literal or a reference to a variable name, resolved
// against Variables when the tree is walked.
type ArgValue struct {
	Literal  any
	Variable string // non-empty means "look up Variables[Variable]"
}

func (a ArgValue) Resolve(vars Variables) any {
	if a.Variable != "" {
		return vars[a.Variable]
	}
	return a.Literal
}

// Arg is a single field argument, (name, value) prior to canonicalization.
type Arg struct {
	Name  string
	Value ArgValue
}

// Condition attaches @include/@skip to a selection.
type Condition struct {
	Variable string // variable holding the boolean
	Negate   bool   // true for @skip
}

func (c Condition) Eval(vars Variables) bool {
	v, _ := vars[c.Variable].(bool)
	if c.Negate {
		return !v
	}
	return v
}
