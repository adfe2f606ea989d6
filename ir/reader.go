package ir

// ReaderNode is the sealed sum of selection kinds the Reader understands.
// Concrete kinds below all implement it as a marker; the Reader switches on
// the concrete Go type rather than a Kind() method, matching the compiled
// tree a real GraphQL compiler would emit (one struct type per AST node
// kind).
type ReaderNode interface {
	readerNode()
}

// ReaderSelection is an ordered list of sibling selections under one parent.
type ReaderSelection []ReaderNode

// ScalarField reads a leaf value at StorageKey into ResponseKey.
type ScalarField struct {
	FieldName   string
	ResponseKey string // alias, or FieldName if unaliased
	Args        []Arg
	Condition   *Condition
}

func (*ScalarField) readerNode() {}

// LinkedField follows a singular __ref and recurses.
type LinkedField struct {
	FieldName   string
	ResponseKey string
	Args        []Arg
	Plural      bool
	Selections  ReaderSelection
	Condition   *Condition
}

func (*LinkedField) readerNode() {}

// InlineFragment narrows by __typename (abstract-type narrowing); data is
// flattened into the parent when it matches.
type InlineFragment struct {
	Type       string // empty = unconditional (no narrowing)
	Selections ReaderSelection
	Condition  *Condition
}

func (*InlineFragment) readerNode() {}

// FragmentSpread emits a fragment pointer on the parent object rather than
// inlining data (spec.md §4.3).
type FragmentSpread struct {
	FragmentName string
	Args         []Arg
	Condition    *Condition
}

func (*FragmentSpread) readerNode() {}

// InlineDataFragment is a @inline fragment spread: data is inlined under
// __fragments.FragName instead of emitting a pointer.
type InlineDataFragment struct {
	FragmentName string
	Selections   ReaderSelection
	Condition    *Condition
}

func (*InlineDataFragment) readerNode() {}

// MatchBranch is one `...Frag @module(name: "...")` arm of an @match field.
type MatchBranch struct {
	Type         string // __typename this branch matches
	FragmentName string
	ComponentKey string // "<parentFragment>" suffix used to read __module_component_<key>
}

// MatchField is a linked field annotated with @match; at read time it
// resolves to a fragment pointer enriched with module metadata, or {} if
// the record's __typename matches none of the branches.
type MatchField struct {
	FieldName        string
	ResponseKey      string
	Args             []Arg
	Branches         []MatchBranch
	FragmentPropName string
	Condition        *Condition
}

func (*MatchField) readerNode() {}

// ClientExtensionField reads a handle-derived value (HandleKey) in place of
// the raw field (@__clientField).
type ClientExtensionField struct {
	FieldName   string // the raw, pre-handle field name
	ResponseKey string
	Args        []Arg
	Handle      string
	HandleKey   string // canonical(field, args-filters, key)
	Condition   *Condition
}

func (*ClientExtensionField) readerNode() {}

// ReaderSelector is the pair (selection tree, DataID, variables) that drives
// a Reader read, per spec.md §3.
type ReaderSelector struct {
	Selections ReaderSelection
	DataID     string
	Variables  Variables
	// RootName labels the operation/fragment this selector was compiled
	// from, for diagnostics only.
	RootName string
}
