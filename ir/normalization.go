package ir

// NormalizationNode is the sealed sum of selection kinds the Normalizer,
// ReferenceMarker and DataChecker understand. Unlike the reader form,
// fragment spreads are inlined by the compiler, so this tree has no
// FragmentSpread node — the one exception is @match/@module, which needs
// runtime indirection because the matched branch's normalization fragment
// may not be loaded yet (ModuleImport below).
type NormalizationNode interface {
	normalizationNode()
}

type NormalizationSelection []NormalizationNode

type NormScalarField struct {
	FieldName   string // the response key to read from JSON
	StorageArgs []Arg  // args contributing to the storage key
	Condition   *Condition
}

func (*NormScalarField) normalizationNode() {}

type NormLinkedField struct {
	FieldName   string
	StorageArgs []Arg
	Plural      bool
	ConcreteType string // non-empty if the field's type is a concrete object type (used when the response omits __typename)
	Selections  NormalizationSelection
	Condition   *Condition
}

func (*NormLinkedField) normalizationNode() {}

// NormInlineFragment narrows by __typename; abstract fragments without a
// matching __typename in the payload are a normalization error unless the
// parent type is concrete (spec.md §7).
type NormInlineFragment struct {
	Type       string
	Selections NormalizationSelection
	Condition  *Condition
	Abstract   bool
}

func (*NormInlineFragment) normalizationNode() {}

// NormMatchField is a field under @match. ParentFragmentKey is the
// "<parentFragment>" suffix used to read __module_component_<key> and
// __module_operation_<key> off the payload object at this position.
type NormMatchField struct {
	FieldName         string
	StorageArgs       []Arg
	ParentFragmentKey string
	Branches          map[string]ModuleImport // keyed by operation-normalization-fragment identifier
	Condition         *Condition
}

func (*NormMatchField) normalizationNode() {}

// ModuleImport describes the async-loadable normalization fragment for one
// @match/@module branch.
type ModuleImport struct {
	ComponentName         string // "<name>.react"-style identifier recorded on the record
	NormalizationFragment  string // identifier passed to OperationLoader
	Selections             NormalizationSelection
	FragmentPropName       string
}

// NormClientExtensionField emits a handle field payload; the Normalizer
// writes the raw value under FieldKey and records the pending handle write
// under HandleKey for the handler registry to fill in on publish.
type NormClientExtensionField struct {
	FieldName   string
	StorageArgs []Arg
	Handle      string
	Key         string
	Filters     []string
	Condition   *Condition
}

func (*NormClientExtensionField) normalizationNode() {}

// NormDeferredFragment marks a @defer/@stream boundary: the initial payload
// records an outstanding-branch marker at this position; a follow-up
// incremental payload (matched by Label) supplies Selections.
type NormDeferredFragment struct {
	Label      string
	Selections NormalizationSelection
	Condition  *Condition
}

func (*NormDeferredFragment) normalizationNode() {}

// NormalizationSelector is the pair (selection tree, DataID, variables) that
// drives Normalizer, ReferenceMarker and DataChecker, per spec.md §3.
type NormalizationSelector struct {
	Selections NormalizationSelection
	DataID     string
	Variables  Variables
	RootName   string
}
