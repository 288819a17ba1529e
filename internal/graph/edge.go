package graph

// Edge relationship type tags.
const (
	TypeContains              = "CONTAINS"
	TypeDefinedBy             = "DEFINED_BY"
	TypeFlowsTo               = "FLOWS_TO"
	TypeCalls                 = "CALLS"
	TypeCalledBy              = "CALLED_BY"
	TypeReports               = "REPORTS"
	TypeSuggestsVulnerability = "SUGGESTS_VULNERABILITY"
)

// Operation tags a DefinedBy edge with the construct that introduced the
// definition.
type Operation string

const (
	OpAssignment Operation = "assignment"
	OpParameter  Operation = "parameter"
	OpReturn     Operation = "return"
)

// Edge is the closed set of relationship variants. Edges are append-only:
// once created they are never mutated.
type Edge interface {
	Type() string
	Endpoints() (src, dst ID)
}

// Contains maps a module to a class or function it contains, with the
// definition's ordinal position among its siblings.
type Contains struct {
	Src      ID
	Dst      ID
	Position int
}

func (e Contains) Type() string        { return TypeContains }
func (e Contains) Endpoints() (ID, ID) { return e.Src, e.Dst }

// DefinedBy records that a value source defines a variable: an assignment
// right-hand side, a parameter introduced by its function, or a returned
// value.
type DefinedBy struct {
	Src       ID
	Dst       ID
	Operation Operation
}

func (e DefinedBy) Type() string        { return TypeDefinedBy }
func (e DefinedBy) Endpoints() (ID, ID) { return e.Src, e.Dst }

// FlowsTo records a value atom passed as an argument into a call site.
type FlowsTo struct {
	Src ID
	Dst ID
}

func (e FlowsTo) Type() string        { return TypeFlowsTo }
func (e FlowsTo) Endpoints() (ID, ID) { return e.Src, e.Dst }

// Calls connects a caller (function or top-level code block) to a call site
// it owns.
type Calls struct {
	Src       ID
	Dst       ID
	IsDirect  bool
	CallDepth int
}

func (e Calls) Type() string        { return TypeCalls }
func (e Calls) Endpoints() (ID, ID) { return e.Src, e.Dst }

// CalledBy connects a call site to the function (or class constructor) it
// invokes. CallCount is nil unless profiling data supplied one.
type CalledBy struct {
	Src              ID
	Dst              ID
	CallCount        *int
	IsEntryPointPath bool
}

func (e CalledBy) Type() string        { return TypeCalledBy }
func (e CalledBy) Endpoints() (ID, ID) { return e.Src, e.Dst }

// Reports links an analyzer finding to the code node it reports on.
type Reports struct {
	Src       ID
	Dst       ID
	Reasoning string
}

func (e Reports) Type() string        { return TypeReports }
func (e Reports) Endpoints() (ID, ID) { return e.Src, e.Dst }

// SuggestsVulnerability links a high-severity finding to the code node it
// implicates.
type SuggestsVulnerability struct {
	Src ID
	Dst ID
}

func (e SuggestsVulnerability) Type() string        { return TypeSuggestsVulnerability }
func (e SuggestsVulnerability) Endpoints() (ID, ID) { return e.Src, e.Dst }
