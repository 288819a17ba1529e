// Package graph defines the node and edge model of the code property graph.
//
// Nodes are tagged variants keyed by an opaque, position-derived ID. They do
// not reference each other directly: every relationship is an Edge record
// holding two IDs.
package graph

// ID is the graph-wide primary key for a node. It is derived from the node's
// kind, name, file path, and start byte (see the ident package); consumers
// must treat it as opaque.
type ID string

// Node kind discriminators, used as the kind component of IDs and as the
// tag in serialized output.
const (
	KindModule      = "module"
	KindClass       = "class"
	KindFunction    = "function"
	KindVariable    = "variable"
	KindVariableRef = "variable_ref"
	KindCall        = "call"
	KindCodeBlock   = "code_block"
	KindFinding     = "finding"
)

// Node is the closed set of graph node variants. Every variant reports its
// kind tag, identity, file, and a 1-based line range with end >= start.
type Node interface {
	Kind() string
	NodeID() ID
	File() string
	Lines() (start, end int)
}

// Module represents one source file (or package index file).
type Module struct {
	ID           ID
	Name         string
	FilePath     string
	Imports      []string
	Exports      []string
	IsEntryPoint bool
	LineStart    int
	LineEnd      int
}

func (m *Module) Kind() string      { return KindModule }
func (m *Module) NodeID() ID        { return m.ID }
func (m *Module) File() string      { return m.FilePath }
func (m *Module) Lines() (int, int) { return m.LineStart, m.LineEnd }

// Class represents a class definition. Its line range spans the name token
// through the end of the superclass argument list, when present.
type Class struct {
	ID        ID
	Name      string
	FilePath  string
	LineStart int
	LineEnd   int
}

func (c *Class) Kind() string      { return KindClass }
func (c *Class) NodeID() ID        { return c.ID }
func (c *Class) File() string      { return c.FilePath }
func (c *Class) Lines() (int, int) { return c.LineStart, c.LineEnd }

// Function represents a function or method definition.
type Function struct {
	ID         ID
	Name       string
	FilePath   string
	LineStart  int
	LineEnd    int
	TokenCount int
}

func (f *Function) Kind() string      { return KindFunction }
func (f *Function) NodeID() ID        { return f.ID }
func (f *Function) File() string      { return f.FilePath }
func (f *Function) Lines() (int, int) { return f.LineStart, f.LineEnd }

// Variable represents a variable binding, a function parameter, or — when
// Ref is true — a synthetic reference standing in for an unresolved
// right-hand-side atom (a builtin, an external symbol, a forward reference).
type Variable struct {
	ID        ID
	Name      string
	TypeHint  string
	FilePath  string
	LineStart int
	LineEnd   int
	Ref       bool
}

func (v *Variable) Kind() string {
	if v.Ref {
		return KindVariableRef
	}
	return KindVariable
}
func (v *Variable) NodeID() ID        { return v.ID }
func (v *Variable) File() string      { return v.FilePath }
func (v *Variable) Lines() (int, int) { return v.LineStart, v.LineEnd }

// Call represents one call site: the invocation expression itself, tied to
// the function or code block it occurs in and the callee it resolved to.
type Call struct {
	ID        ID
	CallerID  ID
	CalleeID  ID
	FilePath  string
	LineStart int
	LineEnd   int
}

func (c *Call) Kind() string      { return KindCall }
func (c *Call) NodeID() ID        { return c.ID }
func (c *Call) File() string      { return c.FilePath }
func (c *Call) Lines() (int, int) { return c.LineStart, c.LineEnd }

// CodeBlock represents a contiguous run of top-level statements outside any
// function or class definition.
type CodeBlock struct {
	ID        ID
	FilePath  string
	LineStart int
	LineEnd   int
}

func (b *CodeBlock) Kind() string      { return KindCodeBlock }
func (b *CodeBlock) NodeID() ID        { return b.ID }
func (b *CodeBlock) File() string      { return b.FilePath }
func (b *CodeBlock) Lines() (int, int) { return b.LineStart, b.LineEnd }

// Finding represents one static-analyzer issue attached to the graph during
// enrichment.
type Finding struct {
	ID          ID
	Tool        string
	Severity    string
	Description string
	FilePath    string
	Line        int
}

func (f *Finding) Kind() string      { return KindFinding }
func (f *Finding) NodeID() ID        { return f.ID }
func (f *Finding) File() string      { return f.FilePath }
func (f *Finding) Lines() (int, int) { return f.Line, f.Line }
