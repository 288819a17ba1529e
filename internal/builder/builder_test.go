package builder

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/ident"
)

const testPath = "test.py"

func buildSource(t *testing.T, source string) *Result {
	t.Helper()
	result, err := New([]byte(source), Config{Path: testPath}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return result
}

// byteIndex locates a snippet's byte offset, starting the search at from.
func byteIndex(t *testing.T, source, needle string, from int) uint {
	t.Helper()
	i := strings.Index(source[from:], needle)
	if i < 0 {
		t.Fatalf("snippet %q not found after byte %d", needle, from)
	}
	return uint(from + i)
}

func hasEdge(edges []graph.Edge, want graph.Edge) bool {
	for _, e := range edges {
		if e == want {
			return true
		}
	}
	return false
}

func TestBuild_FunctionCalls(t *testing.T) {
	source := `def bar():
    return 1


def foo(value):
    bar()
    return value


def baz():
    foo(bar())
`
	result := buildSource(t, source)

	barID := ident.New("function", "bar", testPath, byteIndex(t, source, "def bar", 0))
	fooSB := byteIndex(t, source, "def foo", 0)
	fooID := ident.New("function", "foo", testPath, fooSB)
	bazSB := byteIndex(t, source, "def baz", 0)
	bazID := ident.New("function", "baz", testPath, bazSB)

	for _, id := range []graph.ID{barID, fooID, bazID} {
		if _, ok := result.Nodes[id]; !ok {
			t.Fatalf("missing function node %s", id)
		}
	}

	barCallID := ident.New("call", "bar()", testPath, byteIndex(t, source, "bar()", int(fooSB)))
	call, ok := result.Nodes[barCallID].(*graph.Call)
	if !ok {
		t.Fatalf("missing call node %s", barCallID)
	}
	if call.CallerID != fooID || call.CalleeID != barID {
		t.Errorf("bar() call: caller=%s callee=%s", call.CallerID, call.CalleeID)
	}
	if call.LineStart != 6 || call.LineEnd != 6 {
		t.Errorf("bar() call lines: %d-%d, want 6-6", call.LineStart, call.LineEnd)
	}

	fooCallID := ident.New("call", "foo(bar())", testPath, byteIndex(t, source, "foo(bar())", int(bazSB)))
	nestedBarCallID := ident.New("call", "bar()", testPath, byteIndex(t, source, "bar()", int(bazSB)))

	for _, want := range []graph.Edge{
		graph.Calls{Src: fooID, Dst: barCallID, IsDirect: true, CallDepth: 0},
		graph.CalledBy{Src: barCallID, Dst: barID},
		graph.Calls{Src: bazID, Dst: fooCallID, IsDirect: true, CallDepth: 0},
		graph.CalledBy{Src: fooCallID, Dst: fooID},
		graph.Calls{Src: bazID, Dst: nestedBarCallID, IsDirect: true, CallDepth: 0},
		graph.CalledBy{Src: nestedBarCallID, Dst: barID},
	} {
		if !hasEdge(result.Edges, want) {
			t.Errorf("missing edge %+v", want)
		}
	}

	if !hasEdge(result.Edges, graph.FlowsTo{Src: nestedBarCallID, Dst: fooCallID}) {
		t.Errorf("missing flow from nested call into outer call")
	}
}

func TestBuild_Determinism(t *testing.T) {
	source := `x = 1


def f(a):
    return g(a)


def g(b):
    return b + x
`
	first := buildSource(t, source)
	second := buildSource(t, source)

	if len(first.Nodes) != len(second.Nodes) {
		t.Fatalf("node counts differ: %d vs %d", len(first.Nodes), len(second.Nodes))
	}
	for id := range first.Nodes {
		if _, ok := second.Nodes[id]; !ok {
			t.Errorf("node %s missing from second build", id)
		}
	}

	render := func(edges []graph.Edge) []string {
		out := make([]string, len(edges))
		for i, e := range edges {
			out[i] = fmt.Sprintf("%#v", e)
		}
		sort.Strings(out)
		return out
	}
	firstEdges, secondEdges := render(first.Edges), render(second.Edges)
	if len(firstEdges) != len(secondEdges) {
		t.Fatalf("edge counts differ: %d vs %d", len(firstEdges), len(secondEdges))
	}
	for i := range firstEdges {
		if firstEdges[i] != secondEdges[i] {
			t.Errorf("edge mismatch: %s vs %s", firstEdges[i], secondEdges[i])
		}
	}
}

func TestBuild_AssignmentIdentityReuse(t *testing.T) {
	source := `a = 1
b = a
c = a + b
`
	result := buildSource(t, source)

	aID := ident.New("variable", "a", testPath, byteIndex(t, source, "a =", 0))
	bID := ident.New("variable", "b", testPath, byteIndex(t, source, "b =", 0))
	cID := ident.New("variable", "c", testPath, byteIndex(t, source, "c =", 0))

	if !hasEdge(result.Edges, graph.DefinedBy{Src: aID, Dst: bID, Operation: graph.OpAssignment}) {
		t.Errorf("missing a -> b definition")
	}

	var intoC []graph.DefinedBy
	for _, e := range result.Edges {
		if d, ok := e.(graph.DefinedBy); ok && d.Dst == cID {
			intoC = append(intoC, d)
		}
	}
	if len(intoC) != 2 {
		t.Fatalf("definitions into c: got %d, want 2", len(intoC))
	}
	sources := map[graph.ID]bool{}
	for _, d := range intoC {
		sources[d.Src] = true
	}
	if !sources[aID] || !sources[bID] {
		t.Errorf("c sources = %v, want a and b", sources)
	}
}

func TestBuild_ParameterEdges(t *testing.T) {
	source := `def f(x: int, y):
    return x
`
	result := buildSource(t, source)

	fID := ident.New("function", "f", testPath, byteIndex(t, source, "def f", 0))
	xID := ident.New("variable", "x", testPath, byteIndex(t, source, "x: int", 0))
	yID := ident.New("variable", "y", testPath, byteIndex(t, source, "y)", 0))

	var paramEdges []graph.DefinedBy
	for _, e := range result.Edges {
		if d, ok := e.(graph.DefinedBy); ok && d.Operation == graph.OpParameter {
			paramEdges = append(paramEdges, d)
		}
	}
	if len(paramEdges) != 2 {
		t.Fatalf("parameter edges: got %d, want 2", len(paramEdges))
	}
	for _, d := range paramEdges {
		if d.Src != fID {
			t.Errorf("parameter edge source = %s, want %s", d.Src, fID)
		}
		if d.Dst != xID && d.Dst != yID {
			t.Errorf("unexpected parameter edge destination %s", d.Dst)
		}
	}

	x, ok := result.Nodes[xID].(*graph.Variable)
	if !ok {
		t.Fatalf("missing parameter node %s", xID)
	}
	if x.TypeHint != "int" {
		t.Errorf("x type hint = %q, want %q", x.TypeHint, "int")
	}
}

func TestBuild_ParameterDefaultsAreNotParameters(t *testing.T) {
	source := `fallback = 1


def f(a, b=fallback, c: int = 2):
    return a
`
	result := buildSource(t, source)

	fID := ident.New("function", "f", testPath, byteIndex(t, source, "def f", 0))
	aID := ident.New("variable", "a", testPath, byteIndex(t, source, "a,", 0))
	bID := ident.New("variable", "b", testPath, byteIndex(t, source, "b=fallback", 0))
	cID := ident.New("variable", "c", testPath, byteIndex(t, source, "c: int", 0))

	var paramEdges []graph.DefinedBy
	for _, e := range result.Edges {
		if d, ok := e.(graph.DefinedBy); ok && d.Operation == graph.OpParameter {
			paramEdges = append(paramEdges, d)
		}
	}
	if len(paramEdges) != 3 {
		t.Fatalf("parameter edges: got %d, want 3", len(paramEdges))
	}
	want := map[graph.ID]bool{aID: true, bID: true, cID: true}
	for _, d := range paramEdges {
		if d.Src != fID {
			t.Errorf("parameter edge source = %s, want %s", d.Src, fID)
		}
		if !want[d.Dst] {
			t.Errorf("unexpected parameter edge destination %s", d.Dst)
		}
	}

	c, ok := result.Nodes[cID].(*graph.Variable)
	if !ok {
		t.Fatalf("missing parameter node %s", cID)
	}
	if c.TypeHint != "int" {
		t.Errorf("c type hint = %q, want %q", c.TypeHint, "int")
	}
}

func TestBuild_MethodCallRegistryFallback(t *testing.T) {
	source := `def main():
    a = A(10, "hello")
    a.print()


class A:
    def print(self):
        return self
`
	result := buildSource(t, source)

	mainID := ident.New("function", "main", testPath, byteIndex(t, source, "def main", 0))
	classID := ident.New("class", "A", testPath, byteIndex(t, source, "class A", 0))
	methodID := ident.New("function", "print", testPath, byteIndex(t, source, "def print", 0))

	callID := ident.New("call", "print()", testPath, byteIndex(t, source, "a.print()", 0))
	call, ok := result.Nodes[callID].(*graph.Call)
	if !ok {
		t.Fatalf("missing method call node %s", callID)
	}
	if call.CallerID != mainID || call.CalleeID != methodID {
		t.Errorf("method call: caller=%s callee=%s", call.CallerID, call.CalleeID)
	}

	ctorID := ident.New("call", `A(10, "hello")`, testPath, byteIndex(t, source, `A(10, "hello")`, 0))
	if !hasEdge(result.Edges, graph.CalledBy{Src: ctorID, Dst: classID}) {
		t.Errorf("constructor call not linked to class")
	}
}

func TestBuild_UnresolvedCallIsNonFatal(t *testing.T) {
	source := `def f():
    unknown_fn()
`
	result := buildSource(t, source)

	for _, e := range result.Edges {
		switch e.Type() {
		case graph.TypeCalls, graph.TypeCalledBy:
			t.Errorf("unexpected call edge %+v", e)
		}
	}
	fID := ident.New("function", "f", testPath, byteIndex(t, source, "def f", 0))
	if _, ok := result.Nodes[fID]; !ok {
		t.Errorf("function node missing from otherwise valid build")
	}
}

func TestBuild_ForwardReference(t *testing.T) {
	source := `def first():
    second()


def second():
    return 2
`
	result := buildSource(t, source)

	firstID := ident.New("function", "first", testPath, byteIndex(t, source, "def first", 0))
	secondID := ident.New("function", "second", testPath, byteIndex(t, source, "def second", 0))
	callID := ident.New("call", "second()", testPath, byteIndex(t, source, "second()", 0))

	if !hasEdge(result.Edges, graph.Calls{Src: firstID, Dst: callID, IsDirect: true, CallDepth: 0}) {
		t.Errorf("missing calls edge for forward-referenced callee")
	}
	if !hasEdge(result.Edges, graph.CalledBy{Src: callID, Dst: secondID}) {
		t.Errorf("missing called-by edge for forward-referenced callee")
	}
}

func TestBuild_SingleCodeBlock(t *testing.T) {
	source := `a = [1, 2, 3]
b = a
c = b
`
	result := buildSource(t, source)

	var blocks []*graph.CodeBlock
	for _, n := range result.Nodes {
		if cb, ok := n.(*graph.CodeBlock); ok {
			blocks = append(blocks, cb)
		}
	}
	if len(blocks) != 1 {
		t.Fatalf("code blocks: got %d, want 1", len(blocks))
	}

	blockID := ident.New("code_block", "a = [1, 2, 3]", testPath, 0)
	block, ok := result.Nodes[blockID].(*graph.CodeBlock)
	if !ok {
		t.Fatalf("missing code block %s", blockID)
	}
	if block.LineStart != 1 || block.LineEnd != 3 {
		t.Errorf("block lines: %d-%d, want 1-3", block.LineStart, block.LineEnd)
	}
}

func TestBuild_BlocksSplitByDefinition(t *testing.T) {
	source := `a = 1
b = 2


def f():
    return a


sample = [3, 2, 1]
`
	result := buildSource(t, source)

	firstID := ident.New("code_block", "a = 1", testPath, 0)
	secondID := ident.New("code_block", "sample = [3, 2, 1]", testPath, byteIndex(t, source, "sample =", 0))

	first, ok := result.Nodes[firstID].(*graph.CodeBlock)
	if !ok {
		t.Fatalf("missing first code block %s", firstID)
	}
	if first.LineStart != 1 || first.LineEnd != 2 {
		t.Errorf("first block lines: %d-%d, want 1-2", first.LineStart, first.LineEnd)
	}

	second, ok := result.Nodes[secondID].(*graph.CodeBlock)
	if !ok {
		t.Fatalf("missing second code block %s", secondID)
	}
	if second.LineStart != 9 || second.LineEnd != 9 {
		t.Errorf("second block lines: %d-%d, want 9-9", second.LineStart, second.LineEnd)
	}
}

func TestBuild_TopLevelCallAttributedToBlock(t *testing.T) {
	source := `def main():
    return 0


if __name__ == "__main__":
    main()
`
	result := buildSource(t, source)

	mainID := ident.New("function", "main", testPath, byteIndex(t, source, "def main", 0))
	blockSB := byteIndex(t, source, "if __name__", 0)
	blockID := ident.New("code_block", `if __name__ == "__main__":`, testPath, blockSB)
	callID := ident.New("call", "main()", testPath, byteIndex(t, source, "main()", int(blockSB)))

	if _, ok := result.Nodes[blockID]; !ok {
		t.Fatalf("missing code block %s", blockID)
	}
	call, ok := result.Nodes[callID].(*graph.Call)
	if !ok {
		t.Fatalf("missing call node %s", callID)
	}
	if call.CallerID != blockID || call.CalleeID != mainID {
		t.Errorf("top-level call: caller=%s callee=%s", call.CallerID, call.CalleeID)
	}

	module, ok := result.Nodes[result.ModuleID].(*graph.Module)
	if !ok {
		t.Fatalf("missing module node")
	}
	if !module.IsEntryPoint {
		t.Errorf("module should be flagged as entry point")
	}
}

func TestBuild_ClassMembers(t *testing.T) {
	source := `class C(Base):
    def method(self):
        return self
`
	result := buildSource(t, source)

	classID := ident.New("class", "C", testPath, byteIndex(t, source, "class C", 0))
	methodID := ident.New("function", "method", testPath, byteIndex(t, source, "def method", 0))

	class, ok := result.Nodes[classID].(*graph.Class)
	if !ok {
		t.Fatalf("missing class node %s", classID)
	}
	if class.LineStart != 1 || class.LineEnd != 1 {
		t.Errorf("class lines: %d-%d, want 1-1", class.LineStart, class.LineEnd)
	}

	if !hasEdge(result.Edges, graph.DefinedBy{Src: classID, Dst: methodID, Operation: graph.OpAssignment}) {
		t.Errorf("method not tied to its class")
	}
}

func TestBuild_ClassPassedAsArgument(t *testing.T) {
	source := `class C:
    pass


def use(x):
    return x


def foo():
    use(C)
`
	result := buildSource(t, source)

	classID := ident.New("class", "C", testPath, byteIndex(t, source, "class C", 0))
	callID := ident.New("call", "use(C)", testPath, byteIndex(t, source, "use(C)", 0))

	if _, ok := result.Nodes[callID]; !ok {
		t.Fatalf("missing call node %s", callID)
	}
	if !hasEdge(result.Edges, graph.FlowsTo{Src: classID, Dst: callID}) {
		t.Errorf("class argument does not flow into call site")
	}
}

func TestBuild_AugmentedAssignment(t *testing.T) {
	source := `x = 1
x += 2
`
	result := buildSource(t, source)

	xID := ident.New("variable", "x", testPath, 0)
	if !hasEdge(result.Edges, graph.DefinedBy{Src: xID, Dst: xID, Operation: graph.OpAssignment}) {
		t.Errorf("augmented assignment should feed the previous value back into the target")
	}
}

func TestBuild_UnresolvedAtomBecomesReference(t *testing.T) {
	source := `def f():
    y = external_thing
    return y
`
	result := buildSource(t, source)

	refID := ident.New("variable_ref", "external_thing", testPath, byteIndex(t, source, "external_thing", 0))
	ref, ok := result.Nodes[refID].(*graph.Variable)
	if !ok {
		t.Fatalf("missing reference node %s", refID)
	}
	if ref.Kind() != graph.KindVariableRef {
		t.Errorf("reference kind = %s, want %s", ref.Kind(), graph.KindVariableRef)
	}

	yID := ident.New("variable", "y", testPath, byteIndex(t, source, "y =", 0))
	if !hasEdge(result.Edges, graph.DefinedBy{Src: refID, Dst: yID, Operation: graph.OpAssignment}) {
		t.Errorf("reference does not define the assignment target")
	}
}

func TestBuild_ModuleMetadata(t *testing.T) {
	source := `import os
from pkg.sub import helper


def visible():
    return os.getcwd()
`
	result, err := New([]byte(source), Config{Path: "pkg/mod.py", ModuleName: "pkg.mod"}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	module, ok := result.Nodes[result.ModuleID].(*graph.Module)
	if !ok {
		t.Fatalf("missing module node")
	}
	if module.Name != "mod" {
		t.Errorf("module name = %q, want %q", module.Name, "mod")
	}
	wantImports := []string{"os", "pkg.sub.helper"}
	if len(module.Imports) != len(wantImports) {
		t.Fatalf("imports = %v, want %v", module.Imports, wantImports)
	}
	for i, imp := range wantImports {
		if module.Imports[i] != imp {
			t.Errorf("imports[%d] = %q, want %q", i, module.Imports[i], imp)
		}
	}
	if len(module.Exports) != 1 || module.Exports[0] != "visible" {
		t.Errorf("exports = %v, want [visible]", module.Exports)
	}
	if module.IsEntryPoint {
		t.Errorf("module should not be an entry point")
	}

	fnID := ident.New("function", "visible", "pkg/mod.py", byteIndex(t, source, "def visible", 0))
	if !hasEdge(result.Edges, graph.Contains{Src: result.ModuleID, Dst: fnID, Position: 0}) {
		t.Errorf("module does not contain its function at the expected position")
	}
}

func TestBuild_Prebindings(t *testing.T) {
	providerFnID := ident.New("function", "exported_function", "provider.py", 42)
	providerConstID := ident.New("variable", "EXPORTED_CONST", "provider.py", 7)

	source := `const_copy = EXPORTED_CONST
exported_function(EXPORTED_CONST)
`
	result, err := New([]byte(source), Config{
		Path: "consumer.py",
		Prebound: map[string]graph.ID{
			"exported_function": providerFnID,
			"EXPORTED_CONST":    providerConstID,
		},
	}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	constCopyID := ident.New("variable", "const_copy", "consumer.py", 0)
	if !hasEdge(result.Edges, graph.DefinedBy{Src: providerConstID, Dst: constCopyID, Operation: graph.OpAssignment}) {
		t.Errorf("prebound constant does not define the local copy")
	}

	callID := ident.New("call", "exported_function(EXPORTED_CONST)", "consumer.py",
		byteIndex(t, source, "exported_function(EXPORTED_CONST)", 1))
	if !hasEdge(result.Edges, graph.CalledBy{Src: callID, Dst: providerFnID}) {
		t.Errorf("call site not linked to prebound function")
	}
	if !hasEdge(result.Edges, graph.FlowsTo{Src: providerConstID, Dst: callID}) {
		t.Errorf("prebound constant does not flow into the call site")
	}

	if _, ok := result.Exports["exported_function"]; ok {
		t.Errorf("prebound names must not appear in exports")
	}
	if _, ok := result.Exports["const_copy"]; !ok {
		t.Errorf("top-level assignment missing from exports")
	}
}
