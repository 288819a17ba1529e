package builder

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/ident"
)

// processCallExpr handles one call expression: resolve the caller from the
// caller stack, resolve the callee, create the call node and both call
// graph edges, then attach argument data-flow edges. Returns the call
// node's identifier when one was created.
//
// A call with no enclosing caller frame is skipped outright. An
// unresolvable callee is logged and omitted; its argument subtree is still
// scanned so nested calls are not lost.
func (b *Builder) processCallExpr(node *tree_sitter.Node) (graph.ID, bool) {
	if len(b.callers) == 0 {
		return "", false
	}
	caller := b.callers[len(b.callers)-1]
	arguments := node.ChildByFieldName("arguments")

	calleeID, ok := b.resolveCallee(node)
	if !ok {
		b.log.Warn("unresolved call target",
			"path", b.path,
			"line", int(node.StartPosition().Row)+1,
			"call", ident.Normalize(b.snippet(node)))
		if arguments != nil {
			b.processNestedCalls(arguments)
		}
		return "", false
	}

	callID := ident.New(graph.KindCall, b.callName(node), b.path, node.StartByte())
	if _, exists := b.nodes[callID]; exists {
		return callID, true
	}

	b.addNode(&graph.Call{
		ID:        callID,
		CallerID:  caller,
		CalleeID:  calleeID,
		FilePath:  b.path,
		LineStart: int(node.StartPosition().Row) + 1,
		LineEnd:   int(node.EndPosition().Row) + 1,
	})
	b.edges = append(b.edges,
		graph.Calls{Src: caller, Dst: callID, IsDirect: true, CallDepth: 0},
		graph.CalledBy{Src: callID, Dst: calleeID},
	)

	if arguments != nil {
		b.attachArguments(callID, arguments)
	}
	return callID, true
}

// callName is the call node's name component: for attribute calls the
// method name plus the argument list (a.print() becomes "print()"), for
// identifier calls the full call text.
func (b *Builder) callName(node *tree_sitter.Node) string {
	callee := node.ChildByFieldName("function")
	if callee != nil && callee.Kind() == "attribute" {
		if attr := callee.ChildByFieldName("attribute"); attr != nil {
			name := b.snippet(attr)
			if arguments := node.ChildByFieldName("arguments"); arguments != nil {
				name += b.snippet(arguments)
			}
			return ident.Normalize(name)
		}
	}
	return ident.Normalize(b.snippet(node))
}

// resolveCallee resolves the call's callee to a function or class
// identifier. Identifier callees resolve lexically; attribute callees try
// the bare method name lexically first, then fall back to the function
// registry (first registered wins).
func (b *Builder) resolveCallee(node *tree_sitter.Node) (graph.ID, bool) {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		return "", false
	}

	switch callee.Kind() {
	case "identifier":
		name := ident.Normalize(b.snippet(callee))
		if id, ok := b.scopes.Resolve(name); ok {
			if ident.HasKind(id, graph.KindFunction) || ident.HasKind(id, graph.KindClass) {
				return id, true
			}
		}
	case "attribute":
		attr := callee.ChildByFieldName("attribute")
		if attr == nil {
			return "", false
		}
		name := ident.Normalize(b.snippet(attr))
		if id, ok := b.scopes.Resolve(name); ok && ident.HasKind(id, graph.KindFunction) {
			return id, true
		}
		if id, ok := b.registry.FirstByName(name); ok {
			return id, true
		}
	}
	return "", false
}

// attachArguments walks the argument list, emitting a FlowsTo edge from
// each value atom into the call site. Nested calls become call sites of
// their own and flow into the outer call.
func (b *Builder) attachArguments(callID graph.ID, node *tree_sitter.Node) {
	switch node.Kind() {
	case "identifier", "attribute":
		text := ident.Normalize(b.snippet(node))
		if text == "" {
			return
		}
		if id, ok := b.scopes.Resolve(text); ok {
			b.edges = append(b.edges, graph.FlowsTo{Src: id, Dst: callID})
			return
		}
		ref := b.makeRef(text, node)
		b.addNode(ref)
		b.edges = append(b.edges, graph.FlowsTo{Src: ref.ID, Dst: callID})
		return
	case "call":
		if nestedID, ok := b.processCallExpr(node); ok {
			b.edges = append(b.edges, graph.FlowsTo{Src: nestedID, Dst: callID})
		}
		return
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		b.attachArguments(callID, child)
	}
}

// processNestedCalls finds calls under node and processes each, used when
// an enclosing call could not be resolved.
func (b *Builder) processNestedCalls(node *tree_sitter.Node) {
	if node.Kind() == "call" {
		b.processCallExpr(node)
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		b.processNestedCalls(child)
	}
}

// makeRef synthesizes a reference variable for an unresolved atom (a
// builtin, an external symbol, a forward reference).
func (b *Builder) makeRef(name string, node *tree_sitter.Node) *graph.Variable {
	return &graph.Variable{
		ID:        ident.New(graph.KindVariableRef, name, b.path, node.StartByte()),
		Name:      name,
		FilePath:  b.path,
		LineStart: int(node.StartPosition().Row) + 1,
		LineEnd:   int(node.EndPosition().Row) + 1,
		Ref:       true,
	}
}
