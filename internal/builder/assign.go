package builder

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/ident"
)

type assignTarget struct {
	name string
	node *tree_sitter.Node
}

// processAssignment emits variable nodes for assignment targets and
// DefinedBy edges from every right-hand value source to every target. A
// target already bound in the innermost scope is reused rather than
// recreated, so repeated assignment to one name does not fragment its
// identity.
func (b *Builder) processAssignment(node *tree_sitter.Node) error {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil {
		return nil
	}

	typeHint := ""
	if annotation := node.ChildByFieldName("type"); annotation != nil {
		typeHint = ident.Normalize(b.snippet(annotation))
	}

	targets := assignmentTargets(b, left)
	if len(targets) == 0 {
		return nil
	}

	var sourceIDs []graph.ID
	seen := make(map[graph.ID]bool)
	addSource := func(id graph.ID) {
		if seen[id] {
			return
		}
		seen[id] = true
		sourceIDs = append(sourceIDs, id)
	}

	b.walkSourceAtoms(right, func(kind, text string, atom *tree_sitter.Node) {
		switch kind {
		case "identifier", "attribute":
			if id, ok := b.scopes.Resolve(text); ok {
				addSource(id)
				return
			}
			ref := b.makeRef(text, atom)
			b.addNode(ref)
			addSource(ref.ID)
		case "call":
			if callID, ok := b.processCallExpr(atom); ok {
				addSource(callID)
			}
		}
	})

	// An augmented assignment also depends on the target's previous value.
	if node.Kind() == "augmented_assignment" {
		for _, target := range targets {
			if prev, ok := b.scopes.Resolve(target.name); ok {
				addSource(prev)
				continue
			}
			ref := b.makeRef(target.name, node)
			b.addNode(ref)
			addSource(ref.ID)
		}
	}

	for _, target := range targets {
		dstID := b.getOrCreateVariable(target, typeHint)
		for _, srcID := range sourceIDs {
			b.edges = append(b.edges, graph.DefinedBy{
				Src:       srcID,
				Dst:       dstID,
				Operation: graph.OpAssignment,
			})
		}
	}
	return nil
}

// assignmentTargets extracts left-hand targets: identifiers, attributes
// (self.x), and subscripts (a[i]) are atomic; destructuring recurses into
// each element.
func assignmentTargets(b *Builder, node *tree_sitter.Node) []assignTarget {
	switch node.Kind() {
	case "identifier", "attribute", "subscript":
		name := ident.Normalize(b.snippet(node))
		if name == "" {
			return nil
		}
		return []assignTarget{{name: name, node: node}}
	}

	var targets []assignTarget
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		targets = append(targets, assignmentTargets(b, child)...)
	}
	return targets
}

// walkSourceAtoms classifies right-hand expressions into atomic value
// sources. Identifiers and attribute accesses are leaves; the full dotted
// expression of an attribute counts as one symbol. Calls are leaves too,
// but their argument subtrees are still walked (skipping the callee) so
// dependencies nested in arguments are captured.
func (b *Builder) walkSourceAtoms(node *tree_sitter.Node, fn func(kind, text string, atom *tree_sitter.Node)) {
	switch node.Kind() {
	case "identifier":
		fn("identifier", ident.Normalize(b.snippet(node)), node)
		return
	case "attribute":
		fn("attribute", ident.Normalize(b.snippet(node)), node)
		return
	case "call":
		fn("call", ident.Normalize(b.snippet(node)), node)
		callee := node.ChildByFieldName("function")
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			if callee != nil && child.StartByte() == callee.StartByte() && child.EndByte() == callee.EndByte() {
				continue
			}
			b.walkSourceAtoms(child, fn)
		}
		return
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		b.walkSourceAtoms(child, fn)
	}
}

// getOrCreateVariable reuses the symbol bound in the innermost scope or
// creates and binds a new variable node for the target.
func (b *Builder) getOrCreateVariable(target assignTarget, typeHint string) graph.ID {
	if existing, ok := b.scopes.InnermostLookup(target.name); ok {
		return existing
	}

	variable := &graph.Variable{
		ID:        ident.New(graph.KindVariable, target.name, b.path, target.node.StartByte()),
		Name:      target.name,
		TypeHint:  typeHint,
		FilePath:  b.path,
		LineStart: int(target.node.StartPosition().Row) + 1,
		LineEnd:   int(target.node.EndPosition().Row) + 1,
	}
	b.addNode(variable)
	b.scopes.Bind(target.name, variable.ID)
	return variable.ID
}
