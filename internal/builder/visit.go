package builder

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/ident"
)

// processableInClass is the set of direct class-body children the builder
// descends into. Other child kinds (the name token, superclass list,
// punctuation) are structurally skipped.
var processableInClass = map[string]bool{
	"function_definition":   true,
	"class_definition":      true,
	"import_statement":      true,
	"import_from_statement": true,
	"call":                  true,
	"block":                 true,
	"assignment":            true,
	"expression_statement":  true,
	"decorated_definition":  true,
}

// processNode dispatches on the syntax node's kind. Unknown kinds recurse
// into children.
func (b *Builder) processNode(node *tree_sitter.Node) error {
	switch node.Kind() {
	case "function_definition":
		return b.processFunction(node)
	case "class_definition":
		return b.processClass(node)
	case "assignment", "augmented_assignment", "annotated_assignment":
		return b.processAssignment(node)
	case "call":
		b.processCallExpr(node)
		return nil
	case "import_statement":
		b.recordImport(node)
		return nil
	case "import_from_statement":
		b.recordImportFrom(node)
		return nil
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			return b.processNode(def)
		}
		return nil
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if err := b.processNode(child); err != nil {
			return err
		}
	}
	return nil
}

// processFunction creates the function node, binds its name in the
// enclosing scope, then processes parameters and body inside a fresh scope
// and caller frame.
func (b *Builder) processFunction(node *tree_sitter.Node) error {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return &MalformedTreeError{
			Path:      b.path,
			Construct: "function",
			StartByte: node.StartByte(),
			EndByte:   node.EndByte(),
		}
	}

	name := ident.Normalize(b.snippet(nameNode))
	id := ident.New(graph.KindFunction, name, b.path, node.StartByte())
	b.addNode(&graph.Function{
		ID:         id,
		Name:       name,
		FilePath:   b.path,
		LineStart:  int(node.StartPosition().Row) + 1,
		LineEnd:    int(node.EndPosition().Row) + 1,
		TokenCount: b.countTokens(node),
	})

	// Bind in the enclosing scope so siblings and callers resolve it.
	b.scopes.Bind(name, id)
	b.registry.Register(name, id)

	b.scopes.Push()
	b.callers = append(b.callers, id)
	defer func() {
		b.scopes.Pop()
		b.callers = b.callers[:len(b.callers)-1]
	}()

	for _, param := range b.collectParameterIdentifiers(node.ChildByFieldName("parameters")) {
		paramName := ident.Normalize(b.snippet(param))
		typeHint := ""
		if parent := param.Parent(); parent != nil {
			if annotation := parent.ChildByFieldName("type"); annotation != nil {
				typeHint = ident.Normalize(b.snippet(annotation))
			}
		}

		paramVar := &graph.Variable{
			ID:        ident.New(graph.KindVariable, paramName, b.path, param.StartByte()),
			Name:      paramName,
			TypeHint:  typeHint,
			FilePath:  b.path,
			LineStart: int(param.StartPosition().Row) + 1,
			LineEnd:   int(param.EndPosition().Row) + 1,
		}
		b.addNode(paramVar)
		b.scopes.Bind(paramName, paramVar.ID)
		b.edges = append(b.edges, graph.DefinedBy{
			Src:       id,
			Dst:       paramVar.ID,
			Operation: graph.OpParameter,
		})
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child == nil {
			continue
		}
		if err := b.processNode(child); err != nil {
			return err
		}
	}
	return nil
}

// processClass creates the class node and processes its body. Everything
// created inside the body is tied to the class with a DefinedBy edge. The
// class body does not open a scope: method names live in the enclosing
// scope and the registry.
func (b *Builder) processClass(node *tree_sitter.Node) error {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return &MalformedTreeError{
			Path:      b.path,
			Construct: "class",
			StartByte: node.StartByte(),
			EndByte:   node.EndByte(),
		}
	}

	name := ident.Normalize(b.snippet(nameNode))
	id := ident.New(graph.KindClass, name, b.path, node.StartByte())

	lineStart := int(nameNode.StartPosition().Row) + 1
	lineEnd := int(nameNode.EndPosition().Row) + 1
	if superclasses := node.ChildByFieldName("superclasses"); superclasses != nil {
		lineEnd = int(superclasses.EndPosition().Row) + 1
	}

	b.scopes.Bind(name, id)

	memberStart := len(b.created)
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || !processableInClass[child.Kind()] {
			continue
		}
		if err := b.processNode(child); err != nil {
			return err
		}
	}
	for _, memberID := range b.created[memberStart:] {
		b.edges = append(b.edges, graph.DefinedBy{
			Src:       id,
			Dst:       memberID,
			Operation: graph.OpAssignment,
		})
	}

	b.addNode(&graph.Class{
		ID:        id,
		Name:      name,
		FilePath:  b.path,
		LineStart: lineStart,
		LineEnd:   lineEnd,
	})
	return nil
}

// collectParameterIdentifiers returns distinct parameter name identifier
// nodes in source order, deduplicated by byte range. Identifiers inside
// type annotations and default-value expressions are not parameters and
// are excluded.
func (b *Builder) collectParameterIdentifiers(parameters *tree_sitter.Node) []*tree_sitter.Node {
	if parameters == nil {
		return nil
	}

	var identifiers []*tree_sitter.Node
	for i := uint(0); i < parameters.ChildCount(); i++ {
		child := parameters.Child(i)
		if child == nil {
			continue
		}
		identifiers = append(identifiers, parameterNameIdentifiers(child)...)
	}

	type byteRange struct{ start, end uint }
	seen := make(map[byteRange]bool)
	ordered := identifiers[:0]
	for _, node := range identifiers {
		key := byteRange{node.StartByte(), node.EndByte()}
		if seen[key] {
			continue
		}
		seen[key] = true
		ordered = append(ordered, node)
	}
	return ordered
}

// parameterNameIdentifiers extracts the identifiers naming a single entry of
// a parameter list. Annotated and defaulted parameters contribute only their
// name part; the "type" and "value" subtrees are skipped. Splat and tuple
// patterns recurse over the whole pattern.
func parameterNameIdentifiers(node *tree_sitter.Node) []*tree_sitter.Node {
	switch node.Kind() {
	case "identifier":
		return []*tree_sitter.Node{node}
	case "default_parameter", "typed_default_parameter":
		if name := node.ChildByFieldName("name"); name != nil {
			return parameterNameIdentifiers(name)
		}
		return nil
	case "typed_parameter":
		typeNode := node.ChildByFieldName("type")
		var out []*tree_sitter.Node
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			if typeNode != nil && child.StartByte() == typeNode.StartByte() && child.EndByte() == typeNode.EndByte() {
				continue
			}
			out = append(out, parameterNameIdentifiers(child)...)
		}
		return out
	case "list_splat_pattern", "dictionary_splat_pattern", "tuple_pattern":
		return collectIdentifiers(node)
	}
	return nil
}

func collectIdentifiers(node *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	if node.Kind() == "identifier" {
		out = append(out, node)
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		out = append(out, collectIdentifiers(child)...)
	}
	return out
}
