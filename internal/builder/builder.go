// Package builder turns one parsed source file into code property graph
// nodes and edges.
//
// The build is a single depth-first pass over the syntax tree, with two
// pre-registration passes at the module level (class names first, then
// function names) so forward references resolve before the statement that
// uses them is visited. Top-level statements outside any definition are
// grouped into code blocks and re-entered last, with the caller stack set
// to the block, so calls made at top level attribute correctly.
package builder

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/ident"
	"github.com/cpgscan/cpgscan/internal/parser"
	"github.com/cpgscan/cpgscan/internal/scope"
)

// Config carries per-file build inputs.
type Config struct {
	// Path is the path embedded in node identifiers. Project builds pass
	// the root-relative path so identifiers are stable across checkouts.
	Path string

	// ModuleName is the dotted module name. Defaults to the file stem.
	ModuleName string

	// Prebound maps local names to identifiers resolved in other files.
	// They are bound into the root scope before any statement is visited.
	Prebound map[string]graph.ID

	Logger *slog.Logger
}

// Result is the output contract consumed by loaders and the project
// builder.
type Result struct {
	Nodes    map[graph.ID]graph.Node
	Edges    []graph.Edge
	ModuleID graph.ID

	// Exports maps top-level symbol names to their identifiers, excluding
	// prebound imports. The project builder indexes these for cross-file
	// linking.
	Exports map[string]graph.ID
}

// Builder holds the state of one file's build. Not safe for reuse;
// construct one per Build call.
type Builder struct {
	path       string
	moduleName string
	source     []byte
	lines      []string
	log        *slog.Logger

	scopes   *scope.Table
	registry *scope.Registry
	callers  []graph.ID
	prebound map[string]graph.ID

	nodes   map[graph.ID]graph.Node
	edges   []graph.Edge
	created []graph.ID

	imports map[string]struct{}
}

// New prepares a builder over source bytes.
func New(source []byte, cfg Config) *Builder {
	moduleName := cfg.ModuleName
	if moduleName == "" {
		base := filepath.Base(cfg.Path)
		moduleName = strings.TrimSuffix(base, filepath.Ext(base))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		path:       cfg.Path,
		moduleName: moduleName,
		source:     source,
		lines:      strings.Split(string(source), "\n"),
		log:        logger,
		scopes:     scope.NewTable(),
		registry:   scope.NewRegistry(),
		prebound:   cfg.Prebound,
		nodes:      make(map[graph.ID]graph.Node),
		imports:    make(map[string]struct{}),
	}
}

// Build parses the source and runs the full traversal.
func (b *Builder) Build() (*Result, error) {
	tree, err := parser.Parse(b.source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()

	for name, id := range b.prebound {
		b.scopes.Bind(name, id)
	}

	blocks := b.topLevelBlocks(root)
	blockIDs := make([]graph.ID, len(blocks))
	for i, run := range blocks {
		block := b.createCodeBlock(run)
		b.addNode(block)
		blockIDs[i] = block.ID
	}

	b.preRegister(root)

	position := 0
	moduleID := ident.New(graph.KindModule, b.moduleName, b.path, root.StartByte())
	for i := uint(0); i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		def := unwrapDecorated(child)
		switch def.Kind() {
		case "function_definition", "class_definition":
			if err := b.processNode(def); err != nil {
				return nil, err
			}
			if id, ok := b.definitionID(def); ok {
				b.edges = append(b.edges, graph.Contains{
					Src:      moduleID,
					Dst:      id,
					Position: position,
				})
			}
			position++
		case "import_statement":
			b.recordImport(def)
		case "import_from_statement":
			b.recordImportFrom(def)
		}
	}

	for i, run := range blocks {
		b.callers = append(b.callers, blockIDs[i])
		for _, stmt := range run {
			if err := b.processNode(stmt); err != nil {
				return nil, err
			}
		}
		b.callers = b.callers[:len(b.callers)-1]
	}

	exports := b.collectExports()
	b.addNode(b.moduleNode(moduleID, root, exports))

	return &Result{
		Nodes:    b.nodes,
		Edges:    b.edges,
		ModuleID: moduleID,
		Exports:  exports,
	}, nil
}

// preRegister binds all top-level class names (and, transitively, their
// method names into the registry), then all top-level function names, so a
// symbol used before its textual definition still resolves. Identifiers
// are precomputed from each definition's start byte; processing the
// definition later produces the same identifier.
func (b *Builder) preRegister(root *tree_sitter.Node) {
	for i := uint(0); i < root.ChildCount(); i++ {
		def := unwrapDecorated(root.Child(i))
		if def == nil || def.Kind() != "class_definition" {
			continue
		}
		nameNode := def.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := b.snippet(nameNode)
		b.scopes.Bind(name, ident.New(graph.KindClass, name, b.path, def.StartByte()))
		b.preRegisterMethods(def)
	}

	for i := uint(0); i < root.ChildCount(); i++ {
		def := unwrapDecorated(root.Child(i))
		if def == nil || def.Kind() != "function_definition" {
			continue
		}
		nameNode := def.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := b.snippet(nameNode)
		id := ident.New(graph.KindFunction, name, b.path, def.StartByte())
		b.scopes.Bind(name, id)
		b.registry.Register(name, id)
	}
}

func (b *Builder) preRegisterMethods(class *tree_sitter.Node) {
	body := class.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		def := unwrapDecorated(body.Child(i))
		if def == nil {
			continue
		}
		switch def.Kind() {
		case "function_definition":
			nameNode := def.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := b.snippet(nameNode)
			b.registry.Register(name, ident.New(graph.KindFunction, name, b.path, def.StartByte()))
		case "class_definition":
			b.preRegisterMethods(def)
		}
	}
}

// definitionID recomputes the identifier a definition node will receive
// when processed.
func (b *Builder) definitionID(def *tree_sitter.Node) (graph.ID, bool) {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return "", false
	}
	kind := graph.KindFunction
	if def.Kind() == "class_definition" {
		kind = graph.KindClass
	}
	return ident.New(kind, b.snippet(nameNode), b.path, def.StartByte()), true
}

// addNode stores a node and remembers creation order for class-member
// attribution.
func (b *Builder) addNode(n graph.Node) {
	id := n.NodeID()
	if _, ok := b.nodes[id]; ok {
		return
	}
	b.nodes[id] = n
	b.created = append(b.created, id)
}

func (b *Builder) snippet(node *tree_sitter.Node) string {
	return parser.NodeText(node, b.source)
}

func (b *Builder) countTokens(node *tree_sitter.Node) int {
	return len(strings.Fields(b.snippet(node))) / 3
}

func unwrapDecorated(node *tree_sitter.Node) *tree_sitter.Node {
	if node == nil {
		return nil
	}
	if node.Kind() != "decorated_definition" {
		return node
	}
	if def := node.ChildByFieldName("definition"); def != nil {
		return def
	}
	return node
}

func (b *Builder) moduleNode(id graph.ID, root *tree_sitter.Node, exports map[string]graph.ID) *graph.Module {
	importList := make([]string, 0, len(b.imports))
	for imp := range b.imports {
		importList = append(importList, imp)
	}
	sort.Strings(importList)

	exportList := make([]string, 0, len(exports))
	for name := range exports {
		exportList = append(exportList, name)
	}
	sort.Strings(exportList)

	name := b.moduleName
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return &graph.Module{
		ID:           id,
		Name:         name,
		FilePath:     b.path,
		Imports:      importList,
		Exports:      exportList,
		IsEntryPoint: b.isEntryPoint(),
		LineStart:    1,
		LineEnd:      int(root.EndPosition().Row) + 1,
	}
}

func (b *Builder) isEntryPoint() bool {
	return strings.HasSuffix(b.path, "__main__.py") ||
		strings.Contains(string(b.source), `if __name__ == "__main__":`)
}

// collectExports returns root-scope bindings minus prebound imports.
func (b *Builder) collectExports() map[string]graph.ID {
	exports := make(map[string]graph.ID)
	for name, id := range b.scopes.Root() {
		if pre, ok := b.prebound[name]; ok && pre == id {
			continue
		}
		exports[name] = id
	}
	return exports
}
