package project

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/cpgscan/cpgscan/internal/builder"
	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/parser"
)

// fromImport is one name pulled in by a from-import statement.
type fromImport struct {
	module string
	symbol string
	alias  string
}

func (f fromImport) localName() string {
	if f.alias != "" {
		return f.alias
	}
	return f.symbol
}

// linkImports runs phase two: resolve each file's from-imports against the
// symbol index and attach the resulting pre-bindings so the file's real
// build sees imported names already bound. An import that cannot be
// resolved is logged and omitted, never fatal.
func (p *Builder) linkImports(records []*fileRecord, index map[string]map[string]graph.ID) {
	for _, rec := range records {
		if rec.skipped {
			continue
		}
		imports := p.scanFromImports(rec)
		if len(imports) == 0 {
			continue
		}

		prebound := make(map[string]graph.ID)
		for _, imp := range imports {
			symbols, ok := index[imp.module]
			if !ok {
				p.log.Warn("imported module not in project",
					"path", rec.relPath, "module", imp.module, "symbol", imp.symbol)
				continue
			}
			id, ok := symbols[imp.symbol]
			if !ok {
				p.log.Warn("imported symbol not exported",
					"path", rec.relPath, "module", imp.module, "symbol", imp.symbol)
				continue
			}
			prebound[imp.localName()] = id
		}
		if len(prebound) > 0 {
			rec.prebound = prebound
		}
	}
}

// scanFromImports re-parses the file and collects its from-imports with
// relative references resolved to absolute module names.
func (p *Builder) scanFromImports(rec *fileRecord) []fromImport {
	tree, err := parser.Parse(rec.source)
	if err != nil {
		p.log.Warn("import scan parse failed", "path", rec.relPath, "error", err)
		return nil
	}
	defer tree.Close()

	text := func(n *tree_sitter.Node) string {
		return parser.NodeText(n, rec.source)
	}

	var out []fromImport
	parser.Walk(tree.RootNode(), func(node *tree_sitter.Node) bool {
		if node.Kind() != "import_from_statement" {
			return true
		}
		moduleNode := node.ChildByFieldName("module_name")
		if moduleNode == nil {
			return false
		}
		module := builder.ResolveModuleRef(rec.moduleName, text(moduleNode))
		if module == "" {
			return false
		}

		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
				continue
			}
			switch child.Kind() {
			case "dotted_name", "identifier":
				out = append(out, fromImport{module: module, symbol: text(child)})
			case "aliased_import":
				name := child.ChildByFieldName("name")
				if name == nil {
					continue
				}
				imp := fromImport{module: module, symbol: text(name)}
				if alias := child.ChildByFieldName("alias"); alias != nil {
					imp.alias = text(alias)
				}
				out = append(out, imp)
			}
		}
		return false
	})
	return out
}
