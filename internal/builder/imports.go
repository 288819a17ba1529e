package builder

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// recordImport collects the module names of a plain import statement. The
// single-file builder only records raw import metadata on the module node;
// resolving imported names to cross-file identifiers is the project
// builder's job.
func (b *Builder) recordImport(node *tree_sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			b.imports[b.snippet(child)] = struct{}{}
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				b.imports[b.snippet(name)] = struct{}{}
			}
		}
	}
}

// recordImportFrom collects "module.symbol" entries for a from-import,
// resolving relative module references against the file's dotted module
// name.
func (b *Builder) recordImportFrom(node *tree_sitter.Node) {
	moduleNode := node.ChildByFieldName("module_name")
	moduleName := ""
	if moduleNode != nil {
		moduleName = b.resolveFromModule(b.snippet(moduleNode))
	}

	record := func(symbol string) {
		if symbol == "" {
			return
		}
		if moduleName != "" {
			b.imports[moduleName+"."+symbol] = struct{}{}
			return
		}
		b.imports[symbol] = struct{}{}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if moduleNode != nil && child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			record(b.snippet(child))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				record(b.snippet(name))
			}
		case "wildcard_import":
			record("*")
		}
	}
}

func (b *Builder) resolveFromModule(raw string) string {
	return ResolveModuleRef(b.moduleName, raw)
}

// ResolveModuleRef turns a possibly-relative module reference into an
// absolute dotted path, resolved against the importing file's dotted
// module name. A single leading dot means the current package; each
// additional dot walks one package level up.
func ResolveModuleRef(moduleName, raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	module := strings.TrimLeft(text, ".")
	level := len(text) - len(module)
	if level == 0 {
		return module
	}

	parts := strings.Split(moduleName, ".")
	base := parts[:len(parts)-1]
	if up := level - 1; up > 0 {
		if up <= len(base) {
			base = base[:len(base)-up]
		} else {
			base = nil
		}
	}

	var resolved []string
	for _, p := range base {
		if p != "" {
			resolved = append(resolved, p)
		}
	}
	if module != "" {
		resolved = append(resolved, module)
	}
	return strings.Join(resolved, ".")
}
