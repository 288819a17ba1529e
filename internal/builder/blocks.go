package builder

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/ident"
)

// definitionKinds split top-level statement runs: a statement sequence
// interrupted by any of these starts a new code block.
var definitionKinds = map[string]bool{
	"module":                true,
	"function_definition":   true,
	"class_definition":      true,
	"import_statement":      true,
	"import_from_statement": true,
	"decorated_definition":  true,
}

func isTopLevelStatement(node *tree_sitter.Node) bool {
	parent := node.Parent()
	if parent == nil || parent.Kind() != "module" {
		return false
	}
	if !node.IsNamed() {
		return false
	}
	return !definitionKinds[node.Kind()]
}

// topLevelBlocks partitions the statements directly under the module node
// into contiguous runs, computed once up front and not recursively.
func (b *Builder) topLevelBlocks(module *tree_sitter.Node) [][]*tree_sitter.Node {
	var blocks [][]*tree_sitter.Node
	var current []*tree_sitter.Node

	for i := uint(0); i < module.ChildCount(); i++ {
		child := module.Child(i)
		if child == nil {
			continue
		}
		if isTopLevelStatement(child) {
			current = append(current, child)
			continue
		}
		if len(current) > 0 {
			blocks = append(blocks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

// blockName is the trimmed first source line of the run, used as the
// block's identifier name component.
func (b *Builder) blockName(run []*tree_sitter.Node) string {
	first := run[0]
	lineIndex := int(first.StartPosition().Row)
	if lineIndex >= 0 && lineIndex < len(b.lines) {
		return ident.Normalize(strings.TrimSpace(b.lines[lineIndex]))
	}

	snippet := b.snippet(first)
	firstLine, _, _ := strings.Cut(snippet, "\n")
	return ident.Normalize(strings.TrimSpace(firstLine))
}

func (b *Builder) createCodeBlock(run []*tree_sitter.Node) *graph.CodeBlock {
	first := run[0]
	last := run[len(run)-1]
	return &graph.CodeBlock{
		ID:        ident.New(graph.KindCodeBlock, b.blockName(run), b.path, first.StartByte()),
		FilePath:  b.path,
		LineStart: int(first.StartPosition().Row) + 1,
		LineEnd:   int(last.EndPosition().Row) + 1,
	}
}
