package parser

import (
	"sync"
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

func TestParse(t *testing.T) {
	source := []byte(`def greet(name):
    return name

class MyClass:
    def method(self):
        pass
`)
	tree, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		t.Fatal("root node is nil")
	}
	if root.Kind() != "module" {
		t.Errorf("root kind = %s, want module", root.Kind())
	}

	var funcCount, classCount int
	Walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "function_definition":
			funcCount++
		case "class_definition":
			classCount++
		}
		return true
	})
	if funcCount != 2 {
		t.Errorf("expected 2 function_definitions, got %d", funcCount)
	}
	if classCount != 1 {
		t.Errorf("expected 1 class_definition, got %d", classCount)
	}
}

func TestWalk_SkipSubtree(t *testing.T) {
	source := []byte(`def outer():
    def inner():
        pass
`)
	tree, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer tree.Close()

	var seen int
	Walk(tree.RootNode(), func(n *tree_sitter.Node) bool {
		if n.Kind() == "function_definition" {
			seen++
			return false
		}
		return true
	})
	if seen != 1 {
		t.Errorf("expected the walk to stop at the outer function, saw %d", seen)
	}
}

func TestNodeText(t *testing.T) {
	source := []byte("def greet(name):\n    return name\n")
	tree, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer tree.Close()

	Walk(tree.RootNode(), func(n *tree_sitter.Node) bool {
		if n.Kind() == "function_definition" {
			nameNode := n.ChildByFieldName("name")
			if nameNode == nil {
				t.Error("function has no name node")
				return false
			}
			if name := NodeText(nameNode, source); name != "greet" {
				t.Errorf("expected greet, got %s", name)
			}
			return false
		}
		return true
	})
}

func TestParse_Concurrent(t *testing.T) {
	source := []byte("def f():\n    pass\n")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tree, err := Parse(source)
			if err != nil {
				t.Errorf("Parse: %v", err)
				return
			}
			tree.Close()
		}()
	}
	wg.Wait()
}
