// Package export serializes a code property graph to JSON, YAML, or
// Graphviz DOT. All sinks share one flattened row representation: nodes
// become kind-tagged maps, edges become src/dst/type maps with their extra
// attributes inlined. Output is deterministic for a given graph.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cpgscan/cpgscan/internal/graph"
)

// Sink consumes a finished graph. The store package implements the same
// contract for SQLite.
type Sink interface {
	Load(nodes map[graph.ID]graph.Node, edges []graph.Edge) error
}

// NodeRow flattens a node into a serializable map tagged with its kind.
func NodeRow(n graph.Node) map[string]any {
	row := map[string]any{
		"id":   string(n.NodeID()),
		"kind": n.Kind(),
	}

	switch node := n.(type) {
	case *graph.Module:
		row["name"] = node.Name
		row["file_path"] = node.FilePath
		row["line_start"] = node.LineStart
		row["line_end"] = node.LineEnd
		row["imports"] = append([]string{}, node.Imports...)
		row["exports"] = append([]string{}, node.Exports...)
		row["is_entry_point"] = node.IsEntryPoint
	case *graph.Class:
		row["name"] = node.Name
		row["file_path"] = node.FilePath
		row["line_start"] = node.LineStart
		row["line_end"] = node.LineEnd
	case *graph.Function:
		row["name"] = node.Name
		row["file_path"] = node.FilePath
		row["line_start"] = node.LineStart
		row["line_end"] = node.LineEnd
		row["token_count"] = node.TokenCount
	case *graph.Variable:
		row["name"] = node.Name
		row["file_path"] = node.FilePath
		row["line_start"] = node.LineStart
		row["line_end"] = node.LineEnd
		if node.TypeHint != "" {
			row["type_hint"] = node.TypeHint
		}
	case *graph.Call:
		row["caller_id"] = string(node.CallerID)
		row["callee_id"] = string(node.CalleeID)
		row["file_path"] = node.FilePath
		row["line_start"] = node.LineStart
		row["line_end"] = node.LineEnd
	case *graph.CodeBlock:
		row["file_path"] = node.FilePath
		row["line_start"] = node.LineStart
		row["line_end"] = node.LineEnd
	case *graph.Finding:
		row["tool"] = node.Tool
		row["severity"] = node.Severity
		row["description"] = node.Description
		row["file_path"] = node.FilePath
		row["line"] = node.Line
	default:
		start, end := n.Lines()
		row["file_path"] = n.File()
		row["line_start"] = start
		row["line_end"] = end
	}
	return row
}

// EdgeRow flattens an edge into a src/dst/type map with the variant's extra
// attributes inlined.
func EdgeRow(e graph.Edge) map[string]any {
	src, dst := e.Endpoints()
	row := map[string]any{
		"src":  string(src),
		"dst":  string(dst),
		"type": e.Type(),
	}

	switch edge := e.(type) {
	case graph.Contains:
		row["position"] = edge.Position
	case graph.DefinedBy:
		row["operation"] = string(edge.Operation)
	case graph.Calls:
		row["is_direct"] = edge.IsDirect
		row["call_depth"] = edge.CallDepth
	case graph.CalledBy:
		if edge.CallCount != nil {
			row["call_count"] = *edge.CallCount
		}
		row["is_entry_point_path"] = edge.IsEntryPointPath
	case graph.Reports:
		if edge.Reasoning != "" {
			row["reasoning"] = edge.Reasoning
		}
	}
	return row
}

// Rows flattens a whole graph. Node rows come out sorted by ID; edge rows
// preserve their input order.
func Rows(nodes map[graph.ID]graph.Node, edges []graph.Edge) (nodeRows, edgeRows []map[string]any) {
	nodeRows = make([]map[string]any, 0, len(nodes))
	for _, id := range sortedIDs(nodes) {
		nodeRows = append(nodeRows, NodeRow(nodes[id]))
	}
	edgeRows = make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		edgeRows = append(edgeRows, EdgeRow(e))
	}
	return nodeRows, edgeRows
}

func sortedIDs(nodes map[graph.ID]graph.Node) []graph.ID {
	ids := make([]graph.ID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// writeFile creates the parent directory if needed and writes data.
func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
