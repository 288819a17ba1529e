package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cpgscan/cpgscan/internal/graph"
)

// DOTSink writes the graph as Graphviz DOT source. Node labels carry enough
// detail to trace each box back to its source location; edge endpoints with
// no node in the set get a stub box so the drawing stays connected.
type DOTSink struct {
	Path      string
	GraphName string
}

// NewDOT returns a DOT sink writing to path.
func NewDOT(path string) *DOTSink {
	return &DOTSink{Path: path, GraphName: "CPG"}
}

// Load implements Sink.
func (s *DOTSink) Load(nodes map[graph.ID]graph.Node, edges []graph.Edge) error {
	return writeFile(s.Path, []byte(s.render(nodes, edges)))
}

func (s *DOTSink) render(nodes map[graph.ID]graph.Node, edges []graph.Edge) string {
	ids := make(map[graph.ID]bool, len(nodes))
	for id := range nodes {
		ids[id] = true
	}
	for _, e := range edges {
		src, dst := e.Endpoints()
		ids[src] = true
		ids[dst] = true
	}
	all := make([]graph.ID, 0, len(ids))
	for id := range ids {
		all = append(all, id)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	sorted := make([]graph.Edge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool {
		return edgeSortKey(sorted[i]) < edgeSortKey(sorted[j])
	})

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotQuote(s.GraphName))
	b.WriteString("  graph [rankdir=LR];\n")
	b.WriteString("  node [shape=box, fontname=\"Courier\", fontsize=10];\n")
	b.WriteString("  edge [fontname=\"Courier\", fontsize=9];\n")

	b.WriteString("  // nodes\n")
	for _, id := range all {
		var label string
		if n, ok := nodes[id]; ok {
			label = nodeLabel(n)
		} else {
			label = fmt.Sprintf("kind: missing\nid: %s", id)
		}
		fmt.Fprintf(&b, "  %s [label=%s];\n", dotQuote(string(id)), dotQuote(label))
	}

	b.WriteString("  // edges\n")
	for _, e := range sorted {
		src, dst := e.Endpoints()
		fmt.Fprintf(&b, "  %s -> %s [label=%s];\n",
			dotQuote(string(src)), dotQuote(string(dst)), dotQuote(edgeLabel(e)))
	}

	b.WriteString("}\n")
	return b.String()
}

// nodeLabel renders the flattened row as "key: value" lines, with the
// identifying fields first and the rest in sorted key order.
func nodeLabel(n graph.Node) string {
	row := NodeRow(n)

	lines := []string{"kind: " + n.Kind()}
	if name, ok := row["name"].(string); ok && name != "" {
		lines = append(lines, "name: "+name)
	}
	lines = append(lines, "id: "+string(n.NodeID()))
	if file := n.File(); file != "" {
		lines = append(lines, "file: "+file)
	}
	start, end := n.Lines()
	if start == end {
		lines = append(lines, "line: "+strconv.Itoa(start))
	} else {
		lines = append(lines, fmt.Sprintf("lines: %d-%d", start, end))
	}

	shown := map[string]bool{
		"id": true, "kind": true, "name": true, "file_path": true,
		"line_start": true, "line_end": true, "line": true,
	}
	rest := make([]string, 0, len(row))
	for key := range row {
		if !shown[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		lines = append(lines, fmt.Sprintf("%s: %s", key, formatValue(row[key])))
	}
	return strings.Join(lines, "\n")
}

func edgeLabel(e graph.Edge) string {
	row := EdgeRow(e)

	lines := []string{"type: " + e.Type()}
	rest := make([]string, 0, len(row))
	for key := range row {
		if key != "src" && key != "dst" && key != "type" {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		lines = append(lines, fmt.Sprintf("%s: %s", key, formatValue(row[key])))
	}
	return strings.Join(lines, "\n")
}

func edgeSortKey(e graph.Edge) string {
	src, dst := e.Endpoints()
	return string(src) + "\x00" + string(dst) + "\x00" + e.Type() + "\x00" + edgeLabel(e)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case []string:
		return "[" + strings.Join(val, ", ") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// dotQuote escapes a value for DOT source. DOT accepts JSON-style quoted
// strings as long as quotes and newlines are escaped.
func dotQuote(value string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
