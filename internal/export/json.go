package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cpgscan/cpgscan/internal/graph"
)

// JSONSink writes the graph as one JSON object with "nodes" and "edges"
// arrays.
type JSONSink struct {
	Path   string
	Indent int
}

// NewJSON returns a JSON sink writing to path with two-space indentation.
func NewJSON(path string) *JSONSink {
	return &JSONSink{Path: path, Indent: 2}
}

type document struct {
	Nodes []map[string]any `json:"nodes" yaml:"nodes"`
	Edges []map[string]any `json:"edges" yaml:"edges"`
}

// Load implements Sink.
func (s *JSONSink) Load(nodes map[graph.ID]graph.Node, edges []graph.Edge) error {
	nodeRows, edgeRows := Rows(nodes, edges)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if s.Indent > 0 {
		enc.SetIndent("", fmt.Sprintf("%*s", s.Indent, ""))
	}
	if err := enc.Encode(document{Nodes: nodeRows, Edges: edgeRows}); err != nil {
		return fmt.Errorf("encode graph JSON: %w", err)
	}
	return writeFile(s.Path, buf.Bytes())
}
