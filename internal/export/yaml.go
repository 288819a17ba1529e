package export

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cpgscan/cpgscan/internal/graph"
)

// YAMLSink writes the graph as a YAML document mirroring the JSON schema:
// a "nodes" sequence followed by an "edges" sequence.
type YAMLSink struct {
	Path   string
	Indent int
}

// NewYAML returns a YAML sink writing to path with two-space indentation.
func NewYAML(path string) *YAMLSink {
	return &YAMLSink{Path: path, Indent: 2}
}

// Load implements Sink.
func (s *YAMLSink) Load(nodes map[graph.ID]graph.Node, edges []graph.Edge) error {
	nodeRows, edgeRows := Rows(nodes, edges)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if s.Indent > 0 {
		enc.SetIndent(s.Indent)
	}
	if err := enc.Encode(document{Nodes: nodeRows, Edges: edgeRows}); err != nil {
		return fmt.Errorf("encode graph YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish graph YAML: %w", err)
	}
	return writeFile(s.Path, buf.Bytes())
}
