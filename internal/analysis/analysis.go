// Package analysis attaches static-analyzer findings to a built graph.
// Analyzer invocation and report parsing live outside this module; the
// input here is already a plain stream of issues.
package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/ident"
)

// Issue is one analyzer result, located by file path and 1-based line.
// File paths must match the graph's (root-relative for directory builds).
type Issue struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Tool        string `json:"tool"`
}

// ReadIssues decodes a JSON array of issues.
func ReadIssues(r io.Reader) ([]Issue, error) {
	var issues []Issue
	if err := json.NewDecoder(r).Decode(&issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	return issues, nil
}

// attachable reports whether a node can anchor a finding.
func attachable(kind string) bool {
	switch kind {
	case graph.KindFunction, graph.KindClass, graph.KindCodeBlock, graph.KindModule:
		return true
	}
	return false
}

// Enrich adds one Finding node per locatable issue and returns the edges
// linking findings to code. Each finding attaches to the innermost
// function, class, or code block whose line range covers the issue's line;
// the file's module is the fallback anchor. High and critical severities
// additionally get a vulnerability-suggestion edge. Issues with no anchor
// in the graph are logged and dropped.
func Enrich(nodes map[graph.ID]graph.Node, issues []Issue, logger *slog.Logger) []graph.Edge {
	if logger == nil {
		logger = slog.Default()
	}

	var edges []graph.Edge
	for _, issue := range issues {
		target := anchorFor(nodes, issue)
		if target == "" {
			logger.Warn("no graph node covers finding",
				"tool", issue.Tool, "file", issue.File, "line", issue.Line)
			continue
		}

		finding := &graph.Finding{
			ID:          findingID(issue),
			Tool:        issue.Tool,
			Severity:    issue.Severity,
			Description: issue.Description,
			FilePath:    issue.File,
			Line:        issue.Line,
		}
		if _, exists := nodes[finding.ID]; exists {
			continue
		}
		nodes[finding.ID] = finding

		edges = append(edges, graph.Reports{
			Src:       finding.ID,
			Dst:       target,
			Reasoning: issue.Description,
		})
		if isHighSeverity(issue.Severity) {
			edges = append(edges, graph.SuggestsVulnerability{Src: finding.ID, Dst: target})
		}
	}
	return edges
}

// anchorFor picks the covering node with the smallest line span, ties
// broken by ID for determinism. Modules only win when nothing narrower
// covers the line.
func anchorFor(nodes map[graph.ID]graph.Node, issue Issue) graph.ID {
	var (
		bestID   graph.ID
		bestSpan int
		bestMod  graph.ID
	)
	for id, n := range nodes {
		if !attachable(n.Kind()) || n.File() != issue.File {
			continue
		}
		start, end := n.Lines()
		if issue.Line < start || issue.Line > end {
			continue
		}
		if n.Kind() == graph.KindModule {
			if bestMod == "" || id < bestMod {
				bestMod = id
			}
			continue
		}
		span := end - start
		if bestID == "" || span < bestSpan || (span == bestSpan && id < bestID) {
			bestID, bestSpan = id, span
		}
	}
	if bestID != "" {
		return bestID
	}
	return bestMod
}

func findingID(issue Issue) graph.ID {
	name := fmt.Sprintf("%s: %s", issue.Tool, issue.Description)
	return ident.New(graph.KindFinding, name, issue.File, uint(issue.Line))
}

func isHighSeverity(severity string) bool {
	switch strings.ToUpper(severity) {
	case "HIGH", "CRITICAL":
		return true
	}
	return false
}
