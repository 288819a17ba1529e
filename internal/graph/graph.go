package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// CollisionError reports two builds producing the same ID with differing
// node payloads. This is always fatal: it signals a bug in the identifier
// scheme or a duplicated (e.g. symlinked) file, never expected duplication.
type CollisionError struct {
	ID   ID
	File string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("node id collision with conflicting payloads: %s (file %s)", e.ID, e.File)
}

// MissingEndpointError reports edges whose endpoints are absent from the
// node set after all linking has run.
type MissingEndpointError struct {
	EdgeType string
	Missing  ID
}

func (e *MissingEndpointError) Error() string {
	return fmt.Sprintf("edge %s references unknown node %s", e.EdgeType, e.Missing)
}

// Fingerprint hashes a node's observable content. Two nodes with equal
// fingerprints are treated as the same payload during merge collision
// checks.
func Fingerprint(n Node) uint64 {
	var b strings.Builder
	b.WriteString(n.Kind())
	b.WriteByte(0)
	b.WriteString(string(n.NodeID()))
	b.WriteByte(0)
	b.WriteString(n.File())
	start, end := n.Lines()
	fmt.Fprintf(&b, "\x00%d\x00%d\x00", start, end)

	switch v := n.(type) {
	case *Module:
		fmt.Fprintf(&b, "%s\x00%v\x00%s\x00%s", v.Name, v.IsEntryPoint,
			strings.Join(v.Imports, ","), strings.Join(v.Exports, ","))
	case *Class:
		b.WriteString(v.Name)
	case *Function:
		fmt.Fprintf(&b, "%s\x00%d", v.Name, v.TokenCount)
	case *Variable:
		fmt.Fprintf(&b, "%s\x00%s", v.Name, v.TypeHint)
	case *Call:
		fmt.Fprintf(&b, "%s\x00%s", v.CallerID, v.CalleeID)
	case *Finding:
		fmt.Fprintf(&b, "%s\x00%s\x00%s", v.Tool, v.Severity, v.Description)
	}
	return xxh3.HashString(b.String())
}

// Merge unions src into dst, failing on any ID present in both with a
// different payload. Nodes with identical fingerprints merge silently.
func Merge(dst, src map[ID]Node) error {
	for id, n := range src {
		if prev, ok := dst[id]; ok {
			if Fingerprint(prev) != Fingerprint(n) {
				return &CollisionError{ID: id, File: n.File()}
			}
			continue
		}
		dst[id] = n
	}
	return nil
}

// Validate checks that every node's line range is ordered and that every
// edge endpoint resolves to a node in the same snapshot. It returns all
// violations, sorted for deterministic output.
func Validate(nodes map[ID]Node, edges []Edge) error {
	var errs []error

	ids := make([]ID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		start, end := nodes[id].Lines()
		if end < start {
			errs = append(errs, fmt.Errorf("node %s: line range %d-%d inverted", id, start, end))
		}
	}

	var missing []*MissingEndpointError
	for _, e := range edges {
		src, dst := e.Endpoints()
		if _, ok := nodes[src]; !ok {
			missing = append(missing, &MissingEndpointError{EdgeType: e.Type(), Missing: src})
		}
		if _, ok := nodes[dst]; !ok {
			missing = append(missing, &MissingEndpointError{EdgeType: e.Type(), Missing: dst})
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Missing < missing[j].Missing })
	for _, m := range missing {
		errs = append(errs, m)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("graph validation: %w", errors.Join(errs...))
}
