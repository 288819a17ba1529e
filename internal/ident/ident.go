// Package ident constructs deterministic node identifiers.
//
// An identifier is a pure function of (kind, name, file path, start byte):
// parsing the same bytes at the same path always yields the same IDs, and
// distinct source locations yield distinct IDs even for identical names,
// which is what disambiguates shadowing and redefinition.
package ident

import (
	"fmt"
	"strings"

	"github.com/cpgscan/cpgscan/internal/graph"
)

// Normalize collapses runs of whitespace to single spaces so multi-token
// snippets (a full call expression used as a synthetic name) hash
// consistently regardless of source formatting.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// New builds a node identifier from its four-tuple. Never fails.
func New(kind, name, path string, startByte uint) graph.ID {
	return graph.ID(fmt.Sprintf("%s:%s@%s:%d", strings.ToLower(kind), Normalize(name), path, startByte))
}

// HasKind reports whether id was built for the given kind.
func HasKind(id graph.ID, kind string) bool {
	return strings.HasPrefix(string(id), kind+":")
}
