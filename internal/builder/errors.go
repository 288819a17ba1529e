package builder

import "fmt"

// MalformedTreeError reports a definition construct missing a required
// named field. Syntactically valid input never produces this; it signals a
// grammar mismatch, so it is propagated rather than swallowed.
type MalformedTreeError struct {
	Path      string
	Construct string
	StartByte uint
	EndByte   uint
}

func (e *MalformedTreeError) Error() string {
	return fmt.Sprintf("%s node missing name field at bytes %d-%d in %s",
		e.Construct, e.StartByte, e.EndByte, e.Path)
}
