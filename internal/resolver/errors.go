package resolver

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates no candidate file exists for an import specifier
var ErrNotFound = errors.New("module not found")

// ResolutionError reports an unresolvable specifier together with every
// candidate path that was probed.
type ResolutionError struct {
	Specifier  string
	FromDir    string
	Candidates []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q from %s (tried %d candidates)", e.Specifier, e.FromDir, len(e.Candidates))
}

func (e *ResolutionError) Unwrap() error {
	return ErrNotFound
}
