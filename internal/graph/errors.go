package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout indicates the build exceeded its configured deadline.
var ErrTimeout = errors.New("build timed out")

// BuildError reports the module or specifier that failed the build together
// with the import chain that reached it, starting at the entry module.
type BuildError struct {
	Entry string
	Chain []string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed for entry %q at %s: %v", e.Entry, strings.Join(e.Chain, " -> "), e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// failure is what a worker reports for its module. Specifier is set when the
// failure is an unresolvable import rather than the module itself.
type failure struct {
	specifier string
	err       error
}

func (f *failure) Error() string {
	return f.err.Error()
}

func (f *failure) Unwrap() error {
	return f.err
}
