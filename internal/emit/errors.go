package emit

import (
	"errors"
	"fmt"
)

// ErrFileCollision indicates two outputs rendered to the same file name.
var ErrFileCollision = errors.New("output file name collision")

// IOError reports a failed write while publishing the build output.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// PluginError reports a plugin failing the build.
type PluginError struct {
	Plugin string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s failed: %v", e.Plugin, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}
