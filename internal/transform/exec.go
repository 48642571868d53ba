package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecOptions configures a loader backed by an external command that reads
// the source on stdin and writes the result to stdout.
type ExecOptions struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Env     []string `mapstructure:"env"`
	// Type is the content type of the command output; empty keeps the input type.
	Type string `mapstructure:"type"`
}

type execLoader struct {
	opts ExecOptions
}

func newExecLoader(options map[string]any) (Transformer, error) {
	var opts ExecOptions
	if err := DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.Command == "" {
		return nil, errors.New("command is required")
	}
	switch opts.Type {
	case "", TypeJS, TypeCSS, TypeAsset:
	default:
		return nil, fmt.Errorf("unknown output type %q", opts.Type)
	}
	return &execLoader{opts: opts}, nil
}

// newSassLoader runs the dart-sass CLI, reading the stylesheet from stdin.
// Imports resolve relative to the module's directory.
func newSassLoader(options map[string]any) (Transformer, error) {
	opts := ExecOptions{
		Command: "sass",
		Args:    []string{"--stdin", "--no-source-map", "--load-path={dir}"},
		Type:    TypeCSS,
	}
	if err := DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return &execLoader{opts: opts}, nil
}

// NewExec returns a loader piping sources through an external command.
// The placeholders {id} and {dir} in arguments expand to the module id and
// its directory.
func NewExec(opts ExecOptions) Transformer {
	return &execLoader{opts: opts}
}

func (l *execLoader) Transform(ctx context.Context, src Source) (Result, error) {
	expand := strings.NewReplacer("{id}", src.ID, "{dir}", filepath.Dir(src.ID))
	args := make([]string, len(l.opts.Args))
	for i, a := range l.opts.Args {
		args[i] = expand.Replace(a)
	}

	// not bound to ctx: a started command runs to completion and the builder
	// discards its result if the build was cancelled meanwhile
	// #nosec G204 - the command comes from the build configuration
	cmd := exec.Command(l.opts.Command, args...)
	cmd.Stdin = bytes.NewReader(src.Code)
	cmd.Env = append(os.Environ(), l.opts.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return Result{}, fmt.Errorf("%s: %w", l.opts.Command, err)
		}
		return Result{}, fmt.Errorf("%s: %w: %s", l.opts.Command, err, msg)
	}

	return Result{Code: stdout.Bytes(), Type: l.opts.Type}, nil
}
