package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/wolfeidau/bundler/internal/config"
	"github.com/wolfeidau/bundler/internal/resolver"
)

type ResolveCmd struct {
	ConfigFlags
	Specifier string `arg:"" help:"Import specifier to resolve"`
	From      string `help:"Directory the import is made from, defaults to the config context" type:"path"`
}

func (r *ResolveCmd) Run(ctx context.Context, globals *Globals) error {
	p, err := r.pipeline(config.Overrides{})
	if err != nil {
		return err
	}

	from := r.From
	if from == "" {
		from = p.Config().Context
	}
	from, err = filepath.Abs(from)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}

	res, err := p.Resolver()
	if err != nil {
		return err
	}

	id, err := res.Resolve(r.Specifier, from)
	if err != nil {
		var resErr *resolver.ResolutionError
		if errors.As(err, &resErr) {
			fmt.Fprintln(stdout, "tried:")
			for _, c := range resErr.Candidates {
				fmt.Fprintf(stdout, "  %s\n", c)
			}
		}
		return err
	}

	fmt.Fprintln(stdout, id)
	return nil
}
