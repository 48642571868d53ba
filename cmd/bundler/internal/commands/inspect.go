package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/bundler/internal/config"
	"github.com/wolfeidau/bundler/internal/logger"
	"github.com/wolfeidau/bundler/internal/transform"
	"github.com/wolfeidau/bundler/internal/util"
)

type InspectCmd struct {
	ConfigFlags
	Imports    bool `help:"Print the resolved imports of every module"`
	Dependents bool `help:"Print the modules importing every module"`
	Rules      bool `help:"Print the module rules and their loader chains"`
}

func (i *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	p, err := i.pipeline(config.Overrides{})
	if err != nil {
		return err
	}
	cfg := p.Config()

	plan, err := p.Plan(log.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("inspect failed: %w", err)
	}

	if i.Rules {
		printRules(plan.Rules)
	}

	for _, c := range plan.Chunks {
		kind := "shared"
		if c.IsEntry {
			kind = "entry"
		}
		fmt.Fprintf(stdout, "%s (%s, %s, %s)\n", c.Name, kind, c.Type, util.HumanBytes(c.Size))
		if len(c.Imports) > 0 {
			fmt.Fprintf(stdout, "  imports %s\n", strings.Join(c.Imports, ", "))
		}

		for _, id := range c.Modules {
			m, _ := plan.Graph.Module(id)
			fmt.Fprintf(stdout, "  %s [%s]\n", util.RelPath(cfg.Context, id), strings.Join(m.Entries, ","))
			if i.Imports {
				for _, edge := range m.Imports {
					fmt.Fprintf(stdout, "    %s -> %s\n", edge.Specifier, util.RelPath(cfg.Context, edge.To))
				}
			}
			if i.Dependents {
				for _, from := range plan.Graph.Dependents(id) {
					fmt.Fprintf(stdout, "    <- %s\n", util.RelPath(cfg.Context, from))
				}
			}
		}
	}

	return nil
}

func printRules(rules []transform.Rule) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tTEST\tINCLUDE\tEXCLUDE\tUSE")
	for _, r := range rules {
		steps := make([]string, 0, len(r.Use))
		for _, step := range r.Use {
			steps = append(steps, step.Name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Test, r.Include, r.Exclude, strings.Join(steps, ","))
	}
	w.Flush()
	fmt.Fprintln(stdout)
}
