package commands

import (
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/wolfeidau/bundler/internal/bundler"
	"github.com/wolfeidau/bundler/internal/config"
)

type Globals struct {
	Debug   bool
	Version string
}

// stdout receives command output, tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// ConfigFlags locate the configuration shared by every command.
type ConfigFlags struct {
	Config string `help:"YAML/JSON config file path" default:"bundler.yaml" env:"BUNDLER_CONFIG" type:"path"`
	Mode   string `help:"Build mode: production or development" env:"BUNDLER_MODE"`
}

func (c ConfigFlags) pipeline(overrides config.Overrides) (*bundler.Pipeline, error) {
	if c.Mode != "" {
		overrides.Mode = c.Mode
	}

	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, c.Config, overrides)
	if err != nil {
		return nil, err
	}

	return bundler.New(fs, cfg), nil
}
