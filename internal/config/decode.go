package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// AliasSpec maps an import prefix to a directory.
type AliasSpec struct {
	Prefix string `yaml:"prefix" json:"prefix"`
	Target string `yaml:"target" json:"target"`
}

// AliasList keeps aliases in declaration order. It decodes from a mapping,
// whose key order is significant, or from a list of prefix/target pairs.
type AliasList []AliasSpec

func (l *AliasList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(AliasList, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var target string
			if err := node.Content[i+1].Decode(&target); err != nil {
				return fmt.Errorf("alias %q: %w", node.Content[i].Value, err)
			}
			out = append(out, AliasSpec{Prefix: node.Content[i].Value, Target: target})
		}
		*l = out
	case yaml.SequenceNode:
		var specs []AliasSpec
		if err := node.Decode(&specs); err != nil {
			return err
		}
		*l = specs
	default:
		return fmt.Errorf("line %d: alias must be a mapping or a list", node.Line)
	}
	return nil
}

// UseSpec names a loader and its options.
type UseSpec struct {
	Loader  string         `yaml:"loader" json:"loader"`
	Options map[string]any `yaml:"options" json:"options"`
}

// UseList is a rule's loader chain. Items are loader names or
// {loader, options} mappings and a single item may stand alone.
type UseList []UseSpec

func (l *UseList) UnmarshalYAML(node *yaml.Node) error {
	items := []*yaml.Node{node}
	if node.Kind == yaml.SequenceNode {
		items = node.Content
	}

	out := make(UseList, 0, len(items))
	for _, item := range items {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, UseSpec{Loader: item.Value})
		case yaml.MappingNode:
			var spec UseSpec
			if err := item.Decode(&spec); err != nil {
				return err
			}
			out = append(out, spec)
		default:
			return fmt.Errorf("line %d: use entries must be loader names or mappings", item.Line)
		}
	}

	*l = out
	return nil
}

// PluginSpec is one entry of the plugins list, written either as a bare
// name or as a single key mapping from name to options.
type PluginSpec struct {
	Name    string
	Options map[string]any
}

func (p *PluginSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		p.Name = node.Value
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: a plugin entry must have exactly one key", node.Line)
		}
		p.Name = node.Content[0].Value
		return node.Content[1].Decode(&p.Options)
	default:
		return fmt.Errorf("line %d: plugin entries must be names or mappings", node.Line)
	}
}
