package transform

import (
	"fmt"
	"slices"
)

// Direction is the order steps of one rule's chain execute in.
type Direction int

const (
	// RightToLeft runs the last declared step first, so a chain declared as
	// [style, css, sass] applies sass, then css, then style. This is the
	// webpack loader convention and the default.
	RightToLeft Direction = iota
	// LeftToRight runs steps in declaration order.
	LeftToRight
)

func (d Direction) String() string {
	if d == LeftToRight {
		return "left-to-right"
	}
	return "right-to-left"
}

// ParseDirection accepts "right-to-left" (or empty) and "left-to-right".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "right-to-left":
		return RightToLeft, nil
	case "left-to-right":
		return LeftToRight, nil
	default:
		return RightToLeft, fmt.Errorf("unknown chain direction %q", s)
	}
}

// Rule binds modules whose id matches Test to a transformer chain.
type Rule struct {
	Name string
	Test *Pattern
	// Include, when set, must also match.
	Include *Pattern
	// Exclude short-circuits the rule to nothing regardless of Test.
	Exclude *Pattern
	// Use is the chain in declaration order.
	Use []Step
	// Exclusive stops later rules from contributing once this one matched.
	Exclusive bool
}

func (r Rule) applies(id string) bool {
	if r.Exclude.Match(id) {
		return false
	}
	if r.Include != nil && !r.Include.Match(id) {
		return false
	}
	return r.Test == nil || r.Test.Match(id)
}

// Registry evaluates rules in declaration order.
type Registry struct {
	rules     []Rule
	direction Direction
}

// NewRegistry creates a registry composing chains in the given direction.
func NewRegistry(direction Direction, rules ...Rule) *Registry {
	return &Registry{rules: rules, direction: direction}
}

// Direction returns the chain composition direction.
func (r *Registry) Direction() Direction {
	return r.direction
}

// Rules returns the configured rules in declaration order.
func (r *Registry) Rules() []Rule {
	return slices.Clone(r.rules)
}

// RulesFor returns the steps for moduleID in execution order. Every matching
// rule contributes its chain, rules in declaration order; within a rule the
// chain is ordered according to the registry direction.
func (r *Registry) RulesFor(moduleID string) []Step {
	var steps []Step

	for _, rule := range r.rules {
		if !rule.applies(moduleID) {
			continue
		}

		chain := slices.Clone(rule.Use)
		if r.direction == RightToLeft {
			slices.Reverse(chain)
		}
		steps = append(steps, chain...)

		if rule.Exclusive {
			break
		}
	}

	return steps
}
