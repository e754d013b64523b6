package resolver

import (
	"fmt"

	"github.com/c360/devstream/errors"
	"github.com/c360/devstream/pkg/version"
)

// Context holds resolved context entries available to predicates and
// key templates
type Context map[string]any

// predicateFunc evaluates one named predicate against the current context
type predicateFunc func(ec Context, arg any) (bool, error)

// predicates is the fixed registry of known predicate names
var predicates = map[string]predicateFunc{
	"deviceVersionGreaterOrEqual": deviceVersionGreaterOrEqual,
}

// evaluateBlock returns true only when every predicate in the block
// evaluates true. An unknown predicate name fails with a config error.
func evaluateBlock(block PredicateBlock, ec Context) (bool, error) {
	for name, arg := range block {
		fn, known := predicates[name]
		if !known {
			return false, errors.WrapConfig(
				fmt.Errorf("%w: %q", errors.ErrUnknownPredicate, name),
				"resolver", "evaluateBlock", "predicate lookup")
		}
		ok, err := fn(ec, arg)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// deviceVersionGreaterOrEqual compares context.deviceVersion against the
// argument version. The context entry must be present.
func deviceVersionGreaterOrEqual(ec Context, arg any) (bool, error) {
	target, ok := arg.(string)
	if !ok {
		return false, errors.WrapConfig(
			fmt.Errorf("deviceVersionGreaterOrEqual requires a version string, got %T", arg),
			"resolver", "deviceVersionGreaterOrEqual", "argument validation")
	}

	current, ok := ec["deviceVersion"].(string)
	if !ok || current == "" {
		return false, errors.WrapConfig(
			fmt.Errorf("deviceVersion missing from context"),
			"resolver", "deviceVersionGreaterOrEqual", "context lookup")
	}

	return version.GreaterOrEqual(current, target)
}
