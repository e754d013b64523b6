package ingest

import (
	"maps"
	"sort"

	"github.com/c360/devstream/normalize"
	"github.com/c360/devstream/tracer"
)

// ListenerSpec is the desired state of one event listener
type ListenerSpec struct {
	Name  string
	Port  int
	Tags  map[string]string
	Trace tracer.Config

	// DefaultCategories classify parsed events when their keys match
	DefaultCategories map[string]normalize.EventDefinition
}

// Equal reports whether two specs describe the same listener state. Any
// difference requires a restart of the running listener.
func (s ListenerSpec) Equal(other ListenerSpec) bool {
	return s.Name == other.Name &&
		s.Port == other.Port &&
		s.Trace == other.Trace &&
		maps.Equal(s.Tags, other.Tags) &&
		equalDefinitions(s.DefaultCategories, other.DefaultCategories)
}

func equalDefinitions(a, b map[string]normalize.EventDefinition) bool {
	if len(a) != len(b) {
		return false
	}
	for name, defA := range a {
		defB, ok := b[name]
		if !ok || defA.Category != defB.Category {
			return false
		}
		if !equalStrings(defA.Keys, defB.Keys) {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}

// Plan lists the actions needed to move running listeners to the desired
// state. Names are sorted so plans are deterministic.
type Plan struct {
	ToStart   []ListenerSpec
	ToStop    []string
	ToRestart []ListenerSpec
}

// Empty reports whether the plan requires no action
func (p Plan) Empty() bool {
	return len(p.ToStart) == 0 && len(p.ToStop) == 0 && len(p.ToRestart) == 0
}

// Reconcile computes the transition from current to desired listener state.
// It is a pure function: reconciling a state against itself yields an empty
// plan, so repeated application is idempotent.
func Reconcile(desired, current map[string]ListenerSpec) Plan {
	var plan Plan

	for name, want := range desired {
		have, running := current[name]
		switch {
		case !running:
			plan.ToStart = append(plan.ToStart, want)
		case !want.Equal(have):
			plan.ToRestart = append(plan.ToRestart, want)
		}
	}

	for name := range current {
		if _, wanted := desired[name]; !wanted {
			plan.ToStop = append(plan.ToStop, name)
		}
	}

	sort.Slice(plan.ToStart, func(i, j int) bool { return plan.ToStart[i].Name < plan.ToStart[j].Name })
	sort.Slice(plan.ToRestart, func(i, j int) bool { return plan.ToRestart[i].Name < plan.ToRestart[j].Name })
	sort.Strings(plan.ToStop)

	return plan
}
