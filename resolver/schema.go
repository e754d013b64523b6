// Package resolver evaluates the declarative property schema against the
// device endpoint loader, producing the ordered stat map for one collection
// cycle. Evaluation runs in two phases: ordered context groups first, then
// all declared properties concurrently.
package resolver

import (
	"github.com/c360/devstream/normalize"
)

// PredicateBlock maps predicate names to their arguments. A block is
// satisfied only when every named predicate evaluates true (logical AND).
type PredicateBlock map[string]any

// Property is one node of the declarative schema: either a terminal
// descriptor (Key plus normalization directives) or a conditional
// (If/Then/Else), recursively nestable.
type Property struct {
	// Key identifies what to collect: "<endpoint>/<path/into/document>",
	// possibly templated against context values
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// Conditional selection; when If is set, Then/Else are walked
	// depth-first until a terminal property remains
	If   PredicateBlock `json:"if,omitempty" yaml:"if,omitempty"`
	Then *Property      `json:"then,omitempty" yaml:"then,omitempty"`
	Else *Property      `json:"else,omitempty" yaml:"else,omitempty"`

	// Normalization directives
	Normalize         *bool                        `json:"normalize,omitempty" yaml:"normalize,omitempty"`
	FilterKeys        []string                     `json:"filterKeys,omitempty" yaml:"filterKeys,omitempty"`
	RenameKeys        map[string]string            `json:"renameKeys,omitempty" yaml:"renameKeys,omitempty"`
	ConvertArrayToMap *normalize.ArrayToMapOptions `json:"convertArrayToMap,omitempty" yaml:"convertArrayToMap,omitempty"`
	RunFunction       string                       `json:"runFunction,omitempty" yaml:"runFunction,omitempty"`

	// Disabled suppresses collection of this property entirely
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// normalizeEnabled reports whether normalization applies (the default)
func (p *Property) normalizeEnabled() bool {
	return p.Normalize == nil || *p.Normalize
}

// deepCopy returns a copy sharing no mutable state with the schema, so
// resolution never aliases the shared declaration
func (p *Property) deepCopy() *Property {
	if p == nil {
		return nil
	}

	copied := &Property{
		Key:         p.Key,
		RunFunction: p.RunFunction,
		Disabled:    p.Disabled,
	}
	if p.Normalize != nil {
		v := *p.Normalize
		copied.Normalize = &v
	}
	if p.FilterKeys != nil {
		copied.FilterKeys = append([]string(nil), p.FilterKeys...)
	}
	if p.RenameKeys != nil {
		copied.RenameKeys = make(map[string]string, len(p.RenameKeys))
		for k, v := range p.RenameKeys {
			copied.RenameKeys[k] = v
		}
	}
	if p.ConvertArrayToMap != nil {
		v := *p.ConvertArrayToMap
		copied.ConvertArrayToMap = &v
	}
	if p.If != nil {
		copied.If = make(PredicateBlock, len(p.If))
		for k, v := range p.If {
			copied.If[k] = v
		}
	}
	copied.Then = p.Then.deepCopy()
	copied.Else = p.Else.deepCopy()
	return copied
}

// ContextGroup is one pass of the context phase. Groups evaluate strictly
// in declared order; entries within a group see only earlier groups'
// results.
type ContextGroup struct {
	Name    string               `json:"name,omitempty" yaml:"name,omitempty"`
	Entries map[string]*Property `json:"entries" yaml:"entries"`
}

// Declared is one named stat property; declaration order determines
// output order
type Declared struct {
	Name     string    `json:"name" yaml:"name"`
	Property *Property `json:"property" yaml:"property"`
}

// Schema is the full declarative description of one collection cycle
type Schema struct {
	Context    []ContextGroup `json:"context,omitempty" yaml:"context,omitempty"`
	Properties []Declared     `json:"properties" yaml:"properties"`
}
