package normalize

import (
	"slices"
	"strings"
)

// EventDefinition classifies an event when all listed keys are present
type EventDefinition struct {
	Category string   `json:"category" yaml:"category"`
	Keys     []string `json:"keys" yaml:"keys"`
}

// AddKeysByTagOptions controls tagging and classification of parsed events
type AddKeysByTagOptions struct {
	// Tags are copied verbatim onto every event
	Tags map[string]string

	// Definitions are known event types used for classification
	Definitions map[string]EventDefinition

	// ClassifyByKeys enables matching Definitions against parsed keys
	ClassifyByKeys bool
}

// EventOptions directs normalization of one raw event record
type EventOptions struct {
	RenameKeysByPattern map[string]string
	AddKeysByTag        *AddKeysByTagOptions
}

// CategoryKey holds the classification result on the normalized event
const CategoryKey = "telemetryEventCategory"

// defaultCategory is used when no definition matches
const defaultCategory = "event"

// Event parses raw event text into a structured record and applies
// renaming and tag classification.
//
// Events arrive as comma-separated key="value" pairs; values are quoted and
// may contain commas and bare newlines. Text with no recognizable pairs is
// wrapped under a "data" key.
func Event(raw string, opts EventOptions) (map[string]any, error) {
	parsed := parsePairs(raw)
	if len(parsed) == 0 {
		parsed = map[string]any{"data": raw}
	}

	if len(opts.RenameKeysByPattern) > 0 {
		renamed, err := renameKeysByPattern(parsed, opts.RenameKeysByPattern)
		if err != nil {
			return nil, err
		}
		parsed = renamed.(map[string]any)
	}

	if opts.AddKeysByTag != nil {
		for key, val := range opts.AddKeysByTag.Tags {
			parsed[key] = val
		}
		if opts.AddKeysByTag.ClassifyByKeys {
			parsed[CategoryKey] = classify(parsed, opts.AddKeysByTag.Definitions)
		}
	}

	return parsed, nil
}

// classify returns the category of the first definition, in definition name
// order, whose keys are all present on the event
func classify(event map[string]any, definitions map[string]EventDefinition) string {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		def := definitions[name]
		if len(def.Keys) == 0 {
			continue
		}
		matched := true
		for _, key := range def.Keys {
			if _, ok := event[key]; !ok {
				matched = false
				break
			}
		}
		if matched {
			return def.Category
		}
	}
	return defaultCategory
}

// parsePairs extracts key="value" pairs from raw event text. A quoted value
// runs to the closing quote, so embedded commas and newlines survive.
func parsePairs(raw string) map[string]any {
	result := make(map[string]any)
	rest := raw

	for {
		eq := strings.Index(rest, "=\"")
		if eq <= 0 {
			break
		}

		key := rest[:eq]
		// Key starts after the previous pair's separator
		if comma := strings.LastIndex(key, ","); comma >= 0 {
			key = key[comma+1:]
		}
		key = strings.TrimSpace(key)

		valueStart := eq + 2
		end := strings.Index(rest[valueStart:], "\"")
		if end < 0 {
			break
		}

		if key != "" {
			result[key] = rest[valueStart : valueStart+end]
		}
		rest = rest[valueStart+end+1:]
	}

	return result
}
