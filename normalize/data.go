// Package normalize reshapes raw device responses and raw event text into
// the canonical record shape delivered to output destinations.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/c360/devstream/errors"
)

// ArrayToMapOptions converts an array of objects into a map keyed by one
// of the object fields
type ArrayToMapOptions struct {
	// KeyName is the field whose value becomes the map key
	KeyName string `json:"keyName" yaml:"keyName"`

	// KeepKey retains the key field inside each mapped object
	KeepKey bool `json:"keepKey,omitempty" yaml:"keepKey,omitempty"`
}

// DataOptions directs data normalization for one collected property
type DataOptions struct {
	// Key is the in-document lookup path ('/'-separated) applied first
	Key string

	// FilterByKeys keeps only map keys containing one of these substrings
	FilterByKeys []string

	// RenameKeysByPattern renames map keys matching a regexp pattern
	RenameKeysByPattern map[string]string

	// ConvertArrayToMap turns an array of objects into a keyed map
	ConvertArrayToMap *ArrayToMapOptions

	// RunCustomFunction names a registered post-processing function
	RunCustomFunction string
}

// CustomFunc is a registered data post-processing function
type CustomFunc func(any) (any, error)

var (
	customMu    sync.RWMutex
	customFuncs = map[string]CustomFunc{}
)

// RegisterFunction registers a named custom function for RunCustomFunction
func RegisterFunction(name string, fn CustomFunc) {
	customMu.Lock()
	defer customMu.Unlock()
	customFuncs[name] = fn
}

func lookupFunction(name string) (CustomFunc, bool) {
	customMu.RLock()
	defer customMu.RUnlock()
	fn, ok := customFuncs[name]
	return fn, ok
}

// Data applies the configured normalization pipeline to a raw value
func Data(raw any, opts DataOptions) (any, error) {
	value := raw

	if opts.Key != "" {
		found, err := Lookup(value, opts.Key)
		if err != nil {
			return nil, err
		}
		value = found
	}

	if opts.ConvertArrayToMap != nil {
		converted, err := convertArrayToMap(value, *opts.ConvertArrayToMap)
		if err != nil {
			return nil, err
		}
		value = converted
	}

	if len(opts.FilterByKeys) > 0 {
		value = filterByKeys(value, opts.FilterByKeys)
	}

	if len(opts.RenameKeysByPattern) > 0 {
		renamed, err := renameKeysByPattern(value, opts.RenameKeysByPattern)
		if err != nil {
			return nil, err
		}
		value = renamed
	}

	if opts.RunCustomFunction != "" {
		fn, ok := lookupFunction(opts.RunCustomFunction)
		if !ok {
			return nil, errors.WrapConfig(
				fmt.Errorf("unknown custom function %q", opts.RunCustomFunction),
				"normalize", "Data", "custom function lookup")
		}
		result, err := fn(value)
		if err != nil {
			return nil, errors.Wrap(err, "normalize", "Data",
				fmt.Sprintf("custom function %q", opts.RunCustomFunction))
		}
		value = result
	}

	return value, nil
}

// Lookup descends a '/'-separated path into nested maps and arrays
func Lookup(value any, path string) (any, error) {
	current := value
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, fmt.Errorf("path segment %q not found", segment)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("invalid array index %q", segment)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %T at segment %q", current, segment)
		}
	}
	return current, nil
}

// convertArrayToMap keys an array of objects by one of their fields
func convertArrayToMap(value any, opts ArrayToMapOptions) (any, error) {
	items, ok := value.([]any)
	if !ok {
		// Not an array: nothing to convert
		return value, nil
	}
	if opts.KeyName == "" {
		return nil, errors.WrapConfig(
			fmt.Errorf("convertArrayToMap requires keyName"),
			"normalize", "convertArrayToMap", "options validation")
	}

	result := make(map[string]any, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key, ok := item[opts.KeyName].(string)
		if !ok {
			continue
		}
		if !opts.KeepKey {
			copied := make(map[string]any, len(item)-1)
			for k, v := range item {
				if k != opts.KeyName {
					copied[k] = v
				}
			}
			item = copied
		}
		result[key] = item
	}
	return result, nil
}

// filterByKeys keeps only map entries whose key contains one of the filters
func filterByKeys(value any, filters []string) any {
	node, ok := value.(map[string]any)
	if !ok {
		return value
	}

	result := make(map[string]any)
	for key, val := range node {
		for _, filter := range filters {
			if strings.Contains(key, filter) {
				result[key] = val
				break
			}
		}
	}
	return result
}

// renameKeysByPattern renames map keys matching regexp patterns, recursing
// into nested maps
func renameKeysByPattern(value any, patterns map[string]string) (any, error) {
	node, ok := value.(map[string]any)
	if !ok {
		return value, nil
	}

	compiled := make(map[*regexp.Regexp]string, len(patterns))
	for pattern, replacement := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.WrapConfig(
				fmt.Errorf("invalid rename pattern %q: %w", pattern, err),
				"normalize", "renameKeysByPattern", "pattern compilation")
		}
		compiled[re] = replacement
	}

	return renameRecursive(node, compiled), nil
}

func renameRecursive(node map[string]any, patterns map[*regexp.Regexp]string) map[string]any {
	result := make(map[string]any, len(node))
	for key, val := range node {
		newKey := key
		for re, replacement := range patterns {
			if re.MatchString(key) {
				newKey = re.ReplaceAllString(key, replacement)
				break
			}
		}
		if child, ok := val.(map[string]any); ok {
			val = renameRecursive(child, patterns)
		}
		result[newKey] = val
	}
	return result
}
