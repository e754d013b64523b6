package resolver

import (
	"bytes"
	"encoding/json"
)

// Collected is the resolved stat map for one cycle. Key order is
// declaration order, independent of resolution completion order.
type Collected struct {
	order  []string
	values map[string]any
}

// newCollected creates an empty result set
func newCollected() *Collected {
	return &Collected{values: make(map[string]any)}
}

// set appends a resolved value, preserving insertion order
func (c *Collected) set(key string, value any) {
	if _, exists := c.values[key]; !exists {
		c.order = append(c.order, key)
	}
	c.values[key] = value
}

// Get returns the value for a declared stat key
func (c *Collected) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns stat keys in declaration order
func (c *Collected) Keys() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of collected stats
func (c *Collected) Len() int {
	return len(c.order)
}

// MarshalJSON emits an object with keys in declaration order
func (c *Collected) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(c.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
