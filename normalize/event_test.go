package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventParsesPairs(t *testing.T) {
	raw := `EVENT_SOURCE="request_logging",HOSTNAME="device-1",HTTP_METHOD="GET"`

	event, err := Event(raw, EventOptions{})
	require.NoError(t, err)

	assert.Equal(t, "request_logging", event["EVENT_SOURCE"])
	assert.Equal(t, "device-1", event["HOSTNAME"])
	assert.Equal(t, "GET", event["HTTP_METHOD"])
}

func TestEventPreservesEmbeddedNewlines(t *testing.T) {
	raw := "EVENT_SOURCE=\"request_logging\",MSG=\"a\nb\""

	event, err := Event(raw, EventOptions{})
	require.NoError(t, err)

	assert.Equal(t, "a\nb", event["MSG"], "bare newlines inside quoted values survive")
}

func TestEventPreservesEmbeddedCommas(t *testing.T) {
	raw := `POLICY="one,two,three",ACTION="allow"`

	event, err := Event(raw, EventOptions{})
	require.NoError(t, err)

	assert.Equal(t, "one,two,three", event["POLICY"])
	assert.Equal(t, "allow", event["ACTION"])
}

func TestEventUnstructuredFallback(t *testing.T) {
	event, err := Event("plain syslog line with no pairs", EventOptions{})
	require.NoError(t, err)
	assert.Equal(t, "plain syslog line with no pairs", event["data"])
}

func TestEventRename(t *testing.T) {
	raw := `EVENT_SOURCE="asm",date_time="2026-01-01"`

	event, err := Event(raw, EventOptions{
		RenameKeysByPattern: map[string]string{"^date_time$": "timestamp"},
	})
	require.NoError(t, err)

	assert.Equal(t, "2026-01-01", event["timestamp"])
	assert.NotContains(t, event, "date_time")
}

func TestEventTagsAndClassification(t *testing.T) {
	raw := `EVENT_SOURCE="request_logging",HTTP_METHOD="GET"`

	event, err := Event(raw, EventOptions{
		AddKeysByTag: &AddKeysByTagOptions{
			Tags: map[string]string{"tenant": "Common"},
			Definitions: map[string]EventDefinition{
				"LTM": {Category: "LTM", Keys: []string{"EVENT_SOURCE", "HTTP_METHOD"}},
				"ASM": {Category: "ASM", Keys: []string{"policy_name"}},
			},
			ClassifyByKeys: true,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Common", event["tenant"])
	assert.Equal(t, "LTM", event[CategoryKey])
}

func TestEventClassificationOrderIsDeterministic(t *testing.T) {
	raw := `EVENT_SOURCE="request_logging"`
	opts := EventOptions{
		AddKeysByTag: &AddKeysByTagOptions{
			Definitions: map[string]EventDefinition{
				"zeta":  {Category: "Z", Keys: []string{"EVENT_SOURCE"}},
				"alpha": {Category: "A", Keys: []string{"EVENT_SOURCE"}},
				"mid":   {Category: "M", Keys: []string{"EVENT_SOURCE"}},
			},
			ClassifyByKeys: true,
		},
	}

	// Definitions are tried in name order, so a multi-match event always
	// lands on the same category
	for i := 0; i < 20; i++ {
		event, err := Event(raw, opts)
		require.NoError(t, err)
		assert.Equal(t, "A", event[CategoryKey])
	}
}

func TestEventDefaultCategory(t *testing.T) {
	event, err := Event(`KEY="value"`, EventOptions{
		AddKeysByTag: &AddKeysByTagOptions{
			Definitions:    map[string]EventDefinition{"ASM": {Category: "ASM", Keys: []string{"policy_name"}}},
			ClassifyByKeys: true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "event", event[CategoryKey])
}
