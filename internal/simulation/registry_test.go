package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_catalog/internal/domain"
)

func TestBuiltinTraces(t *testing.T) {
	r, err := Builtin()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	steps := r.Trace("ecom-01")
	require.Len(t, steps, 5)
	assert.Equal(t, "Event Triggered", steps[0].Title)
	assert.Equal(t, "2025-10-06T10:01:05Z", steps[0].Timestamp)
	assert.Equal(t, "webhook:intercom", steps[0].Payload["source"])
	assert.Equal(t, 3, steps[4].Payload["partition"])

	assert.Len(t, r.Trace("saas-02"), 6)
}

func TestTraceUnknownAgentIsEmpty(t *testing.T) {
	r := NewRegistry()
	steps := r.Trace("nope")
	assert.NotNil(t, steps)
	assert.Empty(t, steps)
}

func TestMergeReplacesPerAgent(t *testing.T) {
	r, err := Builtin()
	require.NoError(t, err)
	r.Merge(map[string][]domain.TraceStep{
		"ecom-01": {{Title: "Only step"}},
		"new-01":  {{Title: "Fresh"}},
	})
	assert.Len(t, r.Trace("ecom-01"), 1)
	assert.Equal(t, "Fresh", r.Trace("new-01")[0].Title)
	assert.Equal(t, 3, r.Len())
}
