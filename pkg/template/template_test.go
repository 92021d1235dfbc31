package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	context := map[string]any{
		"lead": map[string]any{
			"name":  "Acme",
			"email": "sales@acme.io",
			"score": float64(87.5),
		},
	}

	assert.Equal(t, "Hello Acme", Interpolate("Hello {{lead.name}}", context))
	assert.Equal(t, "Acme <sales@acme.io>", Interpolate("{{lead.name}} <{{lead.email}}>", context))
	assert.Equal(t, "score: 87.5", Interpolate("score: {{lead.score}}", context))
	assert.Equal(t, "no tokens here", Interpolate("no tokens here", context))
	assert.Equal(t, "spaced Acme", Interpolate("spaced {{ lead.name }}", context))
}

// Unresolved placeholders substitute the empty string. The literal token must
// never survive in the output, and interpolation must never panic — silently
// dropping unknown variables is the documented policy.
func TestInterpolate_UnresolvedIsEmpty(t *testing.T) {
	assert.Equal(t, "Hello ", Interpolate("Hello {{lead.name}}", map[string]any{}))
	assert.Equal(t, "Hello ", Interpolate("Hello {{lead.name}}", nil))
	assert.NotContains(t, Interpolate("Hi {{a.b.c}}!", map[string]any{}), "{{")
}

func TestInterpolate_ValueRendering(t *testing.T) {
	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	context := map[string]any{
		"deal": map[string]any{
			"value":   float64(120000),
			"won":     true,
			"close":   when,
			"details": map[string]any{"nested": "x"},
			"tags":    []any{"a", "b"},
		},
	}

	assert.Equal(t, "120000", Interpolate("{{deal.value}}", context))
	assert.Equal(t, "true", Interpolate("{{deal.won}}", context))
	assert.Equal(t, "2026-03-14T09:26:53Z", Interpolate("{{deal.close}}", context))

	// Objects and arrays are treated as unresolvable.
	assert.Equal(t, "", Interpolate("{{deal.details}}", context))
	assert.Equal(t, "", Interpolate("{{deal.tags}}", context))
}

func TestInterpolate_UnterminatedToken(t *testing.T) {
	context := map[string]any{"lead": map[string]any{"name": "Acme"}}

	assert.Equal(t, "Hello {{lead.name", Interpolate("Hello {{lead.name", context))
	assert.Equal(t, "Hello Acme {{", Interpolate("Hello {{lead.name}} {{", context))
}

func TestFields(t *testing.T) {
	context := map[string]any{"lead": map[string]any{"email": "jo@acme.io", "name": "Jo"}}
	data := map[string]any{
		"to":          "{{lead.email}}",
		"subject":     "Welcome {{lead.name}}",
		"delay_value": float64(5),
		"priority":    "high",
	}

	out := Fields(data, context)

	assert.Equal(t, "jo@acme.io", out["to"])
	assert.Equal(t, "Welcome Jo", out["subject"])
	// Non-text fields pass through untouched, placeholders or not.
	assert.Equal(t, float64(5), out["delay_value"])
	assert.Equal(t, "high", out["priority"])

	// The original bag is not mutated.
	assert.Equal(t, "{{lead.email}}", data["to"])
}

func TestFields_NilDataIsWritable(t *testing.T) {
	out := Fields(nil, map[string]any{"name": "Jo"})

	require.NotNil(t, out)
	assert.Empty(t, out)

	// Callers stamp entries into the result.
	out["id"] = "node-1"
	assert.Equal(t, "node-1", out["id"])
}

func TestNeedsInterpolation(t *testing.T) {
	assert.True(t, NeedsInterpolation("{{lead.name}}"))
	assert.False(t, NeedsInterpolation("plain"))
	assert.False(t, NeedsInterpolation("open {{ only"))
}
