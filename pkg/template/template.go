// Package template resolves {{path}} placeholders inside action parameters
// against the run's execution context.
package template

import (
	"strings"

	"github.com/meridiancrm/meridian/pkg/models"
)

// TextFields are the node data keys that carry interpolatable text. Anything
// else in a data bag (delay values, batch sizes, filters) is taken literally.
var TextFields = []string{"to", "subject", "body", "title", "message", "field", "value"}

// Interpolate substitutes every {{path}} token with the context value at the
// dotted path. Unresolvable paths substitute the empty string: a dropped
// variable is policy here, not an error. Values are rendered locale-free —
// decimal numbers, RFC-3339 times, true/false booleans; maps and slices are
// treated as unresolvable.
func Interpolate(input string, context map[string]any) string {
	var out strings.Builder

	remaining := input

	for {
		start := strings.Index(remaining, "{{")
		if start < 0 {
			out.WriteString(remaining)

			break
		}

		end := strings.Index(remaining[start:], "}}")
		if end < 0 {
			out.WriteString(remaining)

			break
		}

		out.WriteString(remaining[:start])

		path := strings.TrimSpace(remaining[start+2 : start+end])
		if value, found := models.ResolvePath(context, path); found {
			out.WriteString(scalarString(value))
		}

		remaining = remaining[start+end+2:]
	}

	return out.String()
}

// Fields returns a copy of a node data bag with every text-bearing string
// field interpolated. Applied immediately before the node executes. The
// result is always a fresh, writable map, even for a nil data bag.
func Fields(data map[string]any, context map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}

	for _, key := range TextFields {
		if raw, ok := out[key].(string); ok {
			out[key] = Interpolate(raw, context)
		}
	}

	return out
}

// NeedsInterpolation reports whether a string contains a placeholder.
func NeedsInterpolation(input string) bool {
	start := strings.Index(input, "{{")

	return start >= 0 && strings.Contains(input[start:], "}}")
}

func scalarString(value any) string {
	switch value.(type) {
	case map[string]any, []any:
		// Composite values are not representable in text; same policy as an
		// unresolvable path.
		return ""
	default:
		return models.Stringify(value)
	}
}
