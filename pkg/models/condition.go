package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorInList      Operator = "in_list"
	OperatorIsEmpty     Operator = "is_empty"
	OperatorIsNotEmpty  Operator = "is_not_empty"
)

// Condition compares one dotted-path field of a payload against a configured
// value. Evaluation never errors: type mismatches and missing fields resolve
// to false, except is_empty which treats a missing field as empty.
type Condition struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required,oneof=equals not_equals contains not_contains greater_than less_than in_list is_empty is_not_empty"`
	Value    string   `json:"value"`
}

// Evaluate applies the condition to a payload.
func (c *Condition) Evaluate(payload map[string]any) bool {
	value, found := ResolvePath(payload, c.Field)

	switch c.Operator {
	case OperatorIsEmpty:
		return !found || isEmptyValue(value)
	case OperatorIsNotEmpty:
		return found && !isEmptyValue(value)
	}

	if !found {
		return false
	}

	switch c.Operator {
	case OperatorEquals:
		return looseEquals(value, c.Value)
	case OperatorNotEquals:
		return !looseEquals(value, c.Value)
	case OperatorContains:
		return strings.Contains(Stringify(value), c.Value)
	case OperatorNotContains:
		return !strings.Contains(Stringify(value), c.Value)
	case OperatorGreaterThan:
		left, right, ok := numericPair(value, c.Value)

		return ok && left > right
	case OperatorLessThan:
		left, right, ok := numericPair(value, c.Value)

		return ok && left < right
	case OperatorInList:
		for _, item := range strings.Split(c.Value, ",") {
			if looseEquals(value, strings.TrimSpace(item)) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// EvaluateAll is the AND combination used by trigger gating: every condition
// must hold. An empty list matches unconditionally.
func EvaluateAll(conditions []*Condition, payload map[string]any) bool {
	for _, condition := range conditions {
		if !condition.Evaluate(payload) {
			return false
		}
	}

	return true
}

// ResolvePath walks a dotted path ("lead.status") through nested maps. The
// second return reports whether the full path resolved.
func ResolvePath(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = payload

	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Stringify renders a scalar value the way interpolation and comparisons
// need it: decimal numbers, RFC-3339 times, true/false booleans. Maps and
// slices are not representable and render empty.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// looseEquals compares numerically when both sides parse as numbers, and as
// strings otherwise.
func looseEquals(value any, expected string) bool {
	if left, right, ok := numericPair(value, expected); ok {
		return left == right
	}

	return Stringify(value) == expected
}

func numericPair(value any, expected string) (float64, float64, bool) {
	left, ok := asNumber(value)
	if !ok {
		return 0, 0, false
	}

	right, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if err != nil {
		return 0, 0, false
	}

	return left, right, true
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return n, err == nil
	default:
		return 0, false
	}
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}
