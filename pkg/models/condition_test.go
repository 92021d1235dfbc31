package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCondition_Equals(t *testing.T) {
	payload := map[string]any{
		"lead": map[string]any{
			"status": "qualified",
			"score":  float64(42),
		},
	}

	cond := &Condition{Field: "lead.status", Operator: OperatorEquals, Value: "qualified"}
	assert.True(t, cond.Evaluate(payload))

	cond = &Condition{Field: "lead.status", Operator: OperatorEquals, Value: "lost"}
	assert.False(t, cond.Evaluate(payload))

	// Numeric loose equality: "42" matches the number 42.
	cond = &Condition{Field: "lead.score", Operator: OperatorEquals, Value: "42"}
	assert.True(t, cond.Evaluate(payload))

	cond = &Condition{Field: "lead.score", Operator: OperatorEquals, Value: "42.0"}
	assert.True(t, cond.Evaluate(payload))
}

func TestCondition_MissingFieldIsFalse(t *testing.T) {
	empty := map[string]any{}

	for _, op := range []Operator{
		OperatorEquals, OperatorNotEquals, OperatorContains, OperatorNotContains,
		OperatorGreaterThan, OperatorLessThan, OperatorInList, OperatorIsNotEmpty,
	} {
		cond := &Condition{Field: "x", Operator: op, Value: "v"}
		assert.False(t, cond.Evaluate(empty), "operator %s should be false on a missing field", op)
	}
}

func TestCondition_IsEmptyOnMissingField(t *testing.T) {
	cond := &Condition{Field: "lead.email", Operator: OperatorIsEmpty}

	assert.True(t, cond.Evaluate(map[string]any{}))
	assert.True(t, cond.Evaluate(map[string]any{"lead": map[string]any{"email": ""}}))
	assert.True(t, cond.Evaluate(map[string]any{"lead": map[string]any{"email": nil}}))
	assert.True(t, cond.Evaluate(map[string]any{"lead": map[string]any{"email": []any{}}}))
	assert.False(t, cond.Evaluate(map[string]any{"lead": map[string]any{"email": "a@b.co"}}))
}

func TestCondition_Contains(t *testing.T) {
	payload := map[string]any{"deal": map[string]any{"title": "Acme renewal Q3"}}

	assert.True(t, (&Condition{Field: "deal.title", Operator: OperatorContains, Value: "renewal"}).Evaluate(payload))
	// Case sensitive.
	assert.False(t, (&Condition{Field: "deal.title", Operator: OperatorContains, Value: "RENEWAL"}).Evaluate(payload))
	assert.True(t, (&Condition{Field: "deal.title", Operator: OperatorNotContains, Value: "churn"}).Evaluate(payload))
}

func TestCondition_NumericComparison(t *testing.T) {
	payload := map[string]any{"deal": map[string]any{"value": float64(5000), "stage": "proposal"}}

	assert.True(t, (&Condition{Field: "deal.value", Operator: OperatorGreaterThan, Value: "1000"}).Evaluate(payload))
	assert.False(t, (&Condition{Field: "deal.value", Operator: OperatorLessThan, Value: "1000"}).Evaluate(payload))

	// Non-numeric operands make the condition false, not an error.
	assert.False(t, (&Condition{Field: "deal.stage", Operator: OperatorGreaterThan, Value: "10"}).Evaluate(payload))
	assert.False(t, (&Condition{Field: "deal.value", Operator: OperatorGreaterThan, Value: "lots"}).Evaluate(payload))
}

func TestCondition_InList(t *testing.T) {
	payload := map[string]any{"lead": map[string]any{"source": "webinar"}}

	cond := &Condition{Field: "lead.source", Operator: OperatorInList, Value: "ads, webinar, referral"}
	assert.True(t, cond.Evaluate(payload))

	cond = &Condition{Field: "lead.source", Operator: OperatorInList, Value: "ads,referral"}
	assert.False(t, cond.Evaluate(payload))
}

func TestEvaluateAll(t *testing.T) {
	payload := map[string]any{"lead": map[string]any{"status": "new", "score": float64(80)}}

	conditions := []*Condition{
		{Field: "lead.status", Operator: OperatorEquals, Value: "new"},
		{Field: "lead.score", Operator: OperatorGreaterThan, Value: "50"},
	}
	assert.True(t, EvaluateAll(conditions, payload))

	conditions = append(conditions, &Condition{Field: "lead.owner", Operator: OperatorIsNotEmpty})
	assert.False(t, EvaluateAll(conditions, payload))

	// Empty list matches unconditionally.
	assert.True(t, EvaluateAll(nil, payload))
}

func TestResolvePath(t *testing.T) {
	payload := map[string]any{
		"lead": map[string]any{"contact": map[string]any{"email": "jo@acme.io"}},
	}

	value, found := ResolvePath(payload, "lead.contact.email")
	assert.True(t, found)
	assert.Equal(t, "jo@acme.io", value)

	_, found = ResolvePath(payload, "lead.contact.phone")
	assert.False(t, found)

	// Path through a non-map value does not resolve.
	_, found = ResolvePath(payload, "lead.contact.email.domain")
	assert.False(t, found)

	_, found = ResolvePath(payload, "")
	assert.False(t, found)
}
