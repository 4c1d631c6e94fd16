package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilter_EmptyReturnsNil(t *testing.T) {
	f, err := ParseFilter(nil)
	assert.NoError(t, err)
	assert.Nil(t, f)

	f, err = ParseFilter([]byte{})
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestParseFilter_InvalidJSON(t *testing.T) {
	_, err := ParseFilter([]byte(`{not json`))
	assert.Error(t, err)
}

func TestValidateFilter_NilOK(t *testing.T) {
	assert.NoError(t, ValidateFilter(nil))
}

func TestValidateFilter_UnknownOperatorRejected(t *testing.T) {
	f := &Filter{Conditions: []Condition{{FieldPath: "x", Operator: "regex", Compare: "foo"}}}
	err := ValidateFilter(f)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateFilter_MissingFieldPathRejected(t *testing.T) {
	f := &Filter{Conditions: []Condition{{Operator: "eq", Compare: "foo"}}}
	err := ValidateFilter(f)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMatchesFilter_NilMatchesEverything(t *testing.T) {
	assert.True(t, MatchesFilter(nil, map[string]any{"anything": "goes"}))
}

func TestMatchesFilter_LinkIDs(t *testing.T) {
	f := &Filter{LinkIDs: []string{"link-1", "link-2"}}
	assert.True(t, MatchesFilter(f, map[string]any{"linkId": "link-1"}))
	assert.False(t, MatchesFilter(f, map[string]any{"linkId": "link-3"}))
	assert.False(t, MatchesFilter(f, map[string]any{}))
}

func TestMatchesFilter_Tags_RequiresAllPresent(t *testing.T) {
	f := &Filter{Tags: []string{"a", "b"}}
	assert.True(t, MatchesFilter(f, map[string]any{"tags": []any{"a", "b", "c"}}))
	assert.False(t, MatchesFilter(f, map[string]any{"tags": []any{"a"}}))
	assert.False(t, MatchesFilter(f, map[string]any{}))
}

func TestMatchesFilter_ConditionsAreAND(t *testing.T) {
	f := &Filter{Conditions: []Condition{
		{FieldPath: "status", Operator: "eq", Compare: "active"},
		{FieldPath: "count", Operator: "gt", Compare: float64(5)},
	}}
	assert.True(t, MatchesFilter(f, map[string]any{"status": "active", "count": float64(10)}))
	assert.False(t, MatchesFilter(f, map[string]any{"status": "active", "count": float64(1)}))
	assert.False(t, MatchesFilter(f, map[string]any{"status": "inactive", "count": float64(10)}))
}

func TestMatchesFilter_FieldPathIsTopLevelOnly(t *testing.T) {
	f := &Filter{Conditions: []Condition{
		{FieldPath: "metadata.source", Operator: "eq", Compare: "api"},
	}}
	// No nested path resolution: "metadata.source" is looked up as a literal
	// key at the top level, which is absent here, so v = nil and eq fails.
	payload := map[string]any{"metadata": map[string]any{"source": "api"}}
	assert.False(t, MatchesFilter(f, payload))

	// A flat key matching the literal field_path string does match.
	flat := &Filter{Conditions: []Condition{{FieldPath: "source", Operator: "eq", Compare: "api"}}}
	assert.True(t, MatchesFilter(flat, map[string]any{"source": "api"}))
}

func TestMatchesFilter_UnknownOperatorIsVacuouslyTrue(t *testing.T) {
	f := &Filter{Conditions: []Condition{{FieldPath: "x", Operator: "regex", Compare: "foo"}}}
	assert.True(t, MatchesFilter(f, map[string]any{"x": "foo"}))
	assert.True(t, MatchesFilter(f, map[string]any{}))
}

func TestMatchesFilter_ContainsAndStartsWith(t *testing.T) {
	containsF := &Filter{Conditions: []Condition{{FieldPath: "url", Operator: "contains", Compare: "example"}}}
	assert.True(t, MatchesFilter(containsF, map[string]any{"url": "https://example.com/path"}))
	assert.False(t, MatchesFilter(containsF, map[string]any{"url": "https://other.com/path"}))

	startsF := &Filter{Conditions: []Condition{{FieldPath: "url", Operator: "starts_with", Compare: "https://"}}}
	assert.True(t, MatchesFilter(startsF, map[string]any{"url": "https://example.com"}))
	assert.False(t, MatchesFilter(startsF, map[string]any{"url": "http://example.com"}))
}

func TestMatchesFilter_NotEqual(t *testing.T) {
	f := &Filter{Conditions: []Condition{{FieldPath: "status", Operator: "ne", Compare: "archived"}}}
	assert.True(t, MatchesFilter(f, map[string]any{"status": "active"}))
	assert.False(t, MatchesFilter(f, map[string]any{"status": "archived"}))
}

func TestMatchesFilter_Idempotent(t *testing.T) {
	f := &Filter{LinkIDs: []string{"link-1"}, Conditions: []Condition{{FieldPath: "count", Operator: "gt", Compare: float64(1)}}}
	payload := map[string]any{"linkId": "link-1", "count": float64(5)}
	first := MatchesFilter(f, payload)
	second := MatchesFilter(f, payload)
	assert.Equal(t, first, second)
	assert.True(t, first)
}
