package metadata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSerializeRoundtrip(t *testing.T) {
	md := ConversationMetadata{
		IdentifiedBy:     IdentifiedByVacancySearch,
		SearchQuery:      "backend engineer",
		InterviewStarted: true,
		QuestionAnswers: []QuestionAnswer{
			{Question: "Q1", Answer: "Hello world", Timestamp: "2026-08-30T10:00:00Z"},
			{Question: "Q2", Answer: "Second answer"},
		},
		LastQuestionAsked: "Q2",
	}

	raw, err := Serialize(md)
	require.NoError(t, err)

	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, md, got)
}

func TestParseEmptyBlobIsZeroValue(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("  ")} {
		md, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, ConversationMetadata{}, md)
	}
}

func TestParseRejectsBadEnumValue(t *testing.T) {
	_, err := Parse([]byte(`{"identifiedBy":"bogus_value"}`))
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	require.Len(t, se.Violations, 1)
	assert.Equal(t, "identifiedBy", se.Violations[0].Path)
	assert.Contains(t, se.Violations[0].Message, "bogus_value")
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(`{"favouriteColor":"green"}`))
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Error(), "favouriteColor")
}

func TestParseRejectsTypeMismatch(t *testing.T) {
	_, err := Parse([]byte(`{"questionAnswers":"not an array"}`))
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	require.NotEmpty(t, se.Violations)
	assert.Contains(t, se.Violations[0].Path, "questionAnswers")
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"identifiedBy":`))
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "$", se.Violations[0].Path)
}

func TestParseValidatesNestedQuestionAnswers(t *testing.T) {
	_, err := Parse([]byte(`{"questionAnswers":[{"answer":"orphaned"}]}`))
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	require.Len(t, se.Violations, 1)
	assert.Equal(t, "questionAnswers[0].question", se.Violations[0].Path)
}

func TestParseRejectsBadTimestamps(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		path string
	}{
		{"completedAt", `{"completedAt":"yesterday"}`, "completedAt"},
		{"qa timestamp", `{"questionAnswers":[{"question":"Q","answer":"A","timestamp":"not-a-time"}]}`, "questionAnswers[0].timestamp"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			var se *SchemaError
			require.True(t, errors.As(err, &se))
			require.Len(t, se.Violations, 1)
			assert.Equal(t, tc.path, se.Violations[0].Path)
		})
	}
}

func TestParseAcceptsScoreFields(t *testing.T) {
	md, err := Parse([]byte(`{"averageScore":0.75,"scoredAnswers":3}`))
	require.NoError(t, err)
	assert.Equal(t, 0.75, md.AverageScore)
	assert.Equal(t, 3, md.ScoredAnswers)

	_, err = Parse([]byte(`{"averageScore":1.5}`))
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "averageScore", se.Violations[0].Path)
}
