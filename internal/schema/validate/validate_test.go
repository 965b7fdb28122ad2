package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/storytrace/internal/schema"
)

const validStory = `{
  "epic": "Clinician Portal",
  "story_id": "model-proposed",
  "user_story": "As a clinician, I want to view vitals so that I can triage patients.",
  "acceptance_criteria": [
    {"given": "a logged in clinician", "when": "they open a chart", "then": "vitals are shown"}
  ],
  "priority": "Must",
  "dependencies": [],
  "non_functional": ["HIPAA"],
  "source_requirement_ids": ["2.1.3"],
  "assumptions": [],
  "open_questions": [],
  "citations": [{"page": 3, "snippet": "The system shall display vitals"}]
}`

func TestParseStory_Valid(t *testing.T) {
	s, err := ParseStory(validStory)
	require.NoError(t, err)
	assert.Equal(t, "Clinician Portal", s.Epic)
	assert.Equal(t, schema.PriorityMust, s.Priority)
	require.Len(t, s.AcceptanceCriteria, 1)
	assert.Equal(t, "vitals are shown", s.AcceptanceCriteria[0].Then)
	require.Len(t, s.Citations, 1)
	assert.Equal(t, 3, s.Citations[0].Page)
}

func TestParseStory_StripsFences(t *testing.T) {
	s, err := ParseStory("```json\n" + validStory + "\n```")
	require.NoError(t, err)
	assert.NotEmpty(t, s.UserStory)
}

func TestParseStory_SalvagesEmbeddedObject(t *testing.T) {
	raw := "Here is the story you asked for:\n" + validStory + "\nLet me know if you need more."
	s, err := ParseStory(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"2.1.3"}, s.SourceRequirementIDs)
}

func TestParseStory_SalvagesTrailingComma(t *testing.T) {
	raw := strings.Replace(validStory, `"citations"`, `"extra": [1, 2,], "citations"`, 1)
	_, err := ParseStory("prefix " + raw)
	require.NoError(t, err)
}

func TestParseStory_Malformed(t *testing.T) {
	_, err := ParseStory("not json at all")
	assert.ErrorIs(t, err, ErrMalformedJSON)

	_, err = ParseStory("")
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

func TestParseStory_EmptyObjectFailsSchema(t *testing.T) {
	_, err := ParseStory("{}")
	var fe *FieldError
	require.True(t, errors.As(err, &fe), "expected FieldError, got %v", err)
	assert.Equal(t, "required field is missing", fe.Reason)
}

func TestParseStory_MissingThenCarriesPath(t *testing.T) {
	bad := strings.Replace(validStory, `, "then": "vitals are shown"`, ``, 1)
	_, err := ParseStory(bad)
	var fe *FieldError
	require.True(t, errors.As(err, &fe), "expected FieldError, got %v", err)
	assert.Equal(t, "/acceptance_criteria/0/then", fe.Path)
}

func TestParseStory_WrongTypeCarriesPath(t *testing.T) {
	bad := strings.Replace(validStory, `"page": 3`, `"page": "three"`, 1)
	_, err := ParseStory(bad)
	var fe *FieldError
	require.True(t, errors.As(err, &fe), "expected FieldError, got %v", err)
	assert.Equal(t, "/citations/0/page", fe.Path)
}

func TestParseStory_InvalidPriority(t *testing.T) {
	bad := strings.Replace(validStory, `"Must"`, `"Urgent"`, 1)
	_, err := ParseStory(bad)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "/priority", fe.Path)
}

func TestParseStory_NormalizesPriority(t *testing.T) {
	for in, want := range map[string]schema.Priority{
		"must":   schema.PriorityMust,
		"SHOULD": schema.PriorityShould,
		"wont":   schema.PriorityWont,
		"Won’t":  schema.PriorityWont,
	} {
		s, err := ParseStory(strings.Replace(validStory, `"Must"`, `"`+in+`"`, 1))
		require.NoError(t, err, in)
		assert.Equal(t, want, s.Priority, in)
	}
}

func TestParseStory_Abstain(t *testing.T) {
	abstain := `{"epic": "", "story_id": "", "user_story": "", "acceptance_criteria": [],
	  "priority": "", "dependencies": [], "non_functional": [], "source_requirement_ids": [],
	  "assumptions": ["Insufficient context"], "open_questions": ["Need clarification"], "citations": []}`
	_, err := ParseStory(abstain)
	assert.ErrorIs(t, err, ErrAbstain)
}

func TestParseStory_EmptyNarrativeWithoutMarkerIsInvalid(t *testing.T) {
	bad := strings.Replace(validStory, `"As a clinician, I want to view vitals so that I can triage patients."`, `""`, 1)
	_, err := ParseStory(bad)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "/user_story", fe.Path)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
}

func TestExtractObject(t *testing.T) {
	assert.Equal(t, `{"a":{"b":"}"}}`, ExtractObject(`noise {"a":{"b":"}"}} trailing {"c":1}`))
	assert.Equal(t, `{"open":`, ExtractObject(`x {"open":`))
	assert.Equal(t, "", ExtractObject("no braces"))
}
