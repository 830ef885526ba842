package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type homeworkOutput struct {
	IsHomework bool   `json:"is_homework" description:"whether the question is homework"`
	Reasoning  string `json:"reasoning"`
}

type nameIdeas struct {
	Names     []string `json:"names" schema:"minItems=3,maxItems=3"`
	Rationale string   `json:"rationale,omitempty"`
	Score     *float64 `json:"score"`
	Skipped   string   `json:"-"`
}

func TestFor(t *testing.T) {
	s, err := For[nameIdeas]("name_ideas")
	require.NoError(t, err)
	require.Len(t, s.Fields, 3)

	names := s.Fields[0]
	assert.Equal(t, "names", names.Name)
	assert.Equal(t, TypeArray, names.Type)
	assert.Equal(t, TypeString, names.Items)
	assert.Equal(t, 3, names.MinItems)
	assert.Equal(t, 3, names.MaxItems)
	assert.True(t, names.Required)

	assert.False(t, s.Fields[1].Required, "omitempty makes a field optional")
	assert.False(t, s.Fields[2].Required, "pointers are optional")
	assert.Equal(t, TypeNumber, s.Fields[2].Type)
	assert.False(t, s.AllRequired())
}

func TestFor_Description(t *testing.T) {
	s := MustFor[homeworkOutput]("homework")
	f, ok := s.Field("is_homework")
	require.True(t, ok)
	assert.Equal(t, "whether the question is homework", f.Description)
	assert.True(t, s.AllRequired())
}

func TestFor_Errors(t *testing.T) {
	_, err := For[string]("bad")
	assert.Error(t, err)

	type badTag struct {
		Names []string `json:"names" schema:"minItems=4,maxItems=3"`
	}
	_, err = For[badTag]("bad")
	assert.ErrorContains(t, err, "exceeds")

	type unknownTag struct {
		Names []string `json:"names" schema:"unique=1"`
	}
	_, err = For[unknownTag]("bad")
	assert.ErrorContains(t, err, "unknown schema tag")
}

func TestJSONSchema(t *testing.T) {
	s := New("names",
		Array("names", TypeString, "three names").Len(3, 3),
		String("rationale", "").Optional(),
	).WithDescription("candidate names")

	js := s.JSONSchema()
	assert.Equal(t, "object", js["type"])
	assert.Equal(t, []string{"names"}, js["required"])
	assert.Equal(t, false, js["additionalProperties"])
	assert.Equal(t, "candidate names", js["description"])

	props := js["properties"].(map[string]any)
	names := props["names"].(map[string]any)
	assert.Equal(t, 3, names["minItems"])
	assert.Equal(t, 3, names["maxItems"])
	assert.Equal(t, map[string]any{"type": "string"}, names["items"])

	assert.Contains(t, s.Instructions(), `"names"`)
}
