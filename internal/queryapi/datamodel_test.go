package queryapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataModel_MultipleEntities(t *testing.T) {
	dm, err := ParseDataModel("Greetings{message,author},Person{name}")
	require.NoError(t, err)
	require.Len(t, dm.Entities, 2)
	assert.ElementsMatch(t, []string{"message", "author"}, dm.Entities["Greetings"].Fields)
	assert.ElementsMatch(t, []string{"name"}, dm.Entities["Person"].Fields)
}

func TestParseDataModel_RejectsEmpty(t *testing.T) {
	_, err := ParseDataModel("not a datamodel")
	assert.ErrorIs(t, err, ErrParsing)
}

func TestDataModel_Encode_RoundTrips(t *testing.T) {
	dm, err := ParseDataModel("Greetings{message}")
	require.NoError(t, err)

	again, err := ParseDataModel(dm.Encode())
	require.NoError(t, err)
	assert.Equal(t, dm.Entities["Greetings"].Fields, again.Entities["Greetings"].Fields)
}

func TestParseMutation_QuotedAndParamFields(t *testing.T) {
	stmt, err := parseMutation(`Greetings{ message:"Hello \"World\"", author:$who }`, map[string]any{"who": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "Greetings", stmt.Entity)
	assert.Equal(t, `Hello "World"`, stmt.Fields["message"])
	assert.Equal(t, "alice", stmt.Fields["author"])
}

func TestParseMutation_MissingParameter(t *testing.T) {
	_, err := parseMutation(`Greetings{ message:$missing }`, nil)
	assert.ErrorIs(t, err, ErrParsing)
}

func TestParseMutation_NumericField(t *testing.T) {
	stmt, err := parseMutation(`Greetings{ count:42 }`, nil)
	require.NoError(t, err)
	assert.Equal(t, 42.0, stmt.Fields["count"])
}

func TestParseQuery_WithFilterAndFields(t *testing.T) {
	stmt, err := parseQuery(`Greetings(id=$id){message,author}`)
	require.NoError(t, err)
	assert.Equal(t, "Greetings", stmt.Entity)
	assert.Equal(t, "$id", stmt.Filters["id"])
	assert.Equal(t, []string{"message", "author"}, stmt.Fields)
}

func TestParseQuery_Unfiltered(t *testing.T) {
	stmt, err := parseQuery(`Person{name}`)
	require.NoError(t, err)
	assert.Equal(t, "Person", stmt.Entity)
	assert.Empty(t, stmt.Filters)
}

func TestParseQuery_RejectsMalformed(t *testing.T) {
	_, err := parseQuery(`not a query`)
	assert.ErrorIs(t, err, ErrParsing)
}

func TestResolveFilterValue_Param(t *testing.T) {
	v, ok := resolveFilterValue("$id", map[string]any{"id": "abc"})
	require.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestResolveFilterValue_Literal(t *testing.T) {
	v, ok := resolveFilterValue(`"abc"`, nil)
	require.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestResolveFilterValue_MissingParam(t *testing.T) {
	_, ok := resolveFilterValue("$missing", nil)
	assert.False(t, ok)
}
