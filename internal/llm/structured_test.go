package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bestFn = &FunctionSchema{
	Name:       "best_card",
	Properties: []Property{{Name: "best_id", Type: "integer"}},
	Required:   []string{"best_id"},
}

type bestCard struct {
	BestID int64 `json:"best_id"`
}

func TestDecodeArguments(t *testing.T) {
	got, err := Decode[bestCard](&Response{Arguments: []byte(`{"best_id": 7}`)}, bestFn)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.BestID)
}

func TestDecodeFallsBackToText(t *testing.T) {
	resp := &Response{Text: "Sure! ```json\n{\"best_id\": 3}\n```"}
	got, err := Decode[bestCard](resp, bestFn)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.BestID)
}

func TestDecodeMissingRequired(t *testing.T) {
	for _, args := range []string{`{}`, `{"best_id": null}`} {
		_, err := Decode[bestCard](&Response{Arguments: []byte(args)}, bestFn)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingField), args)

		var fe *FieldError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "best_card", fe.Function)
		assert.Equal(t, "best_id", fe.Field)
	}
}

func TestDecodeNoFunctionCall(t *testing.T) {
	_, err := Decode[bestCard](&Response{Text: "I cannot decide."}, bestFn)
	assert.ErrorIs(t, err, ErrNoFunctionCall)

	_, err = Decode[bestCard](nil, bestFn)
	assert.ErrorIs(t, err, ErrNoFunctionCall)
}

func TestDecodeOptionalField(t *testing.T) {
	type match struct {
		MatchingID *int64 `json:"matching_id,omitempty"`
	}
	fn := &FunctionSchema{Name: "dedupe", Properties: []Property{{Name: "matching_id", Type: "integer"}}}

	got, err := Decode[match](&Response{Arguments: []byte(`{}`)}, fn)
	require.NoError(t, err)
	assert.Nil(t, got.MatchingID)

	got, err = Decode[match](&Response{Arguments: []byte(`{"matching_id": 12}`)}, fn)
	require.NoError(t, err)
	require.NotNil(t, got.MatchingID)
	assert.Equal(t, int64(12), *got.MatchingID)
}

func TestDecodeBadType(t *testing.T) {
	_, err := Decode[bestCard](&Response{Arguments: []byte(`{"best_id": "seven"}`)}, bestFn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "best_card")
}

func TestParseJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	got, err := ParseJSON[payload]("noise {\"name\": \"honesty\"} trailing")
	require.NoError(t, err)
	assert.Equal(t, "honesty", got.Name)

	_, err = ParseJSON[payload]("no object here")
	assert.Error(t, err)
}
