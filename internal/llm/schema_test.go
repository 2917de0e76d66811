package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParametersNested(t *testing.T) {
	fn := FunctionSchema{
		Name: "group_synonyms",
		Properties: []Property{{
			Name: "groups",
			Type: "array",
			Items: &Property{
				Type: "object",
				Properties: []Property{
					{Name: "canonical", Type: "string"},
					{Name: "members", Type: "array", Items: &Property{Type: "string"}},
				},
				Required: []string{"canonical", "members"},
			},
		}},
		Required: []string{"groups"},
	}

	raw, err := json.Marshal(fn.Parameters())
	require.NoError(t, err)

	var decoded struct {
		Type       string `json:"type"`
		Required   []string
		Properties map[string]struct {
			Type  string `json:"type"`
			Items struct {
				Type       string   `json:"type"`
				Required   []string `json:"required"`
				Properties map[string]struct {
					Type  string `json:"type"`
					Items *struct {
						Type string `json:"type"`
					} `json:"items"`
				} `json:"properties"`
			} `json:"items"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "object", decoded.Type)
	assert.Equal(t, []string{"groups"}, decoded.Required)
	groups := decoded.Properties["groups"]
	assert.Equal(t, "array", groups.Type)
	assert.Equal(t, "object", groups.Items.Type)
	assert.ElementsMatch(t, []string{"canonical", "members"}, groups.Items.Required)
	require.NotNil(t, groups.Items.Properties["members"].Items)
	assert.Equal(t, "string", groups.Items.Properties["members"].Items.Type)
}

func TestGenaiSchemaTypes(t *testing.T) {
	s := genaiObject([]Property{
		{Name: "best_id", Type: "integer"},
		{Name: "tags", Type: "array", Items: &Property{Type: "string"}},
	}, []string{"best_id"})

	assert.Equal(t, []string{"best_id"}, s.Required)
	assert.Equal(t, genaiType("integer"), s.Properties["best_id"].Type)
	assert.Equal(t, genaiType("array"), s.Properties["tags"].Type)
	assert.Equal(t, genaiType("string"), s.Properties["tags"].Items.Type)
}
