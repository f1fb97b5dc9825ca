package skill

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionToolLookup(t *testing.T) {
	def := &Definition{
		Tools: []Tool{{Name: "fetch"}, {Name: "ping"}},
	}

	tool, ok := def.Tool("ping")
	require.True(t, ok)
	assert.Equal(t, "ping", tool.Name)

	_, ok = def.Tool("missing")
	assert.False(t, ok)
}

func TestToolParameterLookup(t *testing.T) {
	tool := &Tool{
		Parameters: []Parameter{{Name: "city"}, {Name: "days"}},
	}

	param, ok := tool.Parameter("days")
	require.True(t, ok)
	assert.Equal(t, "days", param.Name)

	_, ok = tool.Parameter("missing")
	assert.False(t, ok)
}

func TestParameterWireNames(t *testing.T) {
	def := "metric"
	param := Parameter{
		Name:     "units",
		Type:     TypeEnum,
		Required: false,
		Default:  &def,
		Enum:     []string{"metric", "imperial"},
	}

	encoded, err := json.Marshal(param)
	require.NoError(t, err)

	assert.Contains(t, string(encoded), `"paramType":"enum"`)
	assert.Contains(t, string(encoded), `"defaultValue":"metric"`)
}

func TestBoundArgumentsJSON(t *testing.T) {
	args := BoundArguments{
		"city":  "London",
		"days":  int64(3),
		"files": []string{"a", "b"},
	}

	encoded, err := args.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	assert.Equal(t, "London", decoded["city"])
	assert.Equal(t, float64(3), decoded["days"])
	assert.Equal(t, []any{"a", "b"}, decoded["files"])
}

func TestWireResult(t *testing.T) {
	result := &ExecutionResult{Success: true, Output: "hello"}
	wire := result.Wire()

	encoded, err := json.Marshal(wire)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": true, "output": "hello", "errorMessage": null}`, string(encoded))

	result = &ExecutionResult{
		Success: false,
		Error:   &ResultError{Kind: ErrKindTimeout, Message: "invocation timed out after 5s"},
	}
	wire = result.Wire()

	encoded, err = json.Marshal(wire)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": false, "output": "", "errorMessage": "invocation timed out after 5s"}`, string(encoded))
}

func TestHashSource(t *testing.T) {
	a := HashSource([]byte("alpha"))
	b := HashSource([]byte("alpha"))
	c := HashSource([]byte("beta"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestToolJSONSchema(t *testing.T) {
	def := "1"
	tool := &Tool{
		Name:        "get_forecast",
		Description: "Fetch a forecast",
		Parameters: []Parameter{
			{Name: "city", Type: TypeString, Required: true, Description: "City name"},
			{Name: "days", Type: TypeInteger, Default: &def},
			{Name: "units", Type: TypeEnum, Enum: []string{"metric", "imperial"}},
			{Name: "files", Type: TypeArray},
			{Name: "verbose", Type: TypeBoolean},
			{Name: "ratio", Type: TypeNumber},
		},
	}

	schema := tool.JSONSchema()

	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, "Fetch a forecast", schema.Description)
	assert.Equal(t, []string{"city"}, schema.Required)

	city, ok := schema.Properties.Get("city")
	require.True(t, ok)
	assert.Equal(t, "string", city.Type)
	assert.Equal(t, "City name", city.Description)

	days, ok := schema.Properties.Get("days")
	require.True(t, ok)
	assert.Equal(t, "integer", days.Type)
	assert.Equal(t, "1", days.Default)

	units, ok := schema.Properties.Get("units")
	require.True(t, ok)
	assert.Equal(t, "string", units.Type)
	assert.Equal(t, []any{"metric", "imperial"}, units.Enum)

	files, ok := schema.Properties.Get("files")
	require.True(t, ok)
	assert.Equal(t, "array", files.Type)
	require.NotNil(t, files.Items)
	assert.Equal(t, "string", files.Items.Type)

	// undeclared keys are rejected by the schema
	encoded, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"additionalProperties":false`)
}
