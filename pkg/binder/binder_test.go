package binder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

func forecastTool() *skill.Tool {
	def := "1"
	units := "metric"
	return &skill.Tool{
		Name: "get_forecast",
		Parameters: []skill.Parameter{
			{Name: "city", Type: skill.TypeString, Required: true},
			{Name: "days", Type: skill.TypeInteger, Default: &def},
			{Name: "units", Type: skill.TypeEnum, Enum: []string{"metric", "imperial"}, Default: &units},
		},
	}
}

func TestBind(t *testing.T) {
	bound, err := Bind(forecastTool(), map[string]any{
		"city": "London",
		"days": 3,
	})
	require.NoError(t, err)

	assert.Equal(t, "London", bound["city"])
	assert.Equal(t, int64(3), bound["days"])
	assert.Equal(t, "metric", bound["units"])
}

func TestBindMissingRequired(t *testing.T) {
	_, err := Bind(forecastTool(), map[string]any{"days": 3})
	require.Error(t, err)

	var missing *skill.MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "city", missing.Parameter)
}

func TestBindOptionalWithoutDefaultOmitted(t *testing.T) {
	tool := &skill.Tool{
		Name: "greet",
		Parameters: []skill.Parameter{
			{Name: "greeting", Type: skill.TypeString},
		},
	}

	bound, err := Bind(tool, map[string]any{})
	require.NoError(t, err)

	_, present := bound["greeting"]
	assert.False(t, present)
}

func TestBindDropsUndeclaredKeys(t *testing.T) {
	bound, err := Bind(forecastTool(), map[string]any{
		"city":       "Paris",
		"LD_PRELOAD": "/tmp/evil.so",
		"extra":      "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris", bound["city"])
	_, present := bound["LD_PRELOAD"]
	assert.False(t, present)
	_, present = bound["extra"]
	assert.False(t, present)
}

func TestBindIntegerCoercion(t *testing.T) {
	tool := &skill.Tool{
		Name:       "count",
		Parameters: []skill.Parameter{{Name: "n", Type: skill.TypeInteger, Required: true}},
	}

	tests := []struct {
		name     string
		raw      any
		expected int64
	}{
		{"int", 7, 7},
		{"int64", int64(7), 7},
		{"integral float64", float64(7), 7},
		{"json.Number", json.Number("7"), 7},
		{"numeric string", "7", 7},
		{"padded numeric string", " 7 ", 7},
		{"negative string", "-3", -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bound, err := Bind(tool, map[string]any{"n": tt.raw})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, bound["n"])
		})
	}
}

func TestBindIntegerRejections(t *testing.T) {
	tool := &skill.Tool{
		Name:       "count",
		Parameters: []skill.Parameter{{Name: "n", Type: skill.TypeInteger, Required: true}},
	}

	for name, raw := range map[string]any{
		"fractional float": 7.5,
		"word":             "seven",
		"bool":             true,
		"slice":            []any{7},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Bind(tool, map[string]any{"n": raw})

			var mismatch *skill.TypeMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, "n", mismatch.Parameter)
			assert.Equal(t, skill.TypeInteger, mismatch.Expected)
		})
	}
}

func TestBindNumberCoercion(t *testing.T) {
	tool := &skill.Tool{
		Name:       "scale",
		Parameters: []skill.Parameter{{Name: "factor", Type: skill.TypeNumber, Required: true}},
	}

	bound, err := Bind(tool, map[string]any{"factor": "2.5"})
	require.NoError(t, err)
	assert.Equal(t, 2.5, bound["factor"])

	bound, err = Bind(tool, map[string]any{"factor": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, bound["factor"])
}

func TestBindBooleanCoercion(t *testing.T) {
	tool := &skill.Tool{
		Name:       "flag",
		Parameters: []skill.Parameter{{Name: "verbose", Type: skill.TypeBoolean, Required: true}},
	}

	for raw, expected := range map[string]bool{
		"true": true, "false": false, "1": true, "0": false,
	} {
		bound, err := Bind(tool, map[string]any{"verbose": raw})
		require.NoError(t, err)
		assert.Equal(t, expected, bound["verbose"], "raw %q", raw)
	}

	_, err := Bind(tool, map[string]any{"verbose": "yes"})
	var mismatch *skill.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestBindStringRejectsNonString(t *testing.T) {
	tool := &skill.Tool{
		Name:       "say",
		Parameters: []skill.Parameter{{Name: "message", Type: skill.TypeString, Required: true}},
	}

	_, err := Bind(tool, map[string]any{"message": 42})

	var mismatch *skill.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "message", mismatch.Parameter)
}

func TestBindEnum(t *testing.T) {
	tool := &skill.Tool{
		Name: "units",
		Parameters: []skill.Parameter{
			{Name: "units", Type: skill.TypeEnum, Enum: []string{"metric", "imperial"}, Required: true},
		},
	}

	bound, err := Bind(tool, map[string]any{"units": "imperial"})
	require.NoError(t, err)
	assert.Equal(t, "imperial", bound["units"])

	_, err = Bind(tool, map[string]any{"units": "kelvin"})
	var mismatch *skill.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestBindArrayCoercion(t *testing.T) {
	tool := &skill.Tool{
		Name:       "process",
		Parameters: []skill.Parameter{{Name: "files", Type: skill.TypeArray, Required: true}},
	}

	tests := []struct {
		name     string
		raw      any
		expected []string
	}{
		{"string slice", []string{"a.txt", "b.txt"}, []string{"a.txt", "b.txt"}},
		{"any slice", []any{"a.txt", 2, true}, []string{"a.txt", "2", "true"}},
		{"json array string", `["a.txt", "b.txt"]`, []string{"a.txt", "b.txt"}},
		{"comma separated", "a.txt, b.txt ,c.txt", []string{"a.txt", "b.txt", "c.txt"}},
		{"single value", "a.txt", []string{"a.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bound, err := Bind(tool, map[string]any{"files": tt.raw})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, bound["files"])
		})
	}

	_, err := Bind(tool, map[string]any{"files": 42})
	var mismatch *skill.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestBindDefaultsAreCoerced(t *testing.T) {
	def := "5"
	tool := &skill.Tool{
		Name:       "count",
		Parameters: []skill.Parameter{{Name: "n", Type: skill.TypeInteger, Default: &def}},
	}

	bound, err := Bind(tool, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), bound["n"])
}
