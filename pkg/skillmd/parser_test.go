package skillmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

const weatherSkill = `---
name: weather
version: 1.2.0
description: Weather lookups from the command line
author: skillrun
allowed-tools:
  - curl
  - jq
---

# Weather

Utilities for fetching weather data.

### get_forecast

Fetch the forecast for a city.

**Parameters:**

- ` + "`city`" + ` (required): City name
- ` + "`days`" + ` (optional, integer, default: 1): Number of days
- ` + "`units`" + ` (optional, enum: metric|imperial, default: metric): Unit system

` + "```sh" + `
curl -s https://wttr.in/${city}?days=${days}&format=${units}
` + "```" + `

### ping

Check connectivity to the weather service.

` + "```bash" + `
# a comment that is skipped
curl -sI https://wttr.in
` + "```" + `
`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(weatherSkill))
	require.NoError(t, err)

	assert.Equal(t, "weather", def.Name)
	assert.Equal(t, "1.2.0", def.Version)
	assert.Equal(t, "Weather lookups from the command line", def.Description)
	assert.Equal(t, "skillrun", def.Author)
	assert.Equal(t, skill.NativeCommand, def.Kind)
	assert.Equal(t, []string{"curl", "jq"}, def.Capabilities.AllowedTools)
	assert.NotEmpty(t, def.Hash)

	require.Len(t, def.Tools, 2)

	forecast := def.Tools[0]
	assert.Equal(t, "get_forecast", forecast.Name)
	assert.Equal(t, "Fetch the forecast for a city.", forecast.Description)
	assert.Equal(t, "curl -s https://wttr.in/${city}?days=${days}&format=${units}", forecast.Template)
	require.Len(t, forecast.Parameters, 3)

	city := forecast.Parameters[0]
	assert.Equal(t, "city", city.Name)
	assert.Equal(t, skill.TypeString, city.Type)
	assert.True(t, city.Required)
	assert.Nil(t, city.Default)

	days := forecast.Parameters[1]
	assert.Equal(t, skill.TypeInteger, days.Type)
	assert.False(t, days.Required)
	require.NotNil(t, days.Default)
	assert.Equal(t, "1", *days.Default)

	units := forecast.Parameters[2]
	assert.Equal(t, skill.TypeEnum, units.Type)
	assert.Equal(t, []string{"metric", "imperial"}, units.Enum)

	ping := def.Tools[1]
	assert.Equal(t, "ping", ping.Name)
	assert.Equal(t, "curl -sI https://wttr.in", ping.Template)
	assert.Empty(t, ping.Parameters)
}

func TestParseDeterministic(t *testing.T) {
	first, err := Parse([]byte(weatherSkill))
	require.NoError(t, err)
	second, err := Parse([]byte(weatherSkill))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.Hash, second.Hash)
}

func TestParseAllowedToolsString(t *testing.T) {
	source := `---
name: files
description: File utilities
allowed-tools: ls, cat , grep
---

### list

` + "```sh" + `
ls -la ${path}
` + "```" + `
`
	def, err := Parse([]byte(source))
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "cat", "grep"}, def.Capabilities.AllowedTools)
}

func TestParseMissingFrontmatter(t *testing.T) {
	_, err := Parse([]byte("# No header\n\n### tool\n"))
	require.Error(t, err)

	var parseErr *skill.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Message, "no frontmatter")
}

func TestParseMissingRequiredKeys(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		missing string
	}{
		{
			name: "missing name",
			source: `---
description: something
allowed-tools: ls
---
`,
			missing: `"name"`,
		},
		{
			name: "missing description",
			source: `---
name: something
allowed-tools: ls
---
`,
			missing: `"description"`,
		},
		{
			name: "missing allowed-tools",
			source: `---
name: something
description: something
---
`,
			missing: `"allowed-tools"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.source))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestParseDuplicateToolNames(t *testing.T) {
	source := `---
name: dup
description: duplicate tools
allowed-tools: echo
---

### greet

` + "```sh" + `
echo hello
` + "```" + `

### greet

` + "```sh" + `
echo hi
` + "```" + `
`
	_, err := Parse([]byte(source))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestParseAggregatesBlockErrors(t *testing.T) {
	source := `---
name: broken
description: several broken tools
allowed-tools: echo
---

### first

**Parameters:**

- not a parameter line

### second

` + "```sh" + `
echo one
echo two
` + "```" + `
`
	_, err := Parse([]byte(source))
	require.Error(t, err)

	// both defects are reported in one pass
	assert.Contains(t, err.Error(), "unparsable parameter line")
	assert.Contains(t, err.Error(), "single command line")
}

func TestParseUnterminatedFence(t *testing.T) {
	source := `---
name: broken
description: fence never closes
allowed-tools: echo
---

### tool

` + "```sh" + `
echo hello
`
	_, err := Parse([]byte(source))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated fenced code block")
}

func TestParseEmptySnippet(t *testing.T) {
	source := `---
name: broken
description: empty snippet
allowed-tools: echo
---

### tool

` + "```sh" + `
# only a comment
` + "```" + `
`
	_, err := Parse([]byte(source))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command snippet is empty")
}

func TestParseNonShellFenceIgnored(t *testing.T) {
	source := `---
name: docs
description: json fences are not templates
allowed-tools: echo
---

### show

` + "```json" + `
{"not": "a template"}
` + "```" + `

` + "```sh" + `
echo ${message}
` + "```" + `

**Parameters:**

- ` + "`message`" + ` (required): What to say
`
	def, err := Parse([]byte(source))
	require.NoError(t, err)
	require.Len(t, def.Tools, 1)
	assert.Equal(t, "echo ${message}", def.Tools[0].Template)
	require.Len(t, def.Tools[0].Parameters, 1)
}

func TestParseToolWithoutTemplate(t *testing.T) {
	// Parsing succeeds; the capability validator is what rejects execution.
	source := `---
name: doc-only
description: a tool with no command
allowed-tools: echo
---

### describe

Only prose here.
`
	def, err := Parse([]byte(source))
	require.NoError(t, err)
	require.Len(t, def.Tools, 1)
	assert.Empty(t, def.Tools[0].Template)
	assert.Equal(t, "Only prose here.", def.Tools[0].Description)
}

func TestParseErrorsReportLines(t *testing.T) {
	source := `---
name: broken
description: bad parameter
allowed-tools: echo
---

### tool

**Parameters:**

- ` + "`p`" + ` (mandatory): wrong keyword
`
	_, err := Parse([]byte(source))
	require.Error(t, err)

	var parseErr *skill.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "tool", parseErr.Heading)
	assert.Equal(t, strings.Count(source[:strings.Index(source, "(mandatory)")], "\n")+1, parseErr.Line)
}

func TestParseHeadingLikeCommentInsideFence(t *testing.T) {
	source := `---
name: committer
description: Commit helpers
allowed-tools: git
---

### commit

Create a commit.

**Parameters:**

- ` + "`message`" + ` (required): Commit message

` + "```sh" + `
### requires git 2.40 or newer
git commit -m ${message}
` + "```" + `
`
	def, err := Parse([]byte(source))
	require.NoError(t, err)

	require.Len(t, def.Tools, 1)
	assert.Equal(t, "commit", def.Tools[0].Name)
	assert.Equal(t, "git commit -m ${message}", def.Tools[0].Template)
}
