// Package skillmd parses native SKILL.md documents into skill definitions.
//
// A native document is YAML frontmatter followed by a markdown body. The
// frontmatter must declare name, description and allowed-tools. The body is
// scanned for level-3 headings; each `### tool-name` heading opens a tool
// block that runs until the next level-3 heading or end of document. Within a
// block, free text forms the description, an optional `**Parameters:**` bullet
// list declares the parameter schema, and an optional fenced sh/bash snippet
// supplies the command template.
//
// The document structure and the parameter/template grammars are parsed in
// separate passes so the mini-grammar stays independently testable.
package skillmd

import (
	"bytes"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// frontmatter is the YAML header of a SKILL.md document.
type frontmatter struct {
	Name         string `mapstructure:"name"`
	Version      string `mapstructure:"version"`
	Description  string `mapstructure:"description"`
	Author       string `mapstructure:"author"`
	AllowedTools any    `mapstructure:"allowed-tools"`
}

// Parse turns raw SKILL.md bytes into an immutable skill definition. Parsing
// is deterministic and side-effect-free: identical bytes always yield a
// structurally equal definition.
func Parse(source []byte) (*skill.Definition, error) {
	fm, bodyStart, err := parseFrontmatter(source)
	if err != nil {
		return nil, err
	}

	allowed, err := normalizeAllowedTools(fm.AllowedTools)
	if err != nil {
		return nil, err
	}

	body := string(source)
	lines := strings.Split(body, "\n")
	tools, err := parseToolBlocks(lines, bodyStart)
	if err != nil {
		return nil, err
	}

	return &skill.Definition{
		Name:        fm.Name,
		Version:     fm.Version,
		Description: fm.Description,
		Author:      fm.Author,
		Kind:        skill.NativeCommand,
		Tools:       tools,
		Capabilities: skill.CapabilitySet{
			AllowedTools: allowed,
		},
		Hash: skill.HashSource(source),
	}, nil
}

// parseFrontmatter extracts and decodes the YAML header. It returns the index
// of the first body line so tool-block errors can report document-absolute
// line numbers.
func parseFrontmatter(source []byte) (*frontmatter, int, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	pctx := parser.NewContext()
	if err := md.Convert(source, io.Discard, parser.WithContext(pctx)); err != nil {
		return nil, 0, &skill.ParseError{Message: errors.Wrap(err, "malformed frontmatter").Error()}
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, 0, &skill.ParseError{Message: "document has no frontmatter block"}
	}

	var fm frontmatter
	if err := mapstructure.Decode(metaData, &fm); err != nil {
		return nil, 0, &skill.ParseError{Message: errors.Wrap(err, "malformed frontmatter").Error()}
	}

	if fm.Name == "" {
		return nil, 0, &skill.ParseError{Message: `frontmatter missing required key "name"`}
	}
	if fm.Description == "" {
		return nil, 0, &skill.ParseError{Message: `frontmatter missing required key "description"`}
	}

	return &fm, frontmatterEnd(source), nil
}

// frontmatterEnd returns the line index just past the closing --- delimiter.
func frontmatterEnd(source []byte) int {
	lines := bytes.Split(source, []byte("\n"))
	if len(lines) == 0 || !bytes.HasPrefix(bytes.TrimSpace(lines[0]), []byte("---")) {
		return 0
	}
	for i := 1; i < len(lines); i++ {
		if string(bytes.TrimSpace(lines[i])) == "---" {
			return i + 1
		}
	}
	return 0
}

// normalizeAllowedTools accepts either a YAML list or a comma-separated
// string. An absent allowed-tools key is a parse error: an implicit empty
// allowlist would silently permit nothing, so authors must declare intent.
func normalizeAllowedTools(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, &skill.ParseError{Message: `frontmatter missing required key "allowed-tools"`}
	case string:
		var allowed []string
		for _, entry := range strings.Split(val, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				allowed = append(allowed, entry)
			}
		}
		return allowed, nil
	case []any:
		allowed := make([]string, 0, len(val))
		for _, entry := range val {
			s, ok := entry.(string)
			if !ok {
				return nil, &skill.ParseError{Message: "allowed-tools entries must be strings"}
			}
			allowed = append(allowed, strings.TrimSpace(s))
		}
		return allowed, nil
	default:
		return nil, &skill.ParseError{Message: "allowed-tools must be a list or a comma-separated string"}
	}
}

// parseToolBlocks scans the document for `### tool-name` headings starting at
// line bodyStart and parses each block. Errors across blocks are aggregated so
// an author sees every defect in one pass.
func parseToolBlocks(lines []string, bodyStart int) ([]skill.Tool, error) {
	var (
		tools  []skill.Tool
		merr   *multierror.Error
		seen   = map[string]int{}
		blocks = findBlocks(lines, bodyStart)
	)

	for _, b := range blocks {
		tool, err := parseToolBlock(lines, b)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		if prev, dup := seen[tool.Name]; dup {
			merr = multierror.Append(merr, &skill.ParseError{
				Line:    b.headingLine + 1,
				Heading: tool.Name,
				Message: errors.Errorf("duplicate tool name (first declared at line %d)", prev+1).Error(),
			})
			continue
		}
		seen[tool.Name] = b.headingLine
		tools = append(tools, *tool)
	}

	return tools, merr.ErrorOrNil()
}

// block is a half-open line range [start, end) of one tool section.
type block struct {
	headingLine int
	name        string
	start       int
	end         int
}

func findBlocks(lines []string, from int) []block {
	var blocks []block
	inFence := false
	for i := from; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		// A line that merely looks like a heading inside a fenced snippet
		// does not start a new tool block.
		if inFence {
			continue
		}
		if !strings.HasPrefix(trimmed, "### ") || strings.HasPrefix(trimmed, "####") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, "### "))
		if len(blocks) > 0 {
			blocks[len(blocks)-1].end = i
		}
		blocks = append(blocks, block{headingLine: i, name: name, start: i + 1, end: len(lines)})
	}
	return blocks
}

// parseToolBlock walks the lines of a single tool block: description text,
// then the optional parameter list, then the optional fenced command snippet.
func parseToolBlock(lines []string, b block) (*skill.Tool, error) {
	tool := &skill.Tool{Name: b.name}

	var (
		descLines []string
		inParams  bool
		inFence   bool
		fenceLang string
		fenceBody []string
		haveTmpl  bool
	)

	for i := b.start; i < b.end; i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, "```") {
				inFence = false
				if !haveTmpl && isShellLang(fenceLang) {
					tmpl, err := templateFromSnippet(fenceBody, i, b.name)
					if err != nil {
						return nil, err
					}
					tool.Template = tmpl
					haveTmpl = true
				}
				fenceBody = nil
				continue
			}
			fenceBody = append(fenceBody, line)
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "```"):
			inFence = true
			inParams = false
			fenceLang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
		case isParametersHeader(trimmed):
			inParams = true
		case inParams && (strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*")):
			param, err := ParseParameterLine(trimmed)
			if err != nil {
				return nil, &skill.ParseError{Line: i + 1, Heading: b.name, Message: err.Error()}
			}
			tool.Parameters = append(tool.Parameters, *param)
		case inParams && trimmed == "":
			// blank lines inside the bullet list are fine
		case inParams:
			inParams = false
		case trimmed != "":
			descLines = append(descLines, trimmed)
		}
	}

	if inFence {
		return nil, &skill.ParseError{Heading: b.name, Message: "unterminated fenced code block"}
	}

	tool.Description = strings.Join(descLines, " ")
	return tool, nil
}

func isParametersHeader(line string) bool {
	return strings.HasPrefix(line, "**Parameters:**") || strings.HasPrefix(line, "**Parameters**:")
}

func isShellLang(lang string) bool {
	switch strings.ToLower(lang) {
	case "sh", "bash", "shell":
		return true
	}
	return false
}

// templateFromSnippet validates that the snippet is a single command line.
// Comments and blank lines are allowed; multiple commands are not, since the
// capability validator authorizes exactly one head token.
func templateFromSnippet(body []string, fenceEnd int, heading string) (string, error) {
	var cmd string
	for _, line := range body {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if cmd != "" {
			return "", &skill.ParseError{
				Line:    fenceEnd + 1,
				Heading: heading,
				Message: "command template must be a single command line",
			}
		}
		cmd = trimmed
	}
	if cmd == "" {
		return "", &skill.ParseError{
			Line:    fenceEnd + 1,
			Heading: heading,
			Message: "command snippet is empty",
		}
	}
	return cmd, nil
}
