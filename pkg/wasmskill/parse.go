package wasmskill

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/skillrun-dev/skillrun/pkg/logger"
	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// metadataReadTimeout bounds the capability-free instance used to read
// exported interface metadata. No tool logic runs during this phase.
const metadataReadTimeout = 10 * time.Second

type moduleMetadata struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Description  string `json:"description"`
	Author       string `json:"author"`
	Repository   string `json:"repository"`
	License      string `json:"license"`
	Capabilities struct {
		Network    []string `json:"network"`
		Filesystem []string `json:"filesystem"`
	} `json:"capabilities"`
}

type moduleTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  []struct {
		Name        string   `json:"name"`
		ParamType   string   `json:"paramType"`
		Description string   `json:"description"`
		Required    bool     `json:"required"`
		Default     *string  `json:"defaultValue"`
		Enum        []string `json:"enum"`
	} `json:"parameters"`
}

// BuildDefinition reads a sandboxed module's exported interface metadata into
// a skill definition. The metadata and tool-list entry points run inside a
// short-lived instance with no capability grants at all; no tool logic is
// executed.
func BuildDefinition(ctx context.Context, rt *Runtime, source []byte) (*skill.Definition, error) {
	hash := skill.HashSource(source)

	compiled, err := rt.Compile(ctx, hash, source)
	if err != nil {
		return nil, &skill.ParseError{Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, metadataReadTimeout)
	defer cancel()

	inst, err := rt.Instantiate(ctx, compiled, InstanceOptions{
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if err != nil {
		return nil, &skill.ParseError{Message: err.Error()}
	}
	defer func() {
		if err := inst.Close(context.WithoutCancel(ctx)); err != nil {
			logger.G(ctx).WithError(err).Debug("failed to close metadata instance")
		}
	}()

	if err := inst.ValidateExports(); err != nil {
		return nil, err
	}

	metaJSON, err := inst.Metadata(ctx)
	if err != nil {
		return nil, &skill.ParseError{Heading: exportMetadata, Message: err.Error()}
	}
	var meta moduleMetadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, &skill.ParseError{Heading: exportMetadata, Message: errors.Wrap(err, "invalid metadata JSON").Error()}
	}
	if meta.Name == "" {
		return nil, &skill.ParseError{Heading: exportMetadata, Message: "metadata is missing the skill name"}
	}

	toolsJSON, err := inst.Tools(ctx)
	if err != nil {
		return nil, &skill.ParseError{Heading: exportTools, Message: err.Error()}
	}
	tools, err := decodeTools(toolsJSON)
	if err != nil {
		return nil, err
	}

	return &skill.Definition{
		Name:        meta.Name,
		Version:     meta.Version,
		Description: meta.Description,
		Author:      meta.Author,
		Repository:  meta.Repository,
		License:     meta.License,
		Kind:        skill.SandboxedModule,
		Tools:       tools,
		Capabilities: skill.CapabilitySet{
			Network:    meta.Capabilities.Network,
			Filesystem: meta.Capabilities.Filesystem,
		},
		Hash:   hash,
		Module: source,
	}, nil
}

func decodeTools(toolsJSON string) ([]skill.Tool, error) {
	var raw []moduleTool
	if err := json.Unmarshal([]byte(toolsJSON), &raw); err != nil {
		return nil, &skill.ParseError{Heading: exportTools, Message: errors.Wrap(err, "invalid tool list JSON").Error()}
	}

	seen := map[string]bool{}
	tools := make([]skill.Tool, 0, len(raw))
	for _, t := range raw {
		if t.Name == "" {
			return nil, &skill.ParseError{Heading: exportTools, Message: "tool entry is missing a name"}
		}
		if seen[t.Name] {
			return nil, &skill.ParseError{Heading: t.Name, Message: "duplicate tool name"}
		}
		seen[t.Name] = true

		tool := skill.Tool{Name: t.Name, Description: t.Description}
		for _, p := range t.Parameters {
			paramType := skill.ParameterType(p.ParamType)
			switch paramType {
			case skill.TypeString, skill.TypeInteger, skill.TypeNumber, skill.TypeBoolean, skill.TypeEnum, skill.TypeArray:
			case "":
				paramType = skill.TypeString
			default:
				return nil, &skill.ParseError{
					Heading: t.Name,
					Message: errors.Errorf("parameter %q declares unknown type %q", p.Name, p.ParamType).Error(),
				}
			}
			tool.Parameters = append(tool.Parameters, skill.Parameter{
				Name:        p.Name,
				Type:        paramType,
				Description: p.Description,
				Required:    p.Required,
				Default:     p.Default,
				Enum:        p.Enum,
			})
		}
		tools = append(tools, tool)
	}

	return tools, nil
}
