package skillmd

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// The parameter bullet grammar:
//
//   - `name` (required|optional[, type][, default: value]): description
//   - `name` (required|optional, enum: a|b|c[, default: value]): description
//
// Attribute segments are comma-separated inside the parentheses, so default
// values and enum members cannot contain commas or closing parentheses.
var paramLineRe = regexp.MustCompile("^[-*]\\s+`([A-Za-z0-9_][A-Za-z0-9_.-]*)`\\s+\\(([^)]*)\\)\\s*:\\s*(.*)$")

// ParseParameterLine parses one bullet of a **Parameters:** list.
func ParseParameterLine(line string) (*skill.Parameter, error) {
	m := paramLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, errors.Errorf("unparsable parameter line: %q", strings.TrimSpace(line))
	}

	param := &skill.Parameter{
		Name:        m[1],
		Type:        skill.TypeString,
		Description: strings.TrimSpace(m[3]),
	}

	segments := strings.Split(m[2], ",")
	switch strings.TrimSpace(segments[0]) {
	case "required":
		param.Required = true
	case "optional":
		param.Required = false
	default:
		return nil, errors.Errorf("parameter %q: first attribute must be required or optional, got %q",
			param.Name, strings.TrimSpace(segments[0]))
	}

	typeSet := false
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		switch {
		case seg == "string" || seg == "integer" || seg == "number" || seg == "boolean" || seg == "array":
			if typeSet {
				return nil, errors.Errorf("parameter %q: type declared twice", param.Name)
			}
			param.Type = skill.ParameterType(seg)
			typeSet = true
		case strings.HasPrefix(seg, "enum:"):
			if typeSet {
				return nil, errors.Errorf("parameter %q: type declared twice", param.Name)
			}
			values := splitEnumValues(strings.TrimPrefix(seg, "enum:"))
			if len(values) == 0 {
				return nil, errors.Errorf("parameter %q: enum declares no values", param.Name)
			}
			param.Type = skill.TypeEnum
			param.Enum = values
			typeSet = true
		case strings.HasPrefix(seg, "default:"):
			if param.Default != nil {
				return nil, errors.Errorf("parameter %q: default declared twice", param.Name)
			}
			def := strings.TrimSpace(strings.TrimPrefix(seg, "default:"))
			param.Default = &def
		case seg == "":
			return nil, errors.Errorf("parameter %q: empty attribute segment", param.Name)
		default:
			return nil, errors.Errorf("parameter %q: unknown attribute %q", param.Name, seg)
		}
	}

	if param.Required && param.Default != nil {
		return nil, errors.Errorf("parameter %q: required parameters cannot declare defaults", param.Name)
	}
	if param.Type == skill.TypeEnum && param.Default != nil && !contains(param.Enum, *param.Default) {
		return nil, errors.Errorf("parameter %q: default %q is not an enum value", param.Name, *param.Default)
	}

	return param, nil
}

func splitEnumValues(s string) []string {
	var values []string
	for _, v := range strings.Split(s, "|") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func contains(values []string, v string) bool {
	for _, entry := range values {
		if entry == v {
			return true
		}
	}
	return false
}
