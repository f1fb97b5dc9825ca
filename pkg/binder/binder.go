// Package binder validates caller-supplied arguments against a tool's
// parameter schema. Its output is the only argument shape that ever reaches
// template substitution or a sandboxed module: raw caller maps stop here.
package binder

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// Bind coerces and type-checks args against the tool's parameters in
// declaration order. Required-but-absent parameters fail; optional-but-absent
// parameters take their default or are omitted. Caller keys not present in
// the schema are dropped, never forwarded.
func Bind(tool *skill.Tool, args map[string]any) (skill.BoundArguments, error) {
	bound := make(skill.BoundArguments, len(tool.Parameters))

	for i := range tool.Parameters {
		p := &tool.Parameters[i]

		raw, supplied := args[p.Name]
		if !supplied {
			if p.Required {
				return nil, &skill.MissingParameterError{Parameter: p.Name}
			}
			if p.Default != nil {
				value, err := coerce(p, *p.Default)
				if err != nil {
					return nil, err
				}
				bound[p.Name] = value
			}
			continue
		}

		value, err := coerce(p, raw)
		if err != nil {
			return nil, err
		}
		bound[p.Name] = value
	}

	return bound, nil
}

func coerce(p *skill.Parameter, raw any) (any, error) {
	switch p.Type {
	case skill.TypeString:
		return coerceString(p, raw)
	case skill.TypeInteger:
		return coerceInteger(p, raw)
	case skill.TypeNumber:
		return coerceNumber(p, raw)
	case skill.TypeBoolean:
		return coerceBoolean(p, raw)
	case skill.TypeEnum:
		return coerceEnum(p, raw)
	case skill.TypeArray:
		return coerceArray(p, raw)
	default:
		return coerceString(p, raw)
	}
}

func coerceString(p *skill.Parameter, raw any) (string, error) {
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return "", &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
}

func coerceInteger(p *skill.Parameter, raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
		}
		return n, nil
	default:
		return 0, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
	}
}

func coerceNumber(p *skill.Parameter, raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
		}
		return n, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
		}
		return n, nil
	default:
		return 0, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
	}
}

func coerceBoolean(p *skill.Parameter, raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
		}
		return b, nil
	default:
		return false, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
	}
}

func coerceEnum(p *skill.Parameter, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
	}
	for _, allowed := range p.Enum {
		if s == allowed {
			return s, nil
		}
	}
	return "", &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
}

// coerceArray accepts native slices, JSON-encoded arrays, and comma-separated
// strings. Every element is stringified; element-level typing is the tool's
// concern, not the binder's.
func coerceArray(p *skill.Parameter, raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := stringify(item)
			if err != nil {
				return nil, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var items []any
			if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
				return coerceArray(p, items)
			}
		}
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	default:
		return nil, &skill.TypeMismatchError{Parameter: p.Name, Expected: p.Type, Value: raw}
	}
}

func stringify(v any) (string, error) {
	switch item := v.(type) {
	case string:
		return item, nil
	case float64:
		return strconv.FormatFloat(item, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(item), nil
	case int64:
		return strconv.FormatInt(item, 10), nil
	case bool:
		return strconv.FormatBool(item), nil
	default:
		b, err := json.Marshal(v)
		return string(b), err
	}
}
