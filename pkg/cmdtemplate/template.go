// Package cmdtemplate expands native command templates into argument vectors.
//
// Templates contain ${name} and ${name:-default} tokens. Expansion never
// composes a shell string: the result is an argv slice and each resolved value
// occupies exactly the argument positions the template author declared, so a
// value containing ';', '|' or spaces cannot split into extra arguments or a
// second command.
package cmdtemplate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

var tokenRe = regexp.MustCompile(`\$\{([A-Za-z0-9_][A-Za-z0-9_.-]*)(:-([^}]*))?\}`)

// Expand resolves the tool's template against bound arguments and returns the
// argument vector. Tokens naming parameters outside the tool's schema are a
// SubstitutionError: the definition is broken, no process may start.
//
// A field that is a bare token and resolves to an absent optional parameter is
// dropped from the vector; a bare token bound to an array value expands to one
// argument per element.
func Expand(tool *skill.Tool, args skill.BoundArguments) ([]string, error) {
	fields := strings.Fields(tool.Template)
	argv := make([]string, 0, len(fields))

	for _, field := range fields {
		matches := tokenRe.FindAllStringSubmatchIndex(field, -1)

		for _, m := range matches {
			name := field[m[2]:m[3]]
			if _, declared := tool.Parameter(name); !declared {
				return nil, &skill.SubstitutionError{Token: name}
			}
		}

		if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(field) {
			// Bare token: the value becomes whole argv entries, never text.
			m := matches[0]
			name := field[m[2]:m[3]]
			value, bound := args[name]
			if !bound {
				if m[4] >= 0 {
					// The :-default literal is template author content and is
					// substituted verbatim, not re-validated as a parameter.
					argv = append(argv, field[m[6]:m[7]])
				}
				continue
			}
			if items, isArray := value.([]string); isArray {
				argv = append(argv, items...)
				continue
			}
			argv = append(argv, valueString(value))
			continue
		}

		expanded := tokenRe.ReplaceAllStringFunc(field, func(tok string) string {
			sub := tokenRe.FindStringSubmatch(tok)
			value, bound := args[sub[1]]
			if !bound {
				return sub[3]
			}
			return valueString(value)
		})
		argv = append(argv, expanded)
	}

	return argv, nil
}

func valueString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case []string:
		return strings.Join(value, ",")
	default:
		return ""
	}
}
