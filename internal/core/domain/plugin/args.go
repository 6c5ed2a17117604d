package plugin

import (
	"strconv"
	"strings"
)

// MarshalArgs converts a declared argument schema plus user-supplied values
// into a flat command-line token sequence. Tokens follow the declared order
// of specs, not the insertion order of the supplied maps, so the resulting
// command line is deterministic. Marshalling is all-or-nothing: any
// validation failure returns a nil slice and a ValidationError naming the
// offending argument.
func MarshalArgs(specs []ArgSpec, values map[string]string, flags map[string]bool) ([]string, error) {
	seen := make(map[string]struct{}, len(specs))
	tokens := make([]string, 0, len(specs)*2)

	for _, spec := range specs {
		if _, dup := seen[spec.Name]; dup {
			return nil, &ValidationError{Arg: spec.Name, Reason: "duplicate argument declaration"}
		}
		seen[spec.Name] = struct{}{}

		if spec.Type == ArgBool {
			// Boolean flags emit the flag token alone, never a value, and
			// always in long-option form.
			if flags[spec.Name] {
				tokens = append(tokens, longFlag(spec.Name))
			}
			continue
		}

		value := strings.TrimSpace(values[spec.Name])
		if value == "" {
			if spec.Required {
				return nil, &ValidationError{Arg: spec.Name, Reason: "required value is missing or empty"}
			}
			if spec.Default == "" {
				continue
			}
			value = spec.Default
		}

		if spec.Type == ArgInteger {
			if _, err := strconv.Atoi(value); err != nil {
				return nil, &ValidationError{Arg: spec.Name, Reason: "value is not an integer"}
			}
		}

		tokens = append(tokens, normalizeFlag(spec.Name), value)
	}

	return tokens, nil
}

// normalizeFlag renders an argument name as a command-line flag. Names that
// already carry a dash are used verbatim; otherwise single-character names
// become short options and longer names become long options.
func normalizeFlag(name string) string {
	if strings.HasPrefix(name, "-") {
		return name
	}
	if len(name) == 1 {
		return "-" + name
	}
	return "--" + name
}

// longFlag renders an argument name in long-option form unless it is already
// dash-prefixed.
func longFlag(name string) string {
	if strings.HasPrefix(name, "-") {
		return name
	}
	return "--" + name
}
