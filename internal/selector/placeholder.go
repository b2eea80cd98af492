package selector

import (
	"fmt"
	"regexp"
	"strings"
)

// refPattern matches {name} references to captured values.
var refPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// Refs returns the capture names referenced by s, in order of first appearance.
func Refs(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range refPattern.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// MissingRefError lists references that had no captured value.
type MissingRefError struct {
	Names []string
}

func (e *MissingRefError) Error() string {
	return fmt.Sprintf("no captured value for %s", strings.Join(e.Names, ", "))
}

// Expand substitutes every {name} in s. Unlike config-style replacement, an
// unresolved reference is an error: the selector would silently match nothing.
func Expand(s string, values map[string]string) (string, error) {
	var missing []string
	out := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := values[name]; ok {
			return v
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", &MissingRefError{Names: missing}
	}
	return out, nil
}

// Refs returns the capture names the selector depends on.
func (s Selector) Refs() []string {
	return Refs(s.Value)
}

// Expand returns a copy of the selector with captured values substituted.
func (s Selector) Expand(values map[string]string) (Selector, error) {
	v, err := Expand(s.Value, values)
	if err != nil {
		return Selector{}, err
	}
	s.Value = v
	return s, nil
}
