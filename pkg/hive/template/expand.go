package template

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderRe matches ${key} where key is an identifier.
var placeholderRe = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Expand substitutes ${key} placeholders in s with the string form of
// vars[key]. Placeholders with no value are kept as written, so a
// partially-bound prompt stays inspectable rather than silently losing
// text.
func Expand(s string, vars map[string]any) string {
	out, _ := expand(s, vars, false)
	return out
}

// ExpandStrict is Expand that fails when any placeholder has no value.
// All missing keys are collected into one UnboundKeysError.
func ExpandStrict(s string, vars map[string]any) (string, error) {
	return expand(s, vars, true)
}

// ExpandMap expands every string value of m, recursing into nested
// map[string]any values. Non-string values are carried over unchanged.
func ExpandMap(m map[string]any, vars map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = Expand(val, vars)
		case map[string]any:
			out[k] = ExpandMap(val, vars)
		default:
			out[k] = v
		}
	}
	return out
}

func expand(s string, vars map[string]any, strict bool) (string, error) {
	if s == "" || !strings.Contains(s, "${") {
		return s, nil
	}
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if v, ok := vars[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		missing = append(missing, key)
		return match
	})
	if strict && len(missing) > 0 {
		return out, &UnboundKeysError{Keys: missing}
	}
	return out, nil
}

// UnboundKeysError reports the placeholders ExpandStrict could not bind.
type UnboundKeysError struct {
	Keys []string
}

func (e *UnboundKeysError) Error() string {
	return fmt.Sprintf("template: unbound keys: %s", strings.Join(e.Keys, ", "))
}
