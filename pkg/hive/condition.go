package hive

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hive-run/graphrt/pkg/hive/expr"
)

// evalCondition evaluates an EdgeSpec condition string against a node's
// output namespace. The sublanguage supports identifiers, == != < <= >
// >=, && || !, string/number/boolean literals, and the function calls
// exists(key), len(value), contains(haystack, needle). It has no side
// effects; an unresolved identifier or a malformed expression evaluates
// to false rather than erroring.
func evalCondition(condition string, vars map[string]any) bool {
	cond := strings.TrimSpace(condition)
	switch cond {
	case "", CondAlways:
		return true
	}

	switch strings.ToLower(cond) {
	case "true":
		return true
	case "false":
		return false
	}

	cond = expandFunctionCalls(cond, vars)

	ok, err := expr.Eval(cond, vars)
	if err != nil {
		return false
	}
	return ok
}

var (
	existsCallRe   = regexp.MustCompile(`exists\(\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\)`)
	lenCallRe      = regexp.MustCompile(`len\(\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\)`)
	containsCallRe = regexp.MustCompile(`contains\(\s*([^,()]+?)\s*,\s*([^,()]+?)\s*\)`)
)

// expandFunctionCalls rewrites exists(key), len(value), and
// contains(haystack, needle) calls into literals the underlying infix
// evaluator understands, so the rest of the grammar (comparisons,
// &&/||/!) can run unmodified over the result.
func expandFunctionCalls(cond string, vars map[string]any) string {
	cond = containsCallRe.ReplaceAllStringFunc(cond, func(m string) string {
		sub := containsCallRe.FindStringSubmatch(m)
		haystack, hok := expr.Resolve(sub[1], vars)
		needle, nok := expr.Resolve(sub[2], vars)
		if !hok || !nok {
			return "false"
		}
		found, _ := expr.Compare(haystack, needle, "contains")
		return strconv.FormatBool(found)
	})
	cond = existsCallRe.ReplaceAllStringFunc(cond, func(m string) string {
		sub := existsCallRe.FindStringSubmatch(m)
		_, ok := vars[sub[1]]
		return strconv.FormatBool(ok)
	})
	cond = lenCallRe.ReplaceAllStringFunc(cond, func(m string) string {
		sub := lenCallRe.FindStringSubmatch(m)
		v, ok := vars[sub[1]]
		if !ok {
			return "0"
		}
		return strconv.Itoa(valueLen(v))
	})
	return cond
}

// valueLen reports the length of a collection-ish value: strings by
// byte length via len(), slices/maps by element count, everything else 0.
func valueLen(v any) int {
	switch val := v.(type) {
	case string:
		return len(val)
	case []any:
		return len(val)
	case map[string]any:
		return len(val)
	default:
		return 0
	}
}
