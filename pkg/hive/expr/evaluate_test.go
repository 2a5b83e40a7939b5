package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	vars := map[string]any{
		"status":  "active",
		"count":   int64(7),
		"ratio":   0.5,
		"ready":   true,
		"blocked": false,
		"label":   "",
		"zero":    0,
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"single-quoted equality", "status == 'active'", true},
		{"double-quoted equality", `status == "active"`, true},
		{"equality miss", "status == 'inactive'", false},
		{"inequality", "status != 'inactive'", true},
		{"int greater", "count > 5", true},
		{"int greater-equal boundary", "count >= 7", true},
		{"int less false", "count < 7", false},
		{"int less-equal boundary", "count <= 7", true},
		{"float comparison", "ratio < 1", true},
		{"numeric equality across int and float", "count == 7.0", true},
		{"number against numeric string", "count > '5'", true},
		{"bool against keyword", "ready == true", true},
		{"bool against keyword false", "blocked == true", false},
		{"bare truthy identifier", "ready", true},
		{"bare falsy identifier", "blocked", false},
		{"bare empty string is falsy", "label", false},
		{"bare zero is falsy", "zero", false},
		{"negation", "!blocked", true},
		{"double negation", "!!ready", true},
		{"conjunction", "ready && count > 5", true},
		{"conjunction short side false", "blocked && count > 5", false},
		{"disjunction", "blocked || ready", true},
		{"or lower precedence than and", "blocked && blocked || ready", true},
		{"parentheses override precedence", "blocked && (blocked || ready)", false},
		{"negated group", "!(status == 'inactive')", true},
		{"literal true", "true", true},
		{"literal false", "false", false},
		{"null is falsy", "null", false},
		{"quoted operator text stays literal", `status == "a && b"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "expression %q", tt.expr)
		})
	}
}

func TestEval_UnresolvedIdentifiers(t *testing.T) {
	vars := map[string]any{"present": "present"}

	// An identifier that does not resolve poisons its term to false, even
	// when the comparison would hold over its literal spelling.
	tests := []string{
		"missing",
		"missing == 'missing'",
		"missing == missing",
		"missing != 'anything'",
		"missing > 0",
		"present == missing",
	}
	for _, e := range tests {
		got, err := Eval(e, vars)
		require.NoError(t, err, "expression %q", e)
		assert.False(t, got, "expression %q", e)
	}

	// ...but only its own term: the other branch of a disjunction still
	// counts.
	got, err := Eval("missing || present == 'present'", vars)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEval_Malformed(t *testing.T) {
	for _, e := range []string{
		">",
		"count >",
		"== 3",
		"count == 3 &&",
		"(count > 1",
		"count ==== 3",
		"a & b",
		"a | b",
		"x = 1",
		"'unterminated",
	} {
		_, err := Eval(e, map[string]any{"count": 1})
		assert.Error(t, err, "expression %q", e)
	}
}

func TestEval_EmptyExpressionIsFalse(t *testing.T) {
	got, err := Eval("   ", nil)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEval_NoSideEffects(t *testing.T) {
	vars := map[string]any{"x": 1}
	_, err := Eval("x > 0 && y == 'z'", vars)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, vars)
}

func TestResolve(t *testing.T) {
	vars := map[string]any{"key": "value"}

	tests := []struct {
		token    string
		want     any
		resolved bool
	}{
		{"'quoted'", "quoted", true},
		{`"quoted"`, "quoted", true},
		{"true", true, true},
		{"false", false, true},
		{"null", nil, true},
		{"42", int64(42), true},
		{"-3", int64(-3), true},
		{"2.5", 2.5, true},
		{"key", "value", true},
		{"absent", nil, false},
	}
	for _, tt := range tests {
		got, ok := Resolve(tt.token, vars)
		assert.Equal(t, tt.resolved, ok, "token %q", tt.token)
		assert.Equal(t, tt.want, got, "token %q", tt.token)
	}
}

func TestCompare_Contains(t *testing.T) {
	got, err := Compare("needle in haystack", "needle", "contains")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Compare("needle in haystack", "pin", "contains")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCompare_UnknownOperator(t *testing.T) {
	_, err := Compare(1, 2, "~=")
	assert.Error(t, err)
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, IsTruthy(nil))
	assert.False(t, IsTruthy(false))
	assert.False(t, IsTruthy(""))
	assert.False(t, IsTruthy(0))
	assert.False(t, IsTruthy(0.0))
	assert.True(t, IsTruthy(true))
	assert.True(t, IsTruthy("text"))
	assert.True(t, IsTruthy(3))
	assert.True(t, IsTruthy([]any{}))
}

func TestAsFloat(t *testing.T) {
	f, ok := AsFloat(int64(3))
	require.True(t, ok)
	assert.Equal(t, 3.0, f)

	f, ok = AsFloat("2.5")
	require.True(t, ok)
	assert.Equal(t, 2.5, f)

	_, ok = AsFloat("not a number")
	assert.False(t, ok)

	_, ok = AsFloat(true)
	assert.False(t, ok)
}
