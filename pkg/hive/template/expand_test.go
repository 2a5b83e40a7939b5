package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		vars  map[string]any
		want  string
	}{
		{"single key", "Summarize ${topic}", map[string]any{"topic": "the report"}, "Summarize the report"},
		{"multiple keys", "${greeting}, ${name}!", map[string]any{"greeting": "Hello", "name": "World"}, "Hello, World!"},
		{"repeated key", "${x} and ${x}", map[string]any{"x": "again"}, "again and again"},
		{"numeric value", "retry ${count} times", map[string]any{"count": 3}, "retry 3 times"},
		{"boolean value", "ready: ${ok}", map[string]any{"ok": true}, "ready: true"},
		{"missing key kept", "Hello ${name}", nil, "Hello ${name}"},
		{"no placeholders", "plain text", map[string]any{"name": "x"}, "plain text"},
		{"empty string", "", map[string]any{"name": "x"}, ""},
		{"adjacent placeholders", "${a}${b}", map[string]any{"a": "1", "b": "2"}, "12"},
		{"malformed placeholder untouched", "cost is ${1st}", map[string]any{"1st": "x"}, "cost is ${1st}"},
		{"bare dollar untouched", "$HOME and ${home}", map[string]any{"home": "/tmp"}, "$HOME and /tmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.input, tt.vars))
		})
	}
}

func TestExpandStrict(t *testing.T) {
	out, err := ExpandStrict("Hello ${name}", map[string]any{"name": "World"})
	require.NoError(t, err)
	assert.Equal(t, "Hello World", out)
}

func TestExpandStrict_CollectsAllMissingKeys(t *testing.T) {
	_, err := ExpandStrict("${a} ${b} ${c}", map[string]any{"b": "x"})
	require.Error(t, err)

	var unbound *UnboundKeysError
	require.ErrorAs(t, err, &unbound)
	assert.Equal(t, []string{"a", "c"}, unbound.Keys)
	assert.Contains(t, err.Error(), "a, c")
}

func TestExpandMap(t *testing.T) {
	vars := map[string]any{"host": "example.com", "user": "ada"}
	in := map[string]any{
		"url":  "https://${host}/api",
		"port": 8080,
		"auth": map[string]any{"login": "${user}"},
	}

	out := ExpandMap(in, vars)
	assert.Equal(t, "https://example.com/api", out["url"])
	assert.Equal(t, 8080, out["port"])
	assert.Equal(t, map[string]any{"login": "ada"}, out["auth"])

	// Input is left untouched.
	assert.Equal(t, "https://${host}/api", in["url"])
}

func TestExpandMap_Nil(t *testing.T) {
	assert.Nil(t, ExpandMap(nil, nil))
}
