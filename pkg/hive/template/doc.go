// Package template interpolates state values into prompt text.
//
// System prompts and other authored strings reference state keys with
// ${key} placeholders. Expand substitutes each placeholder with the
// value under that key; ExpandStrict instead fails on a placeholder
// with no value, for callers that treat an incomplete prompt as a
// configuration error.
package template
