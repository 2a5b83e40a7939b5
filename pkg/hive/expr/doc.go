/*
Package expr evaluates the boolean sublanguage that edge conditions are
written in.

The grammar, lowest precedence first:

	or     := and ( '||' and )*
	and    := unary ( '&&' unary )*
	unary  := '!' unary | primary
	primary:= '(' or ')' | comparison
	comparison := operand ( ('==' | '!=' | '<' | '<=' | '>' | '>=') operand )?
	operand    := string | number | 'true' | 'false' | 'null' | identifier

Identifiers name keys in the variable map. A comparison or bare term
over an identifier that does not resolve is false, never an error: the
evaluator reports malformed input through its error return, and callers
collapse that to false so a bad expression can never unwind an
execution.

Evaluation has no side effects on the variable map.
*/
package expr
