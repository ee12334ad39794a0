// Package token defines the tokens of the filter language.
package token

const (
	ILLEGAL TokenType = iota
	EOF

	// Identifiers + literals
	IDENT
	INT
	DECIMAL
	STRING
	NULL
	TRUE
	FALSE

	// Delimiters
	COMMA
	LPAREN
	RPAREN

	EQUAL
	NOTEQUAL
	LESS
	LESSEQUAL
	GREATER
	GREATEREQUAL
	TILDE
	MINUS
	AND
	OR
	NOT
)

type TokenType int

var names = [...]string{
	ILLEGAL:      "ILLEGAL",
	EOF:          "EOF",
	IDENT:        "IDENT",
	INT:          "INT",
	DECIMAL:      "DECIMAL",
	STRING:       "STRING",
	NULL:         "null",
	TRUE:         "true",
	FALSE:        "false",
	COMMA:        ",",
	LPAREN:       "(",
	RPAREN:       ")",
	EQUAL:        "=",
	NOTEQUAL:     "!=",
	LESS:         "<",
	LESSEQUAL:    "<=",
	GREATER:      ">",
	GREATEREQUAL: ">=",
	TILDE:        "~",
	MINUS:        "-",
	AND:          "&",
	OR:           "|",
	NOT:          "!",
}

func (t TokenType) String() string {
	if int(t) < len(names) {
		return names[t]
	}
	return "UNKNOWN"
}

type Token struct {
	Type    TokenType
	Literal string
	// Pos is the rune offset of the token in the input.
	Pos int
}
