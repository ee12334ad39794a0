// Package lexer splits filter expressions such as
//
//	amount__gt=10 & (name~"ab" | !status=closed,archived)
//
// into tokens.
package lexer

import (
	"strings"

	"github.com/thisisjab/chquery/querier/token"
)

type Lexer struct {
	input   []rune
	pos     int  // position of the current character in the input string
	readPos int  // position of the next character to be read
	char    rune // current character being processed
}

var keywords = map[string]token.TokenType{
	"null":  token.NULL,
	"true":  token.TRUE,
	"false": token.FALSE,
}

func New(input string) *Lexer {
	l := &Lexer{[]rune(input), 0, 0, 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.char = 0
	} else {
		l.char = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) NextToken() token.Token {
	var tok token.Token

	l.skipWhitespace()
	start := l.pos

	switch l.char {
	case '=':
		tok = token.Token{Type: token.EQUAL, Literal: "="}
	case '~':
		tok = token.Token{Type: token.TILDE, Literal: "~"}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok = token.Token{Type: token.LESSEQUAL, Literal: "<="}
		} else {
			tok = token.Token{Type: token.LESS, Literal: "<"}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = token.Token{Type: token.GREATEREQUAL, Literal: ">="}
		} else {
			tok = token.Token{Type: token.GREATER, Literal: ">"}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = token.Token{Type: token.NOTEQUAL, Literal: "!="}
		} else {
			tok = token.Token{Type: token.NOT, Literal: "!"}
		}
	case ',':
		tok = token.Token{Type: token.COMMA, Literal: ","}
	case '(':
		tok = token.Token{Type: token.LPAREN, Literal: "("}
	case ')':
		tok = token.Token{Type: token.RPAREN, Literal: ")"}
	case '&':
		tok = token.Token{Type: token.AND, Literal: "&"}
	case '|':
		tok = token.Token{Type: token.OR, Literal: "|"}
	case '-':
		tok = token.Token{Type: token.MINUS, Literal: "-"}
	case 0:
		return token.Token{Type: token.EOF, Literal: "", Pos: start}
	case '"':
		s, ok := l.readQuotedString()
		if !ok {
			return token.Token{Type: token.ILLEGAL, Literal: string(l.input[start:]), Pos: start}
		}
		tok = token.Token{Type: token.STRING, Literal: s}
	default:
		if isLetter(l.char) {
			tok = l.readIdentifier()
		} else if isDigit(l.char) {
			tok = l.readPossibleNumber()
		} else {
			tok = token.Token{Type: token.ILLEGAL, Literal: string(l.char)}
			l.readChar()
		}
		tok.Pos = start
		return tok
	}

	tok.Pos = start
	l.readChar()
	return tok
}

func (l *Lexer) readIdentifier() token.Token {
	pos := l.pos

	for {
		// Stop if we hit a boundary: space, comma, EOF, or an operator (=, &, |, etc.)
		if l.char == 0 || isWhitespace(l.char) || l.char == ',' || isOperator(l.char) {
			break
		}
		l.readChar()
	}

	literal := string(l.input[pos:l.pos])

	return token.Token{Type: l.lookupIdent(literal), Literal: literal}
}

func (l *Lexer) lookupIdent(ident string) token.TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return token.IDENT
}

func isLetter(r rune) bool {
	return 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || r == '_' || r == '.' || r == '-'
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func (l *Lexer) skipWhitespace() {
	for isWhitespace(l.char) {
		l.readChar()
	}
}

func (l *Lexer) readPossibleNumber() token.Token {
	pos := l.pos
	hasDot := false
	isPureNumber := true

	for {
		if isDigit(l.char) {
			l.readChar()
		} else if l.char == '.' {
			if hasDot { // Second dot? It's definitely not a valid float, treat as string/ident
				isPureNumber = false
			}
			hasDot = true
			l.readChar()
		} else if l.char == ',' || isWhitespace(l.char) || l.char == 0 || isOperator(l.char) {
			// These are the boundaries where we MUST stop
			break
		} else {
			// Dates, versions and similar values: a literal, but not a number.
			isPureNumber = false
			l.readChar()
		}
	}

	literal := string(l.input[pos:l.pos])

	if !isPureNumber {
		return token.Token{Type: token.STRING, Literal: literal}
	}
	if hasDot {
		return token.Token{Type: token.DECIMAL, Literal: literal}
	}
	return token.Token{Type: token.INT, Literal: literal}
}

// readQuotedString reads a double quoted string. A backslash escapes the
// next character. It reports false if the closing quote is missing.
func (l *Lexer) readQuotedString() (string, bool) {
	var b strings.Builder

	for {
		l.readChar()
		switch l.char {
		case 0:
			return "", false
		case '"':
			return b.String(), true
		case '\\':
			l.readChar()
			if l.char == 0 {
				return "", false
			}
		}
		b.WriteRune(l.char)
	}
}

func isOperator(r rune) bool {
	return r == '=' || r == '~' || r == '!' || r == '&' || r == '|' || r == '(' || r == ')' || r == '<' || r == '>' || r == '"'
}
