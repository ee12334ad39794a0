package lexer

import (
	"testing"

	"github.com/thisisjab/chquery/querier/token"
)

func TestNextToken(t *testing.T) {
	input := `=~!(),&|-
	amount__gt=-19
	null
	true
	false
	status=open,on-hold
	created__between=2016-12-20,2018-01-01
	name = "hello \"quoted\" \\ message"
	name~"error"
	price <= 10.5
	views >= 2000
	user.id!=3000
	score< 4000
	score>4000
	!(a=1 | b=2)
	`
	l := New(input)

	tests := []struct {
		expectedType    token.TokenType
		expectedLiteral string
	}{
		{token.EQUAL, "="},
		{token.TILDE, "~"},
		{token.NOT, "!"},
		{token.LPAREN, "("},
		{token.RPAREN, ")"},
		{token.COMMA, ","},
		{token.AND, "&"},
		{token.OR, "|"},
		{token.MINUS, "-"},
		{token.IDENT, "amount__gt"},
		{token.EQUAL, "="},
		{token.MINUS, "-"},
		{token.INT, "19"},
		{token.NULL, "null"},
		{token.TRUE, "true"},
		{token.FALSE, "false"},
		{token.IDENT, "status"},
		{token.EQUAL, "="},
		{token.IDENT, "open"},
		{token.COMMA, ","},
		{token.IDENT, "on-hold"},
		{token.IDENT, "created__between"},
		{token.EQUAL, "="},
		{token.STRING, "2016-12-20"},
		{token.COMMA, ","},
		{token.STRING, "2018-01-01"},
		{token.IDENT, "name"},
		{token.EQUAL, "="},
		{token.STRING, `hello "quoted" \ message`},
		{token.IDENT, "name"},
		{token.TILDE, "~"},
		{token.STRING, "error"},
		{token.IDENT, "price"},
		{token.LESSEQUAL, "<="},
		{token.DECIMAL, "10.5"},
		{token.IDENT, "views"},
		{token.GREATEREQUAL, ">="},
		{token.INT, "2000"},
		{token.IDENT, "user.id"},
		{token.NOTEQUAL, "!="},
		{token.INT, "3000"},
		{token.IDENT, "score"},
		{token.LESS, "<"},
		{token.INT, "4000"},
		{token.IDENT, "score"},
		{token.GREATER, ">"},
		{token.INT, "4000"},
		{token.NOT, "!"},
		{token.LPAREN, "("},
		{token.IDENT, "a"},
		{token.EQUAL, "="},
		{token.INT, "1"},
		{token.OR, "|"},
		{token.IDENT, "b"},
		{token.EQUAL, "="},
		{token.INT, "2"},
		{token.RPAREN, ")"},
		{token.EOF, ""},
	}

	for i, tt := range tests {
		tok := l.NextToken()

		if tok.Type != tt.expectedType {
			t.Fatalf("#%d - expected type `%s`, got `%s` (%q)", i, tt.expectedType, tok.Type, tok.Literal)
		}

		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("#%d - expected literal `%s`, got `%s`", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNextTokenPositions(t *testing.T) {
	l := New(`a = "x"`)

	want := []int{0, 2, 4, 7}
	for i, pos := range want {
		tok := l.NextToken()
		if tok.Pos != pos {
			t.Fatalf("#%d - expected position %d, got %d for %q", i, pos, tok.Pos, tok.Literal)
		}
	}
}

func TestNextTokenIllegal(t *testing.T) {
	tests := map[string]string{
		`"unterminated`: `"unterminated`,
		`"trailing \`:   `"trailing \`,
		`#`:             `#`,
	}

	for input, literal := range tests {
		tok := New(input).NextToken()
		if tok.Type != token.ILLEGAL {
			t.Fatalf("NextToken(%q) = %s, want ILLEGAL", input, tok.Type)
		}
		if tok.Literal != literal {
			t.Fatalf("NextToken(%q) literal = %q, want %q", input, tok.Literal, literal)
		}
	}
}
