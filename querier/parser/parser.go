// Package parser compiles the textual filter language into condition trees.
//
// A filter is a boolean expression over comparisons:
//
//	amount__gt=10 & (name~"ab" | !status=closed,archived)
//
// "!" binds tighter than "&", which binds tighter than "|". A comparison is
// a filter key, one of = != < <= > >= ~ and one or more comma separated
// values. With = the key may carry an operator suffix such as __between or
// __iexact; a plain key with several values means __in. != negates, < <= >
// >= select __lt, __lte, __gt and __gte, and ~ selects __contains.
package parser

import (
	"encoding/json"

	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/querier"
	"github.com/thisisjab/chquery/querier/lexer"
	"github.com/thisisjab/chquery/querier/token"
)

type Parser struct {
	l         *lexer.Lexer
	curToken  token.Token
	peekToken token.Token
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l: l,
	}

	p.nextToken()
	p.nextToken()

	return p
}

// Parse compiles input into a condition tree. Blank input yields the empty
// tree.
func Parse(input string) (*querier.Q, error) {
	return New(lexer.New(input)).ParseFilter()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) ParseFilter() (*querier.Q, error) {
	if p.curToken.Type == token.EOF {
		return &querier.Q{}, nil
	}

	q, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if p.curToken.Type != token.EOF {
		return nil, p.unexpected()
	}

	return q, nil
}

func (p *Parser) unexpected() error {
	if p.curToken.Type == token.EOF {
		return fault.New(fault.BadInputCode, "unexpected end of filter")
	}
	return fault.Newf(fault.BadInputCode, "unexpected `%s` at position %d", p.curToken.Literal, p.curToken.Pos)
}

func (p *Parser) parseOr() (*querier.Q, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.curToken.Type == token.OR {
		p.nextToken()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = left.Or(right)
	}

	return left, nil
}

func (p *Parser) parseAnd() (*querier.Q, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.curToken.Type == token.AND {
		p.nextToken()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = left.And(right)
	}

	return left, nil
}

func (p *Parser) parseUnary() (*querier.Q, error) {
	switch p.curToken.Type {
	case token.NOT:
		p.nextToken()

		q, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return q.Not(), nil

	case token.LPAREN:
		p.nextToken()

		q, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.curToken.Type != token.RPAREN {
			return nil, p.unexpected()
		}
		p.nextToken()
		return q, nil

	case token.IDENT:
		return p.parseComparison()

	default:
		return nil, p.unexpected()
	}
}

var suffixes = map[token.TokenType]string{
	token.LESS:         "lt",
	token.LESSEQUAL:    "lte",
	token.GREATER:      "gt",
	token.GREATEREQUAL: "gte",
	token.TILDE:        "contains",
}

// listOperators always receive their values as a list, so a single quoted
// value stays a literal instead of reaching IN verbatim.
var listOperators = map[string]bool{
	"in":     true,
	"not_in": true,
}

func (p *Parser) parseComparison() (*querier.Q, error) {
	key := p.curToken
	p.nextToken()

	op := p.curToken
	switch op.Type {
	case token.EQUAL, token.NOTEQUAL, token.LESS, token.LESSEQUAL, token.GREATER, token.GREATEREQUAL, token.TILDE:
	default:
		return nil, p.unexpected()
	}
	p.nextToken()

	values, err := p.parseValues()
	if err != nil {
		return nil, err
	}

	return comparison(key, op.Type, values)
}

func comparison(key token.Token, op token.TokenType, values []any) (*querier.Q, error) {
	parsed := querier.ParseKey(key.Literal)

	var value any = values[0]
	if len(values) > 1 || listOperators[parsed.Operator] {
		value = values
	}

	switch op {
	case token.EQUAL:
		if !parsed.Found && len(values) > 1 {
			return querier.NewQ(querier.F(key.Literal+"__in", value))
		}
		return querier.NewQ(querier.F(key.Literal, value))

	case token.NOTEQUAL:
		if parsed.Found {
			q, err := querier.NewQ(querier.F(key.Literal, value))
			if err != nil {
				return nil, err
			}
			return q.Not(), nil
		}
		if len(values) > 1 {
			return querier.NewQ(querier.F(key.Literal+"__not_in", value))
		}
		return querier.NewQ(querier.F(key.Literal+"__ne", value))

	default:
		if parsed.Found {
			return nil, fault.Newf(fault.BadInputCode, "`%s` already names an operator and cannot be used with `%s`", key.Literal, op)
		}
		if len(values) > 1 {
			return nil, fault.Newf(fault.BadInputCode, "`%s` accepts a single value at position %d", op, key.Pos)
		}
		return querier.NewQ(querier.F(key.Literal+"__"+suffixes[op], value))
	}
}

func (p *Parser) parseValues() ([]any, error) {
	var values []any

	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)

		if p.curToken.Type != token.COMMA {
			return values, nil
		}
		p.nextToken()
	}
}

// parseValue reads one literal. Numbers become json.Number so that every
// field kind can coerce them.
func (p *Parser) parseValue() (any, error) {
	tok := p.curToken

	var v any
	switch tok.Type {
	case token.MINUS:
		p.nextToken()
		if p.curToken.Type != token.INT && p.curToken.Type != token.DECIMAL {
			return nil, p.unexpected()
		}
		v = json.Number("-" + p.curToken.Literal)
	case token.INT, token.DECIMAL:
		v = json.Number(tok.Literal)
	case token.STRING, token.IDENT:
		v = tok.Literal
	case token.NULL:
		v = nil
	case token.TRUE:
		v = true
	case token.FALSE:
		v = false
	default:
		return nil, p.unexpected()
	}

	p.nextToken()
	return v, nil
}
