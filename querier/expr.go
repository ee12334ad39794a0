package querier

import (
	"strings"

	"github.com/thisisjab/chquery/schema"
)

// Expr is a SQL expression fragment. Expressions compose with the methods
// below; plain Go values passed as operands are escaped as literals.
//
//	Func("sum", Col("amount")).Mul(100).As("cents")
type Expr string

// Col refers to a column.
func Col(name string) Expr {
	return Expr(name)
}

// Func calls a ClickHouse function.
func Func(name string, args ...any) Expr {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = exprLiteral(a)
	}
	return Expr(name + "(" + strings.Join(parts, ", ") + ")")
}

func exprLiteral(v any) string {
	if e, ok := v.(Expr); ok {
		return string(e)
	}
	return schema.EscapeValue(v, true)
}

func (e Expr) String() string {
	return string(e)
}

func (e Expr) binary(op string, other any) Expr {
	return Expr(string(e) + " " + op + " " + exprLiteral(other))
}

func (e Expr) Eq(v any) Expr  { return e.binary("=", v) }
func (e Expr) Ne(v any) Expr  { return e.binary("!=", v) }
func (e Expr) Lt(v any) Expr  { return e.binary("<", v) }
func (e Expr) Le(v any) Expr  { return e.binary("<=", v) }
func (e Expr) Gt(v any) Expr  { return e.binary(">", v) }
func (e Expr) Ge(v any) Expr  { return e.binary(">=", v) }
func (e Expr) Add(v any) Expr { return e.binary("+", v) }
func (e Expr) Sub(v any) Expr { return e.binary("-", v) }
func (e Expr) Mul(v any) Expr { return e.binary("*", v) }
func (e Expr) Div(v any) Expr { return e.binary("/", v) }
func (e Expr) Mod(v any) Expr { return e.binary("%", v) }
func (e Expr) And(v any) Expr { return e.binary("AND", v) }
func (e Expr) Or(v any) Expr  { return e.binary("OR", v) }

// Paren wraps e in parentheses.
func (e Expr) Paren() Expr {
	return "(" + e + ")"
}

// As names e as a calculated field.
func (e Expr) As(alias string) Calculated {
	return Calculated{Alias: alias, Expr: string(e)}
}

// Calculated is an aggregate output column: Expr AS Alias.
type Calculated struct {
	Alias string `json:"alias" yaml:"alias"`
	Expr  string `json:"expr" yaml:"expr"`
}

// Calc is shorthand for Calculated{Alias: alias, Expr: expr}.
func Calc(alias, expr string) Calculated {
	return Calculated{Alias: alias, Expr: expr}
}
