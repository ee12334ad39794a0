package querier

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/schema"
)

// Operator renders one predicate for a field and a value.
// Implementations must be stateless: output depends only on the operator's
// own configuration and the arguments.
type Operator interface {
	SQL(field schema.Field, name string, value any) (string, error)
}

// ValueValidator is implemented by operators that can reject a value before
// any SQL is rendered. It runs when the condition is constructed.
type ValueValidator interface {
	ValidateValue(value any) error
}

// Subquery is a query that can be embedded as the right-hand side of IN.
type Subquery interface {
	SQL() (string, error)
}

var operators = make(map[string]Operator)

// Register adds or replaces a named operator.
//
// The registry is not synchronized. Register must only be called during
// program initialization, before any condition is built or rendered.
func Register(name string, op Operator) {
	operators[name] = op
}

// Lookup returns the operator registered under name.
func Lookup(name string) (Operator, bool) {
	op, ok := operators[name]
	return op, ok
}

func init() {
	Register("eq", SimpleOperator{Op: "=", NullSQL: "IS NULL"})
	Register("ne", SimpleOperator{Op: "!=", NullSQL: "IS NOT NULL"})
	Register("gt", SimpleOperator{Op: ">"})
	Register("gte", SimpleOperator{Op: ">="})
	Register("lt", SimpleOperator{Op: "<"})
	Register("lte", SimpleOperator{Op: "<="})
	Register("between", BetweenOperator{})
	Register("in", InOperator{})
	Register("not_in", NotOperator{Base: InOperator{}})
	Register("contains", LikeOperator{Pattern: "%{}%", CaseSensitive: true})
	Register("startswith", LikeOperator{Pattern: "{}%", CaseSensitive: true})
	Register("endswith", LikeOperator{Pattern: "%{}", CaseSensitive: true})
	Register("icontains", LikeOperator{Pattern: "%{}%"})
	Register("istartswith", LikeOperator{Pattern: "{}%"})
	Register("iendswith", LikeOperator{Pattern: "%{}"})
	Register("iexact", IExactOperator{})
}

// literal coerces value through field and serializes it.
func literal(field schema.Field, name string, value any, quote bool) (string, error) {
	v, err := field.ToGo(value, time.UTC)
	if err != nil {
		return "", fault.Newf(fault.BadInputCode, "invalid value for field `%s`", name).WithOriginal(err)
	}
	return field.ToDBString(v, quote), nil
}

// SimpleOperator is a binary comparison such as = or <. When NullSQL is set
// and the value serializes to NULL, it renders "field NullSQL" instead.
type SimpleOperator struct {
	Op      string
	NullSQL string
}

func (o SimpleOperator) SQL(field schema.Field, name string, value any) (string, error) {
	lit, err := literal(field, name, value, true)
	if err != nil {
		return "", err
	}

	if lit == schema.Null && o.NullSQL != "" {
		return fmt.Sprintf("%s %s", name, o.NullSQL), nil
	}
	return fmt.Sprintf("%s %s %s", name, o.Op, lit), nil
}

// InOperator renders IN. The value may be a Subquery, a string used verbatim
// between the parentheses, or a slice of values.
type InOperator struct{}

func (InOperator) SQL(field schema.Field, name string, value any) (string, error) {
	var list string

	switch v := value.(type) {
	case Subquery:
		sql, err := v.SQL()
		if err != nil {
			return "", fmt.Errorf("failed to render subquery for `%s`: %w", name, err)
		}
		list = sql
	case string:
		list = v
	default:
		items, ok := sequence(value)
		if !ok {
			return "", fault.Newf(fault.BadInputCode, "`%s__in` expects a list, a string or a query, got %T", name, value)
		}

		parts := make([]string, len(items))
		for i, item := range items {
			lit, err := literal(field, name, item, true)
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		list = strings.Join(parts, ", ")
	}

	return fmt.Sprintf("%s IN (%s)", name, list), nil
}

// LikeOperator matches against a pattern in which {} stands for the escaped
// value. Case-insensitive variants fold both sides with lowerUTF8.
type LikeOperator struct {
	Pattern       string
	CaseSensitive bool
}

func (o LikeOperator) SQL(field schema.Field, name string, value any) (string, error) {
	lit, err := literal(field, name, value, false)
	if err != nil {
		return "", err
	}

	pattern := strings.Replace(o.Pattern, "{}", likeEscape(lit), 1)
	if o.CaseSensitive {
		return fmt.Sprintf("%s LIKE '%s'", name, pattern), nil
	}
	return fmt.Sprintf("lowerUTF8(toString(%s)) LIKE lowerUTF8('%s')", name, pattern), nil
}

// likeEscape escapes the LIKE metacharacters of a string literal body that is
// already escaped for ClickHouse. Every backslash in lit starts an escape
// pair, so only a pair encoding a literal backslash is doubled again.
func likeEscape(lit string) string {
	var b strings.Builder
	b.Grow(len(lit) + 8)
	for i := 0; i < len(lit); i++ {
		switch c := lit[i]; c {
		case '\\':
			if i+1 < len(lit) && lit[i+1] == '\\' {
				b.WriteString(`\\\\`)
			} else {
				b.WriteByte(c)
				if i+1 < len(lit) {
					b.WriteByte(lit[i+1])
				}
			}
			i++
		case '%', '_':
			b.WriteString(`\\`)
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IExactOperator is case-insensitive equality.
type IExactOperator struct{}

func (IExactOperator) SQL(field schema.Field, name string, value any) (string, error) {
	lit, err := literal(field, name, value, true)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("lowerUTF8(%s) = lowerUTF8(%s)", name, lit), nil
}

// NotOperator negates another operator.
type NotOperator struct {
	Base Operator
}

func (o NotOperator) SQL(field schema.Field, name string, value any) (string, error) {
	sql, err := o.Base.SQL(field, name, value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("NOT (%s)", sql), nil
}

func (o NotOperator) ValidateValue(value any) error {
	if v, ok := o.Base.(ValueValidator); ok {
		return v.ValidateValue(value)
	}
	return nil
}

// BetweenOperator renders BETWEEN for a two element value. A bound that is
// nil or empty is absent: with one bound absent the predicate degrades to
// >= or <=, with both absent it is an error.
type BetweenOperator struct{}

func (BetweenOperator) ValidateValue(value any) error {
	_, _, err := bounds(value)
	return err
}

func (BetweenOperator) SQL(field schema.Field, name string, value any) (string, error) {
	low, high, err := bounds(value)
	if err != nil {
		return "", err
	}

	var lo, hi string
	if low != nil {
		if lo, err = literal(field, name, low, true); err != nil {
			return "", err
		}
	}
	if high != nil {
		if hi, err = literal(field, name, high, true); err != nil {
			return "", err
		}
	}

	switch {
	case low != nil && high != nil:
		return fmt.Sprintf("%s BETWEEN %s AND %s", name, lo, hi), nil
	case low != nil:
		return fmt.Sprintf("%s >= %s", name, lo), nil
	default:
		return fmt.Sprintf("%s <= %s", name, hi), nil
	}
}

// bounds splits a between value into its bounds, mapping absent ones to nil.
func bounds(value any) (any, any, error) {
	items, ok := sequence(value)
	if !ok || len(items) != 2 {
		return nil, nil, fault.Newf(fault.BadInputCode, "between expects exactly two bounds, got %#v", value)
	}

	low, high := items[0], items[1]
	if absent(low) {
		low = nil
	}
	if absent(high) {
		high = nil
	}
	if low == nil && high == nil {
		return nil, nil, fault.New(fault.BadInputCode, "between requires at least one bound")
	}
	return low, high, nil
}

func absent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return true
	}
	return fmt.Sprint(v) == ""
}

// sequence returns the items of a slice or array value.
func sequence(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	items := make([]any, rv.Len())
	for i := range rv.Len() {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
