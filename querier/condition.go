package querier

import (
	"strings"

	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/schema"
)

const defaultOperator = "eq"

// Condition is anything Filter, Exclude and Having accept: a Filter pair or a *Q.
type Condition interface {
	isCondition()
}

// Filter is a "<field>[__<operator>]" key with its value.
type Filter struct {
	Key   string
	Value any
}

func (Filter) isCondition() {}

// F is shorthand for Filter{Key: key, Value: value}.
func F(key string, value any) Filter {
	return Filter{Key: key, Value: value}
}

// FieldResolver looks up the field kind used to coerce values for a column.
// *schema.Model implements it.
type FieldResolver interface {
	Field(name string) (schema.Field, bool)
}

// ParsedKey is the result of splitting a filter key.
type ParsedKey struct {
	Field    string
	Operator string
	// Found is false when the suffix after the last "__" is not a registered
	// operator. Field then holds the whole key and Operator is "eq".
	Found bool
}

// ParseKey splits a filter key on its last "__". The suffix selects an
// operator only if one is registered under that name; otherwise the key is
// taken as a field name compared for equality. A column literally named
// "amount__gt" therefore cannot be filtered by name.
func ParseKey(key string) ParsedKey {
	if i := strings.LastIndex(key, "__"); i >= 0 {
		field, op := key[:i], key[i+2:]
		if _, ok := Lookup(op); ok {
			return ParsedKey{Field: field, Operator: op, Found: true}
		}
	}
	return ParsedKey{Field: key, Operator: defaultOperator}
}

// node binds a field, an operator and a value.
type node struct {
	field string
	op    Operator
	value any
}

func newNode(key string, value any) (node, error) {
	parsed := ParseKey(key)
	if parsed.Field == "" {
		return node{}, fault.Newf(fault.BadInputCode, "filter key `%s` has no field name", key)
	}

	op, ok := Lookup(parsed.Operator)
	if !ok {
		return node{}, fault.Newf(fault.BadInputCode, "operator `%s` is not registered", parsed.Operator)
	}

	if v, ok := op.(ValueValidator); ok {
		if err := v.ValidateValue(value); err != nil {
			return node{}, fault.Newf(fault.BadInputCode, "invalid value for `%s`", key).WithOriginal(err)
		}
	}

	return node{field: parsed.Field, op: op, value: value}, nil
}

func (n node) sql(fields FieldResolver) (string, error) {
	f, ok := fields.Field(n.field)
	if !ok {
		return "", fault.Newf(fault.BadInputCode, "unknown field `%s`", n.field)
	}
	return n.op.SQL(f, n.field, n.value)
}

// rawFields resolves every name to schema.RawField.
type rawFields struct{}

func (rawFields) Field(string) (schema.Field, bool) {
	return schema.RawField{}, true
}

// fallbackFields prefers the primary resolver and treats unknown names, such
// as aliases of calculated fields, as raw expressions.
type fallbackFields struct {
	primary FieldResolver
}

func (r fallbackFields) Field(name string) (schema.Field, bool) {
	if r.primary != nil {
		if f, ok := r.primary.Field(name); ok {
			return f, true
		}
	}
	return schema.RawField{}, true
}
