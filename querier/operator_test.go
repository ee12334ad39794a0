package querier

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/schema"
)

func TestParseKey(t *testing.T) {
	tests := map[string]ParsedKey{
		"kind":            {Field: "kind", Operator: "eq"},
		"amount__gt":      {Field: "amount", Operator: "gt", Found: true},
		"a__b__in":        {Field: "a__b", Operator: "in", Found: true},
		"created__date":   {Field: "created__date", Operator: "eq"},
		"name__icontains": {Field: "name", Operator: "icontains", Found: true},
		"__in":            {Field: "", Operator: "in", Found: true},
	}

	for key, expected := range tests {
		assert.Equal(t, expected, ParseKey(key), key)
	}
}

func TestOperators(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		expected string
	}{
		{"eq", F("kind", "click"), "kind = 'click'"},
		{"eq escapes quotes", F("kind", "O'Brien"), `kind = 'O\'Brien'`},
		{"ne", F("kind__ne", "click"), "kind != 'click'"},
		{"gt int", F("quantity__gt", 5), "quantity > 5"},
		{"gte numeric string", F("quantity__gte", "7"), "quantity >= 7"},
		{"gte json number", F("quantity__gte", json.Number("8")), "quantity >= 8"},
		{"lt decimal", F("amount__lt", 10), "amount < 10.00"},
		{"lte decimal rounds", F("amount__lte", "3.456"), "amount <= 3.46"},
		{"in list", F("quantity__in", []int{1, 2, 3}), "quantity IN (1, 2, 3)"},
		{"in raw string", F("kind__in", "SELECT kind FROM kinds"), "kind IN (SELECT kind FROM kinds)"},
		{"in subquery", F("id__in", New(sessions, nil).Only("id")), "id IN (SELECT id FROM sessions WHERE 1)"},
		{"not in", F("quantity__not_in", []int{1}), "NOT (quantity IN (1))"},
		{"contains escapes wildcards", F("kind__contains", "50%_off"), `kind LIKE '%50\\%\\_off%'`},
		{"contains escapes backslash", F("kind__contains", `a\b`), `kind LIKE '%a\\\\b%'`},
		{"contains escapes quotes", F("kind__contains", "O'Brien"), `kind LIKE '%O\'Brien%'`},
		{"contains keeps quote inside literal", F("kind__contains", "x' OR 1=1"), `kind LIKE '%x\' OR 1=1%'`},
		{"contains keeps control escapes", F("kind__contains", "a\nb"), `kind LIKE '%a\nb%'`},
		{"startswith", F("kind__startswith", "ab"), "kind LIKE 'ab%'"},
		{"endswith", F("kind__endswith", "ab"), "kind LIKE '%ab'"},
		{"icontains", F("kind__icontains", "Ab"), "lowerUTF8(toString(kind)) LIKE lowerUTF8('%Ab%')"},
		{"icontains escapes quotes", F("kind__icontains", "O'Brien"), `lowerUTF8(toString(kind)) LIKE lowerUTF8('%O\'Brien%')`},
		{"icontains escapes backslash", F("kind__icontains", `a\b`), `lowerUTF8(toString(kind)) LIKE lowerUTF8('%a\\\\b%')`},
		{"istartswith", F("kind__istartswith", "Ab"), "lowerUTF8(toString(kind)) LIKE lowerUTF8('Ab%')"},
		{"iendswith", F("kind__iendswith", "Ab"), "lowerUTF8(toString(kind)) LIKE lowerUTF8('%Ab')"},
		{"iexact", F("kind__iexact", "Ab"), "lowerUTF8(kind) = lowerUTF8('Ab')"},
		{"between", F("quantity__between", []int{1, 5}), "quantity BETWEEN 1 AND 5"},
		{"between without low", F("quantity__between", []any{nil, 5}), "quantity <= 5"},
		{"between with empty low", F("quantity__between", []any{"", 5}), "quantity <= 5"},
		{"between without high", F("quantity__between", []any{1, nil}), "quantity >= 1"},
		{"eq null", F("deleted", nil), "deleted IS NULL"},
		{"ne null", F("deleted__ne", nil), "deleted IS NOT NULL"},
		{"datetime string", F("created", "2024-01-02 03:04:05"), "created = '1704164645'"},
		{"datetime time", F("created__gt", time.Unix(0, 0)), "created > '0000000000'"},
		{"date", F("day", "2024-03-05"), "day = '2024-03-05'"},
		{"uuid", F("uid", "123e4567-e89b-12d3-a456-426614174000"), "uid = '123e4567-e89b-12d3-a456-426614174000'"},
		{"bool", F("active", true), "active = 1"},
		{"array", F("tags", []string{"a", "b"}), "tags = ['a', 'b']"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQ(tt.filter)
			require.NoError(t, err)

			sql, err := q.SQL(events)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sql)
		})
	}
}

func TestImplicitEq(t *testing.T) {
	values := map[string]any{
		"kind":     "O'Brien",
		"quantity": 5,
		"amount":   "3.456",
		"created":  "2024-01-02 03:04:05",
		"day":      "2024-03-05",
		"deleted":  nil,
		"uid":      "123e4567-e89b-12d3-a456-426614174000",
		"active":   true,
		"tags":     []string{"a"},
	}

	for field, value := range values {
		implicit, err := MustQ(F(field, value)).SQL(events)
		require.NoError(t, err, field)

		explicit, err := MustQ(F(field+"__eq", value)).SQL(events)
		require.NoError(t, err, field)

		assert.Equal(t, implicit, explicit, field)
	}
}

func TestOperatorErrors(t *testing.T) {
	t.Run("rejected at construction", func(t *testing.T) {
		for _, f := range []Filter{
			F("quantity__between", []any{nil, nil}),
			F("quantity__between", []any{1}),
			F("quantity__between", 3),
			F("__in", []int{1}),
		} {
			_, err := NewQ(f)
			assert.True(t, fault.HasCode(err, fault.BadInputCode), "%#v: %v", f, err)
		}
	})

	t.Run("rejected at render", func(t *testing.T) {
		for _, f := range []Filter{
			F("quantity", "abc"),
			F("quantity__in", 5),
			F("amount", 123456789),
			F("uid", "not-a-uuid"),
			F("kind__foo", "x"),
			F("missing", 1),
		} {
			q, err := NewQ(f)
			require.NoError(t, err)

			_, err = q.SQL(events)
			assert.True(t, fault.HasCode(err, fault.BadInputCode), "%#v: %v", f, err)
		}
	})
}

type lengthOperator struct{}

func (lengthOperator) SQL(field schema.Field, name string, value any) (string, error) {
	return "length(" + name + ") = " + schema.EscapeValue(value, true), nil
}

func TestRegister(t *testing.T) {
	Register("len", lengthOperator{})
	t.Cleanup(func() { delete(operators, "len") })

	parsed := ParseKey("tags__len")
	assert.True(t, parsed.Found)

	sql, err := MustQ(F("tags__len", 2)).SQL(events)
	require.NoError(t, err)
	assert.Equal(t, "length(tags) = 2", sql)
}
