package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tests := map[string]string{
		"plain":       "'plain'",
		"it's":        `'it\'s'`,
		"a\\b":        `'a\\b'`,
		"line\nbreak": `'line\nbreak'`,
		"tab\there":   `'tab\there'`,
		"nul\x00":     `'nul\0'`,
	}

	for input, expected := range tests {
		assert.Equal(t, expected, Escape(input, true), input)
	}
	assert.Equal(t, `it\'s`, Escape("it's", false))
}

func TestEscapeValue(t *testing.T) {
	u := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")

	assert.Equal(t, Null, EscapeValue(nil, true))
	assert.Equal(t, "12.5", EscapeValue(json.Number("12.5"), true))
	assert.Equal(t, "'x'", EscapeValue("x", true))
	assert.Equal(t, "'x'", EscapeValue([]byte("x"), true))
	assert.Equal(t, "'123e4567-e89b-12d3-a456-426614174000'", EscapeValue(u, true))
	assert.Equal(t, "1", EscapeValue(true, true))
	assert.Equal(t, "0", EscapeValue(false, true))
	assert.Equal(t, "42", EscapeValue(42, true))
}

func literal(t *testing.T, f Field, value any) string {
	t.Helper()
	v, err := f.ToGo(value, time.UTC)
	require.NoError(t, err)
	return f.ToDBString(v, true)
}

func TestFieldLiterals(t *testing.T) {
	tests := []struct {
		name     string
		field    Field
		value    any
		expected string
	}{
		{"string", StringField{}, "abc", "'abc'"},
		{"fixed string", StringField{Length: 3}, "abc", "'abc'"},
		{"int from string", IntField{Bits: 32}, " 12 ", "12"},
		{"int from whole float", IntField{Bits: 64}, 3.0, "3"},
		{"uint", IntField{Bits: 8, Unsigned: true}, 255, "255"},
		{"int from json number", IntField{Bits: 64}, json.Number("-7"), "-7"},
		{"float", FloatField{Bits: 64}, "1.25", "1.25"},
		{"float from int", FloatField{Bits: 32}, 2, "2"},
		{"decimal from string", DecimalField{Precision: 10, Scale: 2}, "1.005", "1.01"},
		{"decimal from json number", DecimalField{Precision: 10, Scale: 3}, json.Number("2.5"), "2.500"},
		{"decimal from decimal", DecimalField{Precision: 10, Scale: 0}, decimal.NewFromInt(9), "9"},
		{"date from string", DateField{}, "2024-03-05", "'2024-03-05'"},
		{"date from time", DateField{}, time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC), "'2024-03-05'"},
		{"date from days", DateField{}, 1, "'1970-01-02'"},
		{"date zero", DateField{}, "0000-00-00", "'1970-01-01'"},
		{"datetime from string", DateTimeField{}, "2024-01-02 03:04:05", "'1704164645'"},
		{"datetime from unix string", DateTimeField{}, "1704164645", "'1704164645'"},
		{"datetime from int", DateTimeField{}, 5, "'0000000005'"},
		{"datetime zero", DateTimeField{}, "0000-00-00 00:00:00", "'0000000000'"},
		{"datetime64", DateTimeField{Precision: 3}, time.Unix(10, 250_000_000), "'0000000010.250'"},
		{"uuid", UUIDField{}, "123E4567-E89B-12D3-A456-426614174000", "'123e4567-e89b-12d3-a456-426614174000'"},
		{"bool from string", BoolField{}, "TRUE", "1"},
		{"bool from int", BoolField{}, 0, "0"},
		{"enum by name", EnumField{Bits: 8, Members: map[string]int{"a": 1, "b": 2}}, "b", "'b'"},
		{"enum by value", EnumField{Bits: 8, Members: map[string]int{"a": 1, "b": 2}}, 1, "'a'"},
		{"array", ArrayField{Inner: IntField{Bits: 8}}, []any{1, "2"}, "[1, 2]"},
		{"nullable nil", NullableField{Inner: StringField{}}, nil, Null},
		{"nullable value", NullableField{Inner: StringField{}}, "x", "'x'"},
		{"raw", RawField{}, 10, "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, literal(t, tt.field, tt.value))
		})
	}
}

func TestFieldRejects(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		value any
	}{
		{"string from int", StringField{}, 1},
		{"fixed string too long", StringField{Length: 2}, "abc"},
		{"int8 overflow", IntField{Bits: 8}, 128},
		{"uint negative", IntField{Bits: 32, Unsigned: true}, -1},
		{"int from fraction", IntField{Bits: 64}, 1.5},
		{"int from text", IntField{Bits: 64}, "ten"},
		{"float from text", FloatField{Bits: 64}, "x"},
		{"decimal too wide", DecimalField{Precision: 4, Scale: 2}, 100},
		{"decimal from text", DecimalField{Precision: 10, Scale: 2}, "abc"},
		{"date from text", DateField{}, "yesterday-ish"},
		{"uuid", UUIDField{}, "nope"},
		{"bool from 2", BoolField{}, 2},
		{"enum unknown", EnumField{Bits: 8, Members: map[string]int{"a": 1}}, "z"},
		{"array from scalar", ArrayField{Inner: StringField{}}, "a"},
		{"array item", ArrayField{Inner: IntField{Bits: 8}}, []any{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.field.ToGo(tt.value, time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestDateTimeInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)

	v, err := DateTimeField{}.ToGo("2024-01-02 05:04:05", loc)
	require.NoError(t, err)
	assert.Equal(t, "'1704164645'", DateTimeField{}.ToDBString(v, true))
}
