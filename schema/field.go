package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field converts user supplied values into the Go representation of a column
// type and serializes them as ClickHouse literals.
type Field interface {
	// ToGo coerces value into the canonical Go value for the column.
	// Times without an explicit zone are interpreted in loc.
	ToGo(value any, loc *time.Location) (any, error)

	// ToDBString renders a value previously returned by ToGo as a SQL literal.
	// When quote is false, string-like values are escaped but not quoted.
	ToDBString(value any, quote bool) string
}

func invalid(kind string, value any) error {
	return fmt.Errorf("invalid value for %s: %#v", kind, value)
}

// StringField is String, or FixedString(Length) when Length > 0.
type StringField struct {
	Length int
}

func (f StringField) ToGo(value any, _ *time.Location) (any, error) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case fmt.Stringer:
		s = v.String()
	default:
		return nil, invalid("String", value)
	}

	if f.Length > 0 && len(s) > f.Length {
		return nil, fmt.Errorf("value of length %d is too long for FixedString(%d)", len(s), f.Length)
	}

	return s, nil
}

func (f StringField) ToDBString(value any, quote bool) string {
	return EscapeValue(value, quote)
}

// IntField covers the Int8..Int64 and UInt8..UInt64 families.
type IntField struct {
	Bits     int
	Unsigned bool
}

func (f IntField) kind() string {
	if f.Unsigned {
		return fmt.Sprintf("UInt%d", f.Bits)
	}
	return fmt.Sprintf("Int%d", f.Bits)
}

func (f IntField) ToGo(value any, _ *time.Location) (any, error) {
	if f.Unsigned {
		n, err := asUint64(value)
		if err != nil {
			return nil, invalid(f.kind(), value)
		}
		if f.Bits < 64 && n > (uint64(1)<<f.Bits)-1 {
			return nil, fmt.Errorf("value %d is out of range for %s", n, f.kind())
		}
		return n, nil
	}

	n, err := asInt64(value)
	if err != nil {
		return nil, invalid(f.kind(), value)
	}
	if f.Bits < 64 {
		limit := int64(1) << (f.Bits - 1)
		if n < -limit || n > limit-1 {
			return nil, fmt.Errorf("value %d is out of range for %s", n, f.kind())
		}
	}
	return n, nil
}

func (f IntField) ToDBString(value any, _ bool) string {
	return fmt.Sprint(value)
}

// FloatField is Float32 or Float64.
type FloatField struct {
	Bits int
}

func (f FloatField) ToGo(value any, _ *time.Location) (any, error) {
	n, err := asFloat64(value)
	if err != nil {
		return nil, invalid(fmt.Sprintf("Float%d", f.Bits), value)
	}
	return n, nil
}

func (f FloatField) ToDBString(value any, _ bool) string {
	if n, ok := value.(float64); ok {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return fmt.Sprint(value)
}

// DecimalField is Decimal(Precision, Scale).
type DecimalField struct {
	Precision int
	Scale     int
}

func (f DecimalField) ToGo(value any, _ *time.Location) (any, error) {
	var d decimal.Decimal
	switch v := value.(type) {
	case decimal.Decimal:
		d = v
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, invalid("Decimal", value)
		}
		d = parsed
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, invalid("Decimal", value)
		}
		d = parsed
	case float32:
		d = decimal.NewFromFloat32(v)
	case float64:
		d = decimal.NewFromFloat(v)
	default:
		n, err := asInt64(value)
		if err != nil {
			return nil, invalid("Decimal", value)
		}
		d = decimal.NewFromInt(n)
	}

	d = d.Round(int32(f.Scale))
	if f.Precision > 0 && d.Abs().GreaterThanOrEqual(decimal.New(1, int32(f.Precision-f.Scale))) {
		return nil, fmt.Errorf("value %s does not fit Decimal(%d, %d)", d, f.Precision, f.Scale)
	}
	return d, nil
}

func (f DecimalField) ToDBString(value any, _ bool) string {
	if d, ok := value.(decimal.Decimal); ok {
		return d.StringFixed(int32(f.Scale))
	}
	return fmt.Sprint(value)
}

// DateField is Date. Values are truncated to midnight UTC.
type DateField struct{}

func (DateField) ToGo(value any, loc *time.Location) (any, error) {
	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case string:
		if v == "0000-00-00" {
			return time.Unix(0, 0).UTC(), nil
		}
		parsed, err := dateparse.ParseIn(v, locOrUTC(loc))
		if err != nil {
			return nil, invalid("Date", value)
		}
		t = parsed
	default:
		days, err := asInt64(value)
		if err != nil {
			return nil, invalid("Date", value)
		}
		return time.Unix(days*86400, 0).UTC(), nil
	}

	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func (DateField) ToDBString(value any, quote bool) string {
	if t, ok := value.(time.Time); ok {
		return Escape(t.Format(time.DateOnly), quote)
	}
	return EscapeValue(value, quote)
}

// DateTimeField is DateTime, or DateTime64(Precision) when Precision > 0.
// Values serialize as Unix timestamps so the server time zone does not matter.
type DateTimeField struct {
	Precision int
}

func (f DateTimeField) ToGo(value any, loc *time.Location) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		if v == "0000-00-00 00:00:00" {
			return time.Unix(0, 0).UTC(), nil
		}
		if ts, err := strconv.ParseFloat(v, 64); err == nil {
			return fromUnix(ts), nil
		}
		parsed, err := dateparse.ParseIn(v, locOrUTC(loc))
		if err != nil {
			return nil, invalid("DateTime", value)
		}
		return parsed.UTC(), nil
	default:
		ts, err := asFloat64(value)
		if err != nil {
			return nil, invalid("DateTime", value)
		}
		return fromUnix(ts), nil
	}
}

func (f DateTimeField) ToDBString(value any, quote bool) string {
	t, ok := value.(time.Time)
	if !ok {
		return EscapeValue(value, quote)
	}

	s := fmt.Sprintf("%010d", t.Unix())
	if f.Precision > 0 {
		frac := t.Nanosecond() / int(math.Pow10(9-f.Precision))
		s += fmt.Sprintf(".%0*d", f.Precision, frac)
	}
	return Escape(s, quote)
}

// UUIDField is UUID.
type UUIDField struct{}

func (UUIDField) ToGo(value any, _ *time.Location) (any, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case []byte:
		u, err := uuid.FromBytes(v)
		if err != nil {
			return nil, invalid("UUID", value)
		}
		return u, nil
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return nil, invalid("UUID", value)
		}
		return u, nil
	default:
		return nil, invalid("UUID", value)
	}
}

func (UUIDField) ToDBString(value any, quote bool) string {
	return EscapeValue(value, quote)
}

// BoolField is Bool, stored as 0 or 1.
type BoolField struct{}

func (BoolField) ToGo(value any, _ *time.Location) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
		if err != nil {
			return nil, invalid("Bool", value)
		}
		return b, nil
	default:
		n, err := asInt64(value)
		if err != nil || (n != 0 && n != 1) {
			return nil, invalid("Bool", value)
		}
		return n == 1, nil
	}
}

func (BoolField) ToDBString(value any, quote bool) string {
	return EscapeValue(value, quote)
}

// EnumField is Enum8 or Enum16. Values coerce to the member name.
type EnumField struct {
	Bits    int
	Members map[string]int
}

func (f EnumField) ToGo(value any, _ *time.Location) (any, error) {
	if s, ok := value.(string); ok {
		if _, found := f.Members[s]; found {
			return s, nil
		}
		return nil, fmt.Errorf("`%s` is not a member of Enum%d", s, f.Bits)
	}

	n, err := asInt64(value)
	if err != nil {
		return nil, invalid(fmt.Sprintf("Enum%d", f.Bits), value)
	}
	for name, v := range f.Members {
		if int64(v) == n {
			return name, nil
		}
	}
	return nil, fmt.Errorf("%d is not a member of Enum%d", n, f.Bits)
}

func (f EnumField) ToDBString(value any, quote bool) string {
	return EscapeValue(value, quote)
}

// ArrayField is Array(Inner).
type ArrayField struct {
	Inner Field
}

func (f ArrayField) ToGo(value any, loc *time.Location) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, invalid("Array", value)
	}

	out := make([]any, rv.Len())
	for i := range rv.Len() {
		v, err := f.Inner.ToGo(rv.Index(i).Interface(), loc)
		if err != nil {
			return nil, fmt.Errorf("array item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (f ArrayField) ToDBString(value any, _ bool) string {
	items, ok := value.([]any)
	if !ok {
		return fmt.Sprint(value)
	}

	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = f.Inner.ToDBString(item, true)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// NullableField is Nullable(Inner). nil serializes to Null.
type NullableField struct {
	Inner Field
}

func (f NullableField) ToGo(value any, loc *time.Location) (any, error) {
	if value == nil {
		return nil, nil
	}
	return f.Inner.ToGo(value, loc)
}

func (f NullableField) ToDBString(value any, quote bool) string {
	if value == nil {
		return Null
	}
	return f.Inner.ToDBString(value, quote)
}

// RawField passes values through untouched and escapes them on output. It
// stands in for columns that are not part of a model, such as aliases of
// calculated expressions referenced in HAVING.
type RawField struct{}

func (RawField) ToGo(value any, _ *time.Location) (any, error) {
	return value, nil
}

func (RawField) ToDBString(value any, quote bool) string {
	return EscapeValue(value, quote)
}

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func fromUnix(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

func asInt64(value any) (int64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%v is not an integer", f)
		}
		return int64(f), nil
	case reflect.String:
		return strconv.ParseInt(strings.TrimSpace(rv.String()), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to an integer", value)
	}
}

func asUint64(value any) (uint64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.String:
		return strconv.ParseUint(strings.TrimSpace(rv.String()), 10, 64)
	default:
		n, err := asInt64(value)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, fmt.Errorf("%d is negative", n)
		}
		return uint64(n), nil
	}
}

func asFloat64(value any) (float64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
	default:
		n, err := asInt64(value)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}
