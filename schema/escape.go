package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Null is the text ClickHouse uses for NULL in serialized values.
const Null = `\N`

var specialChars = strings.NewReplacer(
	"\b", `\b`,
	"\f", `\f`,
	"\r", `\r`,
	"\n", `\n`,
	"\t", `\t`,
	"\x00", `\0`,
	`\`, `\\`,
	`'`, `\'`,
)

// Escape escapes s for use inside a ClickHouse string literal and, when quote
// is set, wraps it in single quotes.
func Escape(s string, quote bool) string {
	s = specialChars.Replace(s)
	if quote {
		return "'" + s + "'"
	}
	return s
}

// EscapeValue renders an arbitrary Go value as a literal. Strings are escaped,
// nil becomes Null, json.Number stays a bare numeric literal and everything
// else is printed with fmt.
func EscapeValue(v any, quote bool) string {
	switch x := v.(type) {
	case nil:
		return Null
	case json.Number:
		return x.String()
	case string:
		return Escape(x, quote)
	case []byte:
		return Escape(string(x), quote)
	case fmt.Stringer:
		return Escape(x.String(), quote)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
