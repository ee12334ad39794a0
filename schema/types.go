package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseType builds a Field from a ClickHouse type name such as
// "Nullable(Decimal(10, 2))" or "Array(LowCardinality(String))".
func ParseType(name string) (Field, error) {
	name = strings.TrimSpace(name)
	base, args, err := splitType(name)
	if err != nil {
		return nil, err
	}

	switch base {
	case "String":
		return StringField{}, nil
	case "FixedString":
		n, err := intArgs(name, args, 1)
		if err != nil {
			return nil, err
		}
		return StringField{Length: n[0]}, nil
	case "Int8", "Int16", "Int32", "Int64":
		bits, _ := strconv.Atoi(strings.TrimPrefix(base, "Int"))
		return IntField{Bits: bits}, nil
	case "UInt8", "UInt16", "UInt32", "UInt64":
		bits, _ := strconv.Atoi(strings.TrimPrefix(base, "UInt"))
		return IntField{Bits: bits, Unsigned: true}, nil
	case "Float32", "Float64":
		bits, _ := strconv.Atoi(strings.TrimPrefix(base, "Float"))
		return FloatField{Bits: bits}, nil
	case "Decimal":
		n, err := intArgs(name, args, 2)
		if err != nil {
			return nil, err
		}
		return DecimalField{Precision: n[0], Scale: n[1]}, nil
	case "Date":
		return DateField{}, nil
	case "DateTime":
		return DateTimeField{}, nil
	case "DateTime64":
		if len(args) == 0 {
			return nil, fmt.Errorf("type %s requires a precision", name)
		}
		p, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil || p < 0 || p > 9 {
			return nil, fmt.Errorf("invalid precision in type %s", name)
		}
		return DateTimeField{Precision: p}, nil
	case "UUID":
		return UUIDField{}, nil
	case "Bool", "Boolean":
		return BoolField{}, nil
	case "Enum8", "Enum16":
		bits, _ := strconv.Atoi(strings.TrimPrefix(base, "Enum"))
		members, err := enumMembers(args)
		if err != nil {
			return nil, fmt.Errorf("invalid type %s: %w", name, err)
		}
		return EnumField{Bits: bits, Members: members}, nil
	case "Array", "Nullable", "LowCardinality":
		if len(args) != 1 {
			return nil, fmt.Errorf("type %s takes exactly one argument", name)
		}
		inner, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		switch base {
		case "Array":
			return ArrayField{Inner: inner}, nil
		case "Nullable":
			return NullableField{Inner: inner}, nil
		default:
			return inner, nil
		}
	default:
		return nil, fmt.Errorf("unsupported type: %s", name)
	}
}

// splitType splits "Name(a, b(c))" into "Name" and its top-level arguments.
func splitType(name string) (string, []string, error) {
	open := strings.IndexByte(name, '(')
	if open < 0 {
		return name, nil, nil
	}
	if !strings.HasSuffix(name, ")") {
		return "", nil, fmt.Errorf("unbalanced parentheses in type %s", name)
	}

	var (
		args   []string
		depth  int
		quoted bool
		start  = open + 1
		body   = name[:len(name)-1]
	)
	for i := start; i < len(body); i++ {
		switch c := body[i]; {
		case c == '\\' && quoted:
			i++
		case c == '\'':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return "", nil, fmt.Errorf("unbalanced parentheses in type %s", name)
			}
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(body[start:i]))
			start = i + 1
		}
	}
	if depth != 0 || quoted {
		return "", nil, fmt.Errorf("unbalanced parentheses in type %s", name)
	}
	if last := strings.TrimSpace(body[start:]); last != "" {
		args = append(args, last)
	}

	return strings.TrimSpace(name[:open]), args, nil
}

func intArgs(name string, args []string, count int) ([]int, error) {
	if len(args) != count {
		return nil, fmt.Errorf("type %s takes %d argument(s)", name, count)
	}

	out := make([]int, count)
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q in type %s", a, name)
		}
		out[i] = n
	}
	return out, nil
}

// enumMembers parses "'a' = 1" style arguments.
func enumMembers(args []string) (map[string]int, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("enum has no members")
	}

	members := make(map[string]int, len(args))
	for _, a := range args {
		eq := strings.LastIndexByte(a, '=')
		if eq < 0 {
			return nil, fmt.Errorf("enum member %q has no value", a)
		}

		label := strings.TrimSpace(a[:eq])
		if len(label) < 2 || label[0] != '\'' || label[len(label)-1] != '\'' {
			return nil, fmt.Errorf("enum member %q is not quoted", label)
		}
		label = strings.ReplaceAll(label[1:len(label)-1], `\'`, `'`)

		v, err := strconv.Atoi(strings.TrimSpace(a[eq+1:]))
		if err != nil {
			return nil, fmt.Errorf("enum member %q has an invalid value", label)
		}
		members[label] = v
	}
	return members, nil
}
