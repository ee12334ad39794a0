package querier

// Mode is the boolean connective of a condition tree.
type Mode string

const (
	ModeAnd Mode = "AND"
	ModeOr  Mode = "OR"
)

// Neutral is the rendering of an empty condition tree. It is the identity
// element of composition: (x AND Neutral) renders as x.
const Neutral = "1"

// Q is an immutable boolean condition tree. A Q is either a list of nodes
// joined by one mode, or the composition of two child trees. The zero value
// is the empty tree.
type Q struct {
	nodes       []node
	left, right *Q
	mode        Mode
	negate      bool
}

func (*Q) isCondition() {}

// NewQ builds a tree from filter pairs joined by AND. Keys are parsed with
// ParseKey; values an operator refuses (such as a between with no bounds)
// fail here.
func NewQ(filters ...Filter) (*Q, error) {
	q := &Q{mode: ModeAnd, nodes: make([]node, 0, len(filters))}
	for _, f := range filters {
		n, err := newNode(f.Key, f.Value)
		if err != nil {
			return nil, err
		}
		q.nodes = append(q.nodes, n)
	}
	return q, nil
}

// MustQ is NewQ that panics on error.
func MustQ(filters ...Filter) *Q {
	q, err := NewQ(filters...)
	if err != nil {
		panic(err)
	}
	return q
}

func compose(l, r *Q, mode Mode) *Q {
	if l == nil {
		l = &Q{}
	}
	if r == nil {
		r = &Q{}
	}
	return &Q{left: l, right: r, mode: mode}
}

// And returns (q AND other). Neither operand is modified.
func (q *Q) And(other *Q) *Q {
	return compose(q, other, ModeAnd)
}

// Or returns (q OR other). Neither operand is modified.
func (q *Q) Or(other *Q) *Q {
	return compose(q, other, ModeOr)
}

// Not returns a negated copy of q. Children are shared with q. The negation
// of a nil tree is the empty tree.
func (q *Q) Not() *Q {
	if q == nil {
		return &Q{}
	}
	c := *q
	c.negate = !c.negate
	return &c
}

// IsEmpty reports whether q has neither nodes nor children.
func (q *Q) IsEmpty() bool {
	return q == nil || (len(q.nodes) == 0 && (q.left == nil || q.right == nil))
}

func (q *Q) connective() Mode {
	if q.mode == "" {
		return ModeAnd
	}
	return q.mode
}

// rendered is the SQL of a subtree. bare is set when sql is a top-level join
// of several operands by that mode without enclosing parentheses.
type rendered struct {
	sql  string
	bare Mode
}

type frame struct {
	q        *Q
	root     bool
	expanded bool
}

// SQL renders the tree as a boolean expression. The tree is walked with an
// explicit stack so arbitrarily deep compositions cannot exhaust the
// goroutine stack.
func (q *Q) SQL(fields FieldResolver) (string, error) {
	if q == nil {
		return Neutral, nil
	}

	var (
		stack = []frame{{q: q, root: true}}
		out   []rendered
	)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case len(f.q.nodes) > 0:
			r, err := f.q.renderNodes(fields)
			if err != nil {
				return "", err
			}
			out = append(out, f.q.finish(r))

		case f.q.left == nil || f.q.right == nil:
			out = append(out, rendered{sql: Neutral})

		case !f.expanded:
			f.expanded = true
			stack = append(stack, f, frame{q: f.q.right}, frame{q: f.q.left})

		default:
			l, r := out[len(out)-2], out[len(out)-1]
			out = out[:len(out)-2]
			out = append(out, f.q.finish(f.q.join(l, r, f.root)))
		}
	}

	return out[0].sql, nil
}

func (q *Q) renderNodes(fields FieldResolver) (rendered, error) {
	mode := q.connective()

	sql := ""
	for i, n := range q.nodes {
		s, err := n.sql(fields)
		if err != nil {
			return rendered{}, err
		}
		if i > 0 {
			sql += " " + string(mode) + " "
		}
		sql += s
	}

	if len(q.nodes) > 1 {
		return rendered{sql: sql, bare: mode}, nil
	}
	return rendered{sql: sql}, nil
}

// join combines two rendered children. Parentheses are omitted only below the
// root when both operands are already parenthesized.
func (q *Q) join(l, r rendered, root bool) rendered {
	if l.sql == Neutral {
		return rootGroup(r, root)
	}
	if r.sql == Neutral {
		return rootGroup(l, root)
	}

	mode := q.connective()
	ls, rs := operand(l, mode), operand(r, mode)
	sql := ls + " " + string(mode) + " " + rs

	if root || !inParens(ls) || !inParens(rs) {
		return rendered{sql: "(" + sql + ")"}
	}
	return rendered{sql: sql, bare: mode}
}

// rootGroup parenthesizes a bare join that surfaces at the root, so callers
// can combine the result with other conditions.
func rootGroup(r rendered, root bool) rendered {
	if root && r.bare != "" {
		return rendered{sql: "(" + r.sql + ")"}
	}
	return r
}

// operand parenthesizes a bare join of another mode so that AND/OR
// precedence cannot regroup it.
func operand(r rendered, mode Mode) string {
	if r.bare != "" && r.bare != mode {
		return "(" + r.sql + ")"
	}
	return r.sql
}

func (q *Q) finish(r rendered) rendered {
	if !q.negate || r.sql == Neutral {
		return r
	}
	return rendered{sql: "NOT (" + r.sql + ")"}
}

// inParens reports whether s is entirely enclosed by one matching pair of
// parentheses. Parentheses inside quoted literals are ignored.
func inParens(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}

	depth := 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case quoted && c == '\\':
			i++
		case c == '\'':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
