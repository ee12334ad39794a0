package querier

import (
	"context"
	"iter"
	"slices"
	"strings"

	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/schema"
)

// Modifier is a GROUP BY modifier rendered as WITH <Modifier>.
type Modifier string

const (
	WithRollup Modifier = "ROLLUP"
	WithCube   Modifier = "CUBE"
	WithTotals Modifier = "TOTALS"
)

// AggregateQuerySet is a grouped query produced by QuerySet.Aggregate. Like
// QuerySet it is immutable.
type AggregateQuerySet struct {
	base       *QuerySet
	fields     []string
	grouping   []string
	calculated []Calculated
	having     []*Q
	modifier   Modifier
	err        error
}

// Aggregate groups qs by the given columns and computes the calculated
// fields. At least one calculated field is required. Without grouping
// columns, the columns selected with Only are used.
//
//	qs.Aggregate([]string{"event_type"}, Calc("count", "count()"))
//
// renders as
//
//	SELECT event_type, count() AS count FROM events WHERE 1 GROUP BY event_type
func (qs *QuerySet) Aggregate(groupBy []string, calculated ...Calculated) (*AggregateQuerySet, error) {
	if qs.err != nil {
		return nil, qs.err
	}
	if len(calculated) == 0 {
		return nil, fault.New(fault.UnsupportedCode, "no calculated fields specified for aggregation")
	}
	for _, c := range calculated {
		if c.Alias == "" || c.Expr == "" {
			return nil, fault.New(fault.BadInputCode, "calculated fields need an alias and an expression")
		}
	}

	if len(groupBy) == 0 {
		groupBy = qs.fields
	}
	groupBy = append([]string(nil), groupBy...)

	return &AggregateQuerySet{
		base:       qs,
		fields:     groupBy,
		grouping:   groupBy,
		calculated: append([]Calculated(nil), calculated...),
	}, nil
}

func (a *AggregateQuerySet) clone() *AggregateQuerySet {
	c := *a
	return &c
}

func (a *AggregateQuerySet) withBase(base *QuerySet) *AggregateQuerySet {
	c := a.clone()
	c.base = base
	return c
}

func (a *AggregateQuerySet) Filter(conds ...Condition) *AggregateQuerySet {
	return a.withBase(a.base.Filter(conds...))
}

func (a *AggregateQuerySet) Exclude(conds ...Condition) *AggregateQuerySet {
	return a.withBase(a.base.Exclude(conds...))
}

func (a *AggregateQuerySet) ExtraFilter(raw string) *AggregateQuerySet {
	return a.withBase(a.base.ExtraFilter(raw))
}

func (a *AggregateQuerySet) OrderBy(fields ...string) *AggregateQuerySet {
	return a.withBase(a.base.OrderBy(fields...))
}

func (a *AggregateQuerySet) Distinct() *AggregateQuerySet {
	return a.withBase(a.base.Distinct())
}

func (a *AggregateQuerySet) Slice(start, stop int) (*AggregateQuerySet, error) {
	base, err := a.base.Slice(start, stop)
	if err != nil {
		return nil, err
	}
	return a.withBase(base), nil
}

// Only is not supported: the selected columns of an aggregation are its
// grouping and calculated fields.
func (a *AggregateQuerySet) Only(...string) (*AggregateQuerySet, error) {
	return nil, fault.New(fault.UnsupportedCode, "cannot use only() with an aggregate query")
}

// Aggregate is not supported: wrap the query with AsSubquery first.
func (a *AggregateQuerySet) Aggregate([]string, ...Calculated) (*AggregateQuerySet, error) {
	return nil, fault.New(fault.UnsupportedCode, "cannot re-aggregate an aggregate query")
}

// GroupBy replaces the grouping columns. Each name must be a grouping field
// or a calculated field alias of the query.
func (a *AggregateQuerySet) GroupBy(names ...string) (*AggregateQuerySet, error) {
	for _, name := range names {
		known := slices.Contains(a.fields, name) || slices.ContainsFunc(a.calculated, func(c Calculated) bool {
			return c.Alias == name
		})
		if !known {
			return nil, fault.Newf(fault.UnsupportedCode, "cannot group by `%s` since it is not included in the query", name)
		}
	}

	c := a.clone()
	c.grouping = append([]string(nil), names...)
	return c, nil
}

// Having returns a copy with conditions applied after grouping. Names that
// are not model columns, such as calculated field aliases, are compared as
// raw expressions with escaped literals.
func (a *AggregateQuerySet) Having(conds ...Condition) *AggregateQuerySet {
	c := a.clone()
	if c.err != nil {
		return c
	}

	trees, err := conditions(conds)
	if err != nil {
		c.err = err
		return c
	}

	merged := make([]*Q, 0, len(a.having)+len(trees))
	merged = append(merged, a.having...)
	c.having = append(merged, trees...)
	return c
}

func (a *AggregateQuerySet) with(m Modifier) *AggregateQuerySet {
	c := a.clone()
	c.modifier = m
	return c
}

func (a *AggregateQuerySet) WithRollup() *AggregateQuerySet { return a.with(WithRollup) }
func (a *AggregateQuerySet) WithCube() *AggregateQuerySet   { return a.with(WithCube) }
func (a *AggregateQuerySet) WithTotals() *AggregateQuerySet { return a.with(WithTotals) }

// Modifier sets the modifier by value. The empty modifier removes it.
func (a *AggregateQuerySet) Modifier(m Modifier) (*AggregateQuerySet, error) {
	switch m {
	case "", WithRollup, WithCube, WithTotals:
		return a.with(m), nil
	default:
		return nil, fault.Newf(fault.BadInputCode, "unknown aggregate modifier `%s`", m)
	}
}

func (a *AggregateQuerySet) Err() error {
	if a.err != nil {
		return a.err
	}
	return a.base.err
}

func (a *AggregateQuerySet) ConditionsSQL() (string, error) {
	return a.base.ConditionsSQL()
}

// HavingSQL renders the body of the HAVING clause.
func (a *AggregateQuerySet) HavingSQL() (string, error) {
	if err := a.Err(); err != nil {
		return "", err
	}
	return conditionsSQL(a.having, "", fallbackFields{primary: a.base.model})
}

// SQL renders the complete grouped SELECT statement.
func (a *AggregateQuerySet) SQL() (string, error) {
	if err := a.Err(); err != nil {
		return "", err
	}

	fields := make([]string, 0, len(a.fields)+len(a.calculated))
	fields = append(fields, a.fields...)
	for _, c := range a.calculated {
		fields = append(fields, c.Expr+" AS "+c.Alias)
	}

	from, err := a.base.fromSQL()
	if err != nil {
		return "", err
	}
	where, err := a.ConditionsSQL()
	if err != nil {
		return "", err
	}

	parts := []string{a.base.selectSQL(strings.Join(fields, ", ")), from, "WHERE " + where}
	if len(a.grouping) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(a.grouping, ", "))
	}
	if len(a.having) > 0 {
		having, err := a.HavingSQL()
		if err != nil {
			return "", err
		}
		parts = append(parts, "HAVING "+having)
	}
	if a.modifier != "" {
		parts = append(parts, "WITH "+string(a.modifier))
	}
	parts = append(parts, a.base.tailSQL()...)
	return strings.Join(parts, " "), nil
}

func (a *AggregateQuerySet) SourceSQL() (string, error) {
	sql, err := a.SQL()
	if err != nil {
		return "", err
	}
	return "(" + sql + ")", nil
}

// AsSubquery returns a plain QuerySet reading from this aggregation.
func (a *AggregateQuerySet) AsSubquery(alias string) *QuerySet {
	return subqueryOf(a, a.base.model, a.base.db, alias)
}

// Iter runs the query. Rows are not bound to the model.
func (a *AggregateQuerySet) Iter(ctx context.Context) iter.Seq2[schema.Row, error] {
	sql, err := a.SQL()
	if err != nil {
		return failed(err)
	}
	if a.base.db == nil {
		return failed(errNoExecutor)
	}
	return a.base.db.Select(ctx, sql, nil)
}

func (a *AggregateQuerySet) Rows(ctx context.Context) ([]schema.Row, error) {
	return collect(a.Iter(ctx))
}

func (a *AggregateQuerySet) Get(ctx context.Context, index int) (schema.Row, error) {
	one, err := a.Slice(index, index+1)
	if err != nil {
		return nil, err
	}
	return first(one.Iter(ctx), index)
}

// Count returns the number of rows after aggregation. It always counts
// through a subquery.
func (a *AggregateQuerySet) Count(ctx context.Context) (uint64, error) {
	return countSubquery(ctx, a, a.base.db)
}

func (a *AggregateQuerySet) Exists(ctx context.Context) (bool, error) {
	n, err := a.Count(ctx)
	return n > 0, err
}

func (a *AggregateQuerySet) Paginate(ctx context.Context, page, size int) (*Page, error) {
	return paginate(ctx, a, page, size)
}

func (a *AggregateQuerySet) window(ctx context.Context, offset, count int) ([]schema.Row, error) {
	s, err := a.Slice(offset, offset+count)
	if err != nil {
		return nil, err
	}
	return s.Rows(ctx)
}
