package querier

import (
	"context"
	"fmt"
	"iter"
	"math"
	"strings"

	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/schema"
)

// Source is something a query reads from or joins against.
type Source interface {
	SourceSQL() (string, error)
}

type tableSource string

func (t tableSource) SourceSQL() (string, error) {
	return string(t), nil
}

// Table refers to a table by name.
func Table(name string) Source {
	return tableSource(name)
}

// ModelTable refers to the table of a model.
func ModelTable(m *schema.Model) Source {
	return tableSource(m.TableName())
}

// JoinOptions select the kind of a join. The zero value is ALL LEFT JOIN.
type JoinOptions struct {
	Inner bool
	Any   bool
	Alias string
}

type joinClause struct {
	target Source
	using  []string
	opts   JoinOptions
}

var errNoExecutor = fault.New(fault.BadInputCode, "query set has no executor")

type limits struct {
	offset int
	count  int
}

// QuerySet describes a SELECT over one model. It is lazy and immutable: it
// only reaches the Executor when rows or counts are requested, and every
// builder method returns an independent copy.
//
// Errors from builder methods that cannot fail on the spot, such as an
// invalid filter value passed to Filter, are reported by SQL and by every
// method that executes the query.
type QuerySet struct {
	model *schema.Model
	db    Executor

	fields    []string
	conds     []*Q
	extra     string
	orderBy   []string
	limits    *limits
	join      *joinClause
	arrayJoin string
	subquery  string
	distinct  bool
	final     bool

	err error
}

// New returns a QuerySet selecting all rows of model through db.
func New(model *schema.Model, db Executor) *QuerySet {
	qs := &QuerySet{model: model, db: db}
	if model == nil {
		qs.err = fault.New(fault.BadInputCode, "query set requires a model")
	}
	return qs
}

// clone copies qs. Slices are shared and must be replaced, never appended
// to in place.
func (qs *QuerySet) clone() *QuerySet {
	c := *qs
	return &c
}

func (qs *QuerySet) Model() *schema.Model {
	return qs.model
}

// Err returns the first error recorded by a builder method.
func (qs *QuerySet) Err() error {
	return qs.err
}

// conditions splits Filter pairs from trees. Pairs are grouped into one tree
// appended after the explicit trees.
func conditions(conds []Condition) ([]*Q, error) {
	var (
		trees   []*Q
		filters []Filter
	)
	for _, c := range conds {
		switch v := c.(type) {
		case Filter:
			filters = append(filters, v)
		case *Q:
			if v != nil {
				trees = append(trees, v)
			}
		}
	}

	if len(filters) > 0 {
		q, err := NewQ(filters...)
		if err != nil {
			return nil, err
		}
		trees = append(trees, q)
	}
	return trees, nil
}

func (qs *QuerySet) withConds(conds []Condition, negate bool) *QuerySet {
	c := qs.clone()
	if c.err != nil {
		return c
	}

	trees, err := conditions(conds)
	if err != nil {
		c.err = err
		return c
	}

	merged := make([]*Q, 0, len(qs.conds)+len(trees))
	merged = append(merged, qs.conds...)
	for _, t := range trees {
		if negate {
			t = t.Not()
		}
		merged = append(merged, t)
	}
	c.conds = merged
	return c
}

// Filter returns a copy that keeps only rows matching all conditions.
func (qs *QuerySet) Filter(conds ...Condition) *QuerySet {
	return qs.withConds(conds, false)
}

// Exclude returns a copy that drops rows matching the conditions. Each *Q is
// negated on its own; Filter pairs are negated as one group.
func (qs *QuerySet) Exclude(conds ...Condition) *QuerySet {
	return qs.withConds(conds, true)
}

// ExtraFilter returns a copy with a raw SQL fragment ANDed to the WHERE body.
// The fragment is used verbatim.
func (qs *QuerySet) ExtraFilter(raw string) *QuerySet {
	c := qs.clone()
	c.extra = raw
	return c
}

// Only returns a copy selecting just the named columns.
func (qs *QuerySet) Only(fields ...string) *QuerySet {
	c := qs.clone()
	c.fields = append([]string(nil), fields...)
	return c
}

// OrderBy returns a copy with the ordering replaced. A leading "-" sorts the
// column in descending order.
func (qs *QuerySet) OrderBy(fields ...string) *QuerySet {
	c := qs.clone()
	c.orderBy = append([]string(nil), fields...)
	return c
}

func (qs *QuerySet) Distinct() *QuerySet {
	c := qs.clone()
	c.distinct = true
	return c
}

// Final returns a copy reading the table with the FINAL modifier. Only
// collapsing engines support it.
func (qs *QuerySet) Final() (*QuerySet, error) {
	if qs.model == nil || !qs.model.IsCollapsing() {
		engine := schema.Engine("")
		if qs.model != nil {
			engine = qs.model.Engine()
		}
		return nil, fault.Newf(fault.IllegalModifierCode,
			"final() can only be used with collapsing engines, table engine is `%s`", engine)
	}

	c := qs.clone()
	c.final = true
	return c, nil
}

// Join returns a copy joined against target USING the given columns.
func (qs *QuerySet) Join(target Source, using []string, opts JoinOptions) *QuerySet {
	c := qs.clone()
	if target == nil || len(using) == 0 {
		c.err = fault.New(fault.BadInputCode, "join requires a target and at least one column")
		return c
	}
	c.join = &joinClause{target: target, using: append([]string(nil), using...), opts: opts}
	return c
}

// ArrayJoin returns a copy with an ARRAY JOIN over the given array items.
func (qs *QuerySet) ArrayJoin(items []string, alias string) *QuerySet {
	c := qs.clone()
	c.arrayJoin = "ARRAY JOIN [" + strings.Join(items, ", ") + "]"
	if alias != "" {
		c.arrayJoin += " AS " + alias
	}
	return c
}

// Slice returns a copy limited to rows [start, stop). Indexes are zero-based.
func (qs *QuerySet) Slice(start, stop int) (*QuerySet, error) {
	l, err := sliceLimits(start, stop)
	if err != nil {
		return nil, err
	}

	c := qs.clone()
	c.limits = l
	return c, nil
}

// From returns a copy of qs without a row limit, starting at offset.
func (qs *QuerySet) From(offset int) (*QuerySet, error) {
	return qs.Slice(offset, math.MaxInt)
}

func sliceLimits(start, stop int) (*limits, error) {
	if start < 0 || stop < 0 {
		return nil, fault.New(fault.InvalidPaginationCode, "negative indexes are not supported")
	}
	if start > stop {
		return nil, fault.New(fault.InvalidPaginationCode, "start of slice cannot be greater than its end")
	}
	return &limits{offset: start, count: stop - start}, nil
}

// AsSubquery returns a QuerySet over the same model that reads from this
// query, optionally aliased.
func (qs *QuerySet) AsSubquery(alias string) *QuerySet {
	return subqueryOf(qs, qs.model, qs.db, alias)
}

func subqueryOf(s Statement, model *schema.Model, db Executor, alias string) *QuerySet {
	c := New(model, db)
	sql, err := s.SQL()
	if err != nil {
		c.err = err
		return c
	}

	c.subquery = "(" + sql + ")"
	if alias != "" {
		c.subquery += " AS " + alias
	}
	return c
}

// SourceSQL renders qs parenthesized, for use as a join target.
func (qs *QuerySet) SourceSQL() (string, error) {
	sql, err := qs.SQL()
	if err != nil {
		return "", err
	}
	return "(" + sql + ")", nil
}

// ConditionsSQL renders the body of the WHERE clause. Trees that render to
// Neutral are dropped; with nothing left the body is Neutral.
func (qs *QuerySet) ConditionsSQL() (string, error) {
	if qs.err != nil {
		return "", qs.err
	}
	return conditionsSQL(qs.conds, qs.extra, qs.model)
}

func conditionsSQL(trees []*Q, extra string, fields FieldResolver) (string, error) {
	parts := make([]string, 0, len(trees)+1)
	for _, q := range trees {
		sql, err := q.SQL(fields)
		if err != nil {
			return "", err
		}
		if sql != Neutral {
			parts = append(parts, sql)
		}
	}

	if len(parts) == 0 {
		parts = append(parts, Neutral)
	}
	if extra != "" {
		if len(trees) == 0 {
			return extra, nil
		}
		parts = append(parts, extra)
	}

	return strings.Join(parts, " AND "), nil
}

// OrderBySQL renders the body of the ORDER BY clause.
func (qs *QuerySet) OrderBySQL() string {
	parts := make([]string, len(qs.orderBy))
	for i, f := range qs.orderBy {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			parts[i] = name + " DESC"
		} else {
			parts[i] = f
		}
	}
	return strings.Join(parts, ", ")
}

// JoinSQL renders the JOIN clause, or "" when qs has no join.
func (qs *QuerySet) JoinSQL() (string, error) {
	if qs.join == nil {
		return "", nil
	}

	target, err := qs.join.target.SourceSQL()
	if err != nil {
		return "", fmt.Errorf("failed to render join target: %w", err)
	}

	strictness := "ALL"
	if qs.join.opts.Any {
		strictness = "ANY"
	}
	kind := "LEFT"
	if qs.join.opts.Inner {
		kind = "INNER"
	}

	sql := fmt.Sprintf("%s %s JOIN %s", strictness, kind, target)
	if qs.join.opts.Alias != "" {
		sql += " AS " + qs.join.opts.Alias
	}
	return sql + " USING (" + strings.Join(qs.join.using, ", ") + ")", nil
}

// fromSQL renders FROM through ARRAY JOIN.
func (qs *QuerySet) fromSQL() (string, error) {
	source := qs.subquery
	if source == "" {
		source = qs.model.TableName()
	}

	parts := []string{"FROM " + source}
	if qs.final {
		parts = append(parts, "FINAL")
	}

	join, err := qs.JoinSQL()
	if err != nil {
		return "", err
	}
	if join != "" {
		parts = append(parts, join)
	}
	if qs.arrayJoin != "" {
		parts = append(parts, qs.arrayJoin)
	}
	return strings.Join(parts, " "), nil
}

func (qs *QuerySet) selectSQL(fields string) string {
	if qs.distinct {
		return "SELECT DISTINCT " + fields
	}
	return "SELECT " + fields
}

func (qs *QuerySet) tailSQL() []string {
	var parts []string
	if len(qs.orderBy) > 0 {
		parts = append(parts, "ORDER BY "+qs.OrderBySQL())
	}
	if qs.limits != nil {
		parts = append(parts, fmt.Sprintf("LIMIT %d, %d", qs.limits.offset, qs.limits.count))
	}
	return parts
}

// SQL renders the complete SELECT statement.
func (qs *QuerySet) SQL() (string, error) {
	if qs.err != nil {
		return "", qs.err
	}

	fields := "*"
	if len(qs.fields) > 0 {
		fields = strings.Join(qs.fields, ", ")
	}

	from, err := qs.fromSQL()
	if err != nil {
		return "", err
	}
	where, err := qs.ConditionsSQL()
	if err != nil {
		return "", err
	}

	parts := []string{qs.selectSQL(fields), from, "WHERE " + where}
	parts = append(parts, qs.tailSQL()...)
	return strings.Join(parts, " "), nil
}

// Iter runs the query and yields its rows.
func (qs *QuerySet) Iter(ctx context.Context) iter.Seq2[schema.Row, error] {
	sql, err := qs.SQL()
	if err != nil {
		return failed(err)
	}
	if qs.db == nil {
		return failed(errNoExecutor)
	}
	return qs.db.Select(ctx, sql, qs.model)
}

// Rows runs the query and collects every row.
func (qs *QuerySet) Rows(ctx context.Context) ([]schema.Row, error) {
	return collect(qs.Iter(ctx))
}

// Get returns the row at a zero-based index.
func (qs *QuerySet) Get(ctx context.Context, index int) (schema.Row, error) {
	one, err := qs.Slice(index, index+1)
	if err != nil {
		return nil, err
	}
	return first(one.Iter(ctx), index)
}

// Count returns the number of matching rows. Only a plain filtered read of
// the model's table is counted with Executor.Count. Besides DISTINCT and
// LIMIT, a FINAL modifier, a join, an ARRAY JOIN or a subquery source also
// route the count through SELECT count() FROM (...), since each of them
// changes the row set beyond WHERE.
func (qs *QuerySet) Count(ctx context.Context) (uint64, error) {
	if qs.countsThroughSubquery() {
		return countSubquery(ctx, qs, qs.db)
	}

	where, err := qs.ConditionsSQL()
	if err != nil {
		return 0, err
	}
	if qs.db == nil {
		return 0, errNoExecutor
	}
	return qs.db.Count(ctx, qs.model, where)
}

func (qs *QuerySet) countsThroughSubquery() bool {
	return qs.distinct || qs.final || qs.limits != nil || qs.join != nil ||
		qs.arrayJoin != "" || qs.subquery != ""
}

// Exists reports whether the query matches any row.
func (qs *QuerySet) Exists(ctx context.Context) (bool, error) {
	n, err := qs.Count(ctx)
	return n > 0, err
}

// Paginate returns one page of rows. page is 1-based; -1 selects the last page.
func (qs *QuerySet) Paginate(ctx context.Context, page, size int) (*Page, error) {
	return paginate(ctx, qs, page, size)
}

func (qs *QuerySet) window(ctx context.Context, offset, count int) ([]schema.Row, error) {
	s, err := qs.Slice(offset, offset+count)
	if err != nil {
		return nil, err
	}
	return s.Rows(ctx)
}

func countSubquery(ctx context.Context, s Statement, db Executor) (uint64, error) {
	sql, err := s.SQL()
	if err != nil {
		return 0, err
	}
	if db == nil {
		return 0, errNoExecutor
	}

	raw, err := db.Raw(ctx, "SELECT count() FROM ("+sql+")")
	if err != nil {
		return 0, err
	}
	return toCount(raw)
}

func failed(err error) iter.Seq2[schema.Row, error] {
	return func(yield func(schema.Row, error) bool) {
		yield(nil, err)
	}
}

func collect(rows iter.Seq2[schema.Row, error]) ([]schema.Row, error) {
	var out []schema.Row
	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func first(rows iter.Seq2[schema.Row, error], index int) (schema.Row, error) {
	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		return row, nil
	}
	return nil, fault.Newf(fault.NotFoundCode, "no row at index %d", index)
}
