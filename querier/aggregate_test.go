package querier

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thisisjab/chquery/fault"
)

func mustAggregate(t *testing.T, qs *QuerySet, groupBy []string, calculated ...Calculated) *AggregateQuerySet {
	t.Helper()
	a, err := qs.Aggregate(groupBy, calculated...)
	require.NoError(t, err)
	return a
}

func TestAggregateSQLGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	totals := mustAggregate(t,
		New(events, nil).Filter(F("created__gte", "2024-01-01")),
		[]string{"kind"},
		Calc("total", "sum(amount)"), Func("count").As("n"),
	).Having(F("total__gt", 100)).WithTotals().OrderBy("-total")

	rollup, err := mustAggregate(t,
		New(events, nil).Only("kind", "day"),
		nil,
		Calc("q", "sum(quantity)"),
	).WithRollup().Slice(0, 5)
	require.NoError(t, err)

	sub := mustAggregate(t, New(events, nil), []string{"kind"}, Calc("n", "count()")).
		AsSubquery("t").
		Filter(F("kind", "a"))

	for name, s := range map[string]Statement{
		"aggregate_totals":   totals,
		"aggregate_rollup":   rollup,
		"aggregate_subquery": sub,
	} {
		t.Run(name, func(t *testing.T) {
			sql, err := s.SQL()
			require.NoError(t, err)
			g.Assert(t, name, []byte(sql))
		})
	}
}

func TestAggregateValidation(t *testing.T) {
	qs := New(events, nil)

	_, err := qs.Aggregate([]string{"kind"})
	assert.True(t, fault.HasCode(err, fault.UnsupportedCode), err)

	_, err = qs.Aggregate([]string{"kind"}, Calc("", "count()"))
	assert.True(t, fault.HasCode(err, fault.BadInputCode), err)

	a := mustAggregate(t, qs, []string{"kind"}, Calc("n", "count()"))

	_, err = a.Only("kind")
	assert.True(t, fault.HasCode(err, fault.UnsupportedCode), err)

	_, err = a.Aggregate(nil, Calc("m", "max(n)"))
	assert.True(t, fault.HasCode(err, fault.UnsupportedCode), err)

	_, err = a.GroupBy("quantity")
	assert.True(t, fault.HasCode(err, fault.UnsupportedCode), err)

	_, err = a.Modifier("SIDEWAYS")
	assert.True(t, fault.HasCode(err, fault.BadInputCode), err)

	bad := a.Having(F("n__between", []any{nil, nil}))
	assert.True(t, fault.HasCode(bad.Err(), fault.BadInputCode), bad.Err())
	_, err = bad.SQL()
	assert.Error(t, err)
}

func TestAggregateGroupByAndModifier(t *testing.T) {
	a := mustAggregate(t, New(events, nil), []string{"kind", "day"}, Calc("n", "count()"))

	grouped, err := a.GroupBy("kind", "n")
	require.NoError(t, err)
	cube, err := grouped.Modifier(WithCube)
	require.NoError(t, err)

	sql, err := cube.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT kind, day, count() AS n FROM events WHERE 1 GROUP BY kind, n WITH CUBE", sql)

	// The original is untouched.
	sql, err = a.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT kind, day, count() AS n FROM events WHERE 1 GROUP BY kind, day", sql)

	none, err := cube.Modifier("")
	require.NoError(t, err)
	sql, err = none.SQL()
	require.NoError(t, err)
	assert.NotContains(t, sql, "WITH")
}

func TestAggregateHaving(t *testing.T) {
	a := mustAggregate(t, New(events, nil), []string{"kind"}, Calc("n", "count()")).
		Having(F("n__gte", 2)).
		Having(F("kind__startswith", "a"))

	sql, err := a.HavingSQL()
	require.NoError(t, err)
	assert.Equal(t, "n >= 2 AND kind LIKE 'a%'", sql)

	where, err := a.Filter(F("quantity", 1)).ConditionsSQL()
	require.NoError(t, err)
	assert.Equal(t, "quantity = 1", where)
}

func TestAggregateExecution(t *testing.T) {
	ctx := context.Background()

	db := &recorder{raw: uint64(4), rows: nil}
	a := mustAggregate(t, New(events, db).Distinct(), []string{"kind"}, Calc("n", "count()"))

	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
	assert.Equal(t, "SELECT count() FROM (SELECT DISTINCT kind, count() AS n FROM events WHERE 1 GROUP BY kind)", db.last())

	_, err = a.Rows(ctx)
	require.NoError(t, err)
	assert.Nil(t, db.models[len(db.models)-1])

	p, err := a.Paginate(ctx, LastPage, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Number)
	assert.Equal(t, "SELECT DISTINCT kind, count() AS n FROM events WHERE 1 GROUP BY kind LIMIT 3, 3", db.last())

	_, err = a.Get(ctx, 0)
	assert.True(t, fault.HasCode(err, fault.NotFoundCode), err)
}
