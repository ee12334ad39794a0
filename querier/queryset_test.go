package querier

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/schema"
	"github.com/xwb1989/sqlparser"
)

func mustSlice(t *testing.T, qs *QuerySet, start, stop int) *QuerySet {
	t.Helper()
	s, err := qs.Slice(start, stop)
	require.NoError(t, err)
	return s
}

func mustFinal(t *testing.T, qs *QuerySet) *QuerySet {
	t.Helper()
	s, err := qs.Final()
	require.NoError(t, err)
	return s
}

func goldenQueries(t *testing.T) map[string]*QuerySet {
	t.Helper()

	return map[string]*QuerySet{
		"select_simple": mustSlice(t, New(events, nil).
			Filter(F("kind", "click")).
			Only("id", "kind").
			OrderBy("-created", "id"), 10, 20),
		"select_exclude_extra": New(events, nil).
			Filter(F("quantity__gte", 1)).
			Exclude(F("kind__in", []string{"a", "b"})).
			ExtraFilter("length(tags) > 0"),
		"select_join_model": New(events, nil).
			Join(ModelTable(sessions), []string{"id"}, JoinOptions{Any: true, Inner: true, Alias: "s"}),
		"select_join_subquery": New(events, nil).
			Join(New(sessions, nil).Only("id").Filter(F("sign", 1)), []string{"id"}, JoinOptions{}),
		"select_array_join": New(events, nil).
			ArrayJoin([]string{"tags"}, "tag").
			Filter(F("kind", "x")),
		"select_final": mustFinal(t, New(sessions, nil)),
		"select_subquery": New(events, nil).
			Filter(F("kind", "a")).
			Only("id", "kind").
			AsSubquery("e").
			Filter(F("id__gt", 5)),
		"select_distinct": New(events, nil).Only("kind").Distinct(),
		"select_in_subquery": New(events, nil).
			Filter(F("id__in", New(sessions, nil).Only("id"))),
	}
}

func TestQuerySetSQLGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for name, qs := range goldenQueries(t) {
		t.Run(name, func(t *testing.T) {
			sql, err := qs.SQL()
			require.NoError(t, err)
			g.Assert(t, name, []byte(sql))
		})
	}
}

func TestQuerySetSQLIsParseable(t *testing.T) {
	queries := goldenQueries(t)

	// FINAL, ARRAY JOIN and ANY joins are ClickHouse extensions.
	for _, name := range []string{"select_simple", "select_exclude_extra", "select_subquery", "select_distinct", "select_in_subquery"} {
		sql, err := queries[name].SQL()
		require.NoError(t, err)

		_, err = sqlparser.Parse(sql)
		assert.NoError(t, err, "%s: %s", name, sql)
	}
}

func TestQuerySetCopyOnWrite(t *testing.T) {
	base := New(events, nil).Filter(F("kind", "a"))
	one := base.Filter(F("quantity", 1))
	two := base.Filter(F("quantity", 2)).OrderBy("id").Only("id")

	sql, err := base.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM events WHERE kind = 'a'", sql)

	sql, err = one.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM events WHERE kind = 'a' AND quantity = 1", sql)

	sql, err = two.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM events WHERE kind = 'a' AND quantity = 2 ORDER BY id", sql)
}

func TestQuerySetConditions(t *testing.T) {
	tests := []struct {
		name     string
		qs       *QuerySet
		expected string
	}{
		{"none", New(events, nil), "1"},
		{"extra only", New(events, nil).ExtraFilter("x > 1"), "x > 1"},
		{"empty tree with extra", New(events, nil).Filter(&Q{}).ExtraFilter("x > 1"), "1 AND x > 1"},
		{"empty trees dropped", New(events, nil).Filter(&Q{}, MustQ(F("kind", "a"))), "kind = 'a'"},
		{"exclude groups pairs", New(events, nil).Exclude(F("kind", "a"), F("quantity", 1)), "NOT (kind = 'a' AND quantity = 1)"},
		{
			"pairs after trees",
			New(events, nil).Filter(F("quantity", 1), MustQ(F("kind", "a")).Or(MustQ(F("kind", "b")))),
			"(kind = 'a' OR kind = 'b') AND quantity = 1",
		},
		{
			"identity group stays grouped",
			New(events, nil).Filter(F("id", 5)).Filter((&Q{}).And(
				MustQ(F("kind", "a")).Or(MustQ(F("quantity", 1))).Or(MustQ(F("kind", "b")).Or(MustQ(F("quantity", 2)))),
			)),
			"id = 5 AND ((kind = 'a' OR quantity = 1) OR (kind = 'b' OR quantity = 2))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := tt.qs.ConditionsSQL()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sql)
		})
	}
}

func TestQuerySetErrors(t *testing.T) {
	_, err := New(events, nil).Final()
	assert.True(t, fault.HasCode(err, fault.IllegalModifierCode), err)

	_, err = New(events, nil).Slice(5, 2)
	assert.True(t, fault.HasCode(err, fault.InvalidPaginationCode), err)

	_, err = New(events, nil).Slice(-1, 2)
	assert.True(t, fault.HasCode(err, fault.InvalidPaginationCode), err)

	qs := New(events, nil).Join(Table("other"), nil, JoinOptions{})
	assert.True(t, fault.HasCode(qs.Err(), fault.BadInputCode), qs.Err())

	qs = New(nil, nil)
	_, err = qs.SQL()
	assert.True(t, fault.HasCode(err, fault.BadInputCode), err)

	// An invalid filter is latched and reported by every later call.
	qs = New(events, &recorder{}).Filter(F("quantity__between", []any{nil, nil})).OrderBy("id")
	assert.True(t, fault.HasCode(qs.Err(), fault.BadInputCode))
	_, err = qs.SQL()
	assert.Error(t, err)
	_, err = qs.Count(context.Background())
	assert.Error(t, err)
	_, err = qs.Rows(context.Background())
	assert.Error(t, err)

	_, err = New(events, nil).Rows(context.Background())
	assert.ErrorIs(t, err, errNoExecutor)
}

func TestQuerySetCount(t *testing.T) {
	ctx := context.Background()

	t.Run("plain", func(t *testing.T) {
		db := &recorder{count: 7}
		n, err := New(events, db).Filter(F("kind", "a")).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), n)
		assert.Equal(t, "COUNT events WHERE kind = 'a'", db.last())
	})

	t.Run("distinct", func(t *testing.T) {
		db := &recorder{raw: uint64(3)}
		n, err := New(events, db).Only("kind").Distinct().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), n)
		assert.Equal(t, "SELECT count() FROM (SELECT DISTINCT kind FROM events WHERE 1)", db.last())
	})

	t.Run("sliced", func(t *testing.T) {
		db := &recorder{raw: "2"}
		n, err := mustSlice(t, New(events, db), 0, 2).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), n)
		assert.Equal(t, "SELECT count() FROM (SELECT * FROM events WHERE 1 LIMIT 0, 2)", db.last())
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := New(events, &recorder{}).Exists(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = New(events, &recorder{count: 1}).Exists(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestQuerySetRows(t *testing.T) {
	ctx := context.Background()
	db := &recorder{rows: []schema.Row{{"id": uint64(1)}, {"id": uint64(2)}}}

	rows, err := New(events, db).OrderBy("id").Rows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "SELECT * FROM events WHERE 1 ORDER BY id", db.last())
	assert.Same(t, events, db.models[0])

	row, err := New(events, db).Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), row["id"])
	assert.Equal(t, "SELECT * FROM events WHERE 1 LIMIT 3, 1", db.last())

	_, err = New(events, &recorder{}).Get(ctx, 0)
	assert.True(t, fault.HasCode(err, fault.NotFoundCode), err)

	from, err := New(events, db).From(4)
	require.NoError(t, err)
	sql, err := from.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, "LIMIT 4, ")
}

func TestQuerySetPaginate(t *testing.T) {
	ctx := context.Background()

	t.Run("last page", func(t *testing.T) {
		db := &recorder{count: 95}
		p, err := New(events, db).OrderBy("id").Paginate(ctx, LastPage, 20)
		require.NoError(t, err)

		assert.Equal(t, 5, p.Number)
		assert.Equal(t, 5, p.PagesTotal)
		assert.Equal(t, uint64(95), p.NumberOfObjects)
		assert.Equal(t, 20, p.PageSize)
		assert.Equal(t, "SELECT * FROM events WHERE 1 ORDER BY id LIMIT 80, 20", db.last())
	})

	t.Run("middle page", func(t *testing.T) {
		db := &recorder{count: 95}
		p, err := New(events, db).Paginate(ctx, 2, 20)
		require.NoError(t, err)
		assert.Equal(t, 2, p.Number)
		assert.Equal(t, "SELECT * FROM events WHERE 1 LIMIT 20, 20", db.last())
	})

	t.Run("last page of nothing", func(t *testing.T) {
		db := &recorder{}
		p, err := New(events, db).Paginate(ctx, LastPage, 20)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Number)
		assert.Equal(t, 0, p.PagesTotal)
		assert.Empty(t, p.Objects)
		assert.Equal(t, "SELECT * FROM events WHERE 1 LIMIT 0, 20", db.last())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := New(events, &recorder{}).Paginate(ctx, 0, 20)
		assert.True(t, fault.HasCode(err, fault.InvalidPaginationCode), err)

		_, err = New(events, &recorder{}).Paginate(ctx, 1, 0)
		assert.True(t, fault.HasCode(err, fault.InvalidPaginationCode), err)
	})
}

func TestQuerySetCountThroughSubquery(t *testing.T) {
	ctx := context.Background()

	for name, qs := range map[string]*QuerySet{
		"final":      mustFinal(t, New(sessions, nil)),
		"array join": New(events, nil).ArrayJoin([]string{"tags"}, "tag"),
		"join":       New(events, nil).Join(ModelTable(sessions), []string{"id"}, JoinOptions{Inner: true}),
		"subquery":   New(events, nil).AsSubquery(""),
	} {
		t.Run(name, func(t *testing.T) {
			db := &recorder{raw: uint64(1)}
			qs.db = db

			_, err := qs.Count(ctx)
			require.NoError(t, err)

			sql, err := qs.SQL()
			require.NoError(t, err)
			assert.Equal(t, "SELECT count() FROM ("+sql+")", db.last())
		})
	}
}
