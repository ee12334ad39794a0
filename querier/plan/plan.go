// Package plan turns declarative query definitions into query sets.
package plan

import (
	"fmt"
	"math"
	"slices"

	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/querier"
	"github.com/thisisjab/chquery/querier/ast"
	"github.com/thisisjab/chquery/querier/parser"
	"github.com/thisisjab/chquery/schema"
)

// Statement is a query set built from a definition. Both *querier.QuerySet
// and *querier.AggregateQuerySet implement it.
type Statement interface {
	querier.Statement
	AsSubquery(alias string) *querier.QuerySet
}

// Build validates def and builds the query it describes against models.
// db may be nil when the statement is only rendered.
func Build(def *ast.Query, models *schema.Registry, db querier.Executor) (Statement, error) {
	if def == nil {
		return nil, fault.New(fault.BadInputCode, "query definition is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return build(def, models, db)
}

func build(def *ast.Query, models *schema.Registry, db querier.Executor) (Statement, error) {
	qs, err := source(def, models, db)
	if err != nil {
		return nil, err
	}

	if len(def.Fields) > 0 {
		qs = qs.Only(def.Fields...)
	}

	if qs, err = filters(qs, def); err != nil {
		return nil, err
	}

	if def.Distinct {
		qs = qs.Distinct()
	}
	if def.Final {
		if qs, err = qs.Final(); err != nil {
			return nil, err
		}
	}

	if j := def.Join; j != nil {
		target, err := joinTarget(j, models, db)
		if err != nil {
			return nil, err
		}
		qs = qs.Join(target, j.Using, querier.JoinOptions{Inner: j.Inner, Any: j.Any, Alias: j.Alias})
	}
	if aj := def.ArrayJoin; aj != nil {
		qs = qs.ArrayJoin(aj.Items, aj.Alias)
	}

	if def.Aggregate == nil {
		if len(def.OrderBy) > 0 {
			qs = qs.OrderBy(def.OrderBy...)
		}
		if qs, err = limit(qs, def); err != nil {
			return nil, err
		}
		if err := qs.Err(); err != nil {
			return nil, err
		}
		return qs, nil
	}

	agg, err := aggregate(qs, def.Aggregate)
	if err != nil {
		return nil, err
	}
	if len(def.OrderBy) > 0 {
		agg = agg.OrderBy(def.OrderBy...)
	}
	if def.Limit > 0 || def.Offset > 0 {
		stop := def.Offset + def.Limit
		if def.Limit == 0 {
			stop = math.MaxInt
		}
		if agg, err = agg.Slice(def.Offset, stop); err != nil {
			return nil, err
		}
	}
	if err := agg.Err(); err != nil {
		return nil, err
	}
	return agg, nil
}

func source(def *ast.Query, models *schema.Registry, db querier.Executor) (*querier.QuerySet, error) {
	if def.From != nil {
		inner, err := build(def.From, models, db)
		if err != nil {
			return nil, fmt.Errorf("failed to build subquery: %w", err)
		}
		return inner.AsSubquery(def.FromAlias), nil
	}

	model, ok := models.Get(def.Model)
	if !ok {
		return nil, fault.Newf(fault.NotFoundCode, "model `%s` does not exist", def.Model)
	}
	return querier.New(model, db), nil
}

// filterValue wraps a single value given to an in/not_in key into a list.
// Definitions never reach the verbatim string form of IN.
func filterValue(key string, value any) any {
	switch querier.ParseKey(key).Operator {
	case "in", "not_in":
		if _, ok := value.([]any); !ok {
			return []any{value}
		}
	}
	return value
}

func filters(qs *querier.QuerySet, def *ast.Query) (*querier.QuerySet, error) {
	if def.Filter != "" {
		q, err := parser.Parse(def.Filter)
		if err != nil {
			return nil, err
		}
		qs = qs.Filter(q)
	}

	if len(def.Filters) > 0 {
		keys := make([]string, 0, len(def.Filters))
		for k := range def.Filters {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		conds := make([]querier.Condition, len(keys))
		for i, k := range keys {
			conds[i] = querier.F(k, filterValue(k, def.Filters[k]))
		}
		qs = qs.Filter(conds...)
	}

	if def.Exclude != "" {
		q, err := parser.Parse(def.Exclude)
		if err != nil {
			return nil, err
		}
		qs = qs.Exclude(q)
	}

	if def.Extra != "" {
		qs = qs.ExtraFilter(def.Extra)
	}

	return qs, qs.Err()
}

func joinTarget(j *ast.Join, models *schema.Registry, db querier.Executor) (querier.Source, error) {
	if j.Query != nil {
		s, err := build(j.Query, models, db)
		if err != nil {
			return nil, fmt.Errorf("failed to build join query: %w", err)
		}
		return s, nil
	}

	if m, ok := models.Get(j.Table); ok {
		return querier.ModelTable(m), nil
	}
	return querier.Table(j.Table), nil
}

func limit(qs *querier.QuerySet, def *ast.Query) (*querier.QuerySet, error) {
	switch {
	case def.Limit > 0:
		return qs.Slice(def.Offset, def.Offset+def.Limit)
	case def.Offset > 0:
		return qs.From(def.Offset)
	default:
		return qs, nil
	}
}

func aggregate(qs *querier.QuerySet, def *ast.Aggregate) (*querier.AggregateQuerySet, error) {
	calculated := make([]querier.Calculated, len(def.Calculated))
	for i, c := range def.Calculated {
		calculated[i] = querier.Calc(c.Alias, c.Expr)
	}

	agg, err := qs.Aggregate(def.GroupBy, calculated...)
	if err != nil {
		return nil, err
	}

	if def.Having != "" {
		q, err := parser.Parse(def.Having)
		if err != nil {
			return nil, err
		}
		agg = agg.Having(q)
	}

	return agg.Modifier(querier.Modifier(def.Modifier))
}
