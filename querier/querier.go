// Package querier compiles composable filters into ClickHouse SELECT statements.
//
// Filters are written as "<field>[__<operator>]" keys with values, combined
// into condition trees (Q) and attached to an immutable QuerySet. Every
// QuerySet method that looks like a mutation returns a new QuerySet, so a
// base query can be shared and extended concurrently.
//
// Rendering never touches the network. Rows and counts are obtained through
// an Executor supplied by the caller.
package querier

import (
	"context"
	"iter"

	"github.com/thisisjab/chquery/schema"
)

// Executor runs compiled SQL. Implementations own connections, timeouts and
// retries; errors they return are passed to the caller unchanged.
type Executor interface {
	// Select runs a complete SELECT statement and yields its rows lazily.
	// model is nil for ad-hoc result shapes such as aggregations.
	Select(ctx context.Context, query string, model *schema.Model) iter.Seq2[schema.Row, error]

	// Count counts rows of the model's table matching a WHERE body.
	Count(ctx context.Context, model *schema.Model, conditions string) (uint64, error)

	// Raw runs a statement returning a single scalar. A nil result means no row.
	Raw(ctx context.Context, query string) (any, error)
}

// Statement is implemented by QuerySet and AggregateQuerySet.
type Statement interface {
	Source

	// SQL renders the complete statement.
	SQL() (string, error)

	// ConditionsSQL renders the body of the WHERE clause.
	ConditionsSQL() (string, error)

	Count(ctx context.Context) (uint64, error)
	Exists(ctx context.Context) (bool, error)
	Iter(ctx context.Context) iter.Seq2[schema.Row, error]
	Rows(ctx context.Context) ([]schema.Row, error)
	Get(ctx context.Context, index int) (schema.Row, error)
	Paginate(ctx context.Context, page, size int) (*Page, error)
}

var (
	_ Statement = (*QuerySet)(nil)
	_ Statement = (*AggregateQuerySet)(nil)
)
