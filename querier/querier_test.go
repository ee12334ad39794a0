package querier

import (
	"context"
	"iter"

	"github.com/thisisjab/chquery/schema"
)

var (
	events = schema.MustModel("event", "events", schema.MergeTree,
		schema.Column{Name: "id", Field: schema.IntField{Bits: 64, Unsigned: true}},
		schema.Column{Name: "kind", Field: schema.StringField{}},
		schema.Column{Name: "quantity", Field: schema.IntField{Bits: 32}},
		schema.Column{Name: "amount", Field: schema.DecimalField{Precision: 10, Scale: 2}},
		schema.Column{Name: "created", Field: schema.DateTimeField{}},
		schema.Column{Name: "day", Field: schema.DateField{}},
		schema.Column{Name: "tags", Field: schema.ArrayField{Inner: schema.StringField{}}},
		schema.Column{Name: "deleted", Field: schema.NullableField{Inner: schema.StringField{}}},
		schema.Column{Name: "uid", Field: schema.UUIDField{}},
		schema.Column{Name: "active", Field: schema.BoolField{}},
	)

	sessions = schema.MustModel("session", "sessions", schema.CollapsingMergeTree,
		schema.Column{Name: "id", Field: schema.IntField{Bits: 64, Unsigned: true}},
		schema.Column{Name: "sign", Field: schema.IntField{Bits: 8}},
	)
)

// recorder is an Executor that records every statement it receives.
type recorder struct {
	rows  []schema.Row
	count uint64
	raw   any

	queries []string
	models  []*schema.Model
}

func (r *recorder) Select(_ context.Context, query string, model *schema.Model) iter.Seq2[schema.Row, error] {
	r.queries = append(r.queries, query)
	r.models = append(r.models, model)
	return func(yield func(schema.Row, error) bool) {
		for _, row := range r.rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (r *recorder) Count(_ context.Context, model *schema.Model, conditions string) (uint64, error) {
	r.queries = append(r.queries, "COUNT "+model.TableName()+" WHERE "+conditions)
	return r.count, nil
}

func (r *recorder) Raw(_ context.Context, query string) (any, error) {
	r.queries = append(r.queries, query)
	return r.raw, nil
}

func (r *recorder) last() string {
	if len(r.queries) == 0 {
		return ""
	}
	return r.queries[len(r.queries)-1]
}
