// Package ast holds the declarative form of a query, as read from YAML query
// files and JSON API requests.
package ast

import (
	"fmt"

	"github.com/thisisjab/chquery/fault"
)

// Query describes one SELECT, optionally aggregated.
type Query struct {
	// Model is the name of the model to read. It is ignored when From is set.
	Model string `json:"model" yaml:"model"`

	// From reads from another query instead of the model's table.
	From      *Query `json:"from,omitempty" yaml:"from,omitempty"`
	FromAlias string `json:"from_alias,omitempty" yaml:"from_alias,omitempty"`

	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Filter and Exclude are expressions in the filter language, see package
	// parser.
	Filter  string `json:"filter,omitempty" yaml:"filter,omitempty"`
	Exclude string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// Filters are "<field>[__<operator>]" keys ANDed together.
	Filters map[string]any `json:"filters,omitempty" yaml:"filters,omitempty"`

	// Extra is a raw SQL fragment ANDed to the WHERE clause.
	Extra string `json:"extra,omitempty" yaml:"extra,omitempty"`

	// OrderBy lists columns, "-" prefixed for descending order.
	OrderBy []string `json:"order_by,omitempty" yaml:"order_by,omitempty"`

	Distinct bool `json:"distinct,omitempty" yaml:"distinct,omitempty"`
	Final    bool `json:"final,omitempty" yaml:"final,omitempty"`

	Join      *Join      `json:"join,omitempty" yaml:"join,omitempty"`
	ArrayJoin *ArrayJoin `json:"array_join,omitempty" yaml:"array_join,omitempty"`
	Aggregate *Aggregate `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`

	// Offset and Limit select rows [Offset, Offset+Limit). A zero Limit
	// means no limit.
	Offset int `json:"offset,omitempty" yaml:"offset,omitempty"`
	Limit  int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Join joins another table or query USING the given columns.
type Join struct {
	// Table is a model name or, if no such model exists, a table name.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
	Query *Query `json:"query,omitempty" yaml:"query,omitempty"`

	Using []string `json:"using" yaml:"using"`
	Inner bool     `json:"inner,omitempty" yaml:"inner,omitempty"`
	Any   bool     `json:"any,omitempty" yaml:"any,omitempty"`
	Alias string   `json:"alias,omitempty" yaml:"alias,omitempty"`
}

type ArrayJoin struct {
	Items []string `json:"items" yaml:"items"`
	Alias string   `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// Aggregate turns the query into a GROUP BY query.
type Aggregate struct {
	GroupBy    []string     `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	Calculated []Calculated `json:"calculated" yaml:"calculated"`
	// Having is a filter language expression over grouped columns and
	// calculated aliases.
	Having string `json:"having,omitempty" yaml:"having,omitempty"`
	// Modifier is one of ROLLUP, CUBE or TOTALS.
	Modifier string `json:"modifier,omitempty" yaml:"modifier,omitempty"`
}

type Calculated struct {
	Alias string `json:"alias" yaml:"alias"`
	Expr  string `json:"expr" yaml:"expr"`
}

// MaxLimit bounds Limit.
const MaxLimit = 100_000

// Validate checks the shape of q and its nested queries. Problems are
// reported together as fault.FieldErrorsMetadata keyed by field path.
func (q Query) Validate() error {
	errs := fault.FieldErrorsMetadata{}
	q.validate("", errs)

	if len(errs) > 0 {
		return fault.New(fault.BadInputCode, "invalid query definition").WithMetadata(errs)
	}
	return nil
}

func (q Query) validate(prefix string, errs fault.FieldErrorsMetadata) {
	add := func(field, msg string) {
		errs[prefix+field] = append(errs[prefix+field], msg)
	}

	if q.From == nil && q.Model == "" {
		add("model", "Field is required.")
	}
	if q.From != nil {
		q.From.validate(prefix+"from.", errs)
	}

	if q.Offset < 0 {
		add("offset", "Negative values are not supported.")
	}
	if q.Limit < 0 {
		add("limit", "Negative values are not supported.")
	}
	if q.Limit > MaxLimit {
		add("limit", fmt.Sprintf("Values larger than %d are not supported.", MaxLimit))
	}

	if j := q.Join; j != nil {
		if (j.Table == "") == (j.Query == nil) {
			add("join", "Exactly one of table and query is required.")
		}
		if len(j.Using) == 0 {
			add("join.using", "At least one column is required.")
		}
		if j.Query != nil {
			j.Query.validate(prefix+"join.query.", errs)
		}
	}

	if q.ArrayJoin != nil && len(q.ArrayJoin.Items) == 0 {
		add("array_join.items", "At least one item is required.")
	}

	if a := q.Aggregate; a != nil {
		if len(a.Calculated) == 0 {
			add("aggregate.calculated", "At least one calculated field is required.")
		}
		for i, c := range a.Calculated {
			if c.Alias == "" || c.Expr == "" {
				add(fmt.Sprintf("aggregate.calculated.%d", i), "Alias and expr are required.")
			}
		}
		switch a.Modifier {
		case "", "ROLLUP", "CUBE", "TOTALS":
		default:
			add("aggregate.modifier", "Must be one of ROLLUP, CUBE or TOTALS.")
		}
	}
}
