// Package source provides query definitions to long running commands.
package source

import (
	"context"

	"github.com/thisisjab/chquery/querier/ast"
)

// Update is one read of a query definition. Err is set when the definition
// could not be read or decoded; the source keeps running.
type Update struct {
	Query *ast.Query
	Err   error
}

type QuerySource interface {
	Name() string
	Provide(ctx context.Context, updates chan<- Update) error
}
