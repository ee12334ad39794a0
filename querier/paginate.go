package querier

import (
	"context"
	"fmt"
	"strconv"

	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/schema"
)

// Page is one page of a paginated query.
type Page struct {
	Objects         []schema.Row `json:"objects"`
	NumberOfObjects uint64       `json:"number_of_objects"`
	PagesTotal      int          `json:"pages_total"`
	Number          int          `json:"number"`
	PageSize        int          `json:"page_size"`
}

// LastPage asks Paginate for the last page.
const LastPage = -1

type windowed interface {
	Count(ctx context.Context) (uint64, error)
	window(ctx context.Context, offset, count int) ([]schema.Row, error)
}

// paginate counts the matching rows and fetches page number page. The last
// page of an empty result is page 1 with no rows.
func paginate(ctx context.Context, q windowed, page, size int) (*Page, error) {
	if size < 1 {
		return nil, fault.Newf(fault.InvalidPaginationCode, "invalid page size: %d", size)
	}
	if page < 1 && page != LastPage {
		return nil, fault.Newf(fault.InvalidPaginationCode, "invalid page number: %d", page)
	}

	count, err := q.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	total := int((count + uint64(size) - 1) / uint64(size))
	if page == LastPage {
		page = max(total, 1)
	}

	rows, err := q.window(ctx, (page-1)*size, size)
	if err != nil {
		return nil, err
	}

	return &Page{
		Objects:         rows,
		NumberOfObjects: count,
		PagesTotal:      total,
		Number:          page,
		PageSize:        size,
	}, nil
}

// toCount converts the scalar returned by Executor.Raw to a row count.
func toCount(raw any) (uint64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case int64:
		return uint64(max(v, 0)), nil
	case int:
		return uint64(max(v, 0)), nil
	case float64:
		return uint64(max(v, 0)), nil
	case string:
		if v == "" {
			return 0, nil
		}
		return strconv.ParseUint(v, 10, 64)
	case []byte:
		return toCount(string(v))
	default:
		return 0, fmt.Errorf("unexpected count result of type %T", raw)
	}
}
