package api

import (
	"net/http"
	"strconv"

	"github.com/thisisjab/chquery/fault"
	"github.com/thisisjab/chquery/querier/ast"
	"github.com/thisisjab/chquery/querier/plan"
	"github.com/thisisjab/chquery/schema"
)

func (s *server) build(w http.ResponseWriter, r *http.Request) (plan.Statement, bool) {
	var def ast.Query
	if s.returnOnError(w, r, s.readJson(w, r, &def)) {
		return nil, false
	}

	stmt, err := plan.Build(&def, s.services.Models, s.services.DB)
	if s.returnOnError(w, r, err) {
		return nil, false
	}

	return stmt, true
}

func (s *server) requireDB(w http.ResponseWriter, r *http.Request) bool {
	if s.services.DB != nil {
		return true
	}
	s.writeError(w, r, http.StatusServiceUnavailable, apiResponse{Success: false, Message: "Storage is not configured."})
	return false
}

// compileHandler renders a query definition without running it.
func (s *server) compileHandler(w http.ResponseWriter, r *http.Request) {
	stmt, ok := s.build(w, r)
	if !ok {
		return
	}

	sql, err := stmt.SQL()
	if s.returnOnError(w, r, err) {
		return
	}
	conditions, err := stmt.ConditionsSQL()
	if s.returnOnError(w, r, err) {
		return
	}

	s.writeJson(w, http.StatusOK, apiResponse{ //nolint:errcheck
		Success: true,
		Data:    map[string]any{"sql": sql, "conditions": conditions},
	}, nil)
}

// queryHandler runs a query definition. With the page query parameter the
// result is paginated; page=-1 selects the last page.
func (s *server) queryHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}

	page, size, paginated, err := pagination(r)
	if s.returnOnError(w, r, err) {
		return
	}

	stmt, ok := s.build(w, r)
	if !ok {
		return
	}

	if paginated {
		p, err := stmt.Paginate(r.Context(), page, size)
		if s.returnOnError(w, r, err) {
			return
		}

		s.writeJson(w, http.StatusOK, apiResponse{ //nolint:errcheck
			Success: true,
			Data:    map[string]any{"rows": nonNil(p.Objects)},
			Metadata: map[string]any{"pagination": map[string]any{
				"count":       p.NumberOfObjects,
				"pages_total": p.PagesTotal,
				"page":        p.Number,
				"page_size":   p.PageSize,
			}},
		}, nil)
		return
	}

	rows, err := stmt.Rows(r.Context())
	if s.returnOnError(w, r, err) {
		return
	}

	s.writeJson(w, http.StatusOK, apiResponse{ //nolint:errcheck
		Success: true,
		Data:    map[string]any{"rows": nonNil(rows)},
	}, nil)
}

func (s *server) countHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}

	stmt, ok := s.build(w, r)
	if !ok {
		return
	}

	n, err := stmt.Count(r.Context())
	if s.returnOnError(w, r, err) {
		return
	}

	s.writeJson(w, http.StatusOK, apiResponse{ //nolint:errcheck
		Success: true,
		Data:    map[string]any{"count": n},
	}, nil)
}

const defaultPageSize = 50

func pagination(r *http.Request) (page, size int, ok bool, err error) {
	q := r.URL.Query()
	if !q.Has("page") {
		return 0, 0, false, nil
	}

	page, err = strconv.Atoi(q.Get("page"))
	if err != nil {
		return 0, 0, false, fault.New(fault.BadInputCode, "").WithMetadata(fault.FieldErrorsMetadata{"page": []string{"Must be an integer."}})
	}

	size = defaultPageSize
	if q.Has("page_size") {
		size, err = strconv.Atoi(q.Get("page_size"))
		if err != nil {
			return 0, 0, false, fault.New(fault.BadInputCode, "").WithMetadata(fault.FieldErrorsMetadata{"page_size": []string{"Must be an integer."}})
		}
	}

	return page, size, true, nil
}

func nonNil(rows []schema.Row) []schema.Row {
	if rows == nil {
		return []schema.Row{}
	}
	return rows
}
