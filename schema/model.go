package schema

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/jinzhu/inflection"
)

// Engine names a ClickHouse table engine.
type Engine string

const (
	MergeTree                    Engine = "MergeTree"
	ReplacingMergeTree           Engine = "ReplacingMergeTree"
	SummingMergeTree             Engine = "SummingMergeTree"
	AggregatingMergeTree         Engine = "AggregatingMergeTree"
	CollapsingMergeTree          Engine = "CollapsingMergeTree"
	VersionedCollapsingMergeTree Engine = "VersionedCollapsingMergeTree"
	Memory                       Engine = "Memory"
	Log                          Engine = "Log"
)

func (e Engine) Valid() bool {
	switch e {
	case MergeTree, ReplacingMergeTree, SummingMergeTree, AggregatingMergeTree,
		CollapsingMergeTree, VersionedCollapsingMergeTree, Memory, Log:
		return true
	}
	return false
}

// IsCollapsing reports whether rows of the engine must be read with FINAL to
// observe their collapsed state.
func (e Engine) IsCollapsing() bool {
	return e == CollapsingMergeTree || e == VersionedCollapsingMergeTree
}

// Row is a single result row keyed by column name.
type Row map[string]any

// Column pairs a column name with its field kind.
type Column struct {
	Name  string
	Field Field
}

// Model describes one table. Models are immutable after NewModel.
type Model struct {
	name    string
	table   string
	engine  Engine
	columns []Column
	byName  map[string]Field
}

// NewModel creates a model. An empty table defaults to the plural snake_case
// form of name, e.g. "PageView" becomes "page_views".
func NewModel(name, table string, engine Engine, columns ...Column) (*Model, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if engine == "" {
		engine = MergeTree
	}
	if !engine.Valid() {
		return nil, fmt.Errorf("model `%s`: unsupported engine `%s`", name, engine)
	}
	if table == "" {
		table = DefaultTableName(name)
	}

	m := &Model{
		name:    name,
		table:   table,
		engine:  engine,
		columns: make([]Column, 0, len(columns)),
		byName:  make(map[string]Field, len(columns)),
	}
	for _, c := range columns {
		if c.Name == "" || c.Field == nil {
			return nil, fmt.Errorf("model `%s`: column name and type are required", name)
		}
		if _, dup := m.byName[c.Name]; dup {
			return nil, fmt.Errorf("model `%s`: duplicate column `%s`", name, c.Name)
		}
		m.columns = append(m.columns, c)
		m.byName[c.Name] = c.Field
	}

	return m, nil
}

// MustModel is NewModel that panics on error. Intended for package-level
// model declarations and tests.
func MustModel(name, table string, engine Engine, columns ...Column) *Model {
	m, err := NewModel(name, table, engine, columns...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Model) Name() string      { return m.name }
func (m *Model) TableName() string { return m.table }
func (m *Model) Engine() Engine    { return m.engine }

// IsCollapsing reports whether FINAL may be used with the model's table.
func (m *Model) IsCollapsing() bool { return m.engine.IsCollapsing() }

// Field returns the field kind of a column.
func (m *Model) Field(name string) (Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// Columns returns the model columns in declaration order.
func (m *Model) Columns() []Column {
	return append([]Column(nil), m.columns...)
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// DefaultTableName derives a table name from a model name.
func DefaultTableName(model string) string {
	snake := strings.ToLower(camelBoundary.ReplaceAllString(model, "${1}_${2}"))
	return inflection.Plural(snake)
}

// Registry maps model names to models.
type Registry struct {
	models map[string]*Model
}

func NewRegistry(models ...*Model) (*Registry, error) {
	r := &Registry{models: make(map[string]*Model, len(models))}
	for _, m := range models {
		if _, dup := r.models[m.Name()]; dup {
			return nil, fmt.Errorf("duplicate model `%s`", m.Name())
		}
		r.models[m.Name()] = m
	}
	return r, nil
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.models))
}

func (r *Registry) Get(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}
