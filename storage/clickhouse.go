// Package storage runs compiled queries against ClickHouse.
package storage

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/thisisjab/chquery/querier"
	"github.com/thisisjab/chquery/schema"
)

type ClickHouseStorageConfig struct {
	Addr     []string `yaml:"addr"`
	Database string   `yaml:"database"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`

	// QueryTimeout bounds each statement. Zero means one minute.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// ClickHouseStorage implements querier.Executor over a native protocol
// connection.
type ClickHouseStorage struct {
	conn   driver.Conn
	cfg    ClickHouseStorageConfig
	logger *slog.Logger
}

var _ querier.Executor = (*ClickHouseStorage)(nil)

func NewClickHouseStorage(logger *slog.Logger, cfg ClickHouseStorageConfig) (*ClickHouseStorage, error) {
	if len(cfg.Addr) == 0 {
		return nil, fmt.Errorf("clickhouse storage requires at least one address")
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = time.Minute
	}
	return &ClickHouseStorage{cfg: cfg, logger: logger}, nil
}

func (s *ClickHouseStorage) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: s.cfg.Addr,
		Auth: clickhouse.Auth{
			Database: s.cfg.Database,
			Username: s.cfg.Username,
			Password: s.cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return fmt.Errorf("failed to connect: %v", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping the database: %w", err)
	}

	s.conn = conn

	return nil
}

// Ping checks that the server is reachable.
func (s *ClickHouseStorage) Ping(ctx context.Context) error {
	if err := s.connected(); err != nil {
		return err
	}
	return s.conn.Ping(ctx)
}

func (s *ClickHouseStorage) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *ClickHouseStorage) connected() error {
	if s.conn == nil {
		return fmt.Errorf("clickhouse storage is not connected")
	}
	return nil
}

// Select streams the rows of query. Values keep the Go types chosen by the
// driver for each column.
func (s *ClickHouseStorage) Select(ctx context.Context, query string, model *schema.Model) iter.Seq2[schema.Row, error] {
	return func(yield func(schema.Row, error) bool) {
		if err := s.connected(); err != nil {
			yield(nil, err)
			return
		}

		ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()

		logger := s.logger
		if model != nil {
			logger = logger.With("model", model.Name())
		}
		logger.Debug("running select", "query", query)

		rows, err := s.conn.Query(ctx, query)
		if err != nil {
			yield(nil, fmt.Errorf("failed to run select: %w", err))
			return
		}
		defer rows.Close()

		types := rows.ColumnTypes()
		for rows.Next() {
			row, err := scanRow(rows, types)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read rows: %w", err))
		}
	}
}

func scanRow(rows driver.Rows, types []driver.ColumnType) (schema.Row, error) {
	dest := make([]any, len(types))
	for i, ct := range types {
		dest[i] = reflect.New(ct.ScanType()).Interface()
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row := make(schema.Row, len(types))
	for i, ct := range types {
		row[ct.Name()] = reflect.ValueOf(dest[i]).Elem().Interface()
	}
	return row, nil
}

// Count runs SELECT count() against the model's table.
func (s *ClickHouseStorage) Count(ctx context.Context, model *schema.Model, conditions string) (uint64, error) {
	if err := s.connected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	query := "SELECT count() FROM " + model.TableName()
	if conditions != "" {
		query += " WHERE " + conditions
	}
	s.logger.Debug("running count", "model", model.Name(), "query", query)

	var n uint64
	if err := s.conn.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// Raw returns the first column of the first row of query, or nil when the
// query produces no rows.
func (s *ClickHouseStorage) Raw(ctx context.Context, query string) (any, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	s.logger.Debug("running raw query", "query", query)

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	types := rows.ColumnTypes()
	if !rows.Next() {
		return nil, rows.Err()
	}

	row, err := scanRow(rows, types)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, nil
	}
	return row[types[0].Name()], nil
}
