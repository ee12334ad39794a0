package source

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: event
filter: kind=click
filters:
  amount__gt: 10
aggregate:
  group_by: [kind]
  calculated:
    - {alias: total, expr: "count()"}
  modifier: TOTALS
`), 0o600))

	q, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "event", q.Model)
	assert.Equal(t, "kind=click", q.Filter)
	assert.Equal(t, map[string]any{"amount__gt": 10}, q.Filters)
	require.NotNil(t, q.Aggregate)
	assert.Equal(t, []string{"kind"}, q.Aggregate.GroupBy)
	assert.Equal(t, "TOTALS", q.Aggregate.Modifier)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("model: event\nwhere: x\n"), 0o600))
	_, err = Load(unknown)
	assert.Error(t, err)
}

func receive(t *testing.T, updates <-chan Update) Update {
	t.Helper()

	select {
	case u := <-updates:
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an update")
		return Update{}
	}
}

func TestFileQuerySourceProvide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: event\n"), 0o600))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	src := NewFileQuerySource(slog.New(slog.NewTextHandler(io.Discard, nil)), path)
	updates := make(chan Update)
	done := make(chan error, 1)
	go func() { done <- src.Provide(ctx, updates) }()

	u := receive(t, updates)
	require.NoError(t, u.Err)
	assert.Equal(t, "event", u.Query.Model)

	require.NoError(t, os.WriteFile(path, []byte("model: user\n"), 0o600))
	for {
		u = receive(t, updates)
		if u.Err == nil && u.Query.Model == "user" {
			break
		}
	}

	require.NoError(t, os.WriteFile(path, []byte("model: [\n"), 0o600))
	for {
		u = receive(t, updates)
		if u.Err != nil {
			break
		}
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
