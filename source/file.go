package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/thisisjab/chquery/querier/ast"
	"gopkg.in/yaml.v3"
)

// FileQuerySource reads a YAML (or JSON) query definition and reads it again
// whenever the file changes.
type FileQuerySource struct {
	filePath string
	logger   *slog.Logger
}

func NewFileQuerySource(logger *slog.Logger, filePath string) *FileQuerySource {
	return &FileQuerySource{
		logger:   logger,
		filePath: filePath,
	}
}

func (f *FileQuerySource) Name() string {
	return f.filePath
}

// Load reads and decodes a query definition file.
func Load(path string) (*ast.Query, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read query file: %w", err)
	}

	var q ast.Query
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("cannot parse query file: %w", err)
	}

	return &q, nil
}

// Provide sends the current definition, then a new one after every change,
// until ctx is done.
//
// The parent directory is watched rather than the file itself: editors that
// save by writing a new file and renaming it over the old one replace the
// inode, and a watch on the file would stop firing.
func (f *FileQuerySource) Provide(ctx context.Context, updates chan<- Update) error {
	path, err := filepath.Abs(f.filePath)
	if err != nil {
		return fmt.Errorf("cannot resolve query file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("cannot add directory to watcher: %w", err)
	}

	if !f.send(ctx, updates, path) {
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				f.logger.Debug("fsnotify watcher channel is closed.")
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				f.logger.Debug("Received unhandled event from fsnotify.", "event", event.String())
				continue
			}

			if !f.send(ctx, updates, path) {
				return ctx.Err()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (f *FileQuerySource) send(ctx context.Context, updates chan<- Update, path string) bool {
	q, err := Load(path)
	if err != nil {
		f.logger.Warn("cannot load query definition", "path", path, "error", err)
	}

	select {
	case updates <- Update{Query: q, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}
