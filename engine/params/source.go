package params

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/fsnotify/fsnotify"
)

// Source supplies presets and reports when they change.
type Source interface {
	// Load reads the current preset.
	Load() (Preset, error)

	// Watch calls onChange with the new preset every time the source changes, until ctx is done.
	// Presets that fail to parse are logged and skipped.
	//
	// Parameters:
	//   - ctx: cancels the watch
	//   - onChange: receives each new preset
	//
	// Returns:
	//   - error: an error if the watch could not be started, or ctx.Err() once cancelled
	Watch(ctx context.Context, onChange func(Preset)) error
}

type fileSource struct {
	path string
}

var _ Source = &fileSource{}

// NewFileSource creates a Source backed by a TOML file.
//
// Parameters:
//   - path: the preset file
//
// Returns:
//   - Source: the source
func NewFileSource(path string) Source {
	return &fileSource{path: filepath.Clean(path)}
}

func (s *fileSource) Load() (Preset, error) {
	return LoadPreset(s.path)
}

func (s *fileSource) Watch(ctx context.Context, onChange func(Preset)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// editors replace files on save, so the directory is watched rather than the file
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			p, err := s.Load()
			if err != nil {
				common.Logger().Warn("preset not reloaded", "path", s.path, "error", err)
				continue
			}
			onChange(p)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			common.Logger().Warn("preset watcher error", "path", s.path, "error", err)
		}
	}
}
