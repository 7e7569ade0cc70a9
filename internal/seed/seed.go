package seed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lazytree/internal/treedb"
)

// Importer replaces the stored tree with an outline.
type Importer interface {
	Import(ctx context.Context, outline []treedb.Branch) (int, error)
}

// Seeder imports an outline file.
type Seeder struct {
	path     string
	imp      Importer
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	lastSum string
}

// New creates a seeder for the outline at path.
func New(path string, imp Importer, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		path:     filepath.Clean(path),
		imp:      imp,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// Sync imports the outline unless its content is unchanged since the last
// successful import. It reports whether an import happened.
func (s *Seeder) Sync(ctx context.Context) (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("seed: read %s: %w", s.path, err)
	}
	h := sha256.Sum256(data)
	sum := hex.EncodeToString(h[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	if sum == s.lastSum {
		return false, nil
	}

	outline, err := parserFor(s.path)(data)
	if err != nil {
		return false, err
	}
	n, err := s.imp.Import(ctx, outline)
	if err != nil {
		return false, fmt.Errorf("seed: import %s: %w", s.path, err)
	}
	s.lastSum = sum
	s.logger.Info("seed: outline imported", slog.String("path", s.path), slog.Int("nodes", n))
	return true, nil
}

// Watch re-imports the outline whenever the file changes until ctx is
// cancelled. The parent directory is watched so that editors replacing the
// file are noticed; bursts of events are debounced.
func (s *Seeder) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	s.logger.Info("seed: watching", slog.String("path", s.path))

	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(s.debounce)
			fire = timer.C
		} else {
			timer.Reset(s.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("seed: watcher stopped")
			return nil

		case <-fire:
			if _, err := s.Sync(ctx); err != nil {
				s.logger.Warn("seed: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("seed: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
