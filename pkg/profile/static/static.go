// Package static serves profiles from a TOML file, for local deployments
// without a profile service:
//
//	[[profiles]]
//	id = "mia"
//	name = "Mia"
//	birth_date = 2025-03-14
//	concerns = ["reflux"]
package static

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/nestlog/pkg/profile"
)

type file struct {
	Profiles []profile.Profile `toml:"profiles"`
}

// Directory is an in-memory profile directory. Its contents only change
// through Watch.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]profile.Profile
}

var _ profile.Directory = (*Directory)(nil)

// Load reads profiles from a TOML file. An empty path yields an empty
// directory.
func Load(path string) (*Directory, error) {
	if path == "" {
		return New(), nil
	}

	profiles, err := decode(path)
	if err != nil {
		return nil, err
	}
	return New(profiles...), nil
}

func decode(path string) ([]profile.Profile, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("loading profiles from %s: %w", path, err)
	}
	return f.Profiles, nil
}

// New builds a directory from the given profiles.
func New(profiles ...profile.Profile) *Directory {
	d := &Directory{}
	d.replace(profiles)
	return d
}

func (d *Directory) replace(profiles []profile.Profile) {
	m := make(map[string]profile.Profile, len(profiles))
	for _, p := range profiles {
		m[p.ID] = p
	}

	d.mu.Lock()
	d.profiles = m
	d.mu.Unlock()
}

// Watch reloads the directory whenever path is written or replaced, until
// ctx is done. A file that fails to parse keeps the previous profiles.
// ready, when non-nil, is closed once the watch is established.
func (d *Directory) Watch(ctx context.Context, path string, logger *slog.Logger, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating profile watcher: %w", err)
	}
	defer watcher.Close()

	// editors replace files rather than writing in place, so watch the dir
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching profile dir: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			profiles, err := decode(path)
			if err != nil {
				logger.Warn("keeping previous profiles", "path", path, "error", err)
				continue
			}
			d.replace(profiles)
			logger.Info("reloaded profiles", "path", path, "count", len(profiles))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("profile watcher error: %w", err)
		}
	}
}

// GetProfile returns a copy of the stored profile.
func (d *Directory) GetProfile(_ context.Context, id string) (*profile.Profile, error) {
	d.mu.RLock()
	p, ok := d.profiles[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", profile.ErrNotFound, id)
	}
	p.Concerns = append([]string(nil), p.Concerns...)
	return &p, nil
}
