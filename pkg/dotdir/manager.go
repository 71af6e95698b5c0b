// Package dotdir resolves the .nestlog/ directory that holds config.toml,
// the default SQLite database and the optional prompts overlay file.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the nestlog directory.
	dirName = ".nestlog"

	// DatabaseFile is the default SQLite database name inside the directory.
	DatabaseFile = "nestlog.db"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .nestlog/ directory.
// Order of precedence is as follows:
//  1. Provided override (created when missing)
//  2. Local ./.nestlog/ dir
//  3. Home ~/.nestlog/ dir
//
// When none of these exist an empty string is returned and callers fall back
// to defaults.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating nestlog directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if isDir(filepath.Join(cwd, dirName)) {
		return filepath.Join(cwd, dirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	if isDir(filepath.Join(home, dirName)) {
		return filepath.Join(home, dirName), nil
	}

	return "", nil
}

// DatabasePath returns the default SQLite path for the resolved directory,
// or DatabaseFile in the working directory when nothing resolves.
func (m *Manager) DatabasePath(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	if target == "" {
		return DatabaseFile, nil
	}
	return filepath.Join(target, DatabaseFile), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
