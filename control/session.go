package control

import (
	"path/filepath"

	"github.com/pkg/errors"

	"go-looper/config"
	"go-looper/debug"
	"go-looper/looper"
)

func (m *Manager) sessionDir() (string, error) {
	if m.opts.SessionDir != "" {
		return m.opts.SessionDir, nil
	}
	return config.SessionsDir()
}

// SaveSession writes the looper state under name in the session directory.
func (m *Manager) SaveSession(name string, activeOnly bool) (string, error) {
	dir, err := m.sessionDir()
	if err != nil {
		return "", err
	}
	if name == "" {
		name = looper.DefaultSessionName
	}
	path := looper.SessionPath(dir, name, activeOnly)
	if activeOnly {
		err = m.looper.SaveActiveLoopsOnly(path)
	} else {
		err = m.looper.SaveState(path)
	}
	if err != nil {
		return "", m.report(err)
	}
	debug.Log("session", "saved %s", path)
	m.report(nil)
	return path, nil
}

// LoadSession restores a session by name, or by path when name contains a
// path separator or ends in .json inside the session directory.
func (m *Manager) LoadSession(name string) error {
	path, err := m.resolveSession(name)
	if err != nil {
		return m.report(err)
	}
	if err := m.looper.LoadState(path); err != nil {
		return m.report(errors.Wrapf(err, "load %s", filepath.Base(path)))
	}
	debug.Log("session", "loaded %s", path)
	return m.report(nil)
}

func (m *Manager) resolveSession(name string) (string, error) {
	if name == "" {
		name = looper.DefaultSessionName
	}
	if filepath.IsAbs(name) || filepath.Base(name) != name {
		return name, nil
	}
	dir, err := m.sessionDir()
	if err != nil {
		return "", err
	}
	if filepath.Ext(name) == ".json" {
		return filepath.Join(dir, name), nil
	}
	return looper.SessionPath(dir, name, false), nil
}

// Backup writes a timestamped copy of the full state.
func (m *Manager) Backup() (string, error) {
	dir, err := m.sessionDir()
	if err != nil {
		return "", err
	}
	path, err := m.looper.CreateBackup(dir)
	if err != nil {
		return "", m.report(err)
	}
	debug.Log("session", "backup %s", path)
	return path, nil
}

// Sessions lists saved sessions, newest first.
func (m *Manager) Sessions() ([]config.SessionInfo, error) {
	dir, err := m.sessionDir()
	if err != nil {
		return nil, err
	}
	return config.ListSessions(dir)
}

// Reset returns the looper to its defaults and disarms the grid.
func (m *Manager) Reset() error {
	m.mu.Lock()
	m.clearArmed, m.pulseArmed = false, false
	m.mu.Unlock()
	return m.report(m.looper.ResetToDefaults())
}
