package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lorawan-node/pv-node/internal/cycle"
)

// PrefsStore persists the over-the-air mutable preferences as a YAML file in
// the state directory. Preferences are loaded at boot and written back
// immediately whenever a downlink command mutates one.
type PrefsStore struct {
	path string
}

// NewPrefsStore returns a store rooted at dir.
func NewPrefsStore(dir string) *PrefsStore {
	return &PrefsStore{path: filepath.Join(dir, "prefs.yaml")}
}

// Load reads the preference file. A missing file yields the defaults without
// error; an unreadable or corrupt file yields the defaults and the error.
func (s *PrefsStore) Load(defaults cycle.Prefs) (cycle.Prefs, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, fmt.Errorf("read prefs: %w", err)
	}

	p := defaults
	if err := yaml.Unmarshal(data, &p); err != nil {
		return defaults, fmt.Errorf("unmarshal prefs: %w", err)
	}

	return p, nil
}

// Save writes the preference file atomically and syncs it to stable storage.
func (s *PrefsStore) Save(p cycle.Prefs) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync prefs: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close prefs: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename prefs: %w", err)
	}

	return nil
}
