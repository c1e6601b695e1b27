package config

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/lorawan-node/pv-node/internal/cycle"
)

func TestPrefsRoundTrip(t *testing.T) {
	s := NewPrefsStore(t.TempDir())

	p := cycle.Prefs{
		SleepInterval:     300,
		SleepIntervalLong: 1800,
		LWStatusInterval:  12,
	}
	assert.NilError(t, s.Save(p))

	got, err := s.Load(cycle.Prefs{})
	assert.NilError(t, err)
	assert.DeepEqual(t, got, p)
}

func TestPrefsMissingFileYieldsDefaults(t *testing.T) {
	s := NewPrefsStore(t.TempDir())

	defaults := cycle.Prefs{SleepInterval: 360, SleepIntervalLong: 900}
	got, err := s.Load(defaults)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, defaults)
}

func TestPrefsCorruptFileYieldsDefaultsAndError(t *testing.T) {
	dir := t.TempDir()
	s := NewPrefsStore(dir)

	err := os.WriteFile(filepath.Join(dir, "prefs.yaml"), []byte("sleep_interval: {bad"), 0600)
	assert.NilError(t, err)

	defaults := cycle.Prefs{SleepInterval: 360}
	got, err := s.Load(defaults)
	assert.ErrorContains(t, err, "unmarshal prefs")
	assert.DeepEqual(t, got, defaults)
}

func TestPrefsPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	s := NewPrefsStore(dir)

	err := os.WriteFile(filepath.Join(dir, "prefs.yaml"), []byte("sleep_interval: 120\n"), 0600)
	assert.NilError(t, err)

	got, err := s.Load(cycle.Prefs{SleepInterval: 360, SleepIntervalLong: 900, LWStatusInterval: 6})
	assert.NilError(t, err)
	assert.DeepEqual(t, got, cycle.Prefs{SleepInterval: 120, SleepIntervalLong: 900, LWStatusInterval: 6})
}

func TestPrefsSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s := NewPrefsStore(dir)

	assert.NilError(t, s.Save(cycle.Prefs{SleepInterval: 300}))

	entries, err := os.ReadDir(dir)
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 1)
	assert.Equal(t, entries[0].Name(), "prefs.yaml")
}
