// Package session persists the LoRaWAN transport state across sleep episodes.
// Three artifacts live in the state directory: the join nonces, the session
// context the modem hands back after activation, and the retained device
// state. Losing any of them is survivable, it only costs a fresh join.
package session

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/lorawan-node/pv-node/internal/cycle"
	"github.com/lorawan-node/pv-node/pkg/crypto"
)

const (
	noncesFile  = "nonces.bin"
	sessionFile = "session.bin"
	stateFile   = "state.yaml"
)

// Store reads and writes the node's durable files under a single directory.
// With an encryption key configured the opaque modem blobs are sealed at rest;
// the retained state stays plain YAML so it can be inspected in the field.
type Store struct {
	dir string
	key []byte
}

// NewStore opens (creating if needed) the state directory. keyHex is an
// optional hex-encoded AES key for the session and nonce blobs.
func NewStore(dir, keyHex string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &Store{dir: dir}
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("decode encryption key: %w", err)
		}
		if n := len(key); n != 16 && n != 24 && n != 32 {
			return nil, fmt.Errorf("encryption key must be 16, 24 or 32 bytes, got %d", n)
		}
		s.key = key
	}

	return s, nil
}

// SaveNonces persists the join-nonce blob. Called after every join attempt,
// failed ones included, so a reused DevNonce can never reach the network.
func (s *Store) SaveNonces(b []byte) error {
	return s.writeBlob(noncesFile, b)
}

// SaveSession persists the session context blob.
func (s *Store) SaveSession(b []byte) error {
	return s.writeBlob(sessionFile, b)
}

// LoadNonces returns the stored nonce blob, nil when none exists.
func (s *Store) LoadNonces() []byte {
	return s.readBlob(noncesFile)
}

// LoadSession returns the stored session blob, nil when none exists.
func (s *Store) LoadSession() []byte {
	return s.readBlob(sessionFile)
}

// ClearSession drops the session blob so the next episode joins fresh. The
// nonce blob is deliberately kept.
func (s *Store) ClearSession() error {
	err := os.Remove(filepath.Join(s.dir, sessionFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// LoadState reads the retained device state. A missing file is a first boot;
// a corrupt one is logged and replaced with defaults so the node keeps
// running.
func (s *Store) LoadState() cycle.PersistentState {
	path := filepath.Join(s.dir, stateFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("read state failed, using defaults")
		}
		return cycle.DefaultState()
	}

	st := cycle.DefaultState()
	if err := yaml.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("corrupt state file, using defaults")
		return cycle.DefaultState()
	}

	return st
}

// SaveState writes the retained device state atomically.
func (s *Store) SaveState(st cycle.PersistentState) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.writeFile(stateFile, data)
}

func (s *Store) writeBlob(name string, b []byte) error {
	if s.key != nil {
		sealed, err := crypto.Seal(s.key, b)
		if err != nil {
			return fmt.Errorf("seal %s: %w", name, err)
		}
		b = sealed
	}
	return s.writeFile(name, b)
}

// readBlob returns nil for a missing, unreadable or undecryptable blob. The
// caller treats nil as "start from scratch", so corruption here degrades to a
// rejoin instead of an error.
func (s *Store) readBlob(name string) []byte {
	path := filepath.Join(s.dir, name)

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("read blob failed")
		}
		return nil
	}

	if s.key != nil {
		opened, err := crypto.Open(s.key, b)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("undecryptable blob discarded")
			return nil
		}
		b = opened
	}

	return b
}

// writeFile writes via a temp file and rename so a power loss mid-write never
// leaves a torn file behind.
func (s *Store) writeFile(name string, b []byte) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", name, err)
	}

	return nil
}
