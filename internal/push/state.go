package push

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// PushState is the persisted cursor for a single folder: the last
// UIDNEXT the pusher observed. -1 means unknown.
type PushState struct {
	UidNext int64
}

// ParsePushState parses the single-line "uidNext=<N>" format. Any
// parse failure (missing key, garbled value, empty input) yields
// UidNext = -1. The codec is total: no error ever escapes.
func ParsePushState(raw string) PushState {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PushState{UidNext: -1}
	}

	key, value, found := strings.Cut(raw, "=")
	if !found || strings.TrimSpace(key) != "uidNext" {
		return PushState{UidNext: -1}
	}

	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return PushState{UidNext: -1}
	}

	return PushState{UidNext: n}
}

// String serializes the state back to the persisted format.
func (s PushState) String() string {
	return fmt.Sprintf("uidNext=%d", s.UidNext)
}

// StateStore persists a PushState across process restarts. The core
// loop reads it once per iteration via PushReceiver.GetPushState, but
// a standalone store is useful for CLI tooling (the "poll" command)
// that needs to read/write the cursor outside of a running worker.
type StateStore struct {
	fs   afero.Fs
	path string
}

// NewStateStore returns a StateStore backed by fs. Pass afero.NewOsFs()
// for production use and afero.NewMemMapFs() in tests.
func NewStateStore(fs afero.Fs, path string) *StateStore {
	return &StateStore{fs: fs, path: path}
}

// Load reads and parses the persisted state. A missing file is
// equivalent to an unknown cursor, not an error.
func (s *StateStore) Load() (PushState, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return PushState{UidNext: -1}, nil
		}
		return PushState{UidNext: -1}, fmt.Errorf("push: read state file %s: %w", s.path, err)
	}
	return ParsePushState(string(data)), nil
}

// Save serializes and writes state, creating parent directories as
// needed.
func (s *StateStore) Save(state PushState) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("push: create state dir for %s: %w", s.path, err)
	}
	if err := afero.WriteFile(s.fs, s.path, []byte(state.String()), 0o644); err != nil {
		return fmt.Errorf("push: write state file %s: %w", s.path, err)
	}
	return nil
}
