package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// FileStore keeps a snapshot in a single file. Paths ending in .msgpack are
// encoded with MessagePack, everything else as indented JSON.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) binary() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".msgpack" || ext == ".mp"
}

func (s *FileStore) Save(_ context.Context, snap Snapshot) error {
	var (
		data []byte
		err  error
	)
	if s.binary() {
		data, err = msgpack.Marshal(snap)
	} else {
		data, err = json.MarshalIndent(snap, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode portfolio: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *FileStore) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("%s: %w", s.path, ErrNoSnapshot)
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if s.binary() {
		err = msgpack.Unmarshal(data, &snap)
	} else {
		err = json.Unmarshal(data, &snap)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode portfolio %s: %w", s.path, err)
	}
	return snap, nil
}
