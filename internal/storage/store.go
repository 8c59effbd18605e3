// Package storage persists the bot's documents as human-editable JSON files.
// It is a deliberate non-database: one process, one writer, two small files.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	dErrors "clanbridge/pkg/domain-errors"
)

// Store reads and writes named JSON documents under a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New constructs a Store rooted at dir, creating it if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Load decodes the named document into v. A missing file leaves v at its
// zero value and is not an error; a corrupt file is logged and degraded the
// same way so a bad disk state never prevents startup.
func (s *Store) Load(name string, v any) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("document not found, starting empty", "document", name)
		} else {
			s.logger.Error("failed to read document", "document", name, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Error("failed to parse document, starting empty", "document", name, "error", err)
	}
}

// Save writes v as the named document using write-to-temp plus rename so a
// crash mid-write cannot leave a partial file behind.
func (s *Store) Save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "encode "+name)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "create temp for "+name)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return dErrors.Wrap(err, dErrors.CodePersistence, "write "+name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return dErrors.Wrap(err, dErrors.CodePersistence, "sync "+name)
	}
	if err := tmp.Close(); err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "close "+name)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "replace "+name)
	}
	return nil
}
