// Package cache provides the discovery cache: scan results stored per
// source file, keyed by a content hash, so unchanged files skip parsing on
// the next run.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"

	"github.com/velocitest/velocitest/packages/core/scanner"
)

const (
	// Version invalidates every entry when the on-disk format changes.
	Version = 1
	// EntryExt is the file extension for cache entries
	EntryExt = ".scan.json"
)

// entrySchema validates cache entries before trusting them. A corrupt or
// hand-edited entry is treated as a miss, never an error.
const entrySchema = `{
	"type": "object",
	"required": ["version", "hash", "module"],
	"properties": {
		"version": {"type": "integer"},
		"hash": {"type": "string", "minLength": 64, "maxLength": 64},
		"module": {
			"type": "object",
			"required": ["Path"],
			"properties": {
				"Path": {"type": "string"}
			}
		}
	}
}`

// Entry is one cached scan result.
type Entry struct {
	Version int             `json:"version"`
	Hash    string          `json:"hash"`
	Module  *scanner.Module `json:"module"`
}

// Store is a directory of per-file scan entries.
type Store struct {
	dir      string
	disabled bool
	schema   *gojsonschema.Schema
}

// NewStore creates a store rooted at dir. A disabled store misses on every
// lookup and drops every write, which is how --no-cache is implemented.
func NewStore(dir string, disabled bool) (*Store, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(entrySchema))
	if err != nil {
		return nil, fmt.Errorf("compiling cache entry schema: %w", err)
	}
	return &Store{dir: dir, disabled: disabled, schema: schema}, nil
}

// HashContent returns the content hash used as the cache key.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached module for a source file when the stored hash
// matches the current content hash.
func (s *Store) Lookup(path, hash string) (*scanner.Module, bool) {
	if s.disabled {
		return nil, false
	}

	data, err := os.ReadFile(s.entryPath(path))
	if err != nil {
		return nil, false
	}

	res, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil || !res.Valid() {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if entry.Version != Version || entry.Hash != hash || entry.Module == nil {
		return nil, false
	}

	relink(entry.Module)
	return entry.Module, true
}

// Save stores the scan result for a source file.
func (s *Store) Save(path, hash string, mod *scanner.Module) error {
	if s.disabled {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&Entry{Version: Version, Hash: hash, Module: mod}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.entryPath(path), data, 0644)
}

// Clear removes every cache entry.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// entryPath maps a source path to its entry file. Hashing the path keeps
// the directory flat and avoids separator escaping.
func (s *Store) entryPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:8])+EntryExt)
}

// relink restores the method back-pointers that the JSON form omits.
func relink(mod *scanner.Module) {
	for _, cls := range mod.Classes {
		for _, m := range cls.Methods {
			m.Class = cls
		}
	}
}
