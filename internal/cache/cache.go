// Package cache persists share listings and resolved links between runs.
//
// One file per share lives under the cache directory, named after Key.
// Entries never expire; delete the file (or use Store.Remove) to force a
// fresh walk. There is no locking: two runs against the same share at the
// same time may clobber each other's file.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/handiism/cloudreve-downloader/internal/model"
)

// Key returns the cache key for a share: the hex MD5 of "{base}:{code}".
func Key(share model.ShareReference) string {
	sum := md5.Sum([]byte(share.String()))
	return hex.EncodeToString(sum[:])
}

// Store reads and writes cache records in a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the file that holds the record for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key)
}

// Save writes record under key, replacing any previous record.
func (s *Store) Save(key string, record *model.CacheRecord) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	data, err := sonic.Marshal(record)
	if err != nil {
		return err
	}

	return os.WriteFile(s.Path(key), data, 0644)
}

// Load returns the record stored under key.
//
// The boolean is false when there is no usable record; a missing file and
// an unreadable or corrupt one are treated the same way. The error is only
// non-nil in the latter case, for callers that want to log it.
func (s *Store) Load(key string) (*model.CacheRecord, bool, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var record model.CacheRecord
	if err := sonic.Unmarshal(data, &record); err != nil {
		return nil, false, err
	}
	if record.Links == nil {
		record.Links = model.LinkTable{}
	}

	return &record, true, nil
}

// Remove deletes the record stored under key. Missing records are not an error.
func (s *Store) Remove(key string) error {
	err := os.Remove(s.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
