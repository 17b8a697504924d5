package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const fileExt = ".json"

// FileCache implements the Cache interface using filesystem storage.
// Every key maps to one file named after the md5 of the key.
type FileCache struct {
	dir string
	log zerolog.Logger
	now func() time.Time
}

// NewFileCache creates a file-based cache rooted at dir.
// If dir is empty, uses ~/.apigateway_cache
func NewFileCache(dir string, log zerolog.Logger) (*FileCache, error) {
	if dir == "" {
		usr, err := user.Current()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(usr.HomeDir, ".apigateway_cache")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &FileCache{
		dir: dir,
		log: log.With().Str("component", "filecache").Logger(),
		now: time.Now,
	}, nil
}

// Dir returns the directory holding cache files.
func (fc *FileCache) Dir() string { return fc.dir }

// Get implements Reader
func (fc *FileCache) Get(_ context.Context, key string) (json.RawMessage, bool) {
	path := fc.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fc.log.Warn().Err(err).Str("key", key).Msg("read cache file")
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		fc.log.Warn().Err(err).Str("key", key).Msg("corrupt cache file")
		return nil, false
	}

	if entry.Expired(fc.now()) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			fc.log.Warn().Err(err).Str("key", key).Msg("remove expired cache file")
		}
		return nil, false
	}

	return entry.Data, true
}

// Set implements Writer
func (fc *FileCache) Set(_ context.Context, key string, payload json.RawMessage, ttl time.Duration) bool {
	if err := fc.write(key, NewEntry(payload, fc.now(), ttl)); err != nil {
		fc.log.Error().Err(err).Str("key", key).Msg("write cache file")
		return false
	}
	return true
}

func (fc *FileCache) write(key string, entry *Entry) error {
	path := fc.path(key)

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// Write to temporary file first, then rename (atomic operation)
	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Delete implements Writer
func (fc *FileCache) Delete(_ context.Context, key string) bool {
	err := os.Remove(fc.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fc.log.Error().Err(err).Str("key", key).Msg("delete cache file")
		return false
	}
	return true
}

// Sweep removes expired and unreadable cache files. Leftover temp files from
// interrupted writes are removed once they are older than an hour.
func (fc *FileCache) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(fc.dir)
	if err != nil {
		return 0, fmt.Errorf("list cache dir: %w", err)
	}

	now := fc.now()
	deleted := 0
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if de.IsDir() {
			continue
		}
		name := de.Name()
		path := filepath.Join(fc.dir, name)

		if strings.Contains(name, ".tmp.") {
			if info, err := de.Info(); err == nil && now.Sub(info.ModTime()) > time.Hour {
				if os.Remove(path) == nil {
					deleted++
				}
			}
			continue
		}
		if !strings.HasSuffix(name, fileExt) {
			continue
		}

		if fc.stale(path, now) {
			if err := os.Remove(path); err == nil {
				deleted++
			} else if !errors.Is(err, os.ErrNotExist) {
				fc.log.Warn().Err(err).Str("file", name).Msg("sweep remove")
			}
		}
	}

	fc.log.Debug().Int("deleted", deleted).Msg("cache sweep finished")
	return deleted, nil
}

// stale reports whether the file at path is expired or cannot be decoded.
func (fc *FileCache) stale(path string, now time.Time) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return !errors.Is(err, os.ErrNotExist)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return true
	}
	return entry.Expired(now)
}

// path generates the full filesystem path for a cache key
func (fc *FileCache) path(key string) string {
	return filepath.Join(fc.dir, FileName(key))
}

// FileName maps a cache key to a filesystem-safe file name.
func FileName(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:]) + fileExt
}
