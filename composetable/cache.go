package composetable

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
)

// cachePath returns the cache file for a table id, creating the cache
// directory as needed.  $IBUS_COMPOSE_CACHE_DIR overrides the default
// user cache location.  Returns "" when no usable directory exists; the
// cache is an optimisation, never a requirement.
func cachePath(id uint32) string {
	dir := os.Getenv("IBUS_COMPOSE_CACHE_DIR")
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			log.Error.Printf("Failed to locate user cache dir: %v", err)
			return ""
		}
		dir = filepath.Join(base, "ibus", "compose")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error.Printf("Failed to mkdir %s: %v", dir, err)
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%08x.cache", id))
}

// LoadCache loads the cached table for a compose file, or nil when the
// cache is absent, stale or rejected.  The second result is the version
// recorded in a rejected cache, which drives migration of old files.
func LoadCache(composeFile string) (*Table, uint16) {
	id := farm.Hash32([]byte(composeFile))
	path := cachePath(id)
	if path == "" {
		return nil, 0
	}
	cacheInfo, err := os.Stat(path)
	if err != nil {
		return nil, 0
	}
	srcInfo, err := os.Lstat(composeFile)
	if err != nil || srcInfo.ModTime().After(cacheInfo.ModTime()) {
		return nil, 0
	}
	srcInfo, err = os.Stat(composeFile)
	if err != nil || srcInfo.ModTime().After(cacheInfo.ModTime()) {
		return nil, 0
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		log.Error.Printf("Failed to get cache content %s: %v", path, err)
		return nil, 0
	}
	t, version, err := Deserialize(contents)
	if err != nil {
		log.Error.Printf("Failed to load the cache file %s: %v", path, err)
		return nil, version
	}
	t.id = id
	return t, version
}

// SaveCache writes the table's cache file.  Failures are logged only.
func SaveCache(t *Table) {
	path := cachePath(t.id)
	if path == "" {
		return
	}
	contents, err := t.Serialize(false)
	if err != nil {
		log.Error.Printf("Failed to serialize compose table %s: %v", path, err)
		return
	}
	if err := os.WriteFile(path, contents, 0644); err != nil {
		log.Error.Printf("Failed to save compose table %s: %v", path, err)
	}
}
