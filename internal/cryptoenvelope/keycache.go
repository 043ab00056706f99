package cryptoenvelope

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrKeyNotFound is returned when either configured key file is missing.
var ErrKeyNotFound = errors.New("cryptoenvelope: key not found")

// KeyCache hot-reloads a key pair from disk, keyed by each file's mtime.
// Get() is cheap on the common path: it stats both files, and if their
// mtimes still match the cached envelope, it's returned without re-reading
// or re-parsing the keys. At
// most one reload is ever in flight at a time — concurrent callers serialize
// on the mutex rather than racing to read the files.
type KeyCache struct {
	privPath string
	pubPath  string

	mu       sync.Mutex
	loaded   bool
	privMod  time.Time
	pubMod   time.Time
	envelope *Envelope
}

// NewKeyCache builds a cache for the given private/public key paths. Either
// may be empty, in which case that half of the envelope is never populated.
func NewKeyCache(privPath, pubPath string) *KeyCache {
	return &KeyCache{privPath: privPath, pubPath: pubPath}
}

// NewStaticKeyCache wraps an already-constructed envelope in a KeyCache
// that never reloads from disk (no paths to watch). Intended for tests in
// other packages that need a KeyCache without touching the filesystem.
func NewStaticKeyCache(envelope *Envelope) *KeyCache {
	return &KeyCache{envelope: envelope, loaded: true}
}

// Get returns the current envelope, reloading from disk if either file's
// mtime has changed since the last load (or on first call).
func (c *KeyCache) Get() (*Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	privMod, err := statMtime(c.privPath)
	if err != nil {
		return nil, err
	}
	pubMod, err := statMtime(c.pubPath)
	if err != nil {
		return nil, err
	}

	if c.loaded && privMod.Equal(c.privMod) && pubMod.Equal(c.pubMod) {
		return c.envelope, nil
	}

	envelope, err := LoadEnvelope(c.privPath, c.pubPath)
	if err != nil {
		return nil, fmt.Errorf("cryptoenvelope: key cache reload: %w", err)
	}

	c.envelope = envelope
	c.privMod = privMod
	c.pubMod = pubMod
	c.loaded = true
	return c.envelope, nil
}

// statMtime stats path and returns its mtime, or the zero time if path is
// empty (that half of the envelope simply has no file to watch).
func statMtime(path string) (time.Time, error) {
	if path == "" {
		return time.Time{}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, ErrKeyNotFound
		}
		return time.Time{}, fmt.Errorf("cryptoenvelope: stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}
