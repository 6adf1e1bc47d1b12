package store

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MaxFallbackBlobSize caps each fallback blob at 1 MB. Oversized payloads
// are dropped (logged, but the write still reports success) — the fallback
// is advisory, not a second durable store.
const MaxFallbackBlobSize = 1 << 20

// Fallback is a flat-key blob store on disk, one JSON file per key. It
// stands in when the primary store is unavailable.
type Fallback struct {
	mu  sync.Mutex
	dir string
}

// NewFallback creates a fallback store rooted at dir. The directory is
// created lazily on first write.
func NewFallback(dir string) *Fallback {
	return &Fallback{dir: dir}
}

func (f *Fallback) path(key string) string {
	// Keys are store-controlled but sanitize anyway.
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, key)
	return filepath.Join(f.dir, safe+".json")
}

// Put serializes v under key. Payloads over the size cap are silently
// dropped; all other failures are logged and swallowed.
func (f *Fallback) Put(key string, v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("fallback: marshal %q: %v", key, err)
		return
	}
	if len(data) > MaxFallbackBlobSize {
		log.Printf("fallback: dropping %q, %d bytes exceeds cap", key, len(data))
		return
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		log.Printf("fallback: mkdir: %v", err)
		return
	}
	if err := os.WriteFile(f.path(key), data, 0o644); err != nil {
		log.Printf("fallback: write %q: %v", key, err)
	}
}

// Get deserializes the blob stored under key into v. Returns false when
// the key is absent or unreadable.
func (f *Fallback) Get(key string, v interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("fallback: unmarshal %q: %v", key, err)
		return false
	}
	return true
}

// Clear removes every blob in the store.
func (f *Fallback) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
