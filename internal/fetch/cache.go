package fetch

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"k8s.io/klog/v2"
)

// DiskCache memoizes (url, offset, size) -> bytes lookups on disk, keyed by
// a strong digest so that distinct triples never collide (spec §4.4:
// "cache_lookup(url, offset, size) -> bytes | Miss", "cache_store(url,
// offset, size, bytes)"). Writes are atomic via temp-file-then-rename, so
// concurrent readers never observe a partial entry; eviction is bounded-size
// LRU guarded by a single writer lock, per spec §4.4/§5.
type DiskCache struct {
	dir     string
	maxSize int64

	mu        sync.Mutex
	sizes     map[string]int64 // digest -> file size, mirrors what's on disk
	order     *list.List       // MRU at front
	positions map[string]*list.Element
	occupied  int64
}

// NewDiskCache opens (creating if necessary) a disk-backed chunk cache
// rooted at dir, bounded to maxSize bytes (0 = unbounded).
func NewDiskCache(dir string, maxSize int64) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lindi: creating cache dir %q: %w", dir, err)
	}
	dc := &DiskCache{
		dir:       dir,
		maxSize:   maxSize,
		sizes:     make(map[string]int64),
		order:     list.New(),
		positions: make(map[string]*list.Element),
	}
	if err := dc.loadExisting(); err != nil {
		return nil, err
	}
	return dc, nil
}

func (dc *DiskCache) loadExisting() error {
	entries, err := os.ReadDir(dc.dir)
	if err != nil {
		return fmt.Errorf("lindi: listing cache dir %q: %w", dc.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		digest := e.Name()
		dc.sizes[digest] = info.Size()
		dc.occupied += info.Size()
		dc.positions[digest] = dc.order.PushFront(digest)
	}
	return nil
}

// digestKey returns the strong digest of (url, offset, size) used as the
// cache's on-disk filename.
func digestKey(url string, offset, size int64) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%d|%d", url, offset, size)
	return fmt.Sprintf("%016x", h.Sum64())
}

func (dc *DiskCache) path(digest string) string {
	return filepath.Join(dc.dir, digest)
}

// Lookup returns the cached bytes for (url, offset, size), or ok=false on a
// miss, without ever touching the network.
func (dc *DiskCache) Lookup(url string, offset, size int64) (data []byte, ok bool) {
	digest := digestKey(url, offset, size)

	dc.mu.Lock()
	_, tracked := dc.sizes[digest]
	if tracked {
		if elem, has := dc.positions[digest]; has {
			dc.order.MoveToFront(elem)
		}
	}
	dc.mu.Unlock()

	if !tracked {
		return nil, false
	}

	b, err := os.ReadFile(dc.path(digest))
	if err != nil {
		klog.V(4).Infof("lindi: cache entry %s missing on disk despite index: %v", digest, err)
		return nil, false
	}
	if int64(len(b)) != size {
		klog.Errorf("lindi: cache entry %s has wrong size %d, expected %d; dropping", digest, len(b), size)
		dc.evictOne(digest)
		return nil, false
	}
	return b, true
}

// Store writes data as the cached bytes for (url, offset, size), atomically
// (temp file then rename), and evicts older entries if the store exceeds
// maxSize.
func (dc *DiskCache) Store(url string, offset, size int64, data []byte) error {
	if int64(len(data)) != size {
		return fmt.Errorf("lindi: cache store length mismatch: got %d bytes, declared size %d", len(data), size)
	}
	digest := digestKey(url, offset, size)

	tmp, err := os.CreateTemp(dc.dir, digest+".*.tmp")
	if err != nil {
		return fmt.Errorf("lindi: creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("lindi: writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("lindi: closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, dc.path(digest)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("lindi: renaming cache file into place: %w", err)
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()
	if _, already := dc.sizes[digest]; !already {
		dc.sizes[digest] = size
		dc.occupied += size
		dc.positions[digest] = dc.order.PushFront(digest)
	} else {
		if elem := dc.positions[digest]; elem != nil {
			dc.order.MoveToFront(elem)
		}
	}
	dc.evictLocked()
	return nil
}

func (dc *DiskCache) evictLocked() {
	for dc.maxSize > 0 && dc.occupied > dc.maxSize && dc.order.Len() > 0 {
		elem := dc.order.Back()
		digest := elem.Value.(string)
		dc.removeLocked(digest, elem)
	}
}

func (dc *DiskCache) removeLocked(digest string, elem *list.Element) {
	if sz, ok := dc.sizes[digest]; ok {
		dc.occupied -= sz
		delete(dc.sizes, digest)
	}
	delete(dc.positions, digest)
	dc.order.Remove(elem)
	if err := os.Remove(dc.path(digest)); err != nil && !os.IsNotExist(err) {
		klog.Errorf("lindi: evicting cache file %s: %v", digest, err)
	}
}

func (dc *DiskCache) evictOne(digest string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if elem, ok := dc.positions[digest]; ok {
		dc.removeLocked(digest, elem)
	}
}
