package pattern

import (
	"container/list"
	"sync"
)

// cacheCapacity bounds the number of compiled patterns held. A patch
// run compiles each distinct pattern once; eviction only matters for
// long-lived watch sessions cycling through many patch files.
const cacheCapacity = 128

var compiled = struct {
	sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}{
	entries: make(map[string]*list.Element),
	order:   list.New(),
}

type cacheEntry struct {
	key string
	pat *Pattern
}

// Get returns a cached compiled pattern, compiling on first use.
// Returned patterns are shared: callers must not Close them. Evicted
// patterns are released by the runtime once unreferenced.
func Get(pat string) (*Pattern, error) {
	compiled.Lock()
	if el, ok := compiled.entries[pat]; ok {
		compiled.order.MoveToFront(el)
		p := el.Value.(*cacheEntry).pat
		compiled.Unlock()
		return p, nil
	}
	compiled.Unlock()

	p, err := Compile(pat)
	if err != nil {
		return nil, err
	}

	compiled.Lock()
	defer compiled.Unlock()
	if el, ok := compiled.entries[pat]; ok {
		// Lost a race with another compile of the same pattern.
		p.Close()
		compiled.order.MoveToFront(el)
		return el.Value.(*cacheEntry).pat, nil
	}
	el := compiled.order.PushFront(&cacheEntry{key: pat, pat: p})
	compiled.entries[pat] = el
	for compiled.order.Len() > cacheCapacity {
		oldest := compiled.order.Back()
		compiled.order.Remove(oldest)
		delete(compiled.entries, oldest.Value.(*cacheEntry).key)
	}
	return p, nil
}

// CacheSize reports the number of compiled patterns currently held.
func CacheSize() int {
	compiled.Lock()
	defer compiled.Unlock()
	return compiled.order.Len()
}
