package context

import (
	"container/list"
	"sync"
)

const responseCacheCapacity = 1000

type cacheEntry struct {
	key      string
	response Response
	elem     *list.Element
}

// responseCache is a simple size-bounded LRU over Responses keyed by
// (query, kind, max_size), per §4.10.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List
}

func newResponseCache() *responseCache {
	return &responseCache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
	}
}

func (c *responseCache) get(key string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Response{}, false
	}
	c.order.MoveToFront(e.elem)
	return e.response, true
}

func (c *responseCache) put(key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.response = resp
		c.order.MoveToFront(e.elem)
		return
	}

	e := &cacheEntry{key: key, response: resp}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e

	for len(c.entries) > responseCacheCapacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		evict := back.Value.(*cacheEntry)
		c.order.Remove(back)
		delete(c.entries, evict.key)
	}
}
