package embedding

import (
	"container/list"
	"sync"
)

// Cache is a thread-safe LRU of query embeddings. Repeated questions against
// the same video skip the embeddings round trip.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type entry struct {
	text   string
	vector []float32
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 128
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns nil on a miss.
func (c *Cache) Get(text string) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[text]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).vector
}

func (c *Cache) Put(text string, vector []float32) {
	if vector == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[text]; ok {
		el.Value.(*entry).vector = vector
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.order.Remove(back)
			delete(c.items, back.Value.(*entry).text)
		}
	}
	c.items[text] = c.order.PushFront(&entry{text: text, vector: vector})
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
