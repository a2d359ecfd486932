package prd

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// entry is a doubly linked list node in eviction order.
type entry struct {
	key        string
	reqs       []Requirement
	prev, next *entry
}

// Extractor memoizes Extract results in a bounded LRU keyed by epic ID and
// PRD content hash, so repeated snapshot loads don't re-scan unchanged PRDs.
// Safe for concurrent use.
type Extractor struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*entry
	head     *entry // most recently used (sentinel)
	tail     *entry // least recently used (sentinel)
}

// NewExtractor creates a caching extractor holding up to capacity PRDs.
func NewExtractor(capacity int) *Extractor {
	if capacity < 1 {
		capacity = 1
	}
	head := &entry{}
	tail := &entry{}
	head.next = tail
	tail.prev = head
	return &Extractor{
		capacity: capacity,
		items:    make(map[string]*entry, capacity),
		head:     head,
		tail:     tail,
	}
}

// Extract returns the requirement set for the epic's PRD text, from cache
// when the text is unchanged since the last call.
func (e *Extractor) Extract(epicID, text string) []Requirement {
	sum := sha256.Sum256([]byte(text))
	key := epicID + ":" + hex.EncodeToString(sum[:16])

	e.mu.Lock()
	if n, ok := e.items[key]; ok {
		e.moveToFront(n)
		reqs := n.reqs
		e.mu.Unlock()
		return reqs
	}
	e.mu.Unlock()

	reqs := Extract(epicID, text)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.items[key]; !ok {
		n := &entry{key: key, reqs: reqs}
		e.items[key] = n
		e.insertFront(n)
		if len(e.items) > e.capacity {
			lru := e.tail.prev
			e.unlink(lru)
			delete(e.items, lru.key)
		}
	}
	return reqs
}

// Len returns the number of cached PRDs.
func (e *Extractor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

func (e *Extractor) insertFront(n *entry) {
	n.prev = e.head
	n.next = e.head.next
	e.head.next.prev = n
	e.head.next = n
}

func (e *Extractor) unlink(n *entry) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (e *Extractor) moveToFront(n *entry) {
	e.unlink(n)
	e.insertFront(n)
}
