package client

import (
	"sync"

	"github.com/google/uuid"
)

// ThreadCache keeps the messages received per thread in arrival order.
// A message id is stored once, whichever way it arrived (history load,
// stream replay or live event).
type ThreadCache struct {
	mu      sync.RWMutex
	threads map[uuid.UUID]*threadMessages
}

type threadMessages struct {
	seen  map[uuid.UUID]struct{}
	items []Message
}

// NewThreadCache creates an empty cache
func NewThreadCache() *ThreadCache {
	return &ThreadCache{threads: make(map[uuid.UUID]*threadMessages)}
}

// Append adds messages not seen before and returns the ones it added
func (c *ThreadCache) Append(threadID uuid.UUID, msgs ...Message) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.threads[threadID]
	if !ok {
		t = &threadMessages{seen: make(map[uuid.UUID]struct{})}
		c.threads[threadID] = t
	}
	var added []Message
	for _, m := range msgs {
		if _, dup := t.seen[m.ID]; dup {
			continue
		}
		t.seen[m.ID] = struct{}{}
		t.items = append(t.items, m)
		added = append(added, m)
	}
	return added
}

// Messages returns a copy of a thread's messages
func (c *ThreadCache) Messages(threadID uuid.UUID) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[threadID]
	if !ok {
		return nil
	}
	out := make([]Message, len(t.items))
	copy(out, t.items)
	return out
}

// LastID returns the id of the newest cached message, used as the stream
// resume cursor
func (c *ThreadCache) LastID(threadID uuid.UUID) (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[threadID]
	if !ok || len(t.items) == 0 {
		return uuid.Nil, false
	}
	return t.items[len(t.items)-1].ID, true
}

// Len returns the number of cached messages of a thread
func (c *ThreadCache) Len(threadID uuid.UUID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.threads[threadID]; ok {
		return len(t.items)
	}
	return 0
}

// Forget drops a thread from the cache
func (c *ThreadCache) Forget(threadID uuid.UUID) {
	c.mu.Lock()
	delete(c.threads, threadID)
	c.mu.Unlock()
}
