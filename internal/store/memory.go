// ABOUTME: In-memory Store implementation used by default in the dev server
// ABOUTME: Keeps threads, items, and attachments in insertion-ordered maps under a RWMutex

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Tailen/chatkit-ui/internal/chatkit"
)

// itemCollection keeps one thread's items in insertion order with id lookup.
type itemCollection struct {
	order []string
	byID  map[string]chatkit.ThreadItem
}

func newItemCollection() *itemCollection {
	return &itemCollection{byID: make(map[string]chatkit.ThreadItem)}
}

func (c *itemCollection) put(item chatkit.ThreadItem) {
	id := item.Base().ID
	if _, exists := c.byID[id]; !exists {
		c.order = append(c.order, id)
	}
	c.byID[id] = item
}

func (c *itemCollection) remove(id string) {
	if _, exists := c.byID[id]; !exists {
		return
	}
	delete(c.byID, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// MemoryStore is the zero-setup Store for local development. All state is
// lost on process exit. Reads return deep copies, so callers can mutate
// results freely.
type MemoryStore struct {
	mu          sync.RWMutex
	threads     map[string]*chatkit.Thread
	threadOrder []string
	items       map[string]*itemCollection
	attachments map[string]*chatkit.Attachment
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:     make(map[string]*chatkit.Thread),
		items:       make(map[string]*itemCollection),
		attachments: make(map[string]*chatkit.Attachment),
	}
}

func (s *MemoryStore) LoadThread(ctx context.Context, rc RequestContext, threadID string) (*chatkit.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	return copyThread(thread), nil
}

func (s *MemoryStore) SaveThread(ctx context.Context, rc RequestContext, thread *chatkit.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[thread.ID]; !exists {
		s.threadOrder = append(s.threadOrder, thread.ID)
		s.items[thread.ID] = newItemCollection()
	}
	s.threads[thread.ID] = copyThread(thread)
	return nil
}

func (s *MemoryStore) LoadThreads(ctx context.Context, rc RequestContext, limit int, after string, order chatkit.Order) (chatkit.Page[*chatkit.Thread], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make([]*chatkit.Thread, 0, len(s.threadOrder))
	for _, id := range s.threadOrder {
		ordered = append(ordered, copyThread(s.threads[id]))
	}
	if order == chatkit.OrderDesc {
		ordered = reversed(ordered)
	}
	return paginate(ordered, after, normalizeLimit(limit), func(t *chatkit.Thread) string { return t.ID }), nil
}

func (s *MemoryStore) DeleteThread(ctx context.Context, rc RequestContext, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, threadID)
	delete(s.items, threadID)
	for i, id := range s.threadOrder {
		if id == threadID {
			s.threadOrder = append(s.threadOrder[:i], s.threadOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) AddThreadItem(ctx context.Context, rc RequestContext, threadID string, item chatkit.ThreadItem) error {
	return s.putItem(threadID, item)
}

func (s *MemoryStore) SaveItem(ctx context.Context, rc RequestContext, threadID string, item chatkit.ThreadItem) error {
	return s.putItem(threadID, item)
}

func (s *MemoryStore) putItem(threadID string, item chatkit.ThreadItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.items[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	clone, err := chatkit.CloneItem(item)
	if err != nil {
		return fmt.Errorf("storing item %s: %w", item.Base().ID, err)
	}
	coll.put(clone)
	return nil
}

func (s *MemoryStore) LoadItem(ctx context.Context, rc RequestContext, threadID, itemID string) (chatkit.ThreadItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.items[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	item, ok := coll.byID[itemID]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return chatkit.CloneItem(item)
}

func (s *MemoryStore) LoadThreadItems(ctx context.Context, rc RequestContext, threadID string, after string, limit int, order chatkit.Order) (chatkit.Page[chatkit.ThreadItem], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// A missing thread lists as empty rather than erroring, so clients can
	// poll a thread id before its first item lands.
	var ordered []chatkit.ThreadItem
	if coll, ok := s.items[threadID]; ok {
		ordered = make([]chatkit.ThreadItem, 0, len(coll.order))
		for _, id := range coll.order {
			clone, err := chatkit.CloneItem(coll.byID[id])
			if err != nil {
				return chatkit.Page[chatkit.ThreadItem]{}, err
			}
			ordered = append(ordered, clone)
		}
	}
	if order == chatkit.OrderDesc {
		ordered = reversed(ordered)
	}
	return paginate(ordered, after, normalizeLimit(limit), func(i chatkit.ThreadItem) string { return i.Base().ID }), nil
}

func (s *MemoryStore) DeleteThreadItem(ctx context.Context, rc RequestContext, threadID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if coll, ok := s.items[threadID]; ok {
		coll.remove(itemID)
	}
	return nil
}

func (s *MemoryStore) SaveAttachment(ctx context.Context, rc RequestContext, attachment *chatkit.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *attachment
	s.attachments[attachment.ID] = &copied
	return nil
}

func (s *MemoryStore) LoadAttachment(ctx context.Context, rc RequestContext, attachmentID string) (*chatkit.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attachment, ok := s.attachments[attachmentID]
	if !ok {
		return nil, fmt.Errorf("attachment %s: %w", attachmentID, ErrNotFound)
	}
	copied := *attachment
	return &copied, nil
}

func (s *MemoryStore) DeleteAttachment(ctx context.Context, rc RequestContext, attachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attachments, attachmentID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func copyThread(t *chatkit.Thread) *chatkit.Thread {
	copied := *t
	if t.Metadata != nil {
		copied.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}
