// ABOUTME: Store interface and pagination contract for chatkit persistence
// ABOUTME: Defines the operations the turn engine and dispatch layer depend on

package store

import (
	"context"
	"errors"

	"github.com/Tailen/chatkit-ui/internal/chatkit"
)

// ErrNotFound is returned when a requested thread, item, or attachment
// does not exist.
var ErrNotFound = errors.New("not found")

// RequestContext travels with every store call. Access control is out of
// scope for the dev server; the type exists so call sites don't change when
// a real backend needs one.
type RequestContext struct {
	UserID string
}

// NewRequestContext returns the single-user dev context.
func NewRequestContext() RequestContext {
	return RequestContext{UserID: "dev-user"}
}

// Store defines thread, item, and attachment persistence. Both
// implementations (memory, SQLite) satisfy the same pagination and upsert
// semantics; the conformance suite in store_test.go runs against each.
//
// The store is shared across concurrent turns. Collections are internally
// consistent, but concurrent writers to the same thread are not serialized:
// a single logical writer per thread is assumed, not enforced.
type Store interface {
	// Threads. DeleteThread cascades to the thread's items and is a no-op
	// when the thread does not exist; all delete operations share that
	// no-op-on-absent contract.
	LoadThread(ctx context.Context, rc RequestContext, threadID string) (*chatkit.Thread, error)
	SaveThread(ctx context.Context, rc RequestContext, thread *chatkit.Thread) error
	LoadThreads(ctx context.Context, rc RequestContext, limit int, after string, order chatkit.Order) (chatkit.Page[*chatkit.Thread], error)
	DeleteThread(ctx context.Context, rc RequestContext, threadID string) error

	// Items. AddThreadItem and SaveItem are both idempotent upserts by id,
	// kept distinct for call-site clarity (first insert vs in-place update).
	AddThreadItem(ctx context.Context, rc RequestContext, threadID string, item chatkit.ThreadItem) error
	SaveItem(ctx context.Context, rc RequestContext, threadID string, item chatkit.ThreadItem) error
	LoadItem(ctx context.Context, rc RequestContext, threadID, itemID string) (chatkit.ThreadItem, error)
	LoadThreadItems(ctx context.Context, rc RequestContext, threadID string, after string, limit int, order chatkit.Order) (chatkit.Page[chatkit.ThreadItem], error)
	DeleteThreadItem(ctx context.Context, rc RequestContext, threadID, itemID string) error

	// Attachments, keyed independently of threads.
	SaveAttachment(ctx context.Context, rc RequestContext, attachment *chatkit.Attachment) error
	LoadAttachment(ctx context.Context, rc RequestContext, attachmentID string) (*chatkit.Attachment, error)
	DeleteAttachment(ctx context.Context, rc RequestContext, attachmentID string) error

	// Close releases any resources held by the store.
	Close() error
}

// normalizeLimit applies the default page size and cap.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// paginate materializes one page from the full ordered collection. If after
// is set, everything up to and including the matching id is dropped; an id
// that matches nothing leaves an empty list, which is the scan's natural
// behavior and part of the contract. HasMore is true iff candidates remained
// beyond the returned slice.
func paginate[T any](ordered []T, after string, limit int, id func(T) string) chatkit.Page[T] {
	if after != "" {
		found := false
		var filtered []T
		for _, el := range ordered {
			if found {
				filtered = append(filtered, el)
			}
			if id(el) == after {
				found = true
			}
		}
		ordered = filtered
	}

	hasMore := len(ordered) > limit
	data := ordered
	if hasMore {
		data = ordered[:limit]
	}

	page := chatkit.Page[T]{Data: data, HasMore: hasMore}
	if hasMore && len(data) > 0 {
		page.After = id(data[len(data)-1])
	}
	if page.Data == nil {
		page.Data = []T{}
	}
	return page
}

// reversed returns a reversed copy for descending-order pagination.
func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, el := range in {
		out[len(in)-1-i] = el
	}
	return out
}
