// ABOUTME: Thread, attachment, and pagination types for the chatkit protocol
// ABOUTME: Also provides the prefixed item id generator

package chatkit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Thread identifies a conversation. Owned by the store: created on first
// save, mutated only by explicit save.
type Thread struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Attachment is an uploaded file reference, keyed independently of threads.
type Attachment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
	UploadURL  string `json:"upload_url,omitempty"`
}

// Page is one slice of a cursor-paginated listing. After is the id of the
// last element returned and is opaque to the caller.
type Page[T any] struct {
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	After   string `json:"after,omitempty"`
}

// Order selects pagination direction over insertion order.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// GenerateID mints a prefixed unique id, e.g. "message_1b9c...".
func GenerateID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
