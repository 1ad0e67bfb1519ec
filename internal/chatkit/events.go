// ABOUTME: Stream event and item update variants for the chatkit wire protocol
// ABOUTME: Events describe item creation, partial mutation, completion, and out-of-band signals

package chatkit

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates stream event variants on the wire.
type EventType string

const (
	EventTypeThreadCreated  EventType = "thread.created"
	EventTypeItemAdded      EventType = "thread.item.added"
	EventTypeItemUpdated    EventType = "thread.item.updated"
	EventTypeItemDone       EventType = "thread.item.done"
	EventTypeNotice         EventType = "notice"
	EventTypeProgressUpdate EventType = "progress_update"
	EventTypeError          EventType = "error"
)

// ThreadStreamEvent is the closed union of events emitted during a turn.
type ThreadStreamEvent interface {
	EventType() EventType
	streamEvent()
}

// ThreadCreatedEvent announces the thread a streaming turn belongs to.
// Emitted once, before any item events, when a turn creates its thread.
type ThreadCreatedEvent struct {
	Thread *Thread `json:"thread"`
}

// ItemAddedEvent announces a new item with its initial snapshot.
type ItemAddedEvent struct {
	Item ThreadItem `json:"item"`
}

// ItemUpdatedEvent carries a partial mutation to a previously added item.
type ItemUpdatedEvent struct {
	ItemID string     `json:"item_id"`
	Update ItemUpdate `json:"update"`
}

// ItemDoneEvent carries the final snapshot of an item. For atomically
// computed items it may appear with no preceding added/updated events.
type ItemDoneEvent struct {
	Item ThreadItem `json:"item"`
}

// NoticeLevel is the severity of an out-of-band notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// NoticeEvent surfaces an out-of-band message to the user. It references no
// item and imposes no ordering constraint beyond overall emission order.
type NoticeEvent struct {
	Level   NoticeLevel `json:"level"`
	Title   string      `json:"title,omitempty"`
	Message string      `json:"message"`
}

// ProgressUpdateEvent is a transient out-of-band status line.
type ProgressUpdateEvent struct {
	Text string `json:"text"`
}

// ErrorEvent terminates a turn. No further events follow it.
type ErrorEvent struct {
	Message    string `json:"message"`
	AllowRetry bool   `json:"allow_retry"`
}

func (e *ThreadCreatedEvent) EventType() EventType  { return EventTypeThreadCreated }
func (e *ItemAddedEvent) EventType() EventType      { return EventTypeItemAdded }
func (e *ItemUpdatedEvent) EventType() EventType    { return EventTypeItemUpdated }
func (e *ItemDoneEvent) EventType() EventType       { return EventTypeItemDone }
func (e *NoticeEvent) EventType() EventType         { return EventTypeNotice }
func (e *ProgressUpdateEvent) EventType() EventType { return EventTypeProgressUpdate }
func (e *ErrorEvent) EventType() EventType          { return EventTypeError }

func (e *ThreadCreatedEvent) streamEvent()  {}
func (e *ItemAddedEvent) streamEvent()      {}
func (e *ItemUpdatedEvent) streamEvent()    {}
func (e *ItemDoneEvent) streamEvent()       {}
func (e *NoticeEvent) streamEvent()         {}
func (e *ProgressUpdateEvent) streamEvent() {}
func (e *ErrorEvent) streamEvent()          {}

// UpdateType discriminates the item update variants.
type UpdateType string

const (
	UpdateContentPartAdded     UpdateType = "assistant_message.content_part.added"
	UpdateContentPartTextDelta UpdateType = "assistant_message.content_part.text_delta"
	UpdateContentPartDone      UpdateType = "assistant_message.content_part.done"
	UpdateWorkflowTaskAdded    UpdateType = "workflow.task.added"
	UpdateWorkflowTaskUpdated  UpdateType = "workflow.task.updated"
)

// ItemUpdate is the closed union of partial item mutations. Each variant
// applies to exactly one item kind; ApplyUpdate enforces the pairing.
type ItemUpdate interface {
	UpdateType() UpdateType
	itemUpdate()
}

// ContentPartAdded announces a new assistant content part at an index.
type ContentPartAdded struct {
	ContentIndex int         `json:"content_index"`
	Content      ContentPart `json:"content"`
}

// ContentPartTextDelta appends a text chunk to a content part.
type ContentPartTextDelta struct {
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

// ContentPartDone finalizes a content part with its full content.
type ContentPartDone struct {
	ContentIndex int         `json:"content_index"`
	Content      ContentPart `json:"content"`
}

// WorkflowTaskAdded appends a task at the next index of a workflow.
type WorkflowTaskAdded struct {
	TaskIndex int          `json:"task_index"`
	Task      WorkflowTask `json:"task"`
}

// WorkflowTaskUpdated replaces the task at an existing index in place.
type WorkflowTaskUpdated struct {
	TaskIndex int          `json:"task_index"`
	Task      WorkflowTask `json:"task"`
}

func (u *ContentPartAdded) UpdateType() UpdateType     { return UpdateContentPartAdded }
func (u *ContentPartTextDelta) UpdateType() UpdateType { return UpdateContentPartTextDelta }
func (u *ContentPartDone) UpdateType() UpdateType      { return UpdateContentPartDone }
func (u *WorkflowTaskAdded) UpdateType() UpdateType    { return UpdateWorkflowTaskAdded }
func (u *WorkflowTaskUpdated) UpdateType() UpdateType  { return UpdateWorkflowTaskUpdated }

func (u *ContentPartAdded) itemUpdate()     {}
func (u *ContentPartTextDelta) itemUpdate() {}
func (u *ContentPartDone) itemUpdate()      {}
func (u *WorkflowTaskAdded) itemUpdate()    {}
func (u *WorkflowTaskUpdated) itemUpdate()  {}

type (
	threadCreatedEventAlias  ThreadCreatedEvent
	itemAddedEventAlias      ItemAddedEvent
	itemUpdatedEventAlias    ItemUpdatedEvent
	itemDoneEventAlias       ItemDoneEvent
	noticeEventAlias         NoticeEvent
	progressUpdateEventAlias ProgressUpdateEvent
	errorEventAlias          ErrorEvent

	contentPartAddedAlias     ContentPartAdded
	contentPartTextDeltaAlias ContentPartTextDelta
	contentPartDoneAlias      ContentPartDone
	workflowTaskAddedAlias    WorkflowTaskAdded
	workflowTaskUpdatedAlias  WorkflowTaskUpdated
)

func (e *ThreadCreatedEvent) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.EventType(), (*threadCreatedEventAlias)(e))
}

func (e *ItemAddedEvent) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.EventType(), (*itemAddedEventAlias)(e))
}

func (e *ItemUpdatedEvent) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.EventType(), (*itemUpdatedEventAlias)(e))
}

func (e *ItemDoneEvent) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.EventType(), (*itemDoneEventAlias)(e))
}

func (e *NoticeEvent) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.EventType(), (*noticeEventAlias)(e))
}

func (e *ProgressUpdateEvent) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.EventType(), (*progressUpdateEventAlias)(e))
}

func (e *ErrorEvent) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.EventType(), (*errorEventAlias)(e))
}

func (u *ContentPartAdded) MarshalJSON() ([]byte, error) {
	return marshalTagged(u.UpdateType(), (*contentPartAddedAlias)(u))
}

func (u *ContentPartTextDelta) MarshalJSON() ([]byte, error) {
	return marshalTagged(u.UpdateType(), (*contentPartTextDeltaAlias)(u))
}

func (u *ContentPartDone) MarshalJSON() ([]byte, error) {
	return marshalTagged(u.UpdateType(), (*contentPartDoneAlias)(u))
}

func (u *WorkflowTaskAdded) MarshalJSON() ([]byte, error) {
	return marshalTagged(u.UpdateType(), (*workflowTaskAddedAlias)(u))
}

func (u *WorkflowTaskUpdated) MarshalJSON() ([]byte, error) {
	return marshalTagged(u.UpdateType(), (*workflowTaskUpdatedAlias)(u))
}

// UnmarshalEvent decodes a stream event from its tagged wire form. Used by
// client-side consumers and tests; the server only marshals events.
func UnmarshalEvent(data []byte) (ThreadStreamEvent, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding event type: %w", err)
	}
	switch EventType(probe.Type) {
	case EventTypeThreadCreated:
		var e ThreadCreatedEvent
		if err := json.Unmarshal(data, (*threadCreatedEventAlias)(&e)); err != nil {
			return nil, err
		}
		return &e, nil
	case EventTypeItemAdded, EventTypeItemDone:
		var raw struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		item, err := UnmarshalItem(raw.Item)
		if err != nil {
			return nil, err
		}
		if EventType(probe.Type) == EventTypeItemAdded {
			return &ItemAddedEvent{Item: item}, nil
		}
		return &ItemDoneEvent{Item: item}, nil
	case EventTypeItemUpdated:
		var raw struct {
			ItemID string          `json:"item_id"`
			Update json.RawMessage `json:"update"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		update, err := UnmarshalUpdate(raw.Update)
		if err != nil {
			return nil, err
		}
		return &ItemUpdatedEvent{ItemID: raw.ItemID, Update: update}, nil
	case EventTypeNotice:
		var e NoticeEvent
		if err := json.Unmarshal(data, (*noticeEventAlias)(&e)); err != nil {
			return nil, err
		}
		return &e, nil
	case EventTypeProgressUpdate:
		var e ProgressUpdateEvent
		if err := json.Unmarshal(data, (*progressUpdateEventAlias)(&e)); err != nil {
			return nil, err
		}
		return &e, nil
	case EventTypeError:
		var e ErrorEvent
		if err := json.Unmarshal(data, (*errorEventAlias)(&e)); err != nil {
			return nil, err
		}
		return &e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", probe.Type)
	}
}

// UnmarshalUpdate decodes an item update from its tagged wire form.
func UnmarshalUpdate(data []byte) (ItemUpdate, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding update type: %w", err)
	}
	switch UpdateType(probe.Type) {
	case UpdateContentPartAdded:
		var u ContentPartAdded
		if err := json.Unmarshal(data, (*contentPartAddedAlias)(&u)); err != nil {
			return nil, err
		}
		return &u, nil
	case UpdateContentPartTextDelta:
		var u ContentPartTextDelta
		if err := json.Unmarshal(data, (*contentPartTextDeltaAlias)(&u)); err != nil {
			return nil, err
		}
		return &u, nil
	case UpdateContentPartDone:
		var u ContentPartDone
		if err := json.Unmarshal(data, (*contentPartDoneAlias)(&u)); err != nil {
			return nil, err
		}
		return &u, nil
	case UpdateWorkflowTaskAdded, UpdateWorkflowTaskUpdated:
		var raw struct {
			TaskIndex int             `json:"task_index"`
			Task      json.RawMessage `json:"task"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		task, err := UnmarshalTask(raw.Task)
		if err != nil {
			return nil, err
		}
		if UpdateType(probe.Type) == UpdateWorkflowTaskAdded {
			return &WorkflowTaskAdded{TaskIndex: raw.TaskIndex, Task: task}, nil
		}
		return &WorkflowTaskUpdated{TaskIndex: raw.TaskIndex, Task: task}, nil
	default:
		return nil, fmt.Errorf("unknown update type %q", probe.Type)
	}
}
