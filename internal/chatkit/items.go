// ABOUTME: Thread item variants for the chatkit wire protocol
// ABOUTME: Defines the closed item union plus tasks, annotations, and sources

package chatkit

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemType discriminates the thread item variants on the wire.
type ItemType string

const (
	ItemTypeUserMessage      ItemType = "user_message"
	ItemTypeAssistantMessage ItemType = "assistant_message"
	ItemTypeWidget           ItemType = "widget"
	ItemTypeClientToolCall   ItemType = "client_tool_call"
	ItemTypeWorkflow         ItemType = "workflow"
	ItemTypeEndOfTurn        ItemType = "end_of_turn"
)

// ItemBase holds the fields shared by every thread item variant.
type ItemBase struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadItem is the closed union of thread item variants. The only
// implementations live in this package; consumers switch on Type and may
// treat an unknown value as a protocol bug.
type ThreadItem interface {
	Base() ItemBase
	Type() ItemType
	threadItem()
}

// UserContentType discriminates user message content parts.
type UserContentType string

const (
	UserContentText       UserContentType = "input_text"
	UserContentAttachment UserContentType = "attachment"
)

// UserContentPart is one element of a user message: plain text or a
// reference to a previously stored attachment.
type UserContentPart struct {
	Type         UserContentType `json:"type"`
	Text         string          `json:"text,omitempty"`
	AttachmentID string          `json:"attachment_id,omitempty"`
}

// UserMessageItem is the inbound user message as persisted in a thread.
type UserMessageItem struct {
	ItemBase
	Content []UserContentPart `json:"content"`
}

// ContentPart is one ordered chunk of assistant prose with optional
// source annotations.
type ContentPart struct {
	Text        string       `json:"text"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// AssistantMessageItem carries the assistant's streamed or atomic prose.
type AssistantMessageItem struct {
	ItemBase
	Content []ContentPart `json:"content"`
}

// WidgetItem attaches an opaque UI tree to the thread. The widget schema is
// owned by the frontend; the server never interprets it. CopyText is the
// plain-text fallback used for clipboard copy.
type WidgetItem struct {
	ItemBase
	Widget   json.RawMessage `json:"widget"`
	CopyText string          `json:"copy_text,omitempty"`
}

// ToolCallStatus is the lifecycle state of a client tool call.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ClientToolCallItem asks the frontend to execute a named tool.
type ClientToolCallItem struct {
	ItemBase
	Status    ToolCallStatus `json:"status"`
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// WorkflowItem is a multi-step progress indicator composed of ordered tasks.
type WorkflowItem struct {
	ItemBase
	WorkflowType string         `json:"workflow_type"`
	Tasks        []WorkflowTask `json:"tasks"`
}

// EndOfTurnItem marks the boundary of a turn. It carries no payload.
type EndOfTurnItem struct {
	ItemBase
}

func (i *UserMessageItem) Base() ItemBase      { return i.ItemBase }
func (i *AssistantMessageItem) Base() ItemBase { return i.ItemBase }
func (i *WidgetItem) Base() ItemBase           { return i.ItemBase }
func (i *ClientToolCallItem) Base() ItemBase   { return i.ItemBase }
func (i *WorkflowItem) Base() ItemBase         { return i.ItemBase }
func (i *EndOfTurnItem) Base() ItemBase        { return i.ItemBase }

func (i *UserMessageItem) Type() ItemType      { return ItemTypeUserMessage }
func (i *AssistantMessageItem) Type() ItemType { return ItemTypeAssistantMessage }
func (i *WidgetItem) Type() ItemType           { return ItemTypeWidget }
func (i *ClientToolCallItem) Type() ItemType   { return ItemTypeClientToolCall }
func (i *WorkflowItem) Type() ItemType         { return ItemTypeWorkflow }
func (i *EndOfTurnItem) Type() ItemType        { return ItemTypeEndOfTurn }

func (i *UserMessageItem) threadItem()      {}
func (i *AssistantMessageItem) threadItem() {}
func (i *WidgetItem) threadItem()           {}
func (i *ClientToolCallItem) threadItem()   {}
func (i *WorkflowItem) threadItem()         {}
func (i *EndOfTurnItem) threadItem()        {}

// StatusIndicator is the per-task progress state inside a workflow.
type StatusIndicator string

const (
	StatusLoading  StatusIndicator = "loading"
	StatusComplete StatusIndicator = "complete"
)

// TaskType discriminates the workflow task variants.
type TaskType string

const (
	TaskTypeCustom  TaskType = "custom"
	TaskTypeSearch  TaskType = "search"
	TaskTypeThought TaskType = "thought"
)

// WorkflowTask is the closed union of workflow task variants.
type WorkflowTask interface {
	TaskType() TaskType
	TaskStatus() StatusIndicator
	workflowTask()
}

// CustomTask is a free-form workflow step with an icon.
type CustomTask struct {
	Title           string          `json:"title"`
	Icon            string          `json:"icon,omitempty"`
	StatusIndicator StatusIndicator `json:"status_indicator"`
}

// SearchTask is a workflow step representing a web search with its sources.
type SearchTask struct {
	Title           string          `json:"title"`
	TitleQuery      string          `json:"title_query,omitempty"`
	Queries         []string        `json:"queries,omitempty"`
	Sources         []Source        `json:"sources,omitempty"`
	StatusIndicator StatusIndicator `json:"status_indicator"`
}

// ThoughtTask is a workflow step showing intermediate reasoning text.
type ThoughtTask struct {
	Title           string          `json:"title"`
	Content         string          `json:"content,omitempty"`
	StatusIndicator StatusIndicator `json:"status_indicator"`
}

func (t *CustomTask) TaskType() TaskType  { return TaskTypeCustom }
func (t *SearchTask) TaskType() TaskType  { return TaskTypeSearch }
func (t *ThoughtTask) TaskType() TaskType { return TaskTypeThought }

func (t *CustomTask) TaskStatus() StatusIndicator  { return t.StatusIndicator }
func (t *SearchTask) TaskStatus() StatusIndicator  { return t.StatusIndicator }
func (t *ThoughtTask) TaskStatus() StatusIndicator { return t.StatusIndicator }

func (t *CustomTask) workflowTask()  {}
func (t *SearchTask) workflowTask()  {}
func (t *ThoughtTask) workflowTask() {}

// SourceType discriminates annotation source variants.
type SourceType string

const (
	SourceTypeURL  SourceType = "url"
	SourceTypeFile SourceType = "file"
)

// Source is the closed union of annotation sources. Sources are descriptive
// metadata only; nothing in the server fetches them.
type Source interface {
	SourceType() SourceType
	source()
}

// URLSource points an annotation at a web page.
type URLSource struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Attribution string `json:"attribution,omitempty"`
	Description string `json:"description,omitempty"`
}

// FileSource points an annotation at a file by name.
type FileSource struct {
	Title       string `json:"title"`
	Filename    string `json:"filename"`
	Description string `json:"description,omitempty"`
}

func (s *URLSource) SourceType() SourceType  { return SourceTypeURL }
func (s *FileSource) SourceType() SourceType { return SourceTypeFile }

func (s *URLSource) source()  {}
func (s *FileSource) source() {}

// Annotation ties a region of assistant text to a source.
type Annotation struct {
	Source Source `json:"source"`
	Index  int    `json:"index"`
}

// Alias types strip the MarshalJSON method so marshalTagged can reuse the
// struct tags without recursing.
type (
	userMessageAlias      UserMessageItem
	assistantMessageAlias AssistantMessageItem
	widgetAlias           WidgetItem
	clientToolCallAlias   ClientToolCallItem
	workflowAlias         WorkflowItem
	endOfTurnAlias        EndOfTurnItem
	customTaskAlias       CustomTask
	searchTaskAlias       SearchTask
	thoughtTaskAlias      ThoughtTask
	urlSourceAlias        URLSource
	fileSourceAlias       FileSource
)

// MarshalJSON emits each variant with its "type" discriminator so the wire
// form is self-describing.
func (i *UserMessageItem) MarshalJSON() ([]byte, error) {
	return marshalTagged(i.Type(), (*userMessageAlias)(i))
}

func (i *AssistantMessageItem) MarshalJSON() ([]byte, error) {
	return marshalTagged(i.Type(), (*assistantMessageAlias)(i))
}

func (i *WidgetItem) MarshalJSON() ([]byte, error) {
	return marshalTagged(i.Type(), (*widgetAlias)(i))
}

func (i *ClientToolCallItem) MarshalJSON() ([]byte, error) {
	return marshalTagged(i.Type(), (*clientToolCallAlias)(i))
}

func (i *WorkflowItem) MarshalJSON() ([]byte, error) {
	return marshalTagged(i.Type(), (*workflowAlias)(i))
}

func (i *EndOfTurnItem) MarshalJSON() ([]byte, error) {
	return marshalTagged(i.Type(), (*endOfTurnAlias)(i))
}

func (t *CustomTask) MarshalJSON() ([]byte, error) {
	return marshalTagged(t.TaskType(), (*customTaskAlias)(t))
}

func (t *SearchTask) MarshalJSON() ([]byte, error) {
	return marshalTagged(t.TaskType(), (*searchTaskAlias)(t))
}

func (t *ThoughtTask) MarshalJSON() ([]byte, error) {
	return marshalTagged(t.TaskType(), (*thoughtTaskAlias)(t))
}

func (s *URLSource) MarshalJSON() ([]byte, error) {
	return marshalTagged(s.SourceType(), (*urlSourceAlias)(s))
}

func (s *FileSource) MarshalJSON() ([]byte, error) {
	return marshalTagged(s.SourceType(), (*fileSourceAlias)(s))
}

// marshalTagged marshals v and splices in the "type" discriminator field.
func marshalTagged[T ~string](tag T, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	tagJSON, err := json.Marshal(string(tag))
	if err != nil {
		return nil, err
	}
	fields["type"] = tagJSON
	return json.Marshal(fields)
}

// typeProbe peeks at a variant's discriminator before full decoding.
type typeProbe struct {
	Type string `json:"type"`
}

// UnmarshalItem decodes a thread item from its tagged wire form.
func UnmarshalItem(data []byte) (ThreadItem, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding item type: %w", err)
	}
	var item ThreadItem
	switch ItemType(probe.Type) {
	case ItemTypeUserMessage:
		item = &UserMessageItem{}
	case ItemTypeAssistantMessage:
		item = &AssistantMessageItem{}
	case ItemTypeWidget:
		item = &WidgetItem{}
	case ItemTypeClientToolCall:
		item = &ClientToolCallItem{}
	case ItemTypeWorkflow:
		item = &WorkflowItem{}
	case ItemTypeEndOfTurn:
		item = &EndOfTurnItem{}
	default:
		return nil, fmt.Errorf("unknown item type %q", probe.Type)
	}
	if err := json.Unmarshal(data, item); err != nil {
		return nil, fmt.Errorf("decoding %s item: %w", probe.Type, err)
	}
	return item, nil
}

// UnmarshalTask decodes a workflow task from its tagged wire form.
func UnmarshalTask(data []byte) (WorkflowTask, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding task type: %w", err)
	}
	var task WorkflowTask
	switch TaskType(probe.Type) {
	case TaskTypeCustom:
		task = &CustomTask{}
	case TaskTypeSearch:
		task = &SearchTask{}
	case TaskTypeThought:
		task = &ThoughtTask{}
	default:
		return nil, fmt.Errorf("unknown task type %q", probe.Type)
	}
	if err := json.Unmarshal(data, task); err != nil {
		return nil, fmt.Errorf("decoding %s task: %w", probe.Type, err)
	}
	return task, nil
}

// UnmarshalSource decodes an annotation source from its tagged wire form.
func UnmarshalSource(data []byte) (Source, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding source type: %w", err)
	}
	var src Source
	switch SourceType(probe.Type) {
	case SourceTypeURL:
		src = &URLSource{}
	case SourceTypeFile:
		src = &FileSource{}
	default:
		return nil, fmt.Errorf("unknown source type %q", probe.Type)
	}
	if err := json.Unmarshal(data, src); err != nil {
		return nil, fmt.Errorf("decoding %s source: %w", probe.Type, err)
	}
	return src, nil
}

// UnmarshalJSON resolves the task union inside a workflow item.
func (i *WorkflowItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ItemBase
		WorkflowType string            `json:"workflow_type"`
		Tasks        []json.RawMessage `json:"tasks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.ItemBase = raw.ItemBase
	i.WorkflowType = raw.WorkflowType
	i.Tasks = make([]WorkflowTask, 0, len(raw.Tasks))
	for _, t := range raw.Tasks {
		task, err := UnmarshalTask(t)
		if err != nil {
			return err
		}
		i.Tasks = append(i.Tasks, task)
	}
	return nil
}

// UnmarshalJSON resolves the source union inside a search task.
func (t *SearchTask) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title           string            `json:"title"`
		TitleQuery      string            `json:"title_query"`
		Queries         []string          `json:"queries"`
		Sources         []json.RawMessage `json:"sources"`
		StatusIndicator StatusIndicator   `json:"status_indicator"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Title = raw.Title
	t.TitleQuery = raw.TitleQuery
	t.Queries = raw.Queries
	t.StatusIndicator = raw.StatusIndicator
	t.Sources = nil
	for _, s := range raw.Sources {
		src, err := UnmarshalSource(s)
		if err != nil {
			return err
		}
		t.Sources = append(t.Sources, src)
	}
	return nil
}

// UnmarshalJSON resolves the source union inside an annotation.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Source json.RawMessage `json:"source"`
		Index  int             `json:"index"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Index = raw.Index
	if len(raw.Source) > 0 {
		src, err := UnmarshalSource(raw.Source)
		if err != nil {
			return err
		}
		a.Source = src
	}
	return nil
}
