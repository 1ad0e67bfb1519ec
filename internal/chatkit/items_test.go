// ABOUTME: Wire format tests for the item, task, source, and event unions
// ABOUTME: Checks discriminator tags and nested union resolution, not field grids

package chatkit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemDiscriminators(t *testing.T) {
	base := ItemBase{ID: "x", ThreadID: "thread_1", CreatedAt: time.Now().UTC()}
	items := []ThreadItem{
		&UserMessageItem{ItemBase: base, Content: []UserContentPart{{Type: UserContentText, Text: "hi"}}},
		&AssistantMessageItem{ItemBase: base},
		&WidgetItem{ItemBase: base, Widget: json.RawMessage(`{"type":"Card"}`)},
		&ClientToolCallItem{ItemBase: base, Status: ToolCallPending, Name: "get_weather"},
		&WorkflowItem{ItemBase: base, WorkflowType: "custom"},
		&EndOfTurnItem{ItemBase: base},
	}
	for _, item := range items {
		data, err := json.Marshal(item)
		require.NoError(t, err)

		var probe struct {
			Type ItemType `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &probe))
		assert.Equal(t, item.Type(), probe.Type)

		back, err := UnmarshalItem(data)
		require.NoError(t, err)
		assert.IsType(t, item, back)
	}
}

func TestUnmarshalItemUnknownType(t *testing.T) {
	_, err := UnmarshalItem([]byte(`{"type": "hologram"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hologram")
}

func TestWorkflowItemNestedTasks(t *testing.T) {
	wire := `{
		"type": "workflow",
		"id": "workflow_1",
		"thread_id": "thread_1",
		"created_at": "2026-01-02T15:04:05Z",
		"workflow_type": "custom",
		"tasks": [
			{"type": "custom", "title": "Analyzing request", "icon": "sparkle", "status_indicator": "complete"},
			{"type": "search", "title": "Searching", "queries": ["a", "b"], "status_indicator": "loading",
			 "sources": [{"type": "url", "title": "Docs", "url": "https://example.com"}]},
			{"type": "thought", "title": "Thinking", "content": "hmm", "status_indicator": "loading"}
		]
	}`
	item, err := UnmarshalItem([]byte(wire))
	require.NoError(t, err)

	wf, ok := item.(*WorkflowItem)
	require.True(t, ok)
	require.Len(t, wf.Tasks, 3)

	search, ok := wf.Tasks[1].(*SearchTask)
	require.True(t, ok)
	require.Len(t, search.Sources, 1)
	url, ok := search.Sources[0].(*URLSource)
	require.True(t, ok)
	assert.Equal(t, "https://example.com", url.URL)
}

func TestAnnotationSourceResolution(t *testing.T) {
	wire := `{
		"type": "assistant_message",
		"id": "message_1",
		"thread_id": "thread_1",
		"created_at": "2026-01-02T15:04:05Z",
		"content": [{
			"text": "see [0] and [1]",
			"annotations": [
				{"source": {"type": "url", "title": "Docs", "url": "https://example.com"}, "index": 0},
				{"source": {"type": "file", "title": "Ref", "filename": "types.py"}, "index": 1}
			]
		}]
	}`
	item, err := UnmarshalItem([]byte(wire))
	require.NoError(t, err)

	msg := item.(*AssistantMessageItem)
	annotations := msg.Content[0].Annotations
	require.Len(t, annotations, 2)
	assert.IsType(t, &URLSource{}, annotations[0].Source)
	assert.IsType(t, &FileSource{}, annotations[1].Source)

	file := annotations[1].Source.(*FileSource)
	assert.Equal(t, "types.py", file.Filename)
}

func TestEventRoundTrip(t *testing.T) {
	base := ItemBase{ID: "message_1", ThreadID: "thread_1", CreatedAt: time.Now().UTC()}
	events := []ThreadStreamEvent{
		&ThreadCreatedEvent{Thread: &Thread{ID: "thread_1", CreatedAt: time.Now().UTC()}},
		&ItemAddedEvent{Item: &AssistantMessageItem{ItemBase: base}},
		&ItemUpdatedEvent{ItemID: "message_1", Update: &ContentPartTextDelta{ContentIndex: 0, Delta: "hi"}},
		&ItemDoneEvent{Item: &EndOfTurnItem{ItemBase: base}},
		&NoticeEvent{Level: NoticeInfo, Title: "Information", Message: "hello"},
		&ProgressUpdateEvent{Text: "working..."},
		&ErrorEvent{Message: "boom", AllowRetry: true},
	}
	for _, event := range events {
		data, err := json.Marshal(event)
		require.NoError(t, err)

		back, err := UnmarshalEvent(data)
		require.NoError(t, err)
		require.IsType(t, event, back)
		assert.Equal(t, event.EventType(), back.EventType())
	}

	// Updates carried inside an ItemUpdatedEvent resolve to their variant.
	data, err := json.Marshal(events[2])
	require.NoError(t, err)
	back, err := UnmarshalEvent(data)
	require.NoError(t, err)
	updated := back.(*ItemUpdatedEvent)
	delta, ok := updated.Update.(*ContentPartTextDelta)
	require.True(t, ok)
	assert.Equal(t, "hi", delta.Delta)
}

func TestGenerateID(t *testing.T) {
	id := GenerateID("message")
	assert.Regexp(t, `^message_[0-9a-f]{32}$`, id)
	assert.NotEqual(t, id, GenerateID("message"))
}
