// ABOUTME: Tests for the turn engine: event sequences, persistence, cancellation
// ABOUTME: Runs with zero pacing delays so streams complete immediately

package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tailen/chatkit-ui/internal/chatkit"
	"github.com/Tailen/chatkit-ui/internal/config"
	"github.com/Tailen/chatkit-ui/internal/store"
)

func testEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := config.StreamingConfig{ChunkSize: 12}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, cfg, logger), st
}

func seedThread(t *testing.T, st store.Store) *chatkit.Thread {
	t.Helper()
	thread := &chatkit.Thread{ID: chatkit.GenerateID("thread"), CreatedAt: time.Now().UTC()}
	require.NoError(t, st.SaveThread(context.Background(), store.NewRequestContext(), thread))
	return thread
}

func userMessage(threadID, text string) *chatkit.UserMessageItem {
	return &chatkit.UserMessageItem{
		ItemBase: chatkit.ItemBase{ID: chatkit.GenerateID("message"), ThreadID: threadID, CreatedAt: time.Now().UTC()},
		Content:  []chatkit.UserContentPart{{Type: chatkit.UserContentText, Text: text}},
	}
}

func collect(t *testing.T, ch <-chan chatkit.ThreadStreamEvent) []chatkit.ThreadStreamEvent {
	t.Helper()
	var events []chatkit.ThreadStreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("stream did not close in time")
		}
	}
}

func TestSelectScenario(t *testing.T) {
	tests := []struct {
		text string
		want Scenario
	}{
		{"hello there", ScenarioDefault},
		{"", ScenarioDefault},
		{"show me a widget", ScenarioWidget},
		{"please error out", ScenarioError},
		{"error in the widget", ScenarioError},
		{"call a tool", ScenarioTool},
		{"run the workflow", ScenarioWorkflow},
		{"notice me", ScenarioNotice},
		{"slow down", ScenarioSlow},
		{"a long reply", ScenarioLong},
		{"with annotations please", ScenarioAnnotations},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectScenario(tt.text), "text %q", tt.text)
	}
}

func TestDefaultScenarioStream(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()
	rc := store.NewRequestContext()
	thread := seedThread(t, st)

	events := collect(t, e.Respond(ctx, rc, thread, userMessage(thread.ID, "Hello")))
	require.NotEmpty(t, events)

	added, ok := events[0].(*chatkit.ItemAddedEvent)
	require.True(t, ok, "first event should announce the item, got %T", events[0])
	msg, ok := added.Item.(*chatkit.AssistantMessageItem)
	require.True(t, ok)
	assert.Empty(t, msg.Content)

	// Deltas must reassemble to the final text.
	var assembled strings.Builder
	var finalText string
	for _, ev := range events {
		switch e := ev.(type) {
		case *chatkit.ItemUpdatedEvent:
			switch u := e.Update.(type) {
			case *chatkit.ContentPartTextDelta:
				assembled.WriteString(u.Delta)
			case *chatkit.ContentPartDone:
				finalText = u.Content.Text
			}
		}
	}
	require.NotEmpty(t, finalText)
	assert.Equal(t, finalText, assembled.String())
	assert.True(t, strings.HasPrefix(finalText, "You said: *hello*\n\n"))
	assert.Contains(t, finalText, "test response from the chatkit-ui dev server")

	// Turn ends with the message done and an end_of_turn marker.
	last, ok := events[len(events)-1].(*chatkit.ItemDoneEvent)
	require.True(t, ok)
	assert.Equal(t, chatkit.ItemTypeEndOfTurn, last.Item.Type())

	// Persisted snapshot matches the streamed final text.
	page, err := st.LoadThreadItems(ctx, rc, thread.ID, "", 10, chatkit.OrderAsc)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	persisted, ok := page.Data[0].(*chatkit.AssistantMessageItem)
	require.True(t, ok)
	require.Len(t, persisted.Content, 1)
	assert.Equal(t, finalText, persisted.Content[0].Text)
}

func TestDefaultScenarioNonASCIIText(t *testing.T) {
	e, st := testEngine(t)
	thread := seedThread(t, st)

	// The echo places the accented rune right at a chunk boundary, so byte
	// slicing would split it in two.
	events := collect(t, e.Respond(context.Background(), store.NewRequestContext(), thread, userMessage(thread.ID, "émile says hi")))

	// Round-trip every event through JSON the way the SSE writer does, then
	// reassemble the deltas from the decoded stream.
	var assembled strings.Builder
	var finalText string
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		require.NoError(t, err)
		decoded, err := chatkit.UnmarshalEvent(raw)
		require.NoError(t, err)
		upd, ok := decoded.(*chatkit.ItemUpdatedEvent)
		if !ok {
			continue
		}
		switch u := upd.Update.(type) {
		case *chatkit.ContentPartTextDelta:
			assert.True(t, utf8.ValidString(u.Delta), "delta %q is not valid UTF-8", u.Delta)
			assembled.WriteString(u.Delta)
		case *chatkit.ContentPartDone:
			finalText = u.Content.Text
		}
	}
	require.NotEmpty(t, finalText)
	assert.Equal(t, finalText, assembled.String())
	assert.True(t, strings.HasPrefix(finalText, "You said: *émile says hi*\n\n"))
}

func TestErrorScenario(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()
	rc := store.NewRequestContext()
	thread := seedThread(t, st)

	events := collect(t, e.Respond(ctx, rc, thread, userMessage(thread.ID, "trigger an error")))
	require.Len(t, events, 1)
	errEvent, ok := events[0].(*chatkit.ErrorEvent)
	require.True(t, ok)
	assert.True(t, errEvent.AllowRetry)
	assert.Contains(t, errEvent.Message, "intentional failure")

	// Nothing was persisted.
	page, err := st.LoadThreadItems(ctx, rc, thread.ID, "", 10, chatkit.OrderAsc)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestWidgetScenario(t *testing.T) {
	e, st := testEngine(t)
	thread := seedThread(t, st)

	events := collect(t, e.Respond(context.Background(), store.NewRequestContext(), thread, userMessage(thread.ID, "widget")))
	require.Len(t, events, 1)

	done, ok := events[0].(*chatkit.ItemDoneEvent)
	require.True(t, ok)
	widget, ok := done.Item.(*chatkit.WidgetItem)
	require.True(t, ok)
	assert.Equal(t, "Test widget form", widget.CopyText)
	assert.Contains(t, string(widget.Widget), "Test Widget Form")
}

func TestToolScenario(t *testing.T) {
	e, st := testEngine(t)
	thread := seedThread(t, st)

	events := collect(t, e.Respond(context.Background(), store.NewRequestContext(), thread, userMessage(thread.ID, "use a tool")))
	require.Len(t, events, 1)

	done, ok := events[0].(*chatkit.ItemDoneEvent)
	require.True(t, ok)
	call, ok := done.Item.(*chatkit.ClientToolCallItem)
	require.True(t, ok)
	assert.Equal(t, "get_weather", call.Name)
	assert.Equal(t, chatkit.ToolCallPending, call.Status)
	assert.Equal(t, "call_"+call.ID, call.CallID)
	assert.Equal(t, "San Francisco", call.Arguments["city"])
}

func TestWorkflowScenario(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()
	rc := store.NewRequestContext()
	thread := seedThread(t, st)

	events := collect(t, e.Respond(ctx, rc, thread, userMessage(thread.ID, "workflow")))

	added, ok := events[0].(*chatkit.ItemAddedEvent)
	require.True(t, ok)
	wf, ok := added.Item.(*chatkit.WorkflowItem)
	require.True(t, ok)
	require.Len(t, wf.Tasks, 1)
	assert.Equal(t, chatkit.StatusLoading, wf.Tasks[0].TaskStatus())

	var updates []chatkit.ItemUpdate
	var workflowDone *chatkit.WorkflowItem
	for _, ev := range events {
		switch e := ev.(type) {
		case *chatkit.ItemUpdatedEvent:
			if e.ItemID == wf.ID {
				updates = append(updates, e.Update)
			}
		case *chatkit.ItemDoneEvent:
			if item, ok := e.Item.(*chatkit.WorkflowItem); ok {
				workflowDone = item
			}
		}
	}

	// Three completions interleaved with two additions.
	require.Len(t, updates, 5)
	assert.Equal(t, chatkit.UpdateWorkflowTaskUpdated, updates[0].UpdateType())
	assert.Equal(t, chatkit.UpdateWorkflowTaskAdded, updates[1].UpdateType())
	assert.Equal(t, chatkit.UpdateWorkflowTaskUpdated, updates[4].UpdateType())

	require.NotNil(t, workflowDone)
	require.Len(t, workflowDone.Tasks, 3)
	for _, task := range workflowDone.Tasks {
		assert.Equal(t, chatkit.StatusComplete, task.TaskStatus())
	}

	// Folding the incremental updates over the added snapshot must land on
	// the same state as the final snapshot.
	var folded chatkit.ThreadItem = wf
	var err error
	for _, update := range updates {
		folded, err = chatkit.ApplyUpdate(folded, update)
		require.NoError(t, err)
	}
	foldedJSON, err := json.Marshal(folded)
	require.NoError(t, err)
	doneJSON, err := json.Marshal(workflowDone)
	require.NoError(t, err)
	assert.JSONEq(t, string(doneJSON), string(foldedJSON))

	// Narration follows in the same turn: workflow, message, end_of_turn.
	page, err := st.LoadThreadItems(ctx, rc, thread.ID, "", 10, chatkit.OrderAsc)
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, chatkit.ItemTypeWorkflow, page.Data[0].Type())
	assert.Equal(t, chatkit.ItemTypeAssistantMessage, page.Data[1].Type())
	assert.Equal(t, chatkit.ItemTypeEndOfTurn, page.Data[2].Type())

	// The folded store snapshot converged to the final state.
	persisted, ok := page.Data[0].(*chatkit.WorkflowItem)
	require.True(t, ok)
	require.Len(t, persisted.Tasks, 3)
	assert.Equal(t, chatkit.StatusComplete, persisted.Tasks[2].TaskStatus())
}

func TestNoticeScenario(t *testing.T) {
	e, st := testEngine(t)
	thread := seedThread(t, st)

	events := collect(t, e.Respond(context.Background(), store.NewRequestContext(), thread, userMessage(thread.ID, "notice")))
	require.Greater(t, len(events), 2)

	info, ok := events[0].(*chatkit.NoticeEvent)
	require.True(t, ok)
	assert.Equal(t, chatkit.NoticeInfo, info.Level)
	warning, ok := events[1].(*chatkit.NoticeEvent)
	require.True(t, ok)
	assert.Equal(t, chatkit.NoticeWarning, warning.Level)
}

func TestLongScenarioProgress(t *testing.T) {
	e, st := testEngine(t)
	thread := seedThread(t, st)

	events := collect(t, e.Respond(context.Background(), store.NewRequestContext(), thread, userMessage(thread.ID, "long")))
	require.NotEmpty(t, events)
	_, ok := events[0].(*chatkit.ProgressUpdateEvent)
	assert.True(t, ok, "long scenario starts with a progress update, got %T", events[0])

	var finalText string
	for _, ev := range events {
		if done, ok := ev.(*chatkit.ItemDoneEvent); ok {
			if msg, ok := done.Item.(*chatkit.AssistantMessageItem); ok {
				finalText = msg.Content[0].Text
			}
		}
	}
	assert.Contains(t, finalText, "Paragraph 1:")
	assert.Contains(t, finalText, "Paragraph 17:")
	assert.Contains(t, finalText, "This is sentence 51 of the long response.")
}

func TestAnnotationsScenario(t *testing.T) {
	e, st := testEngine(t)
	thread := seedThread(t, st)

	events := collect(t, e.Respond(context.Background(), store.NewRequestContext(), thread, userMessage(thread.ID, "annotations")))
	require.Len(t, events, 1)

	done, ok := events[0].(*chatkit.ItemDoneEvent)
	require.True(t, ok)
	msg, ok := done.Item.(*chatkit.AssistantMessageItem)
	require.True(t, ok)
	require.Len(t, msg.Content, 1)
	require.Len(t, msg.Content[0].Annotations, 2)
	assert.Equal(t, chatkit.SourceTypeURL, msg.Content[0].Annotations[0].Source.SourceType())
	assert.Equal(t, chatkit.SourceTypeFile, msg.Content[0].Annotations[1].Source.SourceType())
}

func TestHandleAction(t *testing.T) {
	e, st := testEngine(t)
	thread := seedThread(t, st)

	action := Action{Type: "form.submit", Payload: map[string]any{"user_name": "Ada"}}
	events := collect(t, e.HandleAction(context.Background(), store.NewRequestContext(), thread, action, nil))

	var finalText string
	for _, ev := range events {
		if done, ok := ev.(*chatkit.ItemDoneEvent); ok {
			if msg, ok := done.Item.(*chatkit.AssistantMessageItem); ok {
				finalText = msg.Content[0].Text
			}
		}
	}
	assert.Contains(t, finalText, "Received action: type=`form.submit`")
	assert.Contains(t, finalText, "user_name")
}

func TestAddFeedback(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()
	rc := store.NewRequestContext()
	thread := seedThread(t, st)

	// Fire and forget: accepted even for threads the store has never seen.
	e.AddFeedback(ctx, rc, thread.ID, []string{"message_1"}, "thumbs_up")
	e.AddFeedback(ctx, rc, "thread_missing", nil, "thumbs_up")
}

func TestRespondCancellation(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := config.StreamingConfig{ChunkSize: 12, ChunkDelayDuration: 50 * time.Millisecond}
	e := New(st, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	thread := seedThread(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.Respond(ctx, store.NewRequestContext(), thread, userMessage(thread.ID, "hello"))

	// Take the first few events, then walk away.
	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("stream stalled")
		}
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			// No error event on cancellation, the stream just stops.
			_, isErr := ev.(*chatkit.ErrorEvent)
			assert.False(t, isErr)
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}
