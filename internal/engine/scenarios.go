// ABOUTME: Keyword-triggered demo scenarios and their response corpus
// ABOUTME: Includes the delta streaming helper shared by text-producing scenarios

package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Tailen/chatkit-ui/internal/chatkit"
)

// Scenario names a canned response behavior.
type Scenario string

const (
	ScenarioError       Scenario = "error"
	ScenarioWidget      Scenario = "widget"
	ScenarioTool        Scenario = "tool"
	ScenarioWorkflow    Scenario = "workflow"
	ScenarioNotice      Scenario = "notice"
	ScenarioSlow        Scenario = "slow"
	ScenarioLong        Scenario = "long"
	ScenarioAnnotations Scenario = "annotations"
	ScenarioDefault     Scenario = "default"
)

var scenarioKeywords = []struct {
	keyword  string
	scenario Scenario
}{
	{"error", ScenarioError},
	{"widget", ScenarioWidget},
	{"tool", ScenarioTool},
	{"workflow", ScenarioWorkflow},
	{"notice", ScenarioNotice},
	{"slow", ScenarioSlow},
	{"long", ScenarioLong},
	{"annotations", ScenarioAnnotations},
}

// SelectScenario picks the scenario for a user message. First matching
// keyword wins; the order above is the precedence.
func SelectScenario(userText string) Scenario {
	for _, k := range scenarioKeywords {
		if strings.Contains(userText, k.keyword) {
			return k.scenario
		}
	}
	return ScenarioDefault
}

// extractUserText flattens a user message to the lowered text the scenario
// dispatch and echo both use. Attachment parts contribute nothing.
func extractUserText(item *chatkit.UserMessageItem) string {
	if item == nil {
		return ""
	}
	var parts []string
	for _, content := range item.Content {
		if content.Type == chatkit.UserContentText {
			parts = append(parts, content.Text)
		}
	}
	return strings.TrimSpace(strings.ToLower(strings.Join(parts, " ")))
}

var loremParagraphs = []string{
	"This is a test response from the chatkit-ui dev server. " +
		"The server echoes your message and streams back a multi-paragraph response " +
		"to help you develop and test the frontend streaming implementation.",
	"Each paragraph is streamed as a series of text deltas, " +
		"simulating how a real LLM backend would generate tokens incrementally. " +
		"You can observe how the UI handles progressive text rendering.",
	"The dev server supports several test scenarios. " +
		"Try sending messages with keywords like 'widget', 'error', 'long', " +
		"'tool', 'workflow', 'notice', 'slow', or 'annotations' to trigger " +
		"different response types.",
}

func longParagraphs() []string {
	paragraphs := make([]string, 17)
	for i := range paragraphs {
		paragraphs[i] = fmt.Sprintf(
			"Paragraph %d: This is sentence %d of the long response. "+
				"This is sentence %d of the long response. "+
				"This is sentence %d of the long response.",
			i+1, i*3+1, i*3+2, i*3+3)
	}
	return paragraphs
}

// testWidgetCard is the Card tree the widget scenario renders. The server
// treats widget trees as opaque; the frontend owns this schema.
const testWidgetCard = `{
  "type": "Card",
  "children": [
    {"type": "Title", "value": "Test Widget Form", "size": "lg"},
    {"type": "Text", "value": "This is a test widget rendered by the dev server.", "id": "desc", "streaming": false},
    {"type": "Input", "name": "user_name", "placeholder": "Enter your name", "inputType": "text"},
    {"type": "Input", "name": "email", "placeholder": "Enter your email", "inputType": "email"},
    {"type": "Button", "label": "Submit", "style": "primary", "onClickAction": {"type": "form.submit", "payload": {}}}
  ],
  "size": "md"
}`

const errorScenarioMessage = "This is a test error from the dev server. " +
	"The 'error' keyword triggered this intentional failure."

func runScenario(t *turn, scenario Scenario, userText string) error {
	switch scenario {
	case ScenarioError:
		return &StreamError{Message: errorScenarioMessage, AllowRetry: true}
	case ScenarioWidget:
		return scenarioWidget(t)
	case ScenarioTool:
		return scenarioTool(t)
	case ScenarioWorkflow:
		return scenarioWorkflow(t)
	case ScenarioNotice:
		return scenarioNotice(t)
	case ScenarioSlow:
		return scenarioSlow(t)
	case ScenarioLong:
		return scenarioLong(t)
	case ScenarioAnnotations:
		return scenarioAnnotations(t)
	default:
		return scenarioDefault(t, userText)
	}
}

// scenarioDefault echoes the user message and streams the lorem paragraphs.
func scenarioDefault(t *turn, userText string) error {
	echo := ""
	if userText != "" {
		echo = fmt.Sprintf("You said: *%s*\n\n", userText)
	}
	return t.streamText(echo+strings.Join(loremParagraphs, "\n\n"), t.engine.cfg.ChunkDelayDuration)
}

func scenarioWidget(t *turn) error {
	return t.emit(&chatkit.ItemDoneEvent{Item: &chatkit.WidgetItem{
		ItemBase: t.newItemBase("message"),
		Widget:   json.RawMessage(testWidgetCard),
		CopyText: "Test widget form",
	}})
}

func scenarioTool(t *turn) error {
	base := t.newItemBase("tool_call")
	return t.emit(&chatkit.ItemDoneEvent{Item: &chatkit.ClientToolCallItem{
		ItemBase: base,
		Status:   chatkit.ToolCallPending,
		CallID:   "call_" + base.ID,
		Name:     "get_weather",
		Arguments: map[string]any{
			"city":  "San Francisco",
			"units": "fahrenheit",
		},
	}})
}

func scenarioNotice(t *turn) error {
	if err := t.emit(&chatkit.NoticeEvent{
		Level:   chatkit.NoticeInfo,
		Title:   "Information",
		Message: "This is an **info** notice from the dev server.",
	}); err != nil {
		return err
	}
	if err := t.emit(&chatkit.NoticeEvent{
		Level:   chatkit.NoticeWarning,
		Title:   "Warning",
		Message: "This is a **warning** notice. Something might need attention.",
	}); err != nil {
		return err
	}
	return t.streamText(
		"Two notices were sent before this response (info and warning).",
		t.engine.cfg.ChunkDelayDuration)
}

func scenarioSlow(t *turn) error {
	return t.streamText(
		"This response has artificial delays between chunks to test loading states. "+
			"Each chunk takes 500ms to arrive.",
		t.engine.cfg.SlowDelayDuration)
}

func scenarioLong(t *turn) error {
	if err := t.emit(&chatkit.ProgressUpdateEvent{Text: "Generating a long response..."}); err != nil {
		return err
	}
	return t.streamText(strings.Join(longParagraphs(), "\n\n"), t.engine.cfg.ChunkDelayDuration)
}

func scenarioAnnotations(t *turn) error {
	annotations := []chatkit.Annotation{
		{
			Source: &chatkit.URLSource{
				Title:       "ChatKit Python Documentation",
				URL:         "https://openai.github.io/chatkit-python/",
				Attribution: "OpenAI",
				Description: "Official documentation for the ChatKit Python SDK.",
			},
			Index: 0,
		},
		{
			Source: &chatkit.FileSource{
				Title:       "Protocol Types Reference",
				Filename:    "types.py",
				Description: "Canonical type definitions for the ChatKit wire protocol.",
			},
			Index: 1,
		},
	}
	text := "Here is a response with source annotations. " +
		"The ChatKit protocol is documented in the official Python SDK[0]. " +
		"The type definitions are in the protocol reference file[1]."

	return t.emit(&chatkit.ItemDoneEvent{Item: &chatkit.AssistantMessageItem{
		ItemBase: t.newItemBase("message"),
		Content:  []chatkit.ContentPart{{Text: text, Annotations: annotations}},
	}})
}

func workflowTasks() []chatkit.WorkflowTask {
	return []chatkit.WorkflowTask{
		&chatkit.CustomTask{
			Title:           "Analyzing request",
			Icon:            "sparkle",
			StatusIndicator: chatkit.StatusLoading,
		},
		&chatkit.SearchTask{
			Title:           "Searching the web",
			TitleQuery:      "chatkit protocol",
			Queries:         []string{"chatkit wire protocol", "chatkit-python SSE"},
			StatusIndicator: chatkit.StatusLoading,
			Sources: []chatkit.Source{&chatkit.URLSource{
				Title:       "ChatKit Python Docs",
				URL:         "https://openai.github.io/chatkit-python/",
				Attribution: "OpenAI",
			}},
		},
		&chatkit.ThoughtTask{
			Title:           "Synthesizing results",
			Content:         "Combining search results with user context...",
			StatusIndicator: chatkit.StatusLoading,
		},
	}
}

func completed(task chatkit.WorkflowTask) chatkit.WorkflowTask {
	switch t := task.(type) {
	case *chatkit.CustomTask:
		done := *t
		done.StatusIndicator = chatkit.StatusComplete
		return &done
	case *chatkit.SearchTask:
		done := *t
		done.StatusIndicator = chatkit.StatusComplete
		return &done
	case *chatkit.ThoughtTask:
		done := *t
		done.StatusIndicator = chatkit.StatusComplete
		return &done
	default:
		return task
	}
}

// scenarioWorkflow plays a 3-task workflow: each stage completes the current
// task and announces the next, then the final snapshot and a narration turn.
func scenarioWorkflow(t *turn) error {
	tasks := workflowTasks()
	base := t.newItemBase("workflow")
	stageDelay := t.engine.cfg.StageDelayDuration

	if err := t.emit(&chatkit.ItemAddedEvent{Item: &chatkit.WorkflowItem{
		ItemBase:     base,
		WorkflowType: "custom",
		Tasks:        []chatkit.WorkflowTask{tasks[0]},
	}}); err != nil {
		return err
	}

	// Middle stage waits longer, matching a search round trip.
	pauses := []time.Duration{stageDelay, stageDelay + stageDelay*3/5, stageDelay}
	for i := range tasks {
		if err := t.sleep(pauses[i]); err != nil {
			return err
		}
		if err := t.emit(&chatkit.ItemUpdatedEvent{
			ItemID: base.ID,
			Update: &chatkit.WorkflowTaskUpdated{TaskIndex: i, Task: completed(tasks[i])},
		}); err != nil {
			return err
		}
		if i+1 < len(tasks) {
			if err := t.emit(&chatkit.ItemUpdatedEvent{
				ItemID: base.ID,
				Update: &chatkit.WorkflowTaskAdded{TaskIndex: i + 1, Task: tasks[i+1]},
			}); err != nil {
				return err
			}
		}
	}

	// Final snapshot is rebuilt rather than folded, so it stays correct even
	// if an update was dropped.
	final := make([]chatkit.WorkflowTask, len(tasks))
	for i, task := range tasks {
		final[i] = completed(task)
	}
	if err := t.emit(&chatkit.ItemDoneEvent{Item: &chatkit.WorkflowItem{
		ItemBase:     base,
		WorkflowType: "custom",
		Tasks:        final,
	}}); err != nil {
		return err
	}

	return t.streamText(
		"The workflow completed successfully with 3 tasks: analysis, web search, and synthesis.",
		t.engine.cfg.ChunkDelayDuration)
}

// streamText plays the delta protocol for one assistant message: announce
// the empty item, open content part 0, stream chunked deltas, close the
// part, finalize the item, and mark the end of the turn.
func (t *turn) streamText(fullText string, chunkDelay time.Duration) error {
	base := t.newItemBase("message")

	if err := t.emit(&chatkit.ItemAddedEvent{Item: &chatkit.AssistantMessageItem{
		ItemBase: base,
		Content:  []chatkit.ContentPart{},
	}}); err != nil {
		return err
	}
	if err := t.emit(&chatkit.ItemUpdatedEvent{
		ItemID: base.ID,
		Update: &chatkit.ContentPartAdded{ContentIndex: 0, Content: chatkit.ContentPart{}},
	}); err != nil {
		return err
	}

	chunkSize := t.engine.cfg.ChunkSize
	runes := []rune(fullText)
	for offset := 0; offset < len(runes); offset += chunkSize {
		end := offset + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if err := t.emit(&chatkit.ItemUpdatedEvent{
			ItemID: base.ID,
			Update: &chatkit.ContentPartTextDelta{ContentIndex: 0, Delta: string(runes[offset:end])},
		}); err != nil {
			return err
		}
		if err := t.sleep(chunkDelay); err != nil {
			return err
		}
	}

	if err := t.emit(&chatkit.ItemUpdatedEvent{
		ItemID: base.ID,
		Update: &chatkit.ContentPartDone{ContentIndex: 0, Content: chatkit.ContentPart{Text: fullText}},
	}); err != nil {
		return err
	}
	if err := t.emit(&chatkit.ItemDoneEvent{Item: &chatkit.AssistantMessageItem{
		ItemBase: base,
		Content:  []chatkit.ContentPart{{Text: fullText}},
	}}); err != nil {
		return err
	}

	return t.emit(&chatkit.ItemDoneEvent{Item: &chatkit.EndOfTurnItem{
		ItemBase: t.newItemBase("message"),
	}})
}
