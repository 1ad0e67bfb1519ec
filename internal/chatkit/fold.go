// ABOUTME: Update folding for thread items
// ABOUTME: Applies partial ItemUpdate mutations to item snapshots, plus deep cloning

package chatkit

import (
	"encoding/json"
	"fmt"
)

// ApplyUpdate folds a partial update into an item snapshot and returns the
// mutated item. The input item is cloned first, so callers may keep aliases
// to the previous snapshot. An update paired with the wrong item kind is a
// protocol bug and returns an error.
func ApplyUpdate(item ThreadItem, update ItemUpdate) (ThreadItem, error) {
	clone, err := CloneItem(item)
	if err != nil {
		return nil, err
	}

	switch u := update.(type) {
	case *ContentPartAdded:
		msg, ok := clone.(*AssistantMessageItem)
		if !ok {
			return nil, updateMismatch(update, item)
		}
		if u.ContentIndex != len(msg.Content) {
			return nil, fmt.Errorf("content part added at index %d, have %d parts", u.ContentIndex, len(msg.Content))
		}
		msg.Content = append(msg.Content, u.Content)
		return msg, nil

	case *ContentPartTextDelta:
		msg, ok := clone.(*AssistantMessageItem)
		if !ok {
			return nil, updateMismatch(update, item)
		}
		if u.ContentIndex < 0 || u.ContentIndex >= len(msg.Content) {
			return nil, fmt.Errorf("text delta for missing content index %d", u.ContentIndex)
		}
		msg.Content[u.ContentIndex].Text += u.Delta
		return msg, nil

	case *ContentPartDone:
		msg, ok := clone.(*AssistantMessageItem)
		if !ok {
			return nil, updateMismatch(update, item)
		}
		if u.ContentIndex < 0 || u.ContentIndex >= len(msg.Content) {
			return nil, fmt.Errorf("content done for missing content index %d", u.ContentIndex)
		}
		msg.Content[u.ContentIndex] = u.Content
		return msg, nil

	case *WorkflowTaskAdded:
		wf, ok := clone.(*WorkflowItem)
		if !ok {
			return nil, updateMismatch(update, item)
		}
		if u.TaskIndex != len(wf.Tasks) {
			return nil, fmt.Errorf("task added at index %d, have %d tasks", u.TaskIndex, len(wf.Tasks))
		}
		wf.Tasks = append(wf.Tasks, u.Task)
		return wf, nil

	case *WorkflowTaskUpdated:
		wf, ok := clone.(*WorkflowItem)
		if !ok {
			return nil, updateMismatch(update, item)
		}
		if u.TaskIndex < 0 || u.TaskIndex >= len(wf.Tasks) {
			return nil, fmt.Errorf("task update for missing task index %d", u.TaskIndex)
		}
		wf.Tasks[u.TaskIndex] = u.Task
		return wf, nil

	default:
		return nil, fmt.Errorf("unknown update type %q", update.UpdateType())
	}
}

func updateMismatch(update ItemUpdate, item ThreadItem) error {
	return fmt.Errorf("update %q cannot apply to %s item %s", update.UpdateType(), item.Type(), item.Base().ID)
}

// CloneItem deep-copies a thread item through its wire form. Items carry
// nested interface values, so a JSON round trip is the one copy path that
// stays correct as variants evolve.
func CloneItem(item ThreadItem) (ThreadItem, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("cloning %s item: %w", item.Type(), err)
	}
	return UnmarshalItem(data)
}
