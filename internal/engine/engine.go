// ABOUTME: Turn engine producing thread stream events for simulated responses
// ABOUTME: Wraps scenario output in a persistence layer so store reads match the stream

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tailen/chatkit-ui/internal/chatkit"
	"github.com/Tailen/chatkit-ui/internal/config"
	"github.com/Tailen/chatkit-ui/internal/store"
)

// StreamError terminates a turn with an in-band error event instead of an
// item. AllowRetry tells the client whether resending the message is useful.
type StreamError struct {
	Message    string
	AllowRetry bool
}

func (e *StreamError) Error() string { return e.Message }

// Action is a client-initiated interaction, usually from a widget.
type Action struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// eventBuffer smooths producer/consumer pacing without letting an abandoned
// stream run far ahead.
const eventBuffer = 16

// Engine turns user input into a stream of thread events. Every item event
// is persisted before it is forwarded, so a concurrent item listing returns
// exactly the snapshots a streaming client has seen.
type Engine struct {
	store  store.Store
	cfg    config.StreamingConfig
	logger *slog.Logger
}

func New(st store.Store, cfg config.StreamingConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:  st,
		cfg:    cfg,
		logger: logger.With("component", "engine"),
	}
}

// Respond runs one assistant turn reacting to userItem. The returned channel
// is closed when the turn ends; cancelling ctx stops the producer at its
// next suspension point.
func (e *Engine) Respond(ctx context.Context, rc store.RequestContext, thread *chatkit.Thread, userItem *chatkit.UserMessageItem) <-chan chatkit.ThreadStreamEvent {
	userText := extractUserText(userItem)
	scenario := SelectScenario(userText)

	return e.run(ctx, rc, thread, func(t *turn) error {
		e.logger.Info("starting turn",
			"thread_id", thread.ID,
			"scenario", string(scenario))
		return runScenario(t, scenario, userText)
	})
}

// HandleAction runs a turn acknowledging a widget action. The sender item is
// informational only; nil when the client did not identify one.
func (e *Engine) HandleAction(ctx context.Context, rc store.RequestContext, thread *chatkit.Thread, action Action, sender *chatkit.WidgetItem) <-chan chatkit.ThreadStreamEvent {
	return e.run(ctx, rc, thread, func(t *turn) error {
		senderID := ""
		if sender != nil {
			senderID = sender.Base().ID
		}
		e.logger.Info("handling action",
			"thread_id", thread.ID,
			"action_type", action.Type,
			"sender_id", senderID)

		payload, err := json.Marshal(action.Payload)
		if err != nil {
			return fmt.Errorf("serializing action payload: %w", err)
		}
		text := fmt.Sprintf("Received action: type=`%s`, payload=`%s`", action.Type, payload)
		return t.streamText(text, t.engine.cfg.ChunkDelayDuration)
	})
}

// AddFeedback records thumb feedback on items. Fire and forget: the dev
// server only logs it, even for threads it has never seen.
func (e *Engine) AddFeedback(ctx context.Context, rc store.RequestContext, threadID string, itemIDs []string, kind string) {
	e.logger.Info("feedback received",
		"thread_id", threadID,
		"item_ids", itemIDs,
		"kind", kind)
}

func (e *Engine) run(ctx context.Context, rc store.RequestContext, thread *chatkit.Thread, fn func(t *turn) error) <-chan chatkit.ThreadStreamEvent {
	ch := make(chan chatkit.ThreadStreamEvent, eventBuffer)
	t := &turn{
		engine:   e,
		ctx:      ctx,
		rc:       rc,
		threadID: thread.ID,
		ch:       ch,
	}

	go func() {
		defer close(ch)
		err := fn(t)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.logger.Debug("turn cancelled", "thread_id", thread.ID)
			return
		}

		var streamErr *StreamError
		if !errors.As(err, &streamErr) {
			e.logger.Error("turn failed", "thread_id", thread.ID, "error", err)
			streamErr = &StreamError{
				Message:    "The dev server hit an internal error while generating this response.",
				AllowRetry: true,
			}
		}
		// Terminal by contract: nothing follows an error event.
		select {
		case ch <- &chatkit.ErrorEvent{Message: streamErr.Message, AllowRetry: streamErr.AllowRetry}:
		case <-ctx.Done():
		}
	}()
	return ch
}

// turn carries the per-turn state scenario functions emit through.
type turn struct {
	engine   *Engine
	ctx      context.Context
	rc       store.RequestContext
	threadID string
	ch       chan<- chatkit.ThreadStreamEvent
}

// emit persists the event's item snapshot, then forwards the event. Blocks
// until the consumer takes it or ctx ends.
func (t *turn) emit(event chatkit.ThreadStreamEvent) error {
	if err := t.persist(event); err != nil {
		return err
	}
	select {
	case t.ch <- event:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (t *turn) persist(event chatkit.ThreadStreamEvent) error {
	switch ev := event.(type) {
	case *chatkit.ItemAddedEvent:
		return t.engine.store.AddThreadItem(t.ctx, t.rc, t.threadID, ev.Item)
	case *chatkit.ItemUpdatedEvent:
		item, err := t.engine.store.LoadItem(t.ctx, t.rc, t.threadID, ev.ItemID)
		if err != nil {
			return err
		}
		folded, err := chatkit.ApplyUpdate(item, ev.Update)
		if err != nil {
			return err
		}
		return t.engine.store.SaveItem(t.ctx, t.rc, t.threadID, folded)
	case *chatkit.ItemDoneEvent:
		return t.engine.store.SaveItem(t.ctx, t.rc, t.threadID, ev.Item)
	default:
		// Notices, progress updates, and errors carry no persistent state.
		return nil
	}
}

func (t *turn) sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (t *turn) newItemBase(prefix string) chatkit.ItemBase {
	return chatkit.ItemBase{
		ID:        chatkit.GenerateID(prefix),
		ThreadID:  t.threadID,
		CreatedAt: time.Now().UTC(),
	}
}
