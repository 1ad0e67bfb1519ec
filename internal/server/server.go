// ABOUTME: HTTP surface for the chatkit dev server: POST /chatkit and /health
// ABOUTME: Dispatches the request union, streams turns over SSE, serves JSON otherwise

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tailen/chatkit-ui/internal/chatkit"
	"github.com/Tailen/chatkit-ui/internal/engine"
	"github.com/Tailen/chatkit-ui/internal/store"
)

// Server exposes the chatkit protocol over HTTP.
type Server struct {
	store  store.Store
	engine *engine.Engine
	logger *slog.Logger
}

func New(st store.Store, eng *engine.Engine, logger *slog.Logger) *Server {
	return &Server{
		store:  st,
		engine: eng,
		logger: logger.With("component", "server"),
	}
}

// RegisterRoutes attaches all handlers to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/chatkit", corsMiddleware(http.HandlerFunc(s.handleChatKit)))
	mux.Handle("/health", corsMiddleware(http.HandlerFunc(s.handleHealth)))
}

// corsMiddleware allows any origin. This is a local dev server; the frontend
// runs on a different port.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chatkitRequest is the union of every operation payload, discriminated by
// Type. Unused fields stay at their zero values.
type chatkitRequest struct {
	Type string `json:"type"`

	ThreadID     string            `json:"thread_id,omitempty"`
	Input        *userMessageInput `json:"input,omitempty"`
	ItemID       string            `json:"item_id,omitempty"`
	Action       *engine.Action    `json:"action,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	After        string            `json:"after,omitempty"`
	Order        string            `json:"order,omitempty"`
	ItemIDs      []string          `json:"item_ids,omitempty"`
	Kind         string            `json:"kind,omitempty"`
	AttachmentID string            `json:"attachment_id,omitempty"`
}

type userMessageInput struct {
	Content []chatkit.UserContentPart `json:"content"`
}

func (s *Server) handleChatKit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatkitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	s.logger.Debug("dispatching request", "type", req.Type)
	rc := store.NewRequestContext()

	switch req.Type {
	case "threads.create":
		s.handleThreadCreate(w, r, rc, &req)
	case "threads.add_user_message":
		s.handleAddUserMessage(w, r, rc, &req)
	case "threads.custom_action":
		s.handleCustomAction(w, r, rc, &req)
	case "threads.list":
		s.handleThreadsList(w, r, rc, &req)
	case "threads.get_by_id":
		s.handleThreadGet(w, r, rc, &req)
	case "threads.delete":
		s.handleThreadDelete(w, r, rc, &req)
	case "items.list":
		s.handleItemsList(w, r, rc, &req)
	case "items.feedback":
		s.handleItemsFeedback(w, r, rc, &req)
	case "attachments.delete":
		s.handleAttachmentDelete(w, r, rc, &req)
	default:
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown request type %q", req.Type))
	}
}

// ── Streaming operations ──

func (s *Server) handleThreadCreate(w http.ResponseWriter, r *http.Request, rc store.RequestContext, req *chatkitRequest) {
	userItem, ok := s.validateInput(w, rc, r, req.Input, "")
	if !ok {
		return
	}

	thread := &chatkit.Thread{
		ID:        chatkit.GenerateID("thread"),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveThread(r.Context(), rc, thread); err != nil {
		s.sendStoreError(w, err)
		return
	}
	userItem.ThreadID = thread.ID
	if err := s.store.AddThreadItem(r.Context(), rc, thread.ID, userItem); err != nil {
		s.sendStoreError(w, err)
		return
	}

	sse, ok := s.startStream(w)
	if !ok {
		return
	}
	// The client learns the new thread id from this event before any items.
	sse.write(&chatkit.ThreadCreatedEvent{Thread: thread})
	s.pump(r, sse, s.engine.Respond(r.Context(), rc, thread, userItem))
}

func (s *Server) handleAddUserMessage(w http.ResponseWriter, r *http.Request, rc store.RequestContext, req *chatkitRequest) {
	if req.ThreadID == "" {
		s.sendError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	thread, err := s.store.LoadThread(r.Context(), rc, req.ThreadID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	userItem, ok := s.validateInput(w, rc, r, req.Input, thread.ID)
	if !ok {
		return
	}
	if err := s.store.AddThreadItem(r.Context(), rc, thread.ID, userItem); err != nil {
		s.sendStoreError(w, err)
		return
	}

	sse, ok := s.startStream(w)
	if !ok {
		return
	}
	s.pump(r, sse, s.engine.Respond(r.Context(), rc, thread, userItem))
}

func (s *Server) handleCustomAction(w http.ResponseWriter, r *http.Request, rc store.RequestContext, req *chatkitRequest) {
	if req.ThreadID == "" {
		s.sendError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	if req.Action == nil || req.Action.Type == "" {
		s.sendError(w, http.StatusBadRequest, "action with a type is required")
		return
	}
	thread, err := s.store.LoadThread(r.Context(), rc, req.ThreadID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	var sender *chatkit.WidgetItem
	if req.ItemID != "" {
		item, err := s.store.LoadItem(r.Context(), rc, thread.ID, req.ItemID)
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		widget, ok := item.(*chatkit.WidgetItem)
		if !ok {
			s.sendError(w, http.StatusBadRequest, fmt.Sprintf("item %s is not a widget", req.ItemID))
			return
		}
		sender = widget
	}

	sse, ok := s.startStream(w)
	if !ok {
		return
	}
	s.pump(r, sse, s.engine.HandleAction(r.Context(), rc, thread, *req.Action, sender))
}

// ── Non-streaming operations ──

func (s *Server) handleThreadsList(w http.ResponseWriter, r *http.Request, rc store.RequestContext, req *chatkitRequest) {
	order, ok := s.parseOrder(w, req.Order)
	if !ok {
		return
	}
	page, err := s.store.LoadThreads(r.Context(), rc, req.Limit, req.After, order)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, page)
}

func (s *Server) handleThreadGet(w http.ResponseWriter, r *http.Request, rc store.RequestContext, req *chatkitRequest) {
	if req.ThreadID == "" {
		s.sendError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	thread, err := s.store.LoadThread(r.Context(), rc, req.ThreadID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, thread)
}

func (s *Server) handleThreadDelete(w http.ResponseWriter, r *http.Request, rc store.RequestContext, req *chatkitRequest) {
	if req.ThreadID == "" {
		s.sendError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	if err := s.store.DeleteThread(r.Context(), rc, req.ThreadID); err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleItemsList(w http.ResponseWriter, r *http.Request, rc store.RequestContext, req *chatkitRequest) {
	if req.ThreadID == "" {
		s.sendError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	order, ok := s.parseOrder(w, req.Order)
	if !ok {
		return
	}
	page, err := s.store.LoadThreadItems(r.Context(), rc, req.ThreadID, req.After, req.Limit, order)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, page)
}

func (s *Server) handleItemsFeedback(w http.ResponseWriter, r *http.Request, rc store.RequestContext, req *chatkitRequest) {
	if req.ThreadID == "" {
		s.sendError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	if len(req.ItemIDs) == 0 {
		s.sendError(w, http.StatusBadRequest, "item_ids is required")
		return
	}
	s.engine.AddFeedback(r.Context(), rc, req.ThreadID, req.ItemIDs, req.Kind)
	s.sendJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleAttachmentDelete(w http.ResponseWriter, r *http.Request, rc store.RequestContext, req *chatkitRequest) {
	if req.AttachmentID == "" {
		s.sendError(w, http.StatusBadRequest, "attachment_id is required")
		return
	}
	if err := s.store.DeleteAttachment(r.Context(), rc, req.AttachmentID); err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, struct{}{})
}

// ── Helpers ──

// validateInput checks a user message payload and builds the item. Returns
// ok=false after writing the error response.
func (s *Server) validateInput(w http.ResponseWriter, rc store.RequestContext, r *http.Request, input *userMessageInput, threadID string) (*chatkit.UserMessageItem, bool) {
	if input == nil || len(input.Content) == 0 {
		s.sendError(w, http.StatusBadRequest, "input.content must not be empty")
		return nil, false
	}
	for i, part := range input.Content {
		switch part.Type {
		case chatkit.UserContentText:
			if part.Text == "" {
				s.sendError(w, http.StatusBadRequest, fmt.Sprintf("input.content[%d]: text is required", i))
				return nil, false
			}
		case chatkit.UserContentAttachment:
			if part.AttachmentID == "" {
				s.sendError(w, http.StatusBadRequest, fmt.Sprintf("input.content[%d]: attachment_id is required", i))
				return nil, false
			}
			if _, err := s.store.LoadAttachment(r.Context(), rc, part.AttachmentID); err != nil {
				s.sendStoreError(w, err)
				return nil, false
			}
		default:
			s.sendError(w, http.StatusBadRequest, fmt.Sprintf("input.content[%d]: unknown type %q", i, part.Type))
			return nil, false
		}
	}
	return &chatkit.UserMessageItem{
		ItemBase: chatkit.ItemBase{
			ID:        chatkit.GenerateID("message"),
			ThreadID:  threadID,
			CreatedAt: time.Now().UTC(),
		},
		Content: input.Content,
	}, true
}

func (s *Server) parseOrder(w http.ResponseWriter, raw string) (chatkit.Order, bool) {
	switch raw {
	case "", string(chatkit.OrderAsc):
		return chatkit.OrderAsc, true
	case string(chatkit.OrderDesc):
		return chatkit.OrderDesc, true
	default:
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown order %q (want asc or desc)", raw))
		return "", false
	}
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *slog.Logger
}

// startStream switches the response to SSE. Returns ok=false if the
// connection cannot stream.
func (s *Server) startStream(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher, logger: s.logger}, true
}

func (sw *sseWriter) write(event chatkit.ThreadStreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		sw.logger.Error("marshaling stream event", "event_type", string(event.EventType()), "error", err)
		return
	}
	fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event.EventType(), data)
	sw.flusher.Flush()
}

// pump forwards engine events to the SSE stream until the turn ends or the
// client disconnects.
func (s *Server) pump(r *http.Request, sse *sseWriter, events <-chan chatkit.ThreadStreamEvent) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			sse.write(event)
		case <-r.Context().Done():
			// Drain so the producer can observe cancellation and exit.
			for range events {
			}
			return
		}
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
		},
	})
}

func (s *Server) sendStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("store operation failed", "error", err)
	s.sendError(w, http.StatusInternalServerError, "internal error")
}
