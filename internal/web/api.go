package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"boardroom/internal/responder"
	"boardroom/internal/store"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Chat
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)

	// Conversations
	mux.HandleFunc("GET /api/conversations", s.listConversations)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.getConversationMessages)
	mux.HandleFunc("GET /api/conversations/{id}/runs", s.getConversationRuns)

	// Delegation runs
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)

	// Responders
	mux.HandleFunc("GET /api/responders", s.listResponders)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

type chatRequest struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// lastUserMessage extracts the message to handle. The transcript is
// server-side state; only the trailing user turn matters here.
func (r chatRequest) lastUserMessage() (string, error) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" && r.Messages[i].Content != "" {
			return r.Messages[i].Content, nil
		}
	}
	return "", errors.New("no user message in request")
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	text, err := req.lastUserMessage()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	reply, err := s.engine.Ask(r.Context(), conversationID, "web", text)
	if err != nil {
		slog.Error("chat handling failed", "conversation", conversationID, "error", err)
		jsonError(w, "chat handling failed", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]string{
		"conversation_id": conversationID,
		"text":            reply,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	text, err := req.lastUserMessage()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	type askResult struct {
		reply string
		err   error
	}
	done := make(chan askResult, 1)
	go func() {
		reply, err := s.engine.Ask(r.Context(), conversationID, "web", text)
		done <- askResult{reply, err}
	}()

	// Keep the connection warm while delegation runs.
	keepalive := time.NewTicker(10 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case res := <-done:
			if res.err != nil {
				slog.Error("chat handling failed", "conversation", conversationID, "error", res.err)
				payload, _ := json.Marshal(map[string]string{"error": "chat handling failed"})
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
				flusher.Flush()
				return
			}
			payload, _ := json.Marshal(map[string]string{
				"conversation_id": conversationID,
				"text":            res.reply,
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			fmt.Fprint(w, "data: [DONE]\n\n")
			flusher.Flush()
			return
		}
	}
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.store.ListConversations()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	jsonResponse(w, conversations)
}

func (s *Server) getConversationMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := s.store.GetConversation(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conv == nil {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}

	messages, err := s.store.GetMessages(id, 100)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, map[string]string{
			"id":   fmt.Sprintf("%d", m.ID),
			"role": m.Role,
			"text": m.Content,
			"time": m.CreatedAt.Format(time.RFC3339),
		})
	}
	jsonResponse(w, out)
}

func (s *Server) getConversationRuns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	runs, err := s.store.ListDelegationRuns(id, 50)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.DelegationRun{}
	}
	jsonResponse(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetDelegationRun(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) listResponders(w http.ResponseWriter, r *http.Request) {
	descriptions := s.registry.Descriptions()

	out := make([]map[string]any, 0, len(responder.All()))
	for _, id := range responder.All() {
		out = append(out, map[string]any{
			"id":          string(id),
			"description": descriptions[id],
			"enabled":     s.registry.Enabled(id),
		})
	}
	jsonResponse(w, out)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	conversations, _ := s.store.ListConversations()
	usage, _ := s.store.ListResponderUsage()

	var tokensIn, tokensOut, calls int64
	for _, u := range usage {
		tokensIn += u.TokensIn
		tokensOut += u.TokensOut
		calls += u.Calls
	}

	jsonResponse(w, map[string]any{
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"conversations":  len(conversations),
		"backend_calls":  calls,
		"tokens_in":      tokensIn,
		"tokens_out":     tokensOut,
		"usage":          usage,
	})
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
