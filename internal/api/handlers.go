// Package api provides HTTP handlers for Foreman endpoints.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"encoding/json"

	"github.com/ironpaw/foreman/internal/flow"
	"github.com/ironpaw/foreman/internal/models"
	"github.com/ironpaw/foreman/internal/session"
)

// withChatRecovery catches panics anywhere in the chat handling path and
// downgrades them to a 200 with the fallback closing sentence. The widget has
// no retry affordance, so the channel must never go silent.
func (s *Server) withChatRecovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Server.withChatRecovery: panic in chat handler, replying with fallback", "panic", rec, "path", r.URL.Path)
				setCORSHeaders(w)
				writeChatReply(w, flow.FallbackClosing)
			}
		}()
		next(w, r)
	}
}

// messageHandler handles the widget's chat messages (POST /message).
// Input errors are the only 4xx paths; store and model failures are absorbed
// by the flow engine into a 200 with fallback text.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	setCORSHeaders(w)
	slog.Debug("Server.messageHandler: processing chat message", "method", r.Method, "path", r.URL.Path)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		slog.Warn("Server.messageHandler: method not allowed", "method", r.Method)
		writeChatError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messageHandler: failed to decode JSON", "error", err)
		writeChatError(w, http.StatusBadRequest, models.ErrInvalidJSON.Error())
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.messageHandler: validation failed", "error", err)
		writeChatError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := session.Resolve(r)
	reply := s.engine.Advance(r.Context(), sessionID, strings.TrimSpace(req.Message))

	slog.Debug("Server.messageHandler: replying", "sessionID", sessionID, "replyLength", len(reply))
	writeChatReply(w, reply)
}

// leadsHandler returns all collected leads (GET /leads).
func (s *Server) leadsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.leadsHandler: processing leads request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.leadsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	leads, err := s.st.ListLeads(r.Context())
	if err != nil {
		slog.Error("Server.leadsHandler: failed to fetch leads", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch leads"))
		return
	}
	slog.Debug("Server.leadsHandler: leads fetched", "count", len(leads))
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}

// conversationsHandler returns all conversation records (GET /conversations).
func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.conversationsHandler: processing conversations request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.conversationsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	convs, err := s.st.ListConversations(r.Context())
	if err != nil {
		slog.Error("Server.conversationsHandler: failed to fetch conversations", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch conversations"))
		return
	}
	slog.Debug("Server.conversationsHandler: conversations fetched", "count", len(convs))
	writeJSONResponse(w, http.StatusOK, models.Success(convs))
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if convs, err := s.st.ListConversations(r.Context()); err != nil {
		slog.Warn("Health check: failed to reach store", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach conversation store"
	} else {
		healthData["conversations"] = len(convs)
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
