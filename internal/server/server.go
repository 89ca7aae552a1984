// Package server exposes conversation turns and history over HTTP and
// websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/comigor/toolhop/internal/agent"
	"github.com/comigor/toolhop/internal/config"
	"github.com/comigor/toolhop/internal/history"
	"github.com/comigor/toolhop/internal/logger"
)

// DefaultConversation is used by the bare POST / endpoint.
const DefaultConversation = "default"

// Agent is what the server needs from the hop orchestrator.
type Agent interface {
	Process(ctx context.Context, conversationID, input string) (string, error)
	History(ctx context.Context, conversationID string, limit int) ([]history.Entry, error)
	Count(ctx context.Context, conversationID string) (int, error)
	Reset(ctx context.Context, conversationID string) (int, error)
}

// Server is the HTTP API server.
type Server struct {
	agent    Agent
	addr     string
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// MessageRequest is the body of POST /conversations/{id}/messages.
type MessageRequest struct {
	Message string `json:"message"`
}

// MessageResponse carries the final reply of a turn.
type MessageResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
}

// HistoryResponse lists stored entries of a conversation.
type HistoryResponse struct {
	ConversationID string          `json:"conversation_id"`
	Entries        []history.Entry `json:"entries"`
}

type errorBody struct {
	Error string `json:"error"`
}

func New(a Agent, cfg config.ServerConfig) *Server {
	return &Server{
		agent: a,
		addr:  net.JoinHostPort(cfg.Host, cfg.Port),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.For("server"),
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// main inference endpoint, plain text in and out
	mux.HandleFunc("POST /{$}", s.handleRoot)

	mux.HandleFunc("POST /conversations", s.handleCreateConversation)
	mux.HandleFunc("POST /conversations/{id}/messages", s.handleMessage)
	mux.HandleFunc("GET /conversations/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /conversations/{id}/count", s.handleCount)
	mux.HandleFunc("DELETE /conversations/{id}", s.handleReset)
	mux.HandleFunc("GET /conversations/{id}/ws", s.handleWebsocket)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"}, s.logger)
	})

	return s.withLogging(mux)
}

// Start serves until the server is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", "address", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("read body error", "err", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	input := strings.TrimSpace(string(body))
	if input == "" {
		http.Error(w, "empty input", http.StatusBadRequest)
		return
	}
	s.logger.Info("inference request", "body", input)

	reply, err := s.agent.Process(r.Context(), DefaultConversation, input)
	if err != nil {
		s.logger.Error("process error", "err", err, "body", input)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(reply))
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"conversation_id": uuid.NewString()}, s.logger)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.agent.Process(r.Context(), id, req.Message)
	if err != nil {
		s.logger.Error("process error", "conversation", id, "err", err)
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{ConversationID: id, Reply: reply}, s.logger)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.agent.History(r.Context(), id, limit)
	if err != nil {
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{ConversationID: id, Entries: entries}, s.logger)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.agent.Count(r.Context(), id)
	if err != nil {
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "count": n}, s.logger)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.agent.Reset(r.Context(), id)
	if err != nil {
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "deleted": n}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg}, s.logger)
}

// statusFor maps turn-fatal errors to HTTP status codes.
func statusFor(err error) int {
	var endpointErr *agent.EndpointError
	var persistErr *agent.PersistenceError
	switch {
	case errors.As(err, &endpointErr):
		return http.StatusBadGateway
	case errors.As(err, &persistErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}
