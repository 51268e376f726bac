package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/presence"
	"chat-relay/search"
	"chat-relay/services"
)

const defaultSearchLimit = 20

type Server struct {
	log         *slog.Logger
	addr        string
	bufferSize  int
	broadcaster contract.IBroadcaster
	gateway     services.IStoreGateway
	coordinator presence.ICoordinator
	history     *HistoryBootstrapper
	moderator   *moderation.Moderator
	monitor     *observability.Monitor
	index       search.ISearchIndex
	tokens      auth.TokenService

	// tokenDuration bounds the validity of tokens issued by /api/token.
	tokenDuration time.Duration

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(log *slog.Logger, addr string, bufferSize int,
	broadcaster contract.IBroadcaster, gateway services.IStoreGateway,
	coordinator presence.ICoordinator, history *HistoryBootstrapper,
	moderator *moderation.Moderator, monitor *observability.Monitor,
	index search.ISearchIndex, tokens auth.TokenService,
	tokenDuration time.Duration) *Server {
	s := &Server{
		log:           log,
		addr:          addr,
		bufferSize:    bufferSize,
		broadcaster:   broadcaster,
		gateway:       gateway,
		coordinator:   coordinator,
		history:       history,
		moderator:     moderator,
		monitor:       monitor,
		index:         index,
		tokens:        tokens,
		tokenDuration: tokenDuration,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers on other origins are allowed; the relay has no
			// cookie-based auth to protect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat/", s.handleChatSocket)
	mux.HandleFunc("/ws/status/", s.handleStatusSocket)
	mux.HandleFunc("/api/token", s.handleToken)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Run serves until ctx is cancelled, then drains with a bounded shutdown.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Relay listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Error while upgrading chat socket", "err", err)
		return
	}

	conn := NewConn(ws, s.log, s.monitor, s.bufferSize)
	session := NewChatSession(conn, s.log, s.gateway, s.broadcaster, s.history, s.moderator, s.monitor)
	session.Run(r.Context())
}

// handleStatusSocket resolves the optional principal from a ?token= query
// parameter. A missing or invalid token still gets a connection; it just
// observes without ever writing presence.
func (s *Server) handleStatusSocket(w http.ResponseWriter, r *http.Request) {
	var userID string
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := s.tokens.Validate(token)
		if err != nil {
			s.log.Debug("Rejecting status token", "err", err)
		} else {
			userID = claims.UserID
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Error while upgrading status socket", "err", err)
		return
	}

	conn := NewConn(ws, s.log, s.monitor, s.bufferSize)
	session := NewStatusSession(conn, s.log, s.coordinator, s.broadcaster, s.monitor, userID)
	session.Run(r.Context())
}

type tokenRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

// handleToken issues a signed token binding the status socket to a principal.
// Issuance also records the identity, so presence writes resolve the user
// even before any chat handshake ran.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&body); err != nil {
		http.Error(w, "userId and username are required", http.StatusBadRequest)
		return
	}

	record, err := s.gateway.RecordIdentity(r.Context(), body.UserID, body.Username)
	if err != nil {
		s.log.Error("Error while recording identity for token", "user_id", body.UserID, "err", err)
		http.Error(w, "token issuance failed", http.StatusInternalServerError)
		return
	}

	token, err := s.tokens.Generate(record.UserID, record.Username, s.tokenDuration)
	if err != nil {
		s.log.Error("Error while signing token", "user_id", record.UserID, "err", err)
		http.Error(w, "token issuance failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}

	limit := defaultSearchLimit
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	hits, err := s.index.Search(r.Context(), query, limit)
	if err != nil {
		s.log.Error("Error while searching messages", "query", query, "err", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	s.monitor.IncrSearchQueries()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"query": query, "hits": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"stats":  s.monitor.Snapshot(),
	})
}
