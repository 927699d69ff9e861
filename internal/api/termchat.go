package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/termchat/termchat/internal/chat"
	"github.com/termchat/termchat/internal/config"
	"github.com/termchat/termchat/internal/connectors"
	"github.com/termchat/termchat/internal/database"
	"github.com/termchat/termchat/internal/relay"
)

// TermchatApp is the REST gateway. It owns the HTTP server and routes
// requests to the chat service, the relay and the connector services.
type TermchatApp struct {
	log            *log.Logger
	db             database.Repository
	chats          *chat.Service
	relay          *relay.Relay
	srv            *http.Server
	signingKey     []byte
	tokenExpiry    time.Duration
	allowedOrigins []string
}

func NewTermchatApp(debugMux *http.ServeMux, logger *log.Logger, db database.Repository,
	chats *chat.Service, rl *relay.Relay, services []*connectors.Service, cfg *config.Config) *TermchatApp {
	s := &TermchatApp{
		log:            logger,
		db:             db,
		chats:          chats,
		relay:          rl,
		signingKey:     cfg.SigningKey,
		tokenExpiry:    cfg.TokenExpiry,
		allowedOrigins: cfg.AllowedOrigins,
	}

	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		errResp := NewMethodNotAllowedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	})

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/me", s.authMiddleware(s.me)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/auth/settings", s.authMiddleware(s.updateSettings)).Methods(http.MethodPut)

	apiRouter.HandleFunc("/chats/public", s.authMiddleware(s.listPublicChats)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/chats", s.authMiddleware(s.createChat)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/chats/{id}/join", s.authMiddleware(s.joinChat)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/chats/{id}/leave", s.authMiddleware(s.leaveChat)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/chats/{id}/messages", s.authMiddleware(s.getMessages)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/chats/{id}/messages", s.authMiddleware(s.sendMessage)).Methods(http.MethodPost)

	for _, svc := range services {
		sub := apiRouter.PathPrefix("/" + svc.Name()).Subrouter()
		sub.HandleFunc("/connect", s.authMiddleware(s.connectService(svc))).Methods(http.MethodPost)
		sub.HandleFunc("/status", s.authMiddleware(s.serviceStatus(svc))).Methods(http.MethodGet)
		sub.HandleFunc("/disconnect", s.authMiddleware(s.disconnectService(svc))).Methods(http.MethodPost)
		sub.HandleFunc("/contacts", s.authMiddleware(s.serviceContacts(svc))).Methods(http.MethodGet)
		sub.HandleFunc("/"+svc.MessagesPath(), s.authMiddleware(s.sendServiceMessage(svc))).Methods(http.MethodPost)
	}

	r.HandleFunc("/ws", s.serveWs).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if debugMux != nil {
		r.PathPrefix("/debug/").Handler(debugMux)
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(r)

	h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *TermchatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *TermchatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *TermchatApp) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
