package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-teamchat/internal/config"
	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/server"
	"github.com/npezzotti/go-teamchat/internal/stats"
	"github.com/npezzotti/go-teamchat/internal/storage"
	"github.com/teris-io/shortid"
)

type TeamChatApp struct {
	log             *log.Logger
	db              database.TeamChatRepository
	mux             *http.Server
	cs              *server.ChatServer
	blobs           *storage.BlobStore
	stats           stats.StatsProvider
	signingKey      []byte
	allowedOrigins  []string
	generateShortId func() (string, error)
}

func NewTeamChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.TeamChatRepository,
	blobs *storage.BlobStore, su stats.StatsProvider, cfg *config.Config) *TeamChatApp {
	s := &TeamChatApp{
		log:             logger,
		db:              db,
		cs:              cs,
		blobs:           blobs,
		stats:           su,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	if su != nil {
		su.RegisterMetric(stats.NumUploads)
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/guest", s.guestLogin)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("GET /api/users", s.authMiddleware(s.listUsers))
	mux.Handle("POST /api/channels", s.authMiddleware(s.createChannel))
	mux.Handle("GET /api/channels", s.authMiddleware(s.listChannels))
	mux.Handle("GET /api/channels/{id}", s.authMiddleware(s.getChannel))
	mux.Handle("POST /api/channels/{id}/members", s.authMiddleware(s.joinChannel))
	mux.Handle("DELETE /api/channels/{id}", s.authMiddleware(s.deleteChannel))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/threads/info", s.authMiddleware(s.getThreadInfo))
	mux.Handle("GET /api/search", s.authMiddleware(s.search))
	mux.Handle("POST /api/uploads", s.authMiddleware(s.upload))
	mux.Handle("GET /api/files/{name}", s.authMiddleware(s.serveFile))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *TeamChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *TeamChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
