package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/go-teamchat/internal/config"
	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/server"
	"github.com/npezzotti/go-teamchat/internal/stats"
	"github.com/npezzotti/go-teamchat/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewTeamChatApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	cs := &server.ChatServer{}
	db := &database.MockTeamChatRepository{}
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", stats.NumUploads).Once()
	defer su.AssertExpectations(t)

	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		DatabaseDSN:    "dsn",
		SigningKey:     []byte("secret"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	app := NewTeamChatApp(mux, logger, cs, db, nil, su, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.mux, "expected mux to be initialized")
	assert.Equal(t, logger, app.log, "expected logger to be set")
	assert.Equal(t, db, app.db, "expected db to be set")
	assert.Equal(t, cs, app.cs, "expected chat server to be set")
	assert.Equal(t, cfg.SigningKey, app.signingKey, "expected signing key to be set")
	assert.Equal(t, cfg.AllowedOrigins, app.allowedOrigins)
	assert.Equal(t, cfg.ServerAddr, app.mux.Addr, "expected server address to match config")
}

func TestNewTeamChatApp_Routes(t *testing.T) {
	db := &database.MockTeamChatRepository{}
	db.On("Ping").Return(nil).Once()
	defer db.AssertExpectations(t)

	app := NewTeamChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, db, nil, nil, &config.Config{
		SigningKey: []byte("secret"),
	})

	tcases := []struct {
		name         string
		method       string
		path         string
		expectedCode int
	}{
		{name: "health check is public", method: http.MethodGet, path: "/healthz", expectedCode: http.StatusOK},
		{name: "session requires auth", method: http.MethodGet, path: "/api/auth/session", expectedCode: http.StatusUnauthorized},
		{name: "channels require auth", method: http.MethodGet, path: "/api/channels", expectedCode: http.StatusUnauthorized},
		{name: "search requires auth", method: http.MethodGet, path: "/api/search?q=hi", expectedCode: http.StatusUnauthorized},
		{name: "websocket requires auth", method: http.MethodGet, path: "/ws", expectedCode: http.StatusUnauthorized},
		{name: "unknown route", method: http.MethodGet, path: "/api/rooms", expectedCode: http.StatusNotFound},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			app.mux.Handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}
