package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/profile"
	"github.com/npezzotti/go-teamchat/internal/retry"
	"github.com/npezzotti/go-teamchat/internal/server"
	"github.com/npezzotti/go-teamchat/internal/types"
)

var accountWritePolicy = retry.DefaultPolicy.WithPermanent(sql.ErrNoRows, database.ErrConflict)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
}

type GuestRequest struct {
	Name string `json:"name"`
}

type UpdateAccountRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
	Password string `json:"password"`
}

func (s *TeamChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *TeamChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *TeamChatApp) online(userId string) bool {
	if s.cs == nil {
		return false
	}

	return s.cs.Presence().Online(userId)
}

func (s *TeamChatApp) toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Name:         u.Name,
		EmailAddress: u.EmailAddress,
		Avatar:       u.Avatar,
		Online:       s.online(u.Id),
		Guest:        u.Guest,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s *TeamChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *TeamChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := validateEmail(req.Email); err != nil {
		s.log.Printf("register: %v", err)
		s.writeError(w, NewBadRequestError())
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newUser, err := s.db.CreateAccount(database.CreateAccountParams{
		Name:         req.Name,
		EmailAddress: req.Email,
		Avatar:       req.Avatar,
		PasswordHash: pwdHash,
	})
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	u := s.toUser(newUser)
	if err := s.setSessionCookie(w, u); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, u)
}

func (s *TeamChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if lr.Email == "" || lr.Password == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		errResp := repoError(err)
		if errResp.StatusCode == http.StatusNotFound {
			errResp = NewUnauthorizedError()
		}
		s.writeError(w, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	u := s.toUser(dbUser)
	if err := s.setSessionCookie(w, u); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, u)
}

// guestLogin creates a passwordless account and signs it in.
func (s *TeamChatApp) guestLogin(w http.ResponseWriter, r *http.Request) {
	var req GuestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, NewBadRequestError())
			return
		}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "guest-" + uuid.NewString()[:8]
	}

	newUser, err := s.db.CreateAccount(database.CreateAccountParams{
		Name:  name,
		Guest: true,
	})
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	u := s.toUser(newUser)
	if err := s.setSessionCookie(w, u); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, u)
}

func (s *TeamChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	s.writeJson(w, http.StatusOK, s.toUser(user))
}

func (s *TeamChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// overwrite the cookie with an expired one
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *TeamChatApp) account(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.session(w, r)
	case http.MethodPut:
		s.updateAccount(w, r)
	default:
		s.writeError(w, NewMethodNotAllowedError())
	}
}

func (s *TeamChatApp) updateAccount(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	curUser, err := s.db.GetAccountById(userId)
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	params := database.UpdateAccountParams{
		UserId:       curUser.Id,
		Name:         curUser.Name,
		EmailAddress: curUser.EmailAddress,
		Avatar:       curUser.Avatar,
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		params.Name = name
	}

	if req.Avatar != "" {
		params.Avatar = req.Avatar
	}

	if req.Email != "" && req.Email != curUser.EmailAddress {
		if err := validateEmail(req.Email); err != nil {
			s.log.Printf("update account: %v", err)
			s.writeError(w, NewBadRequestError())
			return
		}

		if requiresRecentLogin(r.Context()) {
			s.writeError(w, NewRecentLoginRequiredError())
			return
		}

		params.EmailAddress = req.Email
	}

	if req.Password != "" {
		params.PasswordHash, err = hashPassword(req.Password)
		if err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}
	}

	var (
		dbUser database.User
		res    database.PropagateResult
	)
	err = accountWritePolicy.Do(r.Context(), s.log, "update account", func() error {
		var err error
		dbUser, res, err = s.db.UpdateAccount(params)
		return err
	})
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	u := s.toUser(dbUser)
	if profileEdited(curUser, dbUser) {
		s.log.Printf("profile %s: updated %d memberships, %d creators by id, %d creators by name",
			u.Id, len(res.Members), len(res.CreatorsById), len(res.CreatorsByName))

		if s.cs != nil {
			s.cs.ProfileChanged(profile.Change{UserId: u.Id, OldName: curUser.Name, User: u})
		}
	}

	s.writeJson(w, http.StatusOK, u)
}

// profileEdited reports whether any detail copied onto channel members
// changed between before and after.
func profileEdited(before, after database.User) bool {
	return before.Name != after.Name ||
		before.EmailAddress != after.EmailAddress ||
		before.Avatar != after.Avatar
}

func (s *TeamChatApp) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserId(r.Context()); !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	dbUsers, err := s.db.ListAccounts()
	if err != nil {
		s.log.Println("list accounts:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	users := make([]types.User, 0, len(dbUsers))
	for _, u := range dbUsers {
		user := s.toUser(u)
		user.EmailAddress = ""
		users = append(users, user)
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *TeamChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(id)
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	roster, err := s.db.ListAccounts()
	if err != nil {
		s.log.Println("list accounts:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(s.toUser(user), conn, s.cs, s.log)

	watch := make([]string, 0, len(roster))
	for _, u := range roster {
		if u.Id != user.Id {
			watch = append(watch, u.Id)
		}
	}
	client.WatchPresence(watch)

	s.cs.RegisterChan <- client
	go client.Write()
	go client.Read()
}
