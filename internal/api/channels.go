package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/profile"
	"github.com/npezzotti/go-teamchat/internal/types"
)

type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *TeamChatApp) toChannel(c database.Channel) types.Channel {
	ch := types.Channel{
		Id:          c.Id,
		Name:        c.Name,
		Description: c.Description,
		CreatorId:   c.CreatorId,
		Creator:     c.CreatorName,
		Members:     make([]types.Member, 0, len(c.Members)),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}

	for _, m := range c.Members {
		ch.Members = append(ch.Members, types.Member{
			Id:           m.AccountId,
			Name:         m.Name,
			EmailAddress: m.EmailAddress,
			Avatar:       m.Avatar,
			Online:       s.online(m.AccountId),
		})
	}

	ch.Creator = profile.CreatorName(ch, memberNames(c.Members))
	return ch
}

func memberNames(members []database.Member) func(string) (string, bool) {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.AccountId] = m.Name
	}

	return func(userId string) (string, bool) {
		n, ok := names[userId]
		return n, ok
	}
}

func (s *TeamChatApp) createChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	creator, err := s.db.GetAccountById(userId)
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newChannel, err := s.db.CreateChannel(database.CreateChannelParams{
		Id:          sid,
		Name:        req.Name,
		Description: req.Description,
		Creator:     creator,
	})
	if err != nil {
		s.log.Println("create channel:", err)
		s.writeError(w, repoError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, s.toChannel(newChannel))
}

func (s *TeamChatApp) listChannels(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	dbChannels, err := s.db.ListChannels(userId)
	if err != nil {
		s.log.Println("list channels:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	channels := make([]types.Channel, 0, len(dbChannels))
	for _, c := range dbChannels {
		channels = append(channels, s.toChannel(c))
	}

	s.writeJson(w, http.StatusOK, channels)
}

func (s *TeamChatApp) getChannel(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserId(r.Context()); !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	c, err := s.db.GetChannel(r.PathValue("id"))
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	s.writeJson(w, http.StatusOK, s.toChannel(c))
}

// joinChannel adds the caller to a channel's member list.
func (s *TeamChatApp) joinChannel(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	c, err := s.db.GetChannel(r.PathValue("id"))
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	ch := s.toChannel(c)
	if ch.HasMember(userId) {
		s.writeJson(w, http.StatusOK, ch)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	if err := s.db.AddChannelMember(c.Id, user); err != nil {
		s.log.Println("add channel member:", err)
		s.writeError(w, repoError(err))
		return
	}

	ch.Members = append(ch.Members, types.MemberOf(s.toUser(user)))
	s.writeJson(w, http.StatusOK, ch)
}

func (s *TeamChatApp) deleteChannel(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	c, err := s.db.GetChannel(r.PathValue("id"))
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	if c.CreatorId != userId {
		s.writeError(w, NewForbiddenError())
		return
	}

	if err := s.db.DeleteChannel(c.Id); err != nil {
		s.log.Println("delete channel:", err)
		s.writeError(w, repoError(err))
		return
	}

	if s.cs != nil {
		members := make([]string, 0, len(c.Members))
		for _, m := range c.Members {
			members = append(members, m.AccountId)
		}
		s.cs.ChannelDeleted(c.Id, members)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}
