package api

import (
	"net/http"
	"strconv"

	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/scope"
	"github.com/npezzotti/go-teamchat/internal/sequence"
	"github.com/npezzotti/go-teamchat/internal/server"
	"github.com/npezzotti/go-teamchat/internal/types"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

// scopeNames checks that userId may read s and returns a resolver for the
// display names of its participants.
func (s *TeamChatApp) scopeNames(userId string, sc scope.Scope) (func(string) (string, bool), *ApiError) {
	if sc.Kind == scope.KindDirect {
		if !sc.HasMember(userId) {
			return nil, NewForbiddenError()
		}

		names := make(map[string]string, 2)
		for _, id := range []string{sc.MemberA, sc.MemberB} {
			u, err := s.db.GetAccountById(id)
			if err != nil {
				continue
			}
			names[id] = u.Name
		}

		return func(id string) (string, bool) {
			n, ok := names[id]
			return n, ok
		}, nil
	}

	c, err := s.db.GetChannel(sc.ChannelId)
	if err != nil {
		return nil, repoError(err)
	}

	if !s.toChannel(c).HasMember(userId) {
		return nil, NewForbiddenError()
	}

	return memberNames(c.Members), nil
}

func (s *TeamChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	sc, err := scope.Parse(r.URL.Query().Get("scope"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	names, errResp := s.scopeNames(userId, sc)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	dbMessages, err := s.db.GetMessages(sc)
	if err != nil {
		s.log.Println("get messages:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, m := range dbMessages {
		messages = append(messages, server.RenderMessage(m, names))
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *TeamChatApp) getThreadInfo(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	channelId := r.URL.Query().Get("channel")
	parent := r.URL.Query().Get("parent")
	if _, err := sequence.Parse(parent); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	sc, err := scope.Thread(channelId, parent)
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if _, errResp := s.scopeNames(userId, sc); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	info, err := s.db.GetThreadInfo(channelId, parent)
	if err != nil {
		s.writeError(w, repoError(err))
		return
	}

	s.writeJson(w, http.StatusOK, types.ThreadInfo{
		Count:           info.Count,
		LastMessageTime: info.LastMessageTime,
	})
}

func (s *TeamChatApp) search(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	limit := defaultSearchLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			s.writeError(w, NewBadRequestError())
			return
		}
		limit = min(n, maxSearchLimit)
	}

	hits, err := s.db.SearchMessages(userId, q, limit)
	if err != nil {
		s.log.Println("search messages:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, searchResult(h))
	}

	s.writeJson(w, http.StatusOK, results)
}

func searchResult(h database.SearchHit) types.SearchResult {
	res := types.SearchResult{
		Name:      h.AuthorName,
		Avatar:    h.AuthorAvatar,
		Message:   h.Content,
		PadNumber: h.Seq,
		UserId:    h.AuthorId,
	}

	if h.DirectPeer != "" {
		res.Type = types.SearchUser
		res.Id = h.DirectPeer
		return res
	}

	res.Type = types.SearchChannel
	res.Id = h.ChannelId
	res.ChannelId = h.ChannelId
	res.ChannelName = h.ChannelName
	return res
}
