package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/reaction"
	"github.com/npezzotti/go-teamchat/internal/scope"
	"github.com/npezzotti/go-teamchat/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_getMessages(t *testing.T) {
	general, _ := scope.Channel("general")
	direct, _ := scope.Direct(bob.Id, alice.Id)

	stored := []database.Message{
		{
			Scope:      general.Path(),
			Seq:        "0000",
			AuthorId:   alice.Id,
			AuthorName: alice.Name,
			Content:    "hello",
			Reactions:  reaction.Set{"👍": {bob.Id, alice.Id}},
		},
		{
			Scope:      general.Path(),
			Seq:        "0001",
			AuthorId:   alice.Id,
			AuthorName: alice.Name,
			Content:    "again",
		},
	}

	tcases := []struct {
		name        string
		userId      string
		scope       string
		setup       func(m *database.MockTeamChatRepository)
		expectedErr *ApiError
		check       func(t *testing.T, messages []types.Message)
	}{
		{
			name:   "channel history",
			userId: alice.Id,
			scope:  general.Path(),
			setup: func(m *database.MockTeamChatRepository) {
				ch := generalChannel()
				ch.Members = append(ch.Members, database.Member{AccountId: bob.Id, Name: bob.Name})
				m.On("GetChannel", "general").Return(ch, nil).Once()
				m.On("GetMessages", general).Return(stored, nil).Once()
			},
			check: func(t *testing.T, messages []types.Message) {
				if assert.Len(t, messages, 2) {
					assert.Equal(t, "0000", messages[0].PadNumber)
					assert.Equal(t, "0001", messages[1].PadNumber)
					assert.Equal(t, alice.Id, messages[0].Id)
					assert.Equal(t, reaction.Reaction{Count: 2, Users: []string{"bob", "alice"}}, messages[0].Reactions["👍"])
				}
			},
		},
		{
			name:   "not a channel member",
			userId: bob.Id,
			scope:  general.Path(),
			setup: func(m *database.MockTeamChatRepository) {
				m.On("GetChannel", "general").Return(generalChannel(), nil).Once()
			},
			expectedErr: NewForbiddenError(),
		},
		{
			name:        "malformed scope",
			userId:      alice.Id,
			scope:       "rooms/general",
			expectedErr: NewBadRequestError(),
		},
		{
			name:   "unknown channel",
			userId: alice.Id,
			scope:  "channels/nope/messages",
			setup: func(m *database.MockTeamChatRepository) {
				m.On("GetChannel", "nope").Return(database.Channel{}, sql.ErrNoRows).Once()
			},
			expectedErr: NewNotFoundError(),
		},
		{
			name:   "direct messages",
			userId: alice.Id,
			scope:  direct.Path(),
			setup: func(m *database.MockTeamChatRepository) {
				m.On("GetAccountById", alice.Id).Return(alice, nil).Once()
				m.On("GetAccountById", bob.Id).Return(bob, nil).Once()
				m.On("GetMessages", direct).Return([]database.Message{{
					Scope:     direct.Path(),
					Seq:       "0000",
					AuthorId:  bob.Id,
					Content:   "hi alice",
					Reactions: reaction.Set{"🔥": {alice.Id}},
				}}, nil).Once()
			},
			check: func(t *testing.T, messages []types.Message) {
				if assert.Len(t, messages, 1) {
					assert.Equal(t, []string{"alice"}, messages[0].Reactions["🔥"].Users)
				}
			},
		},
		{
			name:        "someone else's direct messages",
			userId:      "u3",
			scope:       direct.Path(),
			expectedErr: NewForbiddenError(),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockTeamChatRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.setup != nil {
				tc.setup(mockRepo)
			}

			app := newTestApp(t, mockRepo, nil)
			req := withUser(httptest.NewRequest(http.MethodGet, "/api/messages?scope="+tc.scope, nil), tc.userId)
			rr := httptest.NewRecorder()
			app.getMessages(rr, req)

			if tc.expectedErr != nil {
				assertApiError(t, rr, tc.expectedErr)
				return
			}

			var messages []types.Message
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&messages))
			tc.check(t, messages)
		})
	}
}

func Test_getThreadInfo(t *testing.T) {
	last := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tcases := []struct {
		name         string
		query        string
		callsRepo    bool
		expectedCode int
	}{
		{name: "thread info", query: "channel=general&parent=0003", callsRepo: true, expectedCode: http.StatusOK},
		{name: "missing parent", query: "channel=general", expectedCode: http.StatusBadRequest},
		{name: "invalid parent", query: "channel=general&parent=abc", expectedCode: http.StatusBadRequest},
		{name: "missing channel", query: "parent=0003", expectedCode: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockTeamChatRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.callsRepo {
				mockRepo.On("GetChannel", "general").Return(generalChannel(), nil).Once()
				mockRepo.On("GetThreadInfo", "general", "0003").
					Return(database.ThreadInfo{Count: 4, LastMessageTime: &last}, nil).Once()
			}

			app := newTestApp(t, mockRepo, nil)
			req := withUser(httptest.NewRequest(http.MethodGet, "/api/threads/info?"+tc.query, nil), alice.Id)
			rr := httptest.NewRecorder()
			app.getThreadInfo(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode != http.StatusOK {
				return
			}

			var info types.ThreadInfo
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&info))
			assert.Equal(t, 4, info.Count)
			assert.True(t, last.Equal(*info.LastMessageTime))
		})
	}
}

func Test_search(t *testing.T) {
	hits := []database.SearchHit{
		{
			Seq:         "0002",
			AuthorId:    bob.Id,
			AuthorName:  bob.Name,
			Content:     "Hi there",
			ChannelId:   "general",
			ChannelName: "General",
		},
		{
			Seq:        "0000",
			AuthorId:   bob.Id,
			AuthorName: bob.Name,
			Content:    "hi alice",
			DirectPeer: bob.Id,
		},
	}

	tcases := []struct {
		name          string
		query         string
		expectedLimit int
		expectedCode  int
	}{
		{name: "default limit", query: "q=hi", expectedLimit: defaultSearchLimit, expectedCode: http.StatusOK},
		{name: "limit is capped", query: "q=hi&limit=1000", expectedLimit: maxSearchLimit, expectedCode: http.StatusOK},
		{name: "missing query", query: "", expectedCode: http.StatusBadRequest},
		{name: "invalid limit", query: "q=hi&limit=-1", expectedCode: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockTeamChatRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.expectedLimit > 0 {
				mockRepo.On("SearchMessages", alice.Id, "hi", tc.expectedLimit).Return(hits, nil).Once()
			}

			app := newTestApp(t, mockRepo, nil)
			req := withUser(httptest.NewRequest(http.MethodGet, "/api/search?"+tc.query, nil), alice.Id)
			rr := httptest.NewRecorder()
			app.search(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode != http.StatusOK {
				return
			}

			var results []types.SearchResult
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&results))
			if assert.Len(t, results, 2) {
				assert.Equal(t, types.SearchChannel, results[0].Type)
				assert.Equal(t, "general", results[0].Id)
				assert.Equal(t, "General", results[0].ChannelName)
				assert.Equal(t, types.SearchUser, results[1].Type)
				assert.Equal(t, bob.Id, results[1].Id)
			}
		})
	}
}
