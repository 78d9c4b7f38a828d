package server

import (
	"testing"
	"time"

	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/presence"
	"github.com/npezzotti/go-teamchat/internal/scope"
	"github.com/npezzotti/go-teamchat/internal/testutil"
	"github.com/npezzotti/go-teamchat/internal/types"
	"github.com/npezzotti/go-teamchat/internal/viewstate"
	"github.com/stretchr/testify/assert"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")
		assert.Len(t, c.send, 1, "expected a message to be sent to the client")
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_leaveAllConversations(t *testing.T) {
	c := &Client{
		user:          types.User{Id: "u1"},
		conversations: make(map[string]*Conversation),
	}

	var convs []*Conversation
	for _, id := range []string{"general", "random"} {
		s, _ := scope.Channel(id)
		conv := &Conversation{scope: s, path: s.Path(), leaveChan: make(chan *ClientMessage, 1)}
		convs = append(convs, conv)
		c.addConversation(conv)
	}

	c.leaveAllConversations()

	for _, conv := range convs {
		select {
		case msg := <-conv.leaveChan:
			assert.NotNil(t, msg.Part, "expected a part message")
			assert.Equal(t, conv.scope, msg.Part.Scope)
			assert.Equal(t, "u1", msg.UserId)
			assert.Equal(t, c, msg.client, "expected leave message to include client")
		default:
			t.Errorf("expected leave message to be sent for %q", conv.path)
		}
	}
}

func TestClient_handleView(t *testing.T) {
	tcases := []struct {
		name         string
		view         viewstate.Request
		expectedCode int
	}{
		{
			name:         "empty target",
			view:         viewstate.Request{Open: viewstate.Chat},
			expectedCode: 400,
		},
		{
			name:         "thread without a channel",
			view:         viewstate.Request{Open: viewstate.Thread, Target: "0001"},
			expectedCode: 400,
		},
		{
			name:         "unknown view",
			view:         viewstate.Request{Open: "settings"},
			expectedCode: 400,
		},
		{
			name:         "direct message to an unknown user",
			view:         viewstate.Request{Open: viewstate.DirectMessage, Target: "ghost"},
			expectedCode: 404,
		},
		{
			name:         "new message composer",
			view:         viewstate.Request{Open: viewstate.NewMessage},
			expectedCode: 200,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockTeamChatRepository{}
			db.On("GetAccountById", "ghost").Return(database.User{}, assert.AnError).Maybe()

			cs := newTestChatServer(t, db, looseStats(), Options{})
			c := NewClient(types.User{Id: "u1"}, nil, cs, testutil.TestLogger(t))

			view := tc.view
			c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, View: &view})

			res := nextMessage(t, c, isResponse(1))
			assert.Equal(t, tc.expectedCode, res.Response.ResponseCode)
		})
	}
}

func TestClient_WatchPresence(t *testing.T) {
	store := presence.NewStore()
	cs := newTestChatServer(t, &database.MockTeamChatRepository{}, looseStats(), Options{Presence: store})
	c := NewClient(types.User{Id: "u1"}, nil, cs, testutil.TestLogger(t))

	c.WatchPresence([]string{"u2"})
	assert.Equal(t, 1, store.Watchers("u2"))

	now := time.Now()
	store.Set("u2", presence.Record{Online: true, LastActive: now})
	store.Set("u2", presence.Record{Online: true, LastActive: now.Add(10 * time.Second)})
	store.Set("u2", presence.Record{Online: false, LastActive: now.Add(20 * time.Second)})

	assert.Len(t, c.send, 2, "expected only online/offline transitions to be forwarded")

	first := <-c.send
	assert.Equal(t, "u2", first.Notification.Presence.UserId)
	assert.True(t, first.Notification.Presence.Online)
	second := <-c.send
	assert.False(t, second.Notification.Presence.Online)

	c.unwatchPresence()
	assert.Equal(t, 0, store.Watchers("u2"), "expected subscriptions to be cancelled")
}

func TestClient_DroppedConnectionGoesOffline(t *testing.T) {
	store := presence.NewStore()
	cs := newTestChatServer(t, &database.MockTeamChatRepository{}, looseStats(), Options{Presence: store})
	runChatServer(t, cs)

	c := NewClient(types.User{Id: "u1"}, nil, cs, testutil.TestLogger(t))
	cs.RegisterChan <- c

	assert.Eventually(t, func() bool {
		return store.Online("u1")
	}, time.Second, 5*time.Millisecond, "expected registration to start the heartbeat")

	c.cleanup()

	rec, ok := store.Get("u1")
	assert.True(t, ok)
	assert.False(t, rec.Online, "expected the disconnect action to mark the user offline")
	assert.False(t, c.heartbeat.Running())
	assert.Eventually(t, func() bool {
		return len(cs.getClients("u1")) == 0
	}, time.Second, 5*time.Millisecond, "expected the client to be deregistered")
}

func TestClient_LeaveStopsHeartbeat(t *testing.T) {
	store := presence.NewStore()
	cs := newTestChatServer(t, &database.MockTeamChatRepository{}, looseStats(), Options{Presence: store})

	c := NewClient(types.User{Id: "u1"}, nil, cs, testutil.TestLogger(t))
	c.heartbeat.Start("u1")
	assert.True(t, store.Online("u1"))

	c.heartbeat.Stop()
	assert.False(t, store.Online("u1"), "expected stop to write the offline record at once")
	assert.False(t, store.Disconnect(c.session), "expected no disconnect action left behind")
}
