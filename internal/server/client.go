package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teamchat/internal/presence"
	"github.com/npezzotti/go-teamchat/internal/reaction"
	"github.com/npezzotti/go-teamchat/internal/scope"
	"github.com/npezzotti/go-teamchat/internal/stats"
	"github.com/npezzotti/go-teamchat/internal/types"
	"github.com/npezzotti/go-teamchat/internal/viewstate"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type Client struct {
	conn          *websocket.Conn
	chatServer    *ChatServer
	log           *log.Logger
	user          types.User
	userLock      sync.RWMutex
	session       string
	send          chan *ServerMessage
	router        *viewstate.Router
	heartbeat     *presence.Heartbeat
	limiter       *rate.Limiter
	conversations map[string]*Conversation
	convLock      sync.RWMutex
	// online is the last presence state forwarded per watched user.
	online        map[string]bool
	unwatch       []func()
	presenceLock  sync.Mutex
	stop          chan struct{}
	stopOnce      sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	session := uuid.NewString()
	roster := viewstate.RosterFunc(func(userId string) bool {
		_, err := cs.db.GetAccountById(userId)
		return err == nil
	})

	return &Client{
		conn:          conn,
		chatServer:    cs,
		log:           l,
		user:          user,
		session:       session,
		send:          make(chan *ServerMessage, 256),
		router:        viewstate.NewRouter(user.Id, roster, viewstate.Desktop),
		heartbeat:     presence.NewHeartbeat(cs.presence, session, cs.opts.HeartbeatInterval, l),
		limiter:       rate.NewLimiter(rate.Limit(cs.opts.PublishRate), cs.opts.PublishBurst),
		conversations: make(map[string]*Conversation),
		online:        make(map[string]bool),
		stop:          make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		if msg.Leave != nil {
			c.heartbeat.Stop()
			c.queueMessage(NoErrOK(msg.Id, nil))
			break
		}

		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	msg.client = c
	msg.UserId = c.user.Id
	msg.Timestamp = Now()

	switch {
	case msg.View != nil:
		c.handleView(msg)
	case msg.Publish != nil:
		if msg.Publish.Content == "" && msg.Publish.ImageUrl == "" {
			c.queueMessage(ErrBadRequest(msg.Id, "empty message"))
			return
		}
		c.forward(msg, msg.Publish.Scope, true)
	case msg.React != nil:
		if err := reaction.Validate(msg.React.Emoji); err != nil {
			c.queueMessage(ErrBadRequest(msg.Id, err.Error()))
			return
		}
		c.forward(msg, msg.React.Scope, true)
	case msg.Edit != nil:
		c.forward(msg, msg.Edit.Scope, true)
	case msg.Read != nil:
		c.forward(msg, msg.Read.Scope, false)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

// forward hands msg to the conversation for path. limited messages draw
// from the client's rate limit.
func (c *Client) forward(msg *ClientMessage, path string, limited bool) {
	if limited && !c.limiter.Allow() {
		c.chatServer.stats.Incr(stats.NumRateLimited)
		c.queueMessage(ErrTooManyRequests(msg.Id))
		return
	}

	s, err := scope.Parse(path)
	if err != nil {
		c.queueMessage(ErrBadRequest(msg.Id, err.Error()))
		return
	}

	conv := c.getConversation(s.Path())
	if conv == nil {
		c.queueMessage(ErrConversationNotFound(msg.Id))
		return
	}

	select {
	case conv.clientMsgChan <- msg:
	default:
		c.log.Printf("clientMsgChan full for conversation %q", conv.path)
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) handleView(msg *ClientMessage) {
	if err := c.router.Apply(*msg.View); err != nil {
		if errors.Is(err, viewstate.ErrUnknownUser) {
			c.queueMessage(ErrNotFound(msg.Id))
		} else {
			c.queueMessage(ErrBadRequest(msg.Id, err.Error()))
		}
		return
	}

	c.syncConversations(msg.Id)
	c.queueMessage(NoErrOK(msg.Id, c.router.State()))
}

// syncConversations joins the scopes now on screen and leaves the rest.
func (c *Client) syncConversations(id int) {
	want := make(map[string]scope.Scope)
	for _, s := range c.router.ActiveScopes() {
		want[s.Path()] = s
	}

	c.convLock.RLock()
	joined := make(map[string]*Conversation, len(c.conversations))
	for path, conv := range c.conversations {
		joined[path] = conv
	}
	c.convLock.RUnlock()

	for path, conv := range joined {
		if _, ok := want[path]; ok {
			continue
		}

		select {
		case conv.leaveChan <- &ClientMessage{Part: &Part{Scope: conv.scope}, UserId: c.user.Id, client: c}:
		default:
			c.log.Printf("leaveChan full for conversation %q", path)
		}
	}

	for path, s := range want {
		if _, ok := joined[path]; ok {
			continue
		}

		c.joinConversation(&ClientMessage{
			BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
			Join:        &Join{Scope: s},
			UserId:      c.user.Id,
			client:      c,
		})
	}
}

func (c *Client) joinConversation(msg *ClientMessage) {
	select {
	case c.chatServer.joinChan <- msg:
	default:
		c.log.Printf("joinChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

// WatchPresence forwards online/offline changes of userIds to the client.
func (c *Client) WatchPresence(userIds []string) {
	store := c.chatServer.presence

	c.presenceLock.Lock()
	defer c.presenceLock.Unlock()

	for _, id := range userIds {
		c.online[id] = store.Online(id)
		c.unwatch = append(c.unwatch, store.Subscribe(id, c.presenceChanged))
	}
}

func (c *Client) presenceChanged(userId string, rec presence.Record) {
	c.presenceLock.Lock()
	prev, seen := c.online[userId]
	c.online[userId] = rec.Online
	c.presenceLock.Unlock()

	// beats re-write the same state every interval
	if seen && prev == rec.Online {
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Presence: &Presence{
				UserId:     userId,
				Online:     rec.Online,
				LastActive: rec.LastActive,
			},
		},
	})
}

func (c *Client) unwatchPresence() {
	c.presenceLock.Lock()
	defer c.presenceLock.Unlock()

	for _, cancel := range c.unwatch {
		cancel()
	}
	c.unwatch = nil
}

// User returns the user's display details as of their last profile edit.
// The id never changes and may be read without the lock.
func (c *Client) User() types.User {
	c.userLock.RLock()
	defer c.userLock.RUnlock()

	return c.user
}

func (c *Client) setUser(u types.User) {
	c.userLock.Lock()
	defer c.userLock.Unlock()

	c.user.Name = u.Name
	c.user.EmailAddress = u.EmailAddress
	c.user.Avatar = u.Avatar
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	// a read loop that ends without a leave is a dropped connection; the
	// store runs the offline write registered by the heartbeat
	if c.heartbeat.Running() {
		c.heartbeat.Abandon()
		c.chatServer.presence.Disconnect(c.session)
	}

	c.unwatchPresence()
	select {
	case c.chatServer.deRegisterChan <- c:
	case <-c.chatServer.done:
	}
	c.leaveAllConversations()
	c.stopClient()
}

func (c *Client) leaveAllConversations() {
	c.convLock.RLock()
	convs := make([]*Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		convs = append(convs, conv)
	}
	c.convLock.RUnlock()

	for _, conv := range convs {
		conv.leaveChan <- &ClientMessage{
			Part:   &Part{Scope: conv.scope},
			UserId: c.user.Id,
			client: c,
		}
	}
}

func (c *Client) addConversation(conv *Conversation) {
	c.convLock.Lock()
	defer c.convLock.Unlock()

	c.conversations[conv.path] = conv
}

func (c *Client) delConversation(path string) {
	c.convLock.Lock()
	defer c.convLock.Unlock()

	delete(c.conversations, path)
}

func (c *Client) getConversation(path string) *Conversation {
	c.convLock.RLock()
	defer c.convLock.RUnlock()

	return c.conversations[path]
}
