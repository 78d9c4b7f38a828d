package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/presence"
	"github.com/npezzotti/go-teamchat/internal/profile"
	"github.com/npezzotti/go-teamchat/internal/scope"
	"github.com/npezzotti/go-teamchat/internal/sequence"
	"github.com/npezzotti/go-teamchat/internal/stats"
	"github.com/npezzotti/go-teamchat/internal/types"
)

type Options struct {
	// Allocator hands out message ids. Defaults to the repository.
	Allocator         sequence.Allocator
	Presence          *presence.Store
	HeartbeatInterval time.Duration
	PublishRate       float64
	PublishBurst      int
}

type stopReq struct {
	done chan struct{}
}

type channelDeletedReq struct {
	channelId string
	members   []string
}

type ChatServer struct {
	log                    *log.Logger
	db                     database.TeamChatRepository
	seq                    sequence.Allocator
	presence               *presence.Store
	stats                  stats.StatsProvider
	opts                   Options
	clients                map[*Client]struct{}
	userMap                map[string]map[*Client]struct{}
	clientsLock            sync.RWMutex
	joinChan               chan *ClientMessage
	RegisterChan           chan *Client
	deRegisterChan         chan *Client
	broadcastChan          chan *ServerMessage
	unloadConversationChan chan *Conversation
	channelDeletedChan     chan channelDeletedReq
	profileChan            chan profile.Change
	conversations          map[string]*Conversation
	stop                   chan stopReq
	// done is closed when Run returns.
	done                   chan struct{}
}

// repoAllocator hands out ids from the repository's per-scope counters.
type repoAllocator struct {
	db database.TeamChatRepository
}

func (a repoAllocator) Next(ctx context.Context, s scope.Scope) (string, error) {
	return a.db.NextSeq(ctx, s)
}

func NewChatServer(logger *log.Logger, db database.TeamChatRepository, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if opts.Allocator == nil && db != nil {
		opts.Allocator = repoAllocator{db}
	}
	if opts.Allocator == nil {
		return nil, fmt.Errorf("no sequence allocator")
	}
	if opts.Presence == nil {
		opts.Presence = presence.NewStore()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = presence.DefaultInterval
	}
	if opts.PublishRate <= 0 {
		opts.PublishRate = 5
	}
	if opts.PublishBurst <= 0 {
		opts.PublishBurst = 10
	}

	for _, m := range []string{
		stats.NumActiveClients,
		stats.NumActiveConversations,
		stats.NumMessagesPublished,
		stats.NumReactionsApplied,
		stats.NumRateLimited,
	} {
		su.RegisterMetric(m)
	}

	return &ChatServer{
		log:                    logger,
		db:                     db,
		seq:                    opts.Allocator,
		presence:               opts.Presence,
		stats:                  su,
		opts:                   opts,
		clients:                make(map[*Client]struct{}),
		userMap:                make(map[string]map[*Client]struct{}),
		joinChan:               make(chan *ClientMessage, 256),
		RegisterChan:           make(chan *Client),
		deRegisterChan:         make(chan *Client),
		broadcastChan:          make(chan *ServerMessage, 256),
		unloadConversationChan: make(chan *Conversation, 64),
		channelDeletedChan:     make(chan channelDeletedReq),
		profileChan:            make(chan profile.Change, 64),
		conversations:          make(map[string]*Conversation),
		stop:                   make(chan stopReq),
		done:                   make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Presence() *presence.Store {
	return cs.presence
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection from %q", client.user.Id)
			cs.addClient(client)
			client.heartbeat.Start(client.user.Id)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.user.Id)
			cs.removeClient(client)
		case msg := <-cs.broadcastChan:
			cs.deliver(msg)
		case conv := <-cs.unloadConversationChan:
			if cur, ok := cs.getConversation(conv.path); ok && cur == conv && conv.idle() {
				cs.unloadConversation(conv.path)
			}
		case req := <-cs.channelDeletedChan:
			cs.handleChannelDeleted(req)
		case change := <-cs.profileChan:
			cs.handleProfileChanged(change)
		case req := <-cs.stop:
			cs.log.Println("shutting down conversations")
			for path := range cs.conversations {
				cs.unloadConversation(path)
			}

			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoin(msg *ClientMessage) {
	path := msg.Join.Scope.Path()
	if conv, ok := cs.getConversation(path); ok {
		select {
		case conv.joinChan <- msg:
		default:
			cs.log.Printf("join channel full on conversation %q", path)
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		}
		return
	}

	conv := newConversation(cs, msg.Join.Scope)
	if err := conv.loadMembers(); err != nil {
		cs.log.Printf("load conversation %q: %v", path, err)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			msg.client.queueMessage(ErrConversationNotFound(msg.Id))
		default:
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	cs.addConversation(path, conv)
	conv.joinChan <- msg

	go conv.start()
}

// requeueJoin hands a join back to the hub without blocking.
func (cs *ChatServer) requeueJoin(msg *ClientMessage) bool {
	select {
	case cs.joinChan <- msg:
		return true
	default:
		return false
	}
}

func (cs *ChatServer) addConversation(path string, conv *Conversation) {
	cs.conversations[path] = conv
	cs.stats.Incr(stats.NumActiveConversations)
}

func (cs *ChatServer) getConversation(path string) (*Conversation, bool) {
	conv, ok := cs.conversations[path]
	return conv, ok
}

// unloadConversation stops the conversation and waits for it to exit.
func (cs *ChatServer) unloadConversation(path string) {
	cs.exitConversation(path, false)
}

func (cs *ChatServer) exitConversation(path string, deleted bool) {
	conv, ok := cs.conversations[path]
	if !ok {
		return
	}

	cs.log.Printf("unloading conversation %q", path)
	delete(cs.conversations, path)
	cs.stats.Decr(stats.NumActiveConversations)

	done := make(chan bool, 1)
	conv.exit <- exitReq{deleted: deleted, done: done}
	<-done
}

func (cs *ChatServer) handleChannelDeleted(req channelDeletedReq) {
	for path, conv := range cs.conversations {
		if conv.scope.Kind != scope.KindDirect && conv.scope.ChannelId == req.channelId {
			cs.exitConversation(path, true)
		}
	}

	for _, userId := range req.members {
		cs.deliver(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				ChannelDeleted: &ChannelDeleted{ChannelId: req.channelId},
			},
			UserId: userId,
		})
	}
}

// ChannelDeleted unloads every conversation of a deleted channel and tells
// its former members.
func (cs *ChatServer) ChannelDeleted(channelId string, members []string) {
	select {
	case cs.channelDeletedChan <- channelDeletedReq{channelId: channelId, members: members}:
	case <-cs.done:
	}
}

// Notify queues msg for every client of msg.UserId.
// ProfileChanged refreshes the display details that connected sessions and
// loaded conversations hold for the user.
func (cs *ChatServer) ProfileChanged(change profile.Change) {
	select {
	case cs.profileChan <- change:
	case <-cs.done:
	}
}

func (cs *ChatServer) handleProfileChanged(change profile.Change) {
	for _, c := range cs.getClients(change.UserId) {
		c.setUser(change.User)
	}

	for path, conv := range cs.conversations {
		select {
		case conv.profileChan <- change:
		default:
			cs.log.Printf("dropping profile change for %q in %q", change.UserId, path)
		}
	}
}

func (cs *ChatServer) Notify(msg *ServerMessage) bool {
	select {
	case cs.broadcastChan <- msg:
		return true
	default:
		cs.log.Printf("broadcast channel full, dropping message for %q", msg.UserId)
		return false
	}
}

func (cs *ChatServer) deliver(msg *ServerMessage) {
	for _, c := range cs.getClients(msg.UserId) {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}
	cs.stats.Incr(stats.NumActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	if userClients, ok := cs.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userMap, c.user.Id)
		}
	}
	cs.stats.Decr(stats.NumActiveClients)
}

func (cs *ChatServer) getClients(userId string) []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.userMap[userId]))
	for c := range cs.userMap[userId] {
		clients = append(clients, c)
	}

	return clients
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.RLock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.RUnlock()

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RenderMessage converts a stored message to its wire form. name resolves
// the user ids in its reactions.
func RenderMessage(m database.Message, name func(userId string) (string, bool)) types.Message {
	msg := types.Message{
		Id:           m.AuthorId,
		Scope:        m.Scope,
		PadNumber:    m.Seq,
		Name:         m.AuthorName,
		Avatar:       m.AuthorAvatar,
		Time:         m.ClientTime,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Content:      m.Content,
		ImageUrl:     m.ImageUrl,
		BtnReactions: m.BtnReactions,
		ReactionSet:  m.Reactions,
	}
	msg.Render(name)

	return msg
}
