package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/profile"
	"github.com/npezzotti/go-teamchat/internal/reaction"
	"github.com/npezzotti/go-teamchat/internal/retry"
	"github.com/npezzotti/go-teamchat/internal/scope"
	"github.com/npezzotti/go-teamchat/internal/sequence"
	"github.com/npezzotti/go-teamchat/internal/stats"
	"github.com/npezzotti/go-teamchat/internal/types"
)

const (
	idleConversationTimeout = time.Second * 5
	writeTimeout            = time.Second * 10
)

var writePolicy = retry.DefaultPolicy.WithPermanent(
	sql.ErrNoRows,
	sequence.ErrSequenceConflict,
	sequence.ErrSequenceOverflow,
	reaction.ErrInvalidEmoji,
	reaction.ErrEmptyUser,
)

type exitReq struct {
	deleted bool
	done    chan bool
}

// Conversation serializes every write to one scope. It runs while at least
// one client is viewing the scope and unloads itself when idle.
type Conversation struct {
	scope         scope.Scope
	path          string
	cs            *ChatServer
	// members maps the user ids allowed in the scope to their display names.
	members       map[string]string
	// channel is the loaded channel for channel and thread scopes.
	channel       types.Channel
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	profileChan   chan profile.Change
	clients       map[*Client]struct{}
	userMap       map[string]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *log.Logger
	killTimer     *time.Timer
	exit          chan exitReq
}

func newConversation(cs *ChatServer, s scope.Scope) *Conversation {
	return &Conversation{
		scope:         s,
		path:          s.Path(),
		cs:            cs,
		members:       make(map[string]string),
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		profileChan:   make(chan profile.Change, 16),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[string]map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan exitReq, 1),
	}
}

// loadMembers reads who may take part in the scope: the channel's members
// for channels and threads, the two participants for a direct message.
func (r *Conversation) loadMembers() error {
	members := make(map[string]string)

	switch r.scope.Kind {
	case scope.KindChannel, scope.KindThread:
		ch, err := r.cs.db.GetChannel(r.scope.ChannelId)
		if err != nil {
			return err
		}
		r.channel = types.Channel{
			Id:        ch.Id,
			Name:      ch.Name,
			CreatorId: ch.CreatorId,
			Creator:   ch.CreatorName,
		}
		for _, m := range ch.Members {
			members[m.AccountId] = m.Name
			r.channel.Members = append(r.channel.Members, types.Member{
				Id:           m.AccountId,
				Name:         m.Name,
				EmailAddress: m.EmailAddress,
				Avatar:       m.Avatar,
			})
		}
	case scope.KindDirect:
		for _, id := range []string{r.scope.MemberA, r.scope.MemberB} {
			u, err := r.cs.db.GetAccountById(id)
			if err != nil {
				return err
			}
			members[u.Id] = u.Name
		}
	}

	r.members = members
	return nil
}

func (r *Conversation) start() {
	r.log.Printf("starting conversation %q", r.path)
	r.killTimer = time.NewTimer(idleConversationTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			switch {
			case msg.Publish != nil:
				r.saveAndBroadcast(msg)
			case msg.React != nil:
				r.handleReact(msg)
			case msg.Edit != nil:
				r.handleEdit(msg)
			case msg.Read != nil:
				r.handleRead(msg)
			}
		case change := <-r.profileChan:
			r.handleProfileChanged(change)
		case <-r.killTimer.C:
			r.handleTimeout()
		case e := <-r.exit:
			r.handleExit(e)
			return
		}
	}
}

func (r *Conversation) name(userId string) (string, bool) {
	n, ok := r.members[userId]
	return n, ok && n != ""
}

func (r *Conversation) idle() bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients) == 0
}

func (r *Conversation) handleTimeout() {
	if !r.idle() {
		return
	}

	r.log.Printf("conversation %q timed out", r.path)
	select {
	case r.cs.unloadConversationChan <- r:
	default:
		r.killTimer.Reset(idleConversationTimeout)
	}
}

func (r *Conversation) handleExit(e exitReq) {
	r.log.Printf("conversation %q is exiting", r.path)
	r.killTimer.Stop()

	r.clientLock.Lock()
	for c := range r.clients {
		c.delConversation(r.path)
	}
	r.clientLock.Unlock()

	// joins that raced the unload go back to the hub, which starts a fresh
	// conversation for them
	for drained := false; !drained; {
		select {
		case join := <-r.joinChan:
			if e.deleted || !r.cs.requeueJoin(join) {
				join.client.queueMessage(ErrConversationNotFound(join.Id))
			}
		default:
			drained = true
		}
	}

	if e.done != nil {
		e.done <- true
	}
}

func (r *Conversation) isMember(userId string) bool {
	if _, ok := r.members[userId]; ok {
		return true
	}

	// the member list may predate the user being added
	if r.scope.Kind != scope.KindDirect {
		if err := r.loadMembers(); err != nil {
			r.log.Println("loadMembers:", err)
			return false
		}
	}

	_, ok := r.members[userId]
	return ok
}

func (r *Conversation) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	if !r.isMember(c.user.Id) {
		r.log.Printf("%q is not a member of %q", c.user.Id, r.path)
		c.queueMessage(ErrForbidden(join.Id))
		if r.idle() {
			r.killTimer.Reset(idleConversationTimeout)
		}
		return
	}

	// the client moved on while the join was queued
	if !c.router.Viewing(r.scope) {
		if r.idle() {
			r.killTimer.Reset(idleConversationTimeout)
		}
		return
	}

	r.addClient(c)
}

func (r *Conversation) handleLeave(leaveMsg *ClientMessage) {
	r.removeClient(leaveMsg.client)
}

func (r *Conversation) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addConversation(r)
}

func (r *Conversation) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delConversation(r.path)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.path)
		r.killTimer.Reset(idleConversationTimeout)
	}
}

func (r *Conversation) handleProfileChanged(change profile.Change) {
	if r.scope.Kind == scope.KindDirect {
		if _, ok := r.members[change.UserId]; ok {
			r.members[change.UserId] = change.User.Name
		}
		return
	}

	chs := []types.Channel{r.channel}
	if len(profile.Propagate(chs, change)) == 0 {
		return
	}

	r.channel = chs[0]
	for _, m := range r.channel.Members {
		r.members[m.Id] = m.Name
	}
}

func (r *Conversation) viewing(userId string) bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return r.userMap[userId] != nil
}

func (r *Conversation) saveAndBroadcast(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	c := msg.client
	author := c.User()
	seq, err := r.cs.seq.Next(ctx, r.scope)
	if err != nil {
		r.log.Printf("allocate id in %q: %v", r.path, err)
		c.queueMessage(r.errResponse(msg.Id, err))
		return
	}

	params := database.CreateMessageParams{
		Scope:        r.scope,
		Seq:          seq,
		AuthorId:     author.Id,
		AuthorName:   author.Name,
		AuthorAvatar: author.Avatar,
		ClientTime:   msg.Publish.Time,
		Content:      msg.Publish.Content,
		ImageUrl:     msg.Publish.ImageUrl,
	}

	var saved database.Message
	err = writePolicy.Do(ctx, r.log, "create message", func() error {
		var err error
		saved, err = r.cs.db.CreateMessage(ctx, params)
		return err
	})
	if err != nil {
		r.log.Println("error saving message:", err)
		c.queueMessage(r.errResponse(msg.Id, err))
		return
	}

	r.cs.stats.Incr(stats.NumMessagesPublished)
	c.queueMessage(NoErrAccepted(msg.Id, map[string]string{"padNumber": saved.Seq}))

	out := RenderMessage(saved, r.name)
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Id: msg.Id,
		},
		Message: &out,
	})

	// notify members who are not looking at this scope
	for userId := range r.members {
		if userId == c.user.Id || r.viewing(userId) {
			continue
		}

		r.cs.Notify(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				NewMessage: &NewMessage{
					Scope:     r.path,
					PadNumber: saved.Seq,
					AuthorId:  c.user.Id,
				},
			},
			UserId: userId,
		})
	}
}

func (r *Conversation) handleReact(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	op := reaction.Op{
		Emoji:  msg.React.Emoji,
		UserId: msg.UserId,
		Toggle: msg.React.Toggle,
	}

	var (
		updated database.Message
		changed bool
	)
	err := writePolicy.Do(ctx, r.log, "apply reaction", func() error {
		var err error
		updated, changed, err = r.cs.db.ApplyReaction(ctx, r.scope, msg.React.PadNumber, op)
		return err
	})
	if err != nil {
		r.log.Println("ApplyReaction:", err)
		msg.client.queueMessage(r.errResponse(msg.Id, err))
		return
	}

	out := RenderMessage(updated, r.name)
	msg.client.queueMessage(NoErrOK(msg.Id, out.Reactions))
	if !changed {
		return
	}

	r.cs.stats.Incr(stats.NumReactionsApplied)
	r.broadcast(&ServerMessage{
		Message:    &out,
		SkipClient: msg.client,
	})
}

func (r *Conversation) handleEdit(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var updated database.Message
	err := writePolicy.Do(ctx, r.log, "edit message", func() error {
		var err error
		updated, err = r.cs.db.UpdateMessageContent(ctx, r.scope, msg.Edit.PadNumber, msg.UserId, msg.Edit.Content)
		return err
	})
	if err != nil {
		r.log.Println("UpdateMessageContent:", err)
		msg.client.queueMessage(r.errResponse(msg.Id, err))
		return
	}

	msg.client.queueMessage(NoErrOK(msg.Id, nil))

	out := RenderMessage(updated, r.name)
	r.broadcast(&ServerMessage{
		Message:    &out,
		SkipClient: msg.client,
	})
}

func (r *Conversation) handleRead(msg *ClientMessage) {
	if err := r.cs.db.UpdateReadMarker(msg.UserId, r.scope, msg.Read.PadNumber); err != nil {
		r.log.Println("UpdateReadMarker:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

func (r *Conversation) errResponse(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound(id)
	case errors.Is(err, reaction.ErrInvalidEmoji), errors.Is(err, reaction.ErrEmptyUser):
		return ErrBadRequest(id, err.Error())
	case errors.Is(err, sequence.ErrSequenceOverflow):
		return ErrConflict(id, "conversation is full")
	case errors.Is(err, sequence.ErrSequenceConflict):
		return ErrConflict(id, "message id already taken")
	case errors.Is(err, context.DeadlineExceeded):
		return ErrServiceUnavailable(id)
	}

	return ErrInternalError(id)
}

func (r *Conversation) broadcast(msg *ServerMessage) {
	msg.Timestamp = Now()

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
