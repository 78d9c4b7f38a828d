// Package viewstate tracks which conversation a client has open and which
// scopes that makes visible under the client's layout.
package viewstate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/npezzotti/go-teamchat/internal/scope"
)

type Component string

const (
	None          Component = ""
	Chat          Component = "chat"
	DirectMessage Component = "directmessage"
	Thread        Component = "thread"
	NewMessage    Component = "newMessage"
)

type Layout string

const (
	Desktop Layout = "desktop"
	Mobile  Layout = "mobile"
)

var (
	ErrInvalidTarget = errors.New("viewstate: empty target")
	ErrUnknownUser   = errors.New("viewstate: user not in roster")
	ErrNoChannel     = errors.New("viewstate: no channel open")
	ErrUnknownView   = errors.New("viewstate: unknown component")
)

// Roster answers whether a user id exists.
type Roster interface {
	Known(userId string) bool
}

type RosterFunc func(userId string) bool

func (f RosterFunc) Known(userId string) bool { return f(userId) }

type State struct {
	Open         Component `json:"open"`
	Layout       Layout    `json:"layout"`
	ChannelId    string    `json:"channelId,omitempty"`
	DirectUserId string    `json:"directUserId,omitempty"`
	ThreadParent string    `json:"threadParent,omitempty"`
	// MobileOpen mirrors Open while the layout is Mobile and is empty otherwise.
	MobileOpen Component `json:"mobileOpen,omitempty"`
}

// Request is a view change sent by a client.
type Request struct {
	Open   Component `json:"open"`
	Target string    `json:"target,omitempty"`
	Layout Layout    `json:"layout,omitempty"`
}

type Router struct {
	self   string
	roster Roster

	mu    sync.Mutex
	state State
}

func NewRouter(selfId string, roster Roster, layout Layout) *Router {
	if layout != Mobile {
		layout = Desktop
	}

	return &Router{
		self:   selfId,
		roster: roster,
		state:  State{Layout: layout},
	}
}

func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// OpenChannel shows a channel and closes any direct message or thread.
func (r *Router) OpenChannel(channelId string) error {
	if channelId == "" {
		return ErrInvalidTarget
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.ChannelId = channelId
	r.state.DirectUserId = ""
	r.state.ThreadParent = ""
	r.setOpen(Chat)
	return nil
}

// OpenDirectMessage shows the conversation with userId and closes any
// channel or thread.
func (r *Router) OpenDirectMessage(userId string) error {
	if userId == "" {
		return ErrInvalidTarget
	}

	if r.roster != nil && !r.roster.Known(userId) {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userId)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.DirectUserId = userId
	r.state.ChannelId = ""
	r.state.ThreadParent = ""
	r.setOpen(DirectMessage)
	return nil
}

// OpenThread shows the replies to parentSeq in the open channel.
func (r *Router) OpenThread(parentSeq string) error {
	if parentSeq == "" {
		return ErrInvalidTarget
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.ChannelId == "" {
		return ErrNoChannel
	}

	r.state.ThreadParent = parentSeq
	r.setOpen(Thread)
	return nil
}

func (r *Router) CloseThread() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.ThreadParent == "" {
		return
	}

	r.state.ThreadParent = ""
	if r.state.ChannelId != "" {
		r.setOpen(Chat)
	} else {
		r.setOpen(None)
	}
}

// OpenNewMessage shows the composer for starting a conversation.
func (r *Router) OpenNewMessage() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.ChannelId = ""
	r.state.DirectUserId = ""
	r.state.ThreadParent = ""
	r.setOpen(NewMessage)
}

func (r *Router) SetLayout(l Layout) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l != Mobile {
		l = Desktop
	}
	r.state.Layout = l
	r.setOpen(r.state.Open)
}

// must hold r.mu
func (r *Router) setOpen(c Component) {
	r.state.Open = c
	if r.state.Layout == Mobile {
		r.state.MobileOpen = c
	} else {
		r.state.MobileOpen = None
	}
}

// Apply performs req. An empty req.Layout leaves the layout unchanged.
func (r *Router) Apply(req Request) error {
	if req.Layout != "" {
		r.SetLayout(req.Layout)
	}

	switch req.Open {
	case Chat:
		return r.OpenChannel(req.Target)
	case DirectMessage:
		return r.OpenDirectMessage(req.Target)
	case Thread:
		return r.OpenThread(req.Target)
	case NewMessage:
		r.OpenNewMessage()
		return nil
	case None:
		r.CloseThread()
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnknownView, req.Open)
}

// ActiveScopes returns the scopes currently on screen. A desktop layout
// shows a channel and its open thread side by side; a mobile layout shows
// only the open pane.
func (r *Router) ActiveScopes() []scope.Scope {
	st := r.State()

	var channel, thread, direct *scope.Scope
	if st.ChannelId != "" {
		if s, err := scope.Channel(st.ChannelId); err == nil {
			channel = &s
		}
		if st.ThreadParent != "" {
			if s, err := scope.Thread(st.ChannelId, st.ThreadParent); err == nil {
				thread = &s
			}
		}
	}
	if st.DirectUserId != "" {
		if s, err := scope.Direct(r.self, st.DirectUserId); err == nil {
			direct = &s
		}
	}

	var out []scope.Scope
	add := func(s *scope.Scope) {
		if s != nil {
			out = append(out, *s)
		}
	}

	if st.Layout == Mobile {
		switch st.Open {
		case Chat:
			add(channel)
		case Thread:
			add(thread)
		case DirectMessage:
			add(direct)
		}
		return out
	}

	add(channel)
	add(thread)
	add(direct)
	return out
}

// Viewing reports whether s is on screen.
func (r *Router) Viewing(s scope.Scope) bool {
	for _, active := range r.ActiveScopes() {
		if active == s {
			return true
		}
	}

	return false
}
