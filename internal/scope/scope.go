// Package scope derives the storage path of every conversation. A scope is a
// channel, a thread under a channel message, or a direct-message pair, and
// each scope owns its own message sequence.
package scope

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindChannel Kind = "channel"
	KindThread  Kind = "thread"
	KindDirect  Kind = "direct"
)

var (
	ErrEmptyID     = errors.New("scope: empty id")
	ErrInvalidID   = errors.New("scope: user id contains the pair separator")
	ErrInvalidPath = errors.New("scope: invalid path")
)

const pairSeparator = "_"

type Scope struct {
	Kind      Kind
	ChannelId string
	ParentSeq string
	// MemberA and MemberB are the direct-message participants, MemberA <= MemberB.
	MemberA string
	MemberB string
}

func Channel(channelId string) (Scope, error) {
	if channelId == "" {
		return Scope{}, ErrEmptyID
	}

	return Scope{Kind: KindChannel, ChannelId: channelId}, nil
}

func Thread(channelId, parentSeq string) (Scope, error) {
	if channelId == "" || parentSeq == "" {
		return Scope{}, ErrEmptyID
	}

	return Scope{Kind: KindThread, ChannelId: channelId, ParentSeq: parentSeq}, nil
}

// Direct returns the scope shared by two users. Both participants compute
// the same scope regardless of argument order. a == b is a valid self-chat.
// Ids containing "_" are rejected since the pair id could not be split back.
func Direct(a, b string) (Scope, error) {
	if a == "" || b == "" {
		return Scope{}, ErrEmptyID
	}
	if strings.Contains(a, pairSeparator) || strings.Contains(b, pairSeparator) {
		return Scope{}, ErrInvalidID
	}

	if b < a {
		a, b = b, a
	}

	return Scope{Kind: KindDirect, MemberA: a, MemberB: b}, nil
}

// PairId joins two user ids in byte-wise order: min + "_" + max. It only
// round-trips through Parse for ids without "_", which Direct enforces.
func PairId(a, b string) string {
	if b < a {
		a, b = b, a
	}

	return a + pairSeparator + b
}

func (s Scope) PairId() string {
	return PairId(s.MemberA, s.MemberB)
}

// Path returns the collection path the scope's messages are stored under.
func (s Scope) Path() string {
	switch s.Kind {
	case KindChannel:
		return "channels/" + s.ChannelId + "/messages"
	case KindThread:
		return "channels/" + s.ChannelId + "/messages/" + s.ParentSeq + "/threads"
	case KindDirect:
		return "directmessages/" + s.PairId() + "/messages"
	}

	return ""
}

func (s Scope) String() string {
	return s.Path()
}

// Parent returns the channel scope a thread hangs off. Other scopes return
// themselves.
func (s Scope) Parent() Scope {
	if s.Kind == KindThread {
		return Scope{Kind: KindChannel, ChannelId: s.ChannelId}
	}

	return s
}

// HasMember reports whether userId is one of the participants of a
// direct-message scope.
func (s Scope) HasMember(userId string) bool {
	return s.Kind == KindDirect && (s.MemberA == userId || s.MemberB == userId)
}

// Other returns the participant of a direct-message scope that is not userId.
func (s Scope) Other(userId string) string {
	if s.MemberA == userId {
		return s.MemberB
	}

	return s.MemberA
}

// Parse is the inverse of Path.
func Parse(path string) (Scope, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 3 && parts[0] == "channels" && parts[2] == "messages":
		return Channel(parts[1])
	case len(parts) == 5 && parts[0] == "channels" && parts[2] == "messages" && parts[4] == "threads":
		return Thread(parts[1], parts[3])
	case len(parts) == 3 && parts[0] == "directmessages" && parts[2] == "messages":
		a, b, ok := strings.Cut(parts[1], pairSeparator)
		if !ok {
			return Scope{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		return Direct(a, b)
	}

	return Scope{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
}
