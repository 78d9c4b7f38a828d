package types

import (
	"time"

	"github.com/npezzotti/go-teamchat/internal/reaction"
)

type User struct {
	Id           string    `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	Online       bool      `json:"online"`
	Guest        bool      `json:"guest,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Member struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	EmailAddress string `json:"email,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
	Online       bool   `json:"online"`
}

func MemberOf(u User) Member {
	return Member{
		Id:           u.Id,
		Name:         u.Name,
		EmailAddress: u.EmailAddress,
		Avatar:       u.Avatar,
		Online:       u.Online,
	}
}

type Channel struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// CreatorId is empty only on channels created before creators were
	// recorded by id.
	CreatorId string    `json:"creatorId,omitempty"`
	Creator   string    `json:"creator"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (c Channel) HasMember(userId string) bool {
	for _, m := range c.Members {
		if m.Id == userId {
			return true
		}
	}

	return false
}

type Message struct {
	// Id is the author's user id, not a unique message id. Messages are
	// addressed by Scope and PadNumber.
	Id           string                       `json:"id"`
	Scope        string                       `json:"scope"`
	PadNumber    string                       `json:"padNumber"`
	Name         string                       `json:"name"`
	Avatar       string                       `json:"avatar,omitempty"`
	Time         string                       `json:"time,omitempty"`
	CreatedAt    time.Time                    `json:"createdAt"`
	UpdatedAt    *time.Time                   `json:"updatedAt,omitempty"`
	Content      string                       `json:"message"`
	ImageUrl     string                       `json:"imageUrl,omitempty"`
	Reactions    map[string]reaction.Reaction `json:"reactions"`
	BtnReactions []string                     `json:"btnReactions,omitempty"`
	// ReactionSet is the stored form of Reactions, keyed by user id.
	ReactionSet reaction.Set `json:"-"`
}

// Render fills Reactions from ReactionSet using name to resolve user ids.
func (m *Message) Render(name func(userId string) (string, bool)) {
	m.Reactions = m.ReactionSet.Present(name)
}

type ThreadInfo struct {
	Count           int        `json:"count"`
	LastMessageTime *time.Time `json:"lastMessageTime,omitempty"`
}

type SearchKind string

const (
	SearchChannel SearchKind = "channel"
	SearchUser    SearchKind = "user"
)

type SearchResult struct {
	Type        SearchKind `json:"type"`
	Id          string     `json:"id"`
	Name        string     `json:"name"`
	Avatar      string     `json:"avatar,omitempty"`
	Message     string     `json:"message"`
	PadNumber   string     `json:"padNumber"`
	UserId      string     `json:"userID,omitempty"`
	ChannelName string     `json:"channelName,omitempty"`
	ChannelId   string     `json:"channelID,omitempty"`
}
