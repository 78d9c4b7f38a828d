package database

import (
	"time"

	"github.com/npezzotti/go-teamchat/internal/reaction"
	"github.com/npezzotti/go-teamchat/internal/scope"
)

type User struct {
	Id           string
	Name         string
	EmailAddress string
	Avatar       string
	Guest        bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Member struct {
	AccountId    string
	Name         string
	EmailAddress string
	Avatar       string
	JoinedAt     time.Time
}

type Channel struct {
	Id          string
	Name        string
	Description string
	// CreatorId is empty for rows written before creators were stored by id.
	CreatorId   string
	CreatorName string
	Members     []Member
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Message struct {
	Scope        string
	Seq          string
	AuthorId     string
	AuthorName   string
	AuthorAvatar string
	ClientTime   string
	Content      string
	ImageUrl     string
	Reactions    reaction.Set
	BtnReactions []string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

type ThreadInfo struct {
	Count           int
	LastMessageTime *time.Time
}

type SearchHit struct {
	Scope        string
	Seq          string
	AuthorId     string
	AuthorName   string
	AuthorAvatar string
	Content      string
	ChannelId    string
	ChannelName  string
	// DirectPeer is the other participant when the hit is a direct message.
	DirectPeer string
}

type CreateAccountParams struct {
	Name         string
	EmailAddress string
	Avatar       string
	Guest        bool
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       string
	Name         string
	EmailAddress string
	Avatar       string
	// PasswordHash is left unchanged when empty.
	PasswordHash string
}

type CreateChannelParams struct {
	Id          string
	Name        string
	Description string
	Creator     User
}

type CreateMessageParams struct {
	Scope        scope.Scope
	Seq          string
	AuthorId     string
	AuthorName   string
	AuthorAvatar string
	ClientTime   string
	Content      string
	ImageUrl     string
	BtnReactions []string
}

// PropagateResult lists the channels a profile change rewrote.
type PropagateResult struct {
	Members        []string
	CreatorsById   []string
	CreatorsByName []string
}
