package database

import (
	"context"

	"github.com/npezzotti/go-teamchat/internal/reaction"
	"github.com/npezzotti/go-teamchat/internal/scope"
)

type TeamChatRepository interface {
	Ping() error
	Close() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, PropagateResult, error)
	GetAccountById(accountId string) (User, error)
	GetAccountByEmail(email string) (User, error)
	ListAccounts() ([]User, error)
	CreateChannel(params CreateChannelParams) (Channel, error)
	GetChannel(channelId string) (Channel, error)
	ListChannels(accountId string) ([]Channel, error)
	AddChannelMember(channelId string, user User) error
	DeleteChannel(channelId string) error
	NextSeq(ctx context.Context, s scope.Scope) (string, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	UpdateMessageContent(ctx context.Context, s scope.Scope, seq, authorId, content string) (Message, error)
	ApplyReaction(ctx context.Context, s scope.Scope, seq string, op reaction.Op) (Message, bool, error)
	GetMessages(s scope.Scope) ([]Message, error)
	GetThreadInfo(channelId, parentSeq string) (ThreadInfo, error)
	SearchMessages(accountId, query string, limit int) ([]SearchHit, error)
	UpdateReadMarker(accountId string, s scope.Scope, seq string) error
}
