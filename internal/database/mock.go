package database

import (
	"context"

	"github.com/npezzotti/go-teamchat/internal/reaction"
	"github.com/npezzotti/go-teamchat/internal/scope"
	"github.com/stretchr/testify/mock"
)

type MockTeamChatRepository struct {
	mock.Mock
}

func (m *MockTeamChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockTeamChatRepository) Close() error {
	return nil
}
func (m *MockTeamChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockTeamChatRepository) UpdateAccount(params UpdateAccountParams) (User, PropagateResult, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Get(1).(PropagateResult), args.Error(2)
}
func (m *MockTeamChatRepository) GetAccountById(accountId string) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockTeamChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockTeamChatRepository) ListAccounts() ([]User, error) {
	args := m.Called()
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockTeamChatRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	args := m.Called(params)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockTeamChatRepository) GetChannel(channelId string) (Channel, error) {
	args := m.Called(channelId)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockTeamChatRepository) ListChannels(accountId string) ([]Channel, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Channel), args.Error(1)
}
func (m *MockTeamChatRepository) AddChannelMember(channelId string, user User) error {
	args := m.Called(channelId, user)
	return args.Error(0)
}
func (m *MockTeamChatRepository) DeleteChannel(channelId string) error {
	args := m.Called(channelId)
	return args.Error(0)
}
func (m *MockTeamChatRepository) NextSeq(ctx context.Context, s scope.Scope) (string, error) {
	args := m.Called(ctx, s)
	return args.String(0), args.Error(1)
}
func (m *MockTeamChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockTeamChatRepository) UpdateMessageContent(ctx context.Context, s scope.Scope, seq, authorId, content string) (Message, error) {
	args := m.Called(ctx, s, seq, authorId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockTeamChatRepository) ApplyReaction(ctx context.Context, s scope.Scope, seq string, op reaction.Op) (Message, bool, error) {
	args := m.Called(ctx, s, seq, op)
	return args.Get(0).(Message), args.Bool(1), args.Error(2)
}
func (m *MockTeamChatRepository) GetMessages(s scope.Scope) ([]Message, error) {
	args := m.Called(s)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockTeamChatRepository) GetThreadInfo(channelId, parentSeq string) (ThreadInfo, error) {
	args := m.Called(channelId, parentSeq)
	return args.Get(0).(ThreadInfo), args.Error(1)
}
func (m *MockTeamChatRepository) SearchMessages(accountId, query string, limit int) ([]SearchHit, error) {
	args := m.Called(accountId, query, limit)
	return args.Get(0).([]SearchHit), args.Error(1)
}
func (m *MockTeamChatRepository) UpdateReadMarker(accountId string, s scope.Scope, seq string) error {
	args := m.Called(accountId, s, seq)
	return args.Error(0)
}
