package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdateSettings(params UpdateSettingsParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdateLastLogin(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockRepository) UpdateServiceConnection(params UpdateServiceConnectionParams) error {
	args := m.Called(params)
	return args.Error(0)
}
func (m *MockRepository) CreateChat(params CreateChatParams) (Chat, error) {
	args := m.Called(params)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) GetChatByExternalId(externalId string) (Chat, error) {
	args := m.Called(externalId)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) ListPublicChats() ([]Chat, error) {
	args := m.Called()
	return args.Get(0).([]Chat), args.Error(1)
}
func (m *MockRepository) IsParticipant(chatId, accountId int) (bool, error) {
	args := m.Called(chatId, accountId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) AddParticipant(chatId, accountId int, sysMsg CreateMessageParams) (bool, error) {
	args := m.Called(chatId, accountId, sysMsg)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) RemoveParticipant(chatId, accountId int, sysMsg CreateMessageParams) (bool, error) {
	args := m.Called(chatId, accountId, sysMsg)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessages(chatId int, before time.Time, limit int) ([]Message, error) {
	args := m.Called(chatId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
