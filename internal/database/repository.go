package database

import "time"

type Repository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByUsername(username string) (User, error)
	UpdateSettings(params UpdateSettingsParams) (User, error)
	UpdateLastLogin(accountId int) error
	UpdateServiceConnection(params UpdateServiceConnectionParams) error
	CreateChat(params CreateChatParams) (Chat, error)
	GetChatByExternalId(externalId string) (Chat, error)
	ListPublicChats() ([]Chat, error)
	IsParticipant(chatId, accountId int) (bool, error)
	AddParticipant(chatId, accountId int, sysMsg CreateMessageParams) (bool, error)
	RemoveParticipant(chatId, accountId int, sysMsg CreateMessageParams) (bool, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(chatId int, before time.Time, limit int) ([]Message, error)
}
