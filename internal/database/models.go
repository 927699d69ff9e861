package database

import "time"

type Settings struct {
	Theme          string
	TerminalFont   string
	FontSize       string
	ShowScanLines  bool
	TerminalSounds bool
}

type User struct {
	Id                  int
	Username            string
	DisplayName         string
	Email               string
	PasswordHash        string
	Settings            Settings
	WhatsappConnected   bool
	WhatsappPhoneNumber string
	InstagramConnected  bool
	InstagramUsername   string
	LastLoginAt         time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Chat struct {
	Id           int
	ExternalId   string
	Name         string
	Description  string
	Type         string
	CreatedBy    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Participants []Participant
}

// Participant is a chat membership row joined with the owning account.
type Participant struct {
	AccountId   int
	Username    string
	DisplayName string
}

type Message struct {
	Id                int
	ChatId            int
	SenderId          int
	SenderUsername    string
	SenderDisplayName string
	Content           string
	Kind              string
	Metadata          map[string]string
	CreatedAt         time.Time
}

type CreateAccountParams struct {
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
}

type UpdateSettingsParams struct {
	UserId   int
	Settings Settings
}

type UpdateServiceConnectionParams struct {
	UserId    int
	Service   string
	Connected bool
	Handle    string
}

type CreateChatParams struct {
	ExternalId  string
	Name        string
	Description string
	Type        string
	CreatedBy   int
}

type CreateMessageParams struct {
	ChatId   int
	SenderId int
	Content  string
	Kind     string
	Metadata map[string]string
}
