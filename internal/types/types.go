package types

import (
	"time"
)

type Settings struct {
	Theme          string `json:"theme"`
	TerminalFont   string `json:"terminalFont"`
	FontSize       string `json:"fontSize"`
	ShowScanLines  bool   `json:"showScanLines"`
	TerminalSounds bool   `json:"terminalSounds"`
}

// ServiceStatus is the client-visible state of an external service
// connection. Auth tokens never appear here.
type ServiceStatus struct {
	Connected bool   `json:"connected"`
	Handle    string `json:"handle,omitempty"`
}

type User struct {
	Id          int           `json:"id"`
	Username    string        `json:"username"`
	DisplayName string        `json:"displayName"`
	Email       string        `json:"email,omitempty"`
	Settings    Settings      `json:"settings"`
	Whatsapp    ServiceStatus `json:"whatsapp"`
	Instagram   ServiceStatus `json:"instagram"`
	LastLoginAt time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt,omitempty"`
}

// Participant is the projection of an account exposed on chat resources.
type Participant struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type Chat struct {
	Id           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Type         string        `json:"type,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	CreatedAt    time.Time     `json:"createdAt,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt,omitempty"`
}

type Message struct {
	Id        int               `json:"id"`
	ChatId    string            `json:"chatId"`
	Sender    Participant       `json:"sender"`
	Content   string            `json:"content"`
	Kind      string            `json:"type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
