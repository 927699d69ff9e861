package chat

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/teris-io/shortid"
	"golang.org/x/crypto/bcrypt"

	"github.com/termchat/termchat/internal/database"
	"github.com/termchat/termchat/internal/stats"
	"github.com/termchat/termchat/internal/types"
)

const (
	// DefaultHistoryLimit is applied when a history request carries no limit.
	DefaultHistoryLimit = 50

	systemUsername = "system"
)

// Message kinds.
const (
	KindText   = "text"
	KindImage  = "image"
	KindFile   = "file"
	KindSystem = "system"
)

// Chat types.
const (
	TypePublic  = "public"
	TypePrivate = "private"
)

// Service implements chat-room membership and message persistence over
// the repository. All mutations that pair a membership change with a
// system message happen in a single repository transaction.
type Service struct {
	log   *log.Logger
	db    database.Repository
	stats stats.StatsProvider

	// generateId produces external chat ids; replaced in tests.
	generateId func() (string, error)

	systemIdMu sync.Mutex
	systemId   int
}

func NewService(logger *log.Logger, db database.Repository, sp stats.StatsProvider) *Service {
	return &Service{
		log:        logger,
		db:         db,
		stats:      sp,
		generateId: shortid.Generate,
	}
}

type CreateChatParams struct {
	Name        string
	Description string
	Type        string
}

// CreateChat creates a chat room with the creator as its only
// participant. Type defaults to public; duplicate names are allowed.
func (s *Service) CreateChat(creatorId int, params CreateChatParams) (types.Chat, error) {
	if strings.TrimSpace(params.Name) == "" {
		return types.Chat{}, ErrNameRequired
	}

	chatType := params.Type
	if chatType == "" {
		chatType = TypePublic
	}
	if chatType != TypePublic && chatType != TypePrivate {
		return types.Chat{}, fmt.Errorf("%w: %q", ErrInvalidChatType, chatType)
	}

	externalId, err := s.generateId()
	if err != nil {
		return types.Chat{}, fmt.Errorf("generate chat id: %w", err)
	}

	chat, err := s.db.CreateChat(database.CreateChatParams{
		ExternalId:  externalId,
		Name:        params.Name,
		Description: params.Description,
		Type:        chatType,
		CreatedBy:   creatorId,
	})
	if err != nil {
		return types.Chat{}, fmt.Errorf("create chat: %w", err)
	}

	s.log.Printf("chat room created: %s (id: %s)", chat.Name, chat.ExternalId)

	return toApiChat(chat), nil
}

// JoinChat adds the user to the chat's participant set and records a
// system message announcing the join. Both writes are one transaction.
func (s *Service) JoinChat(chatId string, userId int) (types.Chat, error) {
	chat, err := s.getChat(chatId)
	if err != nil {
		return types.Chat{}, err
	}

	user, err := s.getUser(userId)
	if err != nil {
		return types.Chat{}, err
	}

	sysMsg, err := s.systemMessage(chat.Id, fmt.Sprintf("%s has joined the chat", user.Username))
	if err != nil {
		return types.Chat{}, err
	}

	added, err := s.db.AddParticipant(chat.Id, user.Id, sysMsg)
	if err != nil {
		return types.Chat{}, fmt.Errorf("add participant: %w", err)
	}
	if !added {
		return types.Chat{}, ErrAlreadyJoined
	}

	s.log.Printf("user %q joined chat %q", user.Username, chat.ExternalId)

	return toApiChat(chat), nil
}

// LeaveChat removes the user from the chat's participant set and records
// a system message announcing the leave. Both writes are one transaction.
func (s *Service) LeaveChat(chatId string, userId int) error {
	chat, err := s.getChat(chatId)
	if err != nil {
		return err
	}

	user, err := s.getUser(userId)
	if err != nil {
		return err
	}

	sysMsg, err := s.systemMessage(chat.Id, fmt.Sprintf("%s has left the chat", user.Username))
	if err != nil {
		return err
	}

	removed, err := s.db.RemoveParticipant(chat.Id, user.Id, sysMsg)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if !removed {
		return ErrNotJoined
	}

	s.log.Printf("user %q left chat %q", user.Username, chat.ExternalId)

	return nil
}

// ListPublicChats returns every public chat with participants projected
// to username and display name only.
func (s *Service) ListPublicChats() ([]types.Chat, error) {
	dbChats, err := s.db.ListPublicChats()
	if err != nil {
		return nil, fmt.Errorf("list public chats: %w", err)
	}

	chats := make([]types.Chat, 0, len(dbChats))
	for _, c := range dbChats {
		chats = append(chats, toApiChat(c))
	}

	return chats, nil
}

type SendMessageParams struct {
	Content  string
	Kind     string
	Metadata map[string]string
}

// SendMessage persists a message from a chat participant, bumps the
// chat's activity timestamp and returns the message populated with the
// sender's username and display name.
func (s *Service) SendMessage(chatId string, senderId int, params SendMessageParams) (types.Message, error) {
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return types.Message{}, ErrEmptyContent
	}

	kind := params.Kind
	if kind == "" {
		kind = KindText
	}
	switch kind {
	case KindText, KindImage, KindFile, KindSystem:
	default:
		return types.Message{}, ErrInvalidKind
	}

	chat, err := s.getChat(chatId)
	if err != nil {
		return types.Message{}, err
	}

	isMember, err := s.db.IsParticipant(chat.Id, senderId)
	if err != nil {
		return types.Message{}, fmt.Errorf("check participant: %w", err)
	}
	if !isMember {
		return types.Message{}, ErrNotParticipant
	}

	sender, err := s.getUser(senderId)
	if err != nil {
		return types.Message{}, err
	}

	msg, err := s.db.CreateMessage(database.CreateMessageParams{
		ChatId:   chat.Id,
		SenderId: sender.Id,
		Content:  content,
		Kind:     kind,
		Metadata: params.Metadata,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	msg.SenderUsername = sender.Username
	msg.SenderDisplayName = sender.DisplayName

	s.stats.Incr(stats.MessagesPersisted)

	return toApiMessage(msg, chat.ExternalId), nil
}

type HistoryParams struct {
	// Limit caps the number of returned messages; zero means
	// DefaultHistoryLimit.
	Limit int
	// Before is an exclusive upper bound on creation time; the zero
	// value returns the most recent messages.
	Before time.Time
}

// Messages returns up to Limit messages older than Before in
// chronological order, plus a hasMore flag indicating that the caller
// should paginate further back using the oldest returned timestamp.
func (s *Service) Messages(chatId string, requesterId int, params HistoryParams) ([]types.Message, bool, error) {
	chat, err := s.getChat(chatId)
	if err != nil {
		return nil, false, err
	}

	isMember, err := s.db.IsParticipant(chat.Id, requesterId)
	if err != nil {
		return nil, false, fmt.Errorf("check participant: %w", err)
	}
	if !isMember {
		return nil, false, ErrNotParticipant
	}

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	dbMsgs, err := s.db.GetMessages(chat.Id, params.Before, limit)
	if err != nil {
		return nil, false, fmt.Errorf("get messages: %w", err)
	}

	hasMore := len(dbMsgs) == limit

	// query returns newest-first; callers get chronological order
	messages := make([]types.Message, 0, len(dbMsgs))
	for i := len(dbMsgs) - 1; i >= 0; i-- {
		messages = append(messages, toApiMessage(dbMsgs[i], chat.ExternalId))
	}

	return messages, hasMore, nil
}

// systemMessage builds the message params for a membership notice,
// resolving the synthetic system account.
func (s *Service) systemMessage(chatDbId int, content string) (database.CreateMessageParams, error) {
	systemId, err := s.systemUserId()
	if err != nil {
		return database.CreateMessageParams{}, err
	}

	return database.CreateMessageParams{
		ChatId:   chatDbId,
		SenderId: systemId,
		Content:  content,
		Kind:     KindSystem,
	}, nil
}

// systemUserId resolves the singleton system account, creating it on
// first use with a random secret that is never logged.
func (s *Service) systemUserId() (int, error) {
	s.systemIdMu.Lock()
	defer s.systemIdMu.Unlock()

	if s.systemId != 0 {
		return s.systemId, nil
	}

	user, err := s.db.GetAccountByUsername(systemUsername)
	if err == nil {
		s.systemId = user.Id
		return s.systemId, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup system account: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return 0, fmt.Errorf("generate system secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash system secret: %w", err)
	}

	user, err = s.db.CreateAccount(database.CreateAccountParams{
		Username:     systemUsername,
		DisplayName:  "System",
		PasswordHash: string(hash),
	})
	if err != nil {
		return 0, fmt.Errorf("create system account: %w", err)
	}

	s.log.Println("created system account")
	s.systemId = user.Id

	return s.systemId, nil
}

func (s *Service) getChat(externalId string) (database.Chat, error) {
	chat, err := s.db.GetChatByExternalId(externalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Chat{}, ErrChatNotFound
		}
		return database.Chat{}, fmt.Errorf("get chat: %w", err)
	}

	return chat, nil
}

func (s *Service) getUser(id int) (database.User, error) {
	user, err := s.db.GetAccountById(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, ErrUserNotFound
		}
		return database.User{}, fmt.Errorf("get account: %w", err)
	}

	return user, nil
}

func toApiChat(c database.Chat) types.Chat {
	chat := types.Chat{
		Id:          c.ExternalId,
		Name:        c.Name,
		Description: c.Description,
		Type:        c.Type,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}

	for _, p := range c.Participants {
		chat.Participants = append(chat.Participants, types.Participant{
			Username:    p.Username,
			DisplayName: p.DisplayName,
		})
	}

	return chat
}

func toApiMessage(m database.Message, chatExternalId string) types.Message {
	return types.Message{
		Id:     m.Id,
		ChatId: chatExternalId,
		Sender: types.Participant{
			Username:    m.SenderUsername,
			DisplayName: m.SenderDisplayName,
		},
		Content:   m.Content,
		Kind:      m.Kind,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
}
