package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/termchat/termchat/internal/chat"
	"github.com/termchat/termchat/internal/config"
	"github.com/termchat/termchat/internal/database"
	"github.com/termchat/termchat/internal/relay"
	"github.com/termchat/termchat/internal/stats"
	"github.com/termchat/termchat/internal/testutil"
	"github.com/termchat/termchat/internal/types"
)

var (
	testDbChat = database.Chat{
		Id:         1,
		ExternalId: "EoGKUXPHgz",
		Name:       "general",
		Type:       chat.TypePublic,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	testDbUser = database.User{
		Id:          1,
		Username:    "alice",
		DisplayName: "Alice",
	}
	testSystemUser = database.User{
		Id:       9,
		Username: "system",
	}
)

// newTestApp wires a TermchatApp over the mock repository with a real
// chat service, the way main does it.
func newTestApp(t *testing.T, mockRepo *database.MockRepository, su stats.StatsProvider, rl *relay.Relay) *TermchatApp {
	t.Helper()
	logger := testutil.TestLogger(t)
	chats := chat.NewService(logger, mockRepo, su)
	return NewTermchatApp(http.NewServeMux(), logger, mockRepo, chats, rl, nil, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})
}

func withVars(req *http.Request, id string) *http.Request {
	return mux.SetURLVars(req, map[string]string{"id": id})
}

func Test_healthz(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{}, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthz(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code)
			} else {
				assert.Equal(t, http.StatusOK, rr.Code)
			}
		})
	}
}

func Test_listPublicChats(t *testing.T) {
	tcases := []struct {
		name        string
		mockChats   []database.Chat
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name: "returns public chats with participants",
			mockChats: []database.Chat{
				{
					Id:         1,
					ExternalId: "EoGKUXPHgz",
					Name:       "general",
					Type:       chat.TypePublic,
					Participants: []database.Participant{
						{AccountId: 1, Username: "alice", DisplayName: "Alice"},
					},
				},
			},
		},
		{
			name:        "fails with db error",
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("ListPublicChats").Return(tc.mockChats, tc.mockErr).Once()

			app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{}, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/chats/public", nil)
			app.listPublicChats(rr, req)

			if tc.expectedErr != nil {
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code)
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
			var resp ChatListResponse
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Len(t, resp.Chats, 1)
			assert.Equal(t, "EoGKUXPHgz", resp.Chats[0].Id)
			assert.Equal(t, []types.Participant{{Username: "alice", DisplayName: "Alice"}}, resp.Chats[0].Participants)
		})
	}
}

func Test_createChat(t *testing.T) {
	tcases := []struct {
		name        string
		body        any
		userId      int
		mockChat    database.Chat
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name:     "creates a chat",
			body:     CreateChatRequest{Name: "general", Description: "the lobby"},
			userId:   1,
			mockChat: testDbChat,
		},
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			userId:      1,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with missing name",
			body:        CreateChatRequest{Description: "no name"},
			userId:      1,
			expectedErr: NewValidationError(chat.ErrNameRequired.Error()),
		},
		{
			name:        "fails with unauthorized access",
			body:        CreateChatRequest{Name: "general"},
			userId:      0,
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "fails with db error",
			body:        CreateChatRequest{Name: "general"},
			userId:      1,
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockChat.Id != 0 || tc.mockErr != nil {
				createReq := tc.body.(CreateChatRequest)
				mockRepo.On("CreateChat", mock.MatchedBy(func(params database.CreateChatParams) bool {
					return params.Name == createReq.Name &&
						params.Description == createReq.Description &&
						params.Type == chat.TypePublic &&
						params.CreatedBy == tc.userId &&
						params.ExternalId != ""
				})).Return(tc.mockChat, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{}, nil)

			var req *http.Request
			switch v := tc.body.(type) {
			case string:
				req = httptest.NewRequest(http.MethodPost, "/api/chats", strings.NewReader(v))
			default:
				body, err := json.Marshal(v)
				assert.NoError(t, err)
				req = httptest.NewRequest(http.MethodPost, "/api/chats", bytes.NewBuffer(body))
			}

			if tc.userId > 0 {
				req = req.WithContext(WithUserId(req.Context(), tc.userId))
			}

			rr := httptest.NewRecorder()
			app.createChat(rr, req)

			if tc.expectedErr != nil {
				var apiErr ApiError
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr)
				return
			}

			assert.Equal(t, http.StatusCreated, rr.Code)
			var resp ChatResponse
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, testDbChat.ExternalId, resp.Chat.Id)
			assert.Equal(t, testDbChat.Name, resp.Chat.Name)
		})
	}
}

func Test_joinChat(t *testing.T) {
	tcases := []struct {
		name        string
		chatId      string
		chatErr     error
		added       bool
		expectedErr *ApiError
	}{
		{
			name:   "joins a chat",
			chatId: testDbChat.ExternalId,
			added:  true,
		},
		{
			name:        "second join is a conflicted request",
			chatId:      testDbChat.ExternalId,
			added:       false,
			expectedErr: NewValidationError(chat.ErrAlreadyJoined.Error()),
		},
		{
			name:        "fails with unknown chat",
			chatId:      "nonexistent",
			chatErr:     sql.ErrNoRows,
			expectedErr: NewNotFoundError(),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.chatErr != nil {
				mockRepo.On("GetChatByExternalId", tc.chatId).Return(database.Chat{}, tc.chatErr).Once()
			} else {
				mockRepo.On("GetChatByExternalId", tc.chatId).Return(testDbChat, nil).Once()
				mockRepo.On("GetAccountById", testDbUser.Id).Return(testDbUser, nil).Once()
				mockRepo.On("GetAccountByUsername", "system").Return(testSystemUser, nil).Once()
				mockRepo.On("AddParticipant", testDbChat.Id, testDbUser.Id, mock.MatchedBy(func(msg database.CreateMessageParams) bool {
					return msg.Kind == chat.KindSystem && msg.Content == "alice has joined the chat"
				})).Return(tc.added, nil).Once()
			}

			app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/chats/"+tc.chatId+"/join", nil)
			req = req.WithContext(WithUserId(req.Context(), testDbUser.Id))
			req = withVars(req, tc.chatId)

			rr := httptest.NewRecorder()
			app.joinChat(rr, req)

			if tc.expectedErr != nil {
				var apiErr ApiError
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr)
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
			var resp ChatResponse
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, testDbChat.ExternalId, resp.Chat.Id)
		})
	}
}

func Test_leaveChat(t *testing.T) {
	tcases := []struct {
		name        string
		removed     bool
		expectedErr *ApiError
	}{
		{
			name:    "leaves a chat",
			removed: true,
		},
		{
			name:        "fails when not a participant",
			removed:     false,
			expectedErr: NewValidationError(chat.ErrNotJoined.Error()),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			mockRepo.On("GetChatByExternalId", testDbChat.ExternalId).Return(testDbChat, nil).Once()
			mockRepo.On("GetAccountById", testDbUser.Id).Return(testDbUser, nil).Once()
			mockRepo.On("GetAccountByUsername", "system").Return(testSystemUser, nil).Once()
			mockRepo.On("RemoveParticipant", testDbChat.Id, testDbUser.Id, mock.MatchedBy(func(msg database.CreateMessageParams) bool {
				return msg.Kind == chat.KindSystem && msg.Content == "alice has left the chat"
			})).Return(tc.removed, nil).Once()

			app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/chats/"+testDbChat.ExternalId+"/leave", nil)
			req = req.WithContext(WithUserId(req.Context(), testDbUser.Id))
			req = withVars(req, testDbChat.ExternalId)

			rr := httptest.NewRecorder()
			app.leaveChat(rr, req)

			if tc.expectedErr != nil {
				var apiErr ApiError
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr)
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
		})
	}
}

func Test_getMessages(t *testing.T) {
	fixedTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mockMessages := []database.Message{
		{Id: 2, ChatId: 1, SenderUsername: "bob", Content: "hi there", Kind: chat.KindText, CreatedAt: fixedTime},
		{Id: 1, ChatId: 1, SenderUsername: "alice", Content: "hello", Kind: chat.KindText, CreatedAt: fixedTime.Add(-time.Minute)},
	}

	tcases := []struct {
		name         string
		query        string
		isMember     bool
		queryBefore  time.Time
		queryLimit   int
		mockMessages []database.Message
		skipRepo     bool
		wantHasMore  bool
		wantContents []string
		expectedErr  *ApiError
	}{
		{
			name:         "returns chronological page with hasMore",
			query:        "?limit=2",
			isMember:     true,
			queryLimit:   2,
			mockMessages: mockMessages,
			wantHasMore:  true,
			wantContents: []string{"hello", "hi there"},
		},
		{
			name:         "defaults the limit",
			query:        "",
			isMember:     true,
			queryLimit:   chat.DefaultHistoryLimit,
			mockMessages: mockMessages,
			wantHasMore:  false,
			wantContents: []string{"hello", "hi there"},
		},
		{
			name:         "accepts an RFC 3339 before cursor",
			query:        "?limit=2&before=" + fixedTime.Format(time.RFC3339),
			isMember:     true,
			queryBefore:  fixedTime,
			queryLimit:   2,
			mockMessages: mockMessages[1:],
			wantHasMore:  false,
			wantContents: []string{"hello"},
		},
		{
			name:        "rejects a malformed before cursor",
			query:       "?before=yesterday",
			skipRepo:    true,
			expectedErr: NewValidationError("before must be an RFC 3339 timestamp or unix milliseconds"),
		},
		{
			name:        "rejects a non-numeric limit",
			query:       "?limit=all",
			skipRepo:    true,
			expectedErr: NewValidationError("limit must be an integer"),
		},
		{
			name:        "forbids non-participants",
			query:       "",
			isMember:    false,
			expectedErr: NewForbiddenError(chat.ErrNotParticipant.Error()),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if !tc.skipRepo {
				mockRepo.On("GetChatByExternalId", testDbChat.ExternalId).Return(testDbChat, nil).Once()
				mockRepo.On("IsParticipant", testDbChat.Id, testDbUser.Id).Return(tc.isMember, nil).Once()
				if tc.isMember {
					mockRepo.On("GetMessages", testDbChat.Id, tc.queryBefore, tc.queryLimit).Return(tc.mockMessages, nil).Once()
				}
			}

			app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{}, nil)

			req := httptest.NewRequest(http.MethodGet, "/api/chats/"+testDbChat.ExternalId+"/messages"+tc.query, nil)
			req = req.WithContext(WithUserId(req.Context(), testDbUser.Id))
			req = withVars(req, testDbChat.ExternalId)

			rr := httptest.NewRecorder()
			app.getMessages(rr, req)

			if tc.expectedErr != nil {
				var apiErr ApiError
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr)
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
			var resp MessagesResponse
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tc.wantHasMore, resp.HasMore)

			contents := make([]string, 0, len(resp.Messages))
			for _, m := range resp.Messages {
				contents = append(contents, m.Content)
			}
			assert.Equal(t, tc.wantContents, contents)
		})
	}
}

func Test_sendMessage(t *testing.T) {
	tcases := []struct {
		name        string
		body        any
		isMember    bool
		skipRepo    bool
		expectedErr *ApiError
	}{
		{
			name:     "sends a message",
			body:     SendMessageRequest{Content: "hello"},
			isMember: true,
		},
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			skipRepo:    true,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "rejects empty content",
			body:        SendMessageRequest{Content: "   "},
			skipRepo:    true,
			expectedErr: NewValidationError(chat.ErrEmptyContent.Error()),
		},
		{
			name:        "rejects unknown message type",
			body:        SendMessageRequest{Content: "hello", Type: "audio"},
			skipRepo:    true,
			expectedErr: NewValidationError(chat.ErrInvalidKind.Error()),
		},
		{
			name:        "forbids non-participants without writing",
			body:        SendMessageRequest{Content: "hello"},
			isMember:    false,
			expectedErr: NewForbiddenError(chat.ErrNotParticipant.Error()),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			su := &stats.MockStatsUpdater{}
			defer su.AssertExpectations(t)

			if !tc.skipRepo {
				mockRepo.On("GetChatByExternalId", testDbChat.ExternalId).Return(testDbChat, nil).Once()
				mockRepo.On("IsParticipant", testDbChat.Id, testDbUser.Id).Return(tc.isMember, nil).Once()
			}

			if tc.isMember {
				mockRepo.On("GetAccountById", testDbUser.Id).Return(testDbUser, nil).Once()
				mockRepo.On("CreateMessage", mock.MatchedBy(func(params database.CreateMessageParams) bool {
					return params.ChatId == testDbChat.Id &&
						params.SenderId == testDbUser.Id &&
						params.Content == "hello" &&
						params.Kind == chat.KindText
				})).Return(database.Message{
					Id:        1,
					ChatId:    testDbChat.Id,
					SenderId:  testDbUser.Id,
					Content:   "hello",
					Kind:      chat.KindText,
					CreatedAt: time.Now().UTC(),
				}, nil).Once()
				su.On("Incr", stats.MessagesPersisted).Once()
			}

			app := newTestApp(t, mockRepo, su, nil)

			var req *http.Request
			switch v := tc.body.(type) {
			case string:
				req = httptest.NewRequest(http.MethodPost, "/api/chats/"+testDbChat.ExternalId+"/messages", strings.NewReader(v))
			default:
				body, err := json.Marshal(v)
				assert.NoError(t, err)
				req = httptest.NewRequest(http.MethodPost, "/api/chats/"+testDbChat.ExternalId+"/messages", bytes.NewBuffer(body))
			}
			req = req.WithContext(WithUserId(req.Context(), testDbUser.Id))
			req = withVars(req, testDbChat.ExternalId)

			rr := httptest.NewRecorder()
			app.sendMessage(rr, req)

			if tc.expectedErr != nil {
				var apiErr ApiError
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr)
				return
			}

			assert.Equal(t, http.StatusCreated, rr.Code)
			var resp SentMessageResponse
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, testDbChat.ExternalId, resp.SentMessage.ChatId)
			assert.Equal(t, testDbUser.Username, resp.SentMessage.Sender.Username)
			assert.Equal(t, "hello", resp.SentMessage.Content)
		})
	}
}

func Test_serveWs_relayRoundTrip(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	logger := testutil.TestLogger(t)
	rl := relay.NewRelay(logger, su)
	go rl.Run()
	defer rl.Shutdown()

	app := newTestApp(t, &database.MockRepository{}, su, rl)

	srv := httptest.NewServer(http.HandlerFunc(app.serveWs))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	dial := func() *websocket.Conn {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
		return conn
	}

	connA := dial()
	defer connA.Close()
	connB := dial()
	defer connB.Close()

	join := func(conn *websocket.Conn) {
		assert.NoError(t, conn.WriteJSON(relay.ClientEvent{Event: relay.EventJoinRoom, RoomId: "r1"}))
	}

	join(connA)
	// give A's join time to land so B's join is observed second
	time.Sleep(100 * time.Millisecond)

	// A is notified once B joins, confirming both joins were processed
	join(connB)

	var joined relay.ServerEvent
	connA.SetReadDeadline(time.Now().Add(time.Second))
	assert.NoError(t, connA.ReadJSON(&joined))
	assert.Equal(t, relay.EventUserJoined, joined.Event)
	assert.Equal(t, "r1", joined.RoomId)

	assert.NoError(t, connA.WriteJSON(relay.ClientEvent{
		Event:  relay.EventSendMessage,
		RoomId: "r1",
		Data:   map[string]any{"content": "hello"},
	}))

	var received relay.ServerEvent
	connB.SetReadDeadline(time.Now().Add(time.Second))
	assert.NoError(t, connB.ReadJSON(&received))
	assert.Equal(t, relay.EventReceiveMessage, received.Event)
	assert.Equal(t, "r1", received.RoomId)
	assert.NotEmpty(t, received.Sender)
	assert.NotEqual(t, joined.User, received.Sender, "sender should be the first connection, not the joiner")
	assert.Equal(t, map[string]any{"content": "hello"}, received.Data)

	// the sender hears nothing back
	connA.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var echoed relay.ServerEvent
	assert.Error(t, connA.ReadJSON(&echoed), "sender should not receive its own message")
}
