package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/termchat/termchat/internal/chat"
	"github.com/termchat/termchat/internal/relay"
	"github.com/termchat/termchat/internal/types"
)

type CreateChatRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type SendMessageRequest struct {
	Content  string            `json:"content"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata"`
}

type ChatResponse struct {
	Chat types.Chat `json:"chat"`
}

type ChatListResponse struct {
	Chats []types.Chat `json:"chats"`
}

type MessagesResponse struct {
	Messages []types.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

type SentMessageResponse struct {
	SentMessage types.Message `json:"sentMessage"`
}

func (s *TermchatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *TermchatApp) listPublicChats(w http.ResponseWriter, _ *http.Request) {
	chats, err := s.chats.ListPublicChats()
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, ChatListResponse{Chats: chats})
}

func (s *TermchatApp) createChat(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newChat, err := s.chats.CreateChat(userId, chat.CreateChatParams{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
	})
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, ChatResponse{Chat: newChat})
}

func (s *TermchatApp) joinChat(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	joined, err := s.chats.JoinChat(mux.Vars(r)["id"], userId)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, ChatResponse{Chat: joined})
}

func (s *TermchatApp) leaveChat(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chats.LeaveChat(mux.Vars(r)["id"], userId); err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"message": "left chat"})
}

func (s *TermchatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var params chat.HistoryParams

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewValidationError("limit must be an integer")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		params.Limit = limit
	}

	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		before, err := parseBefore(beforeStr)
		if err != nil {
			errResp := NewValidationError("before must be an RFC 3339 timestamp or unix milliseconds")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		params.Before = before
	}

	messages, hasMore, err := s.chats.Messages(mux.Vars(r)["id"], userId, params)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, MessagesResponse{Messages: messages, HasMore: hasMore})
}

func (s *TermchatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.chats.SendMessage(mux.Vars(r)["id"], userId, chat.SendMessageParams{
		Content:  req.Content,
		Kind:     req.Type,
		Metadata: req.Metadata,
	})
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, SentMessageResponse{SentMessage: msg})
}

// parseBefore accepts an RFC 3339 timestamp or unix milliseconds.
func parseBefore(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	return time.UnixMilli(ms).UTC(), nil
}

func (s *TermchatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := relay.NewConn(conn, s.relay, s.log)
	s.relay.Register(client)
	go client.Write()
	go client.Read()
}
