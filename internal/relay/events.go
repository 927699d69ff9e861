package relay

import "time"

// Inbound event names.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
)

// Outbound event names.
const (
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventReceiveMessage = "receive_message"
)

// ClientEvent is the envelope for events received from a connection.
// Data carries the caller's opaque message payload for send_message.
type ClientEvent struct {
	Event  string         `json:"event"`
	RoomId string         `json:"room_id"`
	Data   map[string]any `json:"data,omitempty"`
}

// ServerEvent is the envelope for events fanned out to room members.
type ServerEvent struct {
	Event  string         `json:"event"`
	RoomId string         `json:"room_id"`
	User   string         `json:"user,omitempty"`
	Sender string         `json:"sender,omitempty"`
	Time   time.Time      `json:"time"`
	Data   map[string]any `json:"data,omitempty"`
}

func userJoined(roomId, connId string) *ServerEvent {
	return &ServerEvent{
		Event:  EventUserJoined,
		RoomId: roomId,
		User:   connId,
		Time:   Now(),
	}
}

func userLeft(roomId, connId string) *ServerEvent {
	return &ServerEvent{
		Event:  EventUserLeft,
		RoomId: roomId,
		User:   connId,
		Time:   Now(),
	}
}

func receiveMessage(roomId, sender string, data map[string]any) *ServerEvent {
	return &ServerEvent{
		Event:  EventReceiveMessage,
		RoomId: roomId,
		Sender: sender,
		Time:   Now(),
		Data:   data,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
