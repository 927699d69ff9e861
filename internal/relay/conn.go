package relay

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Conn is one websocket connection attached to the relay. Its rooms set
// is owned by the relay's dispatch loop and must not be touched elsewhere.
type Conn struct {
	id        string
	ws        *websocket.Conn
	relay     *Relay
	log       *log.Logger
	send      chan *ServerEvent
	rooms     map[string]struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, r *Relay, logger *log.Logger) *Conn {
	return &Conn{
		id:    uuid.NewString(),
		ws:    ws,
		relay: r,
		log:   logger,
		send:  make(chan *ServerEvent, 256),
		rooms: make(map[string]struct{}),
		stop:  make(chan struct{}),
	}
}

// Id returns the relay-scoped connection identifier carried on
// user_joined, user_left and receive_message events.
func (c *Conn) Id() string {
	return c.id
}

func (c *Conn) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(event)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Conn) Read() {
	defer func() {
		c.ws.Close()
		c.relay.unregister(c)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var event ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			// fire-and-forget: malformed events are dropped without
			// a response to the sender
			c.log.Printf("connection %q sent malformed event: %v", c.id, err)
			continue
		}

		c.dispatch(&event)
	}
}

func (c *Conn) dispatch(event *ClientEvent) {
	if event.RoomId == "" {
		c.log.Printf("connection %q sent %q without room id, dropping", c.id, event.Event)
		return
	}

	switch event.Event {
	case EventJoinRoom:
		c.relay.enqueue(request{op: opJoin, conn: c, roomId: event.RoomId})
	case EventLeaveRoom:
		c.relay.enqueue(request{op: opLeave, conn: c, roomId: event.RoomId})
	case EventSendMessage:
		c.relay.enqueue(request{op: opMessage, conn: c, roomId: event.RoomId, data: event.Data})
	default:
		c.log.Printf("connection %q sent unknown event %q, dropping", c.id, event.Event)
	}
}

func (c *Conn) queueEvent(event *ServerEvent) bool {
	select {
	case c.send <- event:
	default:
		c.log.Printf("send buffer full for connection %q, dropping event", c.id)
		return false
	}

	return true
}

func (c *Conn) writeMessage(msgType int, msg []byte) bool {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.ws.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
}
