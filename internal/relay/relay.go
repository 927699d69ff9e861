package relay

import (
	"log"

	"github.com/termchat/termchat/internal/stats"
)

type reqOp int

const (
	opJoin reqOp = iota
	opLeave
	opMessage
)

func (op reqOp) String() string {
	switch op {
	case opJoin:
		return "join"
	case opLeave:
		return "leave"
	case opMessage:
		return "message"
	default:
		return "unknown"
	}
}

// request is a routed inbound event; data is only set for send_message.
type request struct {
	op     reqOp
	conn   *Conn
	roomId string
	data   map[string]any
}

// Relay fans join/leave/message events out to the members of a room. Room
// state is process-local and owned entirely by the Run loop: no membership
// check, persistence or authorization happens here - durable messages go
// through the chat service, and the relay trusts the caller's stated room.
// All room events flow through the one requestChan so a connection's
// join/leave/message sequence is processed in the order it was sent.
type Relay struct {
	log            *log.Logger
	stats          stats.StatsProvider
	rooms          map[string]map[*Conn]struct{}
	conns          map[*Conn]struct{}
	registerChan   chan *Conn
	unregisterChan chan *Conn
	requestChan    chan request
	stop           chan struct{}
	done           chan struct{}
}

func NewRelay(logger *log.Logger, sp stats.StatsProvider) *Relay {
	return &Relay{
		log:            logger,
		stats:          sp,
		rooms:          make(map[string]map[*Conn]struct{}),
		conns:          make(map[*Conn]struct{}),
		registerChan:   make(chan *Conn, 256),
		unregisterChan: make(chan *Conn, 256),
		requestChan:    make(chan request, 512),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Run owns all room state. It must be running before connections are
// registered and exits only on Shutdown.
func (r *Relay) Run() {
	for {
		select {
		case c := <-r.registerChan:
			r.log.Printf("registering connection %q", c.id)
			r.conns[c] = struct{}{}
			r.stats.Incr(stats.LiveConnections)
		case c := <-r.unregisterChan:
			r.handleDisconnect(c)
		case req := <-r.requestChan:
			switch req.op {
			case opJoin:
				r.handleJoin(req)
			case opLeave:
				r.handleLeave(req)
			case opMessage:
				r.handleMessage(req)
			}
		case <-r.stop:
			r.log.Println("closing relay connections")
			for c := range r.conns {
				c.close()
			}
			close(r.done)
			return
		}
	}
}

// Register adds a connection to the relay's bookkeeping. The connection
// joins no rooms until it sends join_room events.
func (r *Relay) Register(c *Conn) {
	r.registerChan <- c
}

// Shutdown stops the dispatch loop and closes every live connection.
func (r *Relay) Shutdown() {
	close(r.stop)
	<-r.done
}

func (r *Relay) enqueue(req request) {
	select {
	case r.requestChan <- req:
	default:
		r.log.Printf("request channel full, dropping %s for room %q", req.op, req.roomId)
	}
}

func (r *Relay) unregister(c *Conn) {
	select {
	case r.unregisterChan <- c:
	case <-r.done:
	}
}

func (r *Relay) handleJoin(req request) {
	members, ok := r.rooms[req.roomId]
	if !ok {
		members = make(map[*Conn]struct{})
		r.rooms[req.roomId] = members
		r.stats.Incr(stats.LiveRooms)
	}

	if _, ok := members[req.conn]; ok {
		// joining a room twice is a no-op
		return
	}

	members[req.conn] = struct{}{}
	req.conn.rooms[req.roomId] = struct{}{}
	r.log.Printf("connection %q joined room %q", req.conn.id, req.roomId)

	r.broadcast(req.roomId, userJoined(req.roomId, req.conn.id), req.conn)
}

func (r *Relay) handleLeave(req request) {
	if !r.removeFromRoom(req.conn, req.roomId) {
		r.log.Printf("connection %q not in room %q, dropping leave", req.conn.id, req.roomId)
		return
	}

	r.log.Printf("connection %q left room %q", req.conn.id, req.roomId)
	r.broadcast(req.roomId, userLeft(req.roomId, req.conn.id), req.conn)
}

func (r *Relay) handleMessage(req request) {
	if _, ok := r.rooms[req.roomId]; !ok {
		r.log.Printf("no members in room %q, dropping message", req.roomId)
		return
	}

	r.broadcast(req.roomId, receiveMessage(req.roomId, req.conn.id, req.data), req.conn)
	r.stats.Incr(stats.MessagesRelayed)
}

// handleDisconnect removes the connection from every room it joined.
// Peers get no notification beyond what explicit leaves already produced.
func (r *Relay) handleDisconnect(c *Conn) {
	if _, ok := r.conns[c]; !ok {
		return
	}

	r.log.Printf("removing connection %q", c.id)
	for roomId := range c.rooms {
		r.removeFromRoom(c, roomId)
	}

	delete(r.conns, c)
	r.stats.Decr(stats.LiveConnections)
	c.close()
}

func (r *Relay) removeFromRoom(c *Conn, roomId string) bool {
	members, ok := r.rooms[roomId]
	if !ok {
		return false
	}
	if _, ok := members[c]; !ok {
		return false
	}

	delete(members, c)
	delete(c.rooms, roomId)

	if len(members) == 0 {
		delete(r.rooms, roomId)
		r.stats.Decr(stats.LiveRooms)
	}

	return true
}

func (r *Relay) broadcast(roomId string, event *ServerEvent, skip *Conn) {
	for member := range r.rooms[roomId] {
		if member == skip {
			continue
		}

		member.queueEvent(event)
	}
}
