package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping interval; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512 * 1024 // 512KB

	// Bound on the outbound queue; a consumer slower than this loses
	// frames instead of growing the process without limit.
	sendQueueSize = 256
)

// Session is the per-connection state machine. A fresh session is
// unauthenticated and expects the very first frame to be an auth
// request; once the token checks out it dispatches room and broadcast
// frames until the transport goes away.
//
// userID and room state are touched only by the session's own read
// pump, so frames from one connection are always handled in arrival
// order and those fields need no lock.
type Session struct {
	ID   uuid.UUID
	hub  *Hub
	conn *websocket.Conn

	send      chan []byte
	sendMu    sync.Mutex
	sendDone  bool
	closeOnce sync.Once

	authDone atomic.Bool

	userID string
	roomID int64
	inRoom bool
}

func newSession(hub *Hub, conn *websocket.Conn) *Session {
	return &Session{
		ID:   uuid.New(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// readPump drives the state machine: auth handshake first, then the
// persistent dispatch loop.
// Closing the transport is left to the write pump so that fatal
// replies buffered here still reach the client first.
func (s *Session) readPump() {
	defer s.teardown()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Bounds resource usage from clients that connect and never
	// authenticate.
	authTimer := time.AfterFunc(s.hub.authTimeout, func() {
		if s.authDone.Load() {
			return
		}
		s.enqueueJSON(authFailure{Error: "Authentication timeout"})
		s.shutSendQueue()
	})
	defer authTimer.Stop()

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return
	}
	if !s.handleAuth(raw) {
		return
	}
	authTimer.Stop()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("session %s: read error: %v", s.ID, err)
			}
			return
		}
		s.dispatch(raw)
	}
}

// writePump owns all writes to the underlying connection. When the
// send queue is shut it flushes what is buffered, sends a close frame
// and drops the transport.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleAuth consumes the one-shot first frame. Any structural
// problem or a rejected token is fatal to the connection; the client
// has to reconnect with a corrected payload.
func (s *Session) handleAuth(raw []byte) bool {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != TypeAuth || msg.Token == "" {
		s.enqueueJSON(authFailure{Error: "Invalid authentication message"})
		s.shutSendQueue()
		return false
	}

	userID, err := s.hub.verifier.Verify(context.Background(), msg.Token)
	if err != nil {
		log.Printf("session %s: auth rejected: %v", s.ID, err)
		s.enqueueJSON(authFailure{Error: "Invalid or expired token"})
		s.shutSendQueue()
		return false
	}

	s.authDone.Store(true)
	s.userID = userID
	s.enqueueJSON(authSuccess{Msg: "Authenticated successfully", UserID: userID})
	return true
}

// dispatch handles one authenticated frame. Malformed application
// frames are recoverable: the client is told and the connection stays
// open, unlike during the handshake.
func (s *Session) dispatch(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("session %s: undecodable frame: %v", s.ID, err)
		s.notify("Error while processing the message.")
		return
	}

	switch {
	case msg.Type == TypeJoinRoom && msg.RoomID != 0:
		s.handleJoin(msg.RoomID)
	case msg.Type == TypeLeaveRoom:
		s.handleLeave()
	case msg.Type == TypeMessage:
		s.handleBroadcast(&msg)
	default:
		s.notify("Invalid message type.")
	}
}

// handleJoin enforces one room per connection: joining a different
// room leaves the current one first.
func (s *Session) handleJoin(roomID int64) {
	if s.inRoom && s.roomID != roomID {
		if s.hub.registry.Leave(s, s.userID, s.roomID) {
			s.notify(fmt.Sprintf("Left room %d successfully.", s.roomID))
		}
		s.inRoom = false
	}

	if !s.hub.registry.Join(s, s.userID, roomID) {
		s.notify(fmt.Sprintf("You are already in room %d", roomID))
		return
	}

	s.roomID = roomID
	s.inRoom = true
	s.notify(fmt.Sprintf("Joined room %d successfully.", roomID))
}

func (s *Session) handleLeave() {
	if !s.inRoom {
		s.notify("You are not in any room.")
		return
	}

	roomID := s.roomID
	s.inRoom = false

	if !s.hub.registry.Leave(s, s.userID, roomID) {
		s.notify(fmt.Sprintf("You are not in room %d", roomID))
		return
	}
	s.notify(fmt.Sprintf("Left room %d successfully.", roomID))
}

func (s *Session) handleBroadcast(msg *clientMessage) {
	if !s.inRoom || !s.hub.registry.HasConnection(s.userID, s) {
		s.notify("Room not joined.")
		return
	}

	s.hub.Broadcast(s.roomID, s, msg.Message)

	if msg.DB {
		s.hub.persister.Enqueue(s.roomID, msg.Message)
	}
}

// teardown is the only membership cleanup path; there is no periodic
// reconciliation.
func (s *Session) teardown() {
	if s.inRoom && s.userID != "" {
		s.hub.registry.Leave(s, s.userID, s.roomID)
		s.inRoom = false
	}
	s.shutSendQueue()
}

func (s *Session) notify(text string) {
	s.enqueueJSON(notice{Msg: text})
}

func (s *Session) enqueueJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("session %s: marshal reply: %v", s.ID, err)
		return
	}
	if err := s.enqueue(data); err != nil {
		log.Printf("session %s: dropping reply: %v", s.ID, err)
	}
}

// enqueue hands a frame to the write pump without ever blocking the
// caller. Delivery is best effort.
func (s *Session) enqueue(data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.sendDone {
		return ErrSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSessionQueueFull
	}
}

// shutSendQueue closes the send channel exactly once. Frames already
// buffered are still flushed by the write pump before the close frame
// goes out.
func (s *Session) shutSendQueue() {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.sendDone = true
		close(s.send)
		s.sendMu.Unlock()
	})
}
