package relay

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// DefaultAuthTimeout bounds how long a fresh connection may sit
// without completing the auth handshake.
const DefaultAuthTimeout = 5 * time.Second

// TokenVerifier resolves a bearer credential to a user id. A failed
// verification is an error value, never a panic.
type TokenVerifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

// Hub owns the state shared by all connections: the membership
// registry, the token verifier and the persistence worker. One Hub
// serves the whole process.
type Hub struct {
	registry    *Registry
	verifier    TokenVerifier
	persister   *Persister
	authTimeout time.Duration
	upgrader    websocket.Upgrader
}

func NewHub(verifier TokenVerifier, persister *Persister, authTimeout time.Duration) *Hub {
	if authTimeout <= 0 {
		authTimeout = DefaultAuthTimeout
	}
	return &Hub{
		registry:    NewRegistry(),
		verifier:    verifier,
		persister:   persister,
		authTimeout: authTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origin once the frontend domain is fixed
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request and starts the session pumps.
// Authentication happens in-band over the socket, so the route itself
// carries no middleware.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	s := newSession(h, conn)

	go s.writePump()
	go s.readPump()
}

// Broadcast fans payload out to every member of roomID except origin.
// Delivery is best effort and fire-and-forget: a recipient with a
// full or closed queue is logged and skipped, the loop continues, and
// nothing ever propagates back to the sender.
func (h *Hub) Broadcast(roomID int64, origin *Session, payload string) {
	frame, err := json.Marshal(broadcastFrame{Message: payload})
	if err != nil {
		log.Printf("broadcast: marshal payload for room %d: %v", roomID, err)
		return
	}

	for _, member := range h.registry.MembersOf(roomID) {
		if member == origin {
			continue
		}
		if err := member.enqueue(frame); err != nil {
			log.Printf("broadcast: dropping frame for session %s: %v", member.ID, err)
		}
	}
}
