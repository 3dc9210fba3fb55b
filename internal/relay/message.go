package relay

// Client message types. The first frame of every connection must be
// TypeAuth; everything else is only valid after authentication.
const (
	TypeAuth      = "auth"
	TypeJoinRoom  = "join_room"
	TypeLeaveRoom = "leave_room"
	TypeMessage   = "message"
)

// clientMessage is the envelope every inbound frame decodes into.
// Which fields matter depends on Type.
type clientMessage struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	RoomID  int64  `json:"roomId,omitempty"`
	Message string `json:"message,omitempty"`
	DB      bool   `json:"db,omitempty"`
}

// notice is an informational reply; the connection stays open.
type notice struct {
	Msg string `json:"msg"`
}

// authFailure is fatal; the connection closes right after it is sent.
type authFailure struct {
	Error string `json:"error"`
}

type authSuccess struct {
	Msg    string `json:"msg"`
	UserID string `json:"userId"`
}

// broadcastFrame is what room members receive when another member
// pushes a drawing-state update.
type broadcastFrame struct {
	Message string `json:"message"`
}
