package relay

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrInvalidState  = errors.New("missing state")
	ErrAlreadyMember = errors.New("already in this room")

	// ErrNotMember is returned when a player touches a room it does not belong to.
	ErrNotMember = errors.New("not a member of this room")

	// ErrConnClosed is returned for messages handled after Disconnect.
	ErrConnClosed = errors.New("connection closed")

	// ErrMalformedMessage marks inbound payloads that are dropped without a reply.
	ErrMalformedMessage = errors.New("malformed message")
)

// clientMessage returns the human-readable text sent to the client for err,
// or "" when err is not reported back.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found."
	case errors.Is(err, ErrRoomFull):
		return "Room is full."
	case errors.Is(err, ErrInvalidState):
		return "Missing state."
	case errors.Is(err, ErrAlreadyMember):
		return "Already in this room."
	default:
		return ""
	}
}
