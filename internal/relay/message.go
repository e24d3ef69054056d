package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message kinds on the wire.
const (
	kindCreateRoom    = "create-room"
	kindJoinRoom      = "join-room"
	kindUpdateState   = "update-state"
	kindLeaveRoom     = "leave-room"
	kindPing          = "ping"
	kindRoomCreated   = "room-created"
	kindRoomJoined    = "room-joined"
	kindRoomLeft      = "room-left"
	kindPlayersUpdate = "players-update"
	kindStateUpdate   = "state-update"
	kindPong          = "pong"
	kindError         = "error"
)

const defaultPlayerName = "Player"

// kindAliases accepts the camelCase kinds older clients send.
var kindAliases = map[string]string{
	"createRoom":  kindCreateRoom,
	"joinRoom":    kindJoinRoom,
	"updateState": kindUpdateState,
	"leaveRoom":   kindLeaveRoom,
}

type inboundMessage struct {
	Type       string          `json:"type"`
	RoomCode   string          `json:"roomCode"`
	PlayerName json.RawMessage `json:"playerName"`
	State      json.RawMessage `json:"state"`
}

func parseMessage(raw []byte) (inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return inboundMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return inboundMessage{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if kind, ok := kindAliases[msg.Type]; ok {
		msg.Type = kind
	}
	return msg, nil
}

// playerName returns the requested display name. Strings are used as is,
// other JSON values by their literal text; empty values get the default.
func (m inboundMessage) playerName() string {
	raw := bytes.TrimSpace(m.PlayerName)
	if isEmptyState(raw) {
		return defaultPlayerName
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	return string(raw)
}

type roomMessage struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"roomCode"`
	You      Player          `json:"you"`
	Players  []Player        `json:"players"`
	State    json.RawMessage `json:"state"`
}

func newRoomMessage(kind string, snap Snapshot, you Player) roomMessage {
	return roomMessage{
		Type:     kind,
		RoomCode: snap.Code,
		You:      you,
		Players:  snap.Players,
		State:    snap.State,
	}
}

type playersUpdateMessage struct {
	Type     string   `json:"type"`
	RoomCode string   `json:"roomCode"`
	Players  []Player `json:"players"`
}

func newPlayersUpdate(snap Snapshot) playersUpdateMessage {
	return playersUpdateMessage{Type: kindPlayersUpdate, RoomCode: snap.Code, Players: snap.Players}
}

type stateUpdateMessage struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"roomCode"`
	State    json.RawMessage `json:"state"`
}

type roomLeftMessage struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongMessage struct {
	Type string `json:"type"`
}
