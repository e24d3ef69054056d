package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// Player is a room member as seen by clients. ID is the id of the
// connection that owns the membership.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slot Slot   `json:"slot"`
}

// Snapshot is a copy of a room taken while the room was locked.
type Snapshot struct {
	Code    string
	State   json.RawMessage
	Players []Player
}

// Player returns the member with the given id.
func (s Snapshot) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Room holds the membership and state of one live room. All access goes
// through the Registry.
type Room struct {
	code string

	mu      sync.Mutex
	closed  bool
	state   json.RawMessage
	members []Player
}

func (r *Room) snapshotLocked() Snapshot {
	players := make([]Player, len(r.members))
	copy(players, r.members)
	return Snapshot{Code: r.code, State: r.state, Players: players}
}

func (r *Room) slotsLocked() []Slot {
	slots := make([]Slot, len(r.members))
	for i, p := range r.members {
		slots[i] = p.Slot
	}
	return slots
}

func (r *Room) indexLocked(playerID string) int {
	for i, p := range r.members {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// Commit receives the snapshot of a room right after a mutation, while the
// room is still locked. Commits for one room run in mutation order and must
// not block.
type Commit func(Snapshot)

// Registry owns every live room. The table lock is never held while
// waiting on a room lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	codes   CodeGenerator
	palette []Slot
}

// RegistryOption configures optional behavior on a Registry.
type RegistryOption func(*Registry)

// WithCodeGenerator overrides the random room code source.
func WithCodeGenerator(g CodeGenerator) RegistryOption {
	return func(r *Registry) {
		if g != nil {
			r.codes = g
		}
	}
}

// WithPalette overrides the slot palette and therefore the room capacity.
func WithPalette(palette []Slot) RegistryOption {
	return func(r *Registry) {
		r.palette = append([]Slot(nil), palette...)
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms:   make(map[string]*Room),
		palette: Palette,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.codes == nil {
		r.codes = newRandomCodeGenerator()
	}
	return r
}

// CreateRoom opens a room under a fresh code with the creator as its only member.
func (r *Registry) CreateRoom(name, playerID string, commit Commit) (Snapshot, Player, error) {
	slot, ok := assignSlot(r.palette, nil)
	if !ok {
		return Snapshot{}, Player{}, fmt.Errorf("create room: %w", ErrRoomFull)
	}
	player := Player{ID: playerID, Name: name, Slot: slot}

	r.mu.Lock()
	code := r.codes.Next()
	for r.rooms[code] != nil {
		code = r.codes.Next()
	}
	room := &Room{code: code, members: []Player{player}}
	// Unpublished, so this cannot block while the table lock is held.
	room.mu.Lock()
	r.rooms[code] = room
	r.mu.Unlock()
	defer room.mu.Unlock()

	snap := room.snapshotLocked()
	if commit != nil {
		commit(snap)
	}
	return snap, player, nil
}

// JoinRoom appends a player to the room with the given code.
func (r *Registry) JoinRoom(code, name, playerID string, commit Commit) (Snapshot, Player, error) {
	code = normalizeCode(code)
	room := r.lookup(code)
	if room == nil {
		return Snapshot{}, Player{}, fmt.Errorf("join %q: %w", code, ErrRoomNotFound)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return Snapshot{}, Player{}, fmt.Errorf("join %q: %w", code, ErrRoomNotFound)
	}
	if room.indexLocked(playerID) >= 0 {
		return Snapshot{}, Player{}, fmt.Errorf("join %q: %w", code, ErrAlreadyMember)
	}
	slot, ok := assignSlot(r.palette, room.slotsLocked())
	if !ok {
		return Snapshot{}, Player{}, fmt.Errorf("join %q: %w", code, ErrRoomFull)
	}

	player := Player{ID: playerID, Name: name, Slot: slot}
	room.members = append(room.members, player)

	snap := room.snapshotLocked()
	if commit != nil {
		commit(snap)
	}
	return snap, player, nil
}

// UpdateState replaces the room state with state verbatim.
func (r *Registry) UpdateState(code, playerID string, state json.RawMessage, commit Commit) (Snapshot, error) {
	code = normalizeCode(code)
	room := r.lookup(code)
	if room == nil {
		return Snapshot{}, fmt.Errorf("update %q: %w", code, ErrRoomNotFound)
	}
	if isEmptyState(state) {
		return Snapshot{}, fmt.Errorf("update %q: %w", code, ErrInvalidState)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return Snapshot{}, fmt.Errorf("update %q: %w", code, ErrRoomNotFound)
	}
	if room.indexLocked(playerID) < 0 {
		return Snapshot{}, fmt.Errorf("update %q: %w", code, ErrNotMember)
	}

	room.state = append(json.RawMessage(nil), state...)

	snap := room.snapshotLocked()
	if commit != nil {
		commit(snap)
	}
	return snap, nil
}

// RemoveMember drops a player from a room. It reports whether the room was
// deleted because it became empty; commit only runs when it was not.
func (r *Registry) RemoveMember(code, playerID string, commit Commit) (bool, error) {
	code = normalizeCode(code)
	room := r.lookup(code)
	if room == nil {
		return false, fmt.Errorf("remove from %q: %w", code, ErrRoomNotFound)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return false, fmt.Errorf("remove from %q: %w", code, ErrRoomNotFound)
	}
	idx := room.indexLocked(playerID)
	if idx < 0 {
		return false, fmt.Errorf("remove from %q: %w", code, ErrNotMember)
	}
	room.members = append(room.members[:idx], room.members[idx+1:]...)

	if len(room.members) == 0 {
		room.closed = true
		r.mu.Lock()
		if r.rooms[code] == room {
			delete(r.rooms, code)
		}
		r.mu.Unlock()
		return true, nil
	}

	if commit != nil {
		commit(room.snapshotLocked())
	}
	return false, nil
}

// Lookup returns a snapshot of the room with the given code.
func (r *Registry) Lookup(code string) (Snapshot, error) {
	code = normalizeCode(code)
	room := r.lookup(code)
	if room == nil {
		return Snapshot{}, fmt.Errorf("lookup %q: %w", code, ErrRoomNotFound)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return Snapshot{}, fmt.Errorf("lookup %q: %w", code, ErrRoomNotFound)
	}
	return room.snapshotLocked(), nil
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) lookup(code string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[code]
}

// isEmptyState reports whether a state payload counts as missing: absent,
// null, false, zero or the empty string.
func isEmptyState(state json.RawMessage) bool {
	trimmed := bytes.TrimSpace(state)
	switch string(trimmed) {
	case "", "null", "false", `""`:
		return true
	}
	var n float64
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n == 0
	}
	return false
}
