package relay

import (
	"fmt"
	"log"

	"github.com/google/uuid"
)

const defaultSendQueue = 64

// Hub dispatches client messages to the registry and fans the results out
// to room members. Transports call Connect once per connection, then
// HandleMessage for every inbound message and Disconnect when it closes.
type Hub struct {
	registry *Registry
	router   *router
	conns    *broadcaster
	logger   *log.Logger

	sendQueue int
}

// Option configures a Hub.
type Option func(*Hub)

// WithRegistry makes the hub use an existing registry.
func WithRegistry(r *Registry) Option {
	return func(h *Hub) {
		if r != nil {
			h.registry = r
		}
	}
}

// WithLogger sets the logger used for room lifecycle and transport events.
func WithLogger(logger *log.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSendQueue sets how many outbound messages a connection may have
// queued before further messages to it are dropped.
func WithSendQueue(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendQueue = n
		}
	}
}

// NewHub constructs a hub with an empty registry unless one is supplied.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		router:    newRouter(),
		logger:    log.Default(),
		sendQueue: defaultSendQueue,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = NewRegistry()
	}
	h.conns = newBroadcaster(h.logger)
	return h
}

// Registry exposes the hub's room registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect registers a new connection under a fresh id.
func (h *Hub) Connect() *Conn {
	c := newConn(uuid.NewString(), h.sendQueue)
	h.conns.register(c)
	h.router.connect(c.ID)
	return c
}

// Disconnect unregisters the connection and removes its room membership.
// The connection's send channel is closed.
func (h *Hub) Disconnect(c *Conn) {
	code, bound := h.router.disconnect(c.ID)
	h.conns.unregister(c.ID)
	if bound {
		h.removeMember(c.ID, code)
	}
}

// HandleMessage processes one inbound message. Messages that cannot be
// parsed, have an unknown kind, or are room-scoped on a connection outside
// that room are ignored; the returned error then wraps ErrMalformedMessage
// or ErrNotMember. Messages on a disconnected connection return
// ErrConnClosed. Other errors have already been reported to the client.
// No error terminates the connection.
func (h *Hub) HandleMessage(c *Conn, raw []byte) error {
	if !c.Open() {
		return ErrConnClosed
	}
	msg, err := parseMessage(raw)
	if err != nil {
		return err
	}

	switch msg.Type {
	case kindCreateRoom:
		return h.createRoom(c, msg)
	case kindJoinRoom:
		return h.joinRoom(c, msg)
	case kindUpdateState:
		return h.updateState(c, msg)
	case kindLeaveRoom:
		return h.leaveRoom(c)
	case kindPing:
		h.conns.send(c.ID, pongMessage{Type: kindPong})
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type)
	}
}

func (h *Hub) createRoom(c *Conn, msg inboundMessage) error {
	name := msg.playerName()
	snap, _, err := h.registry.CreateRoom(name, c.ID, func(s Snapshot) {
		you, _ := s.Player(c.ID)
		h.conns.send(c.ID, newRoomMessage(kindRoomCreated, s, you))
	})
	if err != nil {
		return h.reject(c, err)
	}
	h.logger.Printf("relay: room %s created by %s (%s)", snap.Code, name, c.ID)
	return h.rebind(c, snap.Code)
}

func (h *Hub) joinRoom(c *Conn, msg inboundMessage) error {
	name := msg.playerName()
	snap, _, err := h.registry.JoinRoom(msg.RoomCode, name, c.ID, func(s Snapshot) {
		you, _ := s.Player(c.ID)
		h.conns.send(c.ID, newRoomMessage(kindRoomJoined, s, you))
		h.conns.broadcast(s, newPlayersUpdate(s))
	})
	if err != nil {
		return h.reject(c, err)
	}
	h.logger.Printf("relay: %s (%s) joined room %s", name, c.ID, snap.Code)
	return h.rebind(c, snap.Code)
}

// rebind binds c to the room it just entered and drops its previous
// membership. A connection that disconnected mid-request leaves again.
func (h *Hub) rebind(c *Conn, code string) error {
	prev, live := h.router.bind(c.ID, code)
	if !live {
		h.removeMember(c.ID, code)
		return ErrConnClosed
	}
	if prev != "" {
		h.removeMember(c.ID, prev)
	}
	return nil
}

func (h *Hub) updateState(c *Conn, msg inboundMessage) error {
	if _, bound := h.router.binding(c.ID); !bound {
		return fmt.Errorf("update on unbound connection: %w", ErrNotMember)
	}
	_, err := h.registry.UpdateState(msg.RoomCode, c.ID, msg.State, func(s Snapshot) {
		h.conns.broadcast(s, stateUpdateMessage{Type: kindStateUpdate, RoomCode: s.Code, State: s.State})
	})
	if err != nil {
		return h.reject(c, err)
	}
	return nil
}

func (h *Hub) leaveRoom(c *Conn) error {
	code, bound := h.router.binding(c.ID)
	if !bound {
		return fmt.Errorf("leave on unbound connection: %w", ErrNotMember)
	}
	h.router.unbind(c.ID)
	h.removeMember(c.ID, code)
	h.conns.send(c.ID, roomLeftMessage{Type: kindRoomLeft, RoomCode: code})
	return nil
}

func (h *Hub) removeMember(connID, code string) {
	deleted, err := h.registry.RemoveMember(code, connID, func(s Snapshot) {
		h.conns.broadcast(s, newPlayersUpdate(s))
	})
	if err != nil {
		h.logger.Printf("relay: remove %s from room %s: %v", connID, code, err)
		return
	}
	if deleted {
		h.logger.Printf("relay: room %s deleted (empty)", code)
	}
}

// reject reports err to the client when it has a client-facing message
// and hands it back for the transport to log.
func (h *Hub) reject(c *Conn, err error) error {
	if text := clientMessage(err); text != "" {
		h.conns.send(c.ID, errorMessage{Type: kindError, Message: text})
	}
	return err
}

// dispatch runs HandleMessage on behalf of a transport and logs the outcome.
func (h *Hub) dispatch(c *Conn, raw []byte) {
	if err := h.HandleMessage(c, raw); err != nil {
		h.logger.Printf("relay: message from %s: %v", c.ID, err)
	}
}
