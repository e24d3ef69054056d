package relay

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients are served from arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeHTTP upgrades the request to a WebSocket and relays messages until
// either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("relay: websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	c := h.Connect()
	h.logger.Printf("relay: websocket %s connected from %s", c.ID, ws.RemoteAddr())

	go h.writePump(ws, c)
	h.readPump(ws, c)
}

func (h *Hub) readPump(ws *websocket.Conn, c *Conn) {
	defer func() {
		h.Disconnect(c)
		ws.Close()
		h.logger.Printf("relay: websocket %s disconnected", c.ID)
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("relay: websocket %s read: %v", c.ID, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			h.logger.Printf("relay: websocket %s: %v: non-text frame", c.ID, ErrMalformedMessage)
			continue
		}
		h.dispatch(c, message)
	}
}

func (h *Hub) writePump(ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
