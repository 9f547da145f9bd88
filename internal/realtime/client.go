package realtime

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"erp-backend/internal/metrics"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Origins are enforced by the CORS layer in front of the API
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
)

const (
	sendBuffer     = 256
	maxMessageSize = 64 * 1024
)

// Client is one authenticated websocket connection.
type Client struct {
	ID     string
	UserID string
	Role   string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	closeOnce sync.Once
}

// NewClient builds a client for an upgraded connection. conn may be nil in
// tests, in which case only the Send channel is used.
func NewClient(hub *Hub, conn *websocket.Conn, userID, role string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		Hub:    hub,
	}
}

// enqueue never blocks. A full buffer drops the frame.
func (c *Client) enqueue(frame []byte) {
	if !c.tryEnqueue(frame) {
		metrics.RealtimeDropped.Inc()
	}
}

// tryEnqueue reports whether frame fit into the buffer.
func (c *Client) tryEnqueue(frame []byte) (ok bool) {
	defer func() {
		// Send may already be closed by a replacing connection
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *Client) reply(event string, data interface{}) {
	if f, err := frame(event, data); err == nil {
		c.enqueue(f)
	}
}

type roomRequest struct {
	Room string `json:"room"`
}

type chatRequest struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

type typingRequest struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"is_typing"`
}

// reservedRoom reports whether room is managed by the hub itself.
func reservedRoom(room string) bool {
	return strings.HasPrefix(room, "role_") || strings.HasPrefix(room, "user_")
}

// Handle processes one inbound frame from the client.
func (c *Client) Handle(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reply(EventError, map[string]string{"message": "Invalid message format"})
		return
	}

	h := c.Hub
	switch env.Event {
	case "join_room":
		var req roomRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.Room == "" {
			c.reply(EventError, map[string]string{"message": "Room is required"})
			return
		}
		if reservedRoom(req.Room) {
			c.reply(EventError, map[string]string{"message": "Cannot join reserved room"})
			return
		}
		h.JoinRoom(c.UserID, req.Room)
		c.reply(EventRoomJoined, map[string]string{"room": req.Room})

	case "leave_room":
		var req roomRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.Room == "" {
			c.reply(EventError, map[string]string{"message": "Room is required"})
			return
		}
		if reservedRoom(req.Room) {
			c.reply(EventError, map[string]string{"message": "Cannot leave reserved room"})
			return
		}
		h.LeaveRoom(c.UserID, req.Room)
		c.reply(EventRoomLeft, map[string]string{"room": req.Room})

	case "send_message":
		var req chatRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.Room == "" || req.Message == "" {
			c.reply(EventError, map[string]string{"message": "Room and message are required"})
			return
		}
		if !h.InRoom(c.UserID, req.Room) {
			c.reply(EventError, map[string]string{"message": "Not a member of room"})
			return
		}
		h.Emit([]string{req.Room}, "", EventNewMessage, map[string]interface{}{
			"type":      "chat",
			"room":      req.Room,
			"user_id":   c.UserID,
			"message":   req.Message,
			"timestamp": h.now(),
		})

	case "typing":
		var req typingRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.Room == "" {
			return
		}
		if !h.InRoom(c.UserID, req.Room) {
			return
		}
		h.Emit([]string{req.Room}, c.UserID, EventUserTyping, map[string]interface{}{
			"room":      req.Room,
			"user_id":   c.UserID,
			"is_typing": req.IsTyping,
		})

	case "ping":
		c.reply(EventPong, map[string]interface{}{"timestamp": h.now()})

	default:
		c.reply(EventError, map[string]string{"message": "Unknown event: " + env.Event})
	}
}

// ReadPump handles incoming frames until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Debug().Err(err).Str("client_id", c.ID).Msg("read error")
			}
			return
		}
		c.Handle(message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			if len(c.Send) == 0 {
				c.Hub.Flush(c)
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request and attaches the connection to the hub as
// userID. Authentication happens before this is called.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID, role string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := NewClient(h, conn, userID, role)
	h.Register(c)

	go c.WritePump()
	go c.ReadPump()
	return nil
}
