// Package realtime relays notifications to connected users over websockets.
//
// Delivery is best effort: there is no acknowledgement and nothing survives
// a restart. Notifications addressed to a single offline user are queued in
// memory and flushed, oldest first, when that user next connects.
package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"erp-backend/internal/logging"
	"erp-backend/internal/metrics"
	"erp-backend/internal/timeutil"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server events
const (
	EventConnected    = "connected"
	EventNotification = "notification"
	EventNewMessage   = "new_message"
	EventUserTyping   = "user_typing"
	EventRoomJoined   = "room_joined"
	EventRoomLeft     = "room_left"
	EventError        = "error"
	EventPong         = "pong"
)

// Envelope is the wire format of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Notification is the payload of a "notification" event.
type Notification struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title,omitempty"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Level     string                 `json:"level,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Outbound is a frame addressed to the union of members of Rooms, minus
// Exclude. It is what crosses the NATS bridge between instances.
type Outbound struct {
	Rooms   []string        `json:"rooms,omitempty"`
	All     bool            `json:"all,omitempty"`
	Exclude string          `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

// Publisher fans an Outbound out to every instance, this one included.
type Publisher interface {
	Publish(msg Outbound) error
}

type queued struct {
	n        Notification
	queuedAt time.Time
}

type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client             // by user id
	rooms   map[string]map[string]struct{} // room -> user ids
	pending map[string][]queued            // user id -> FIFO queue
	queued  int

	maxAge    time.Duration
	now       timeutil.Clock
	publisher Publisher
	log       zerolog.Logger
}

func NewHub(maxAge time.Duration, clock timeutil.Clock) *Hub {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
		pending: make(map[string][]queued),
		maxAge:  maxAge,
		now:     clock,
		log:     logging.For("realtime"),
	}
}

// SetPublisher routes room, role and broadcast fan-out through p.
func (h *Hub) SetPublisher(p Publisher) {
	h.mu.Lock()
	h.publisher = p
	h.mu.Unlock()
}

func RoleRoom(role string) string   { return "role_" + role }
func UserRoom(userID string) string { return "user_" + userID }
func ProjectRoom(id string) string  { return "project_" + id }

func frame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Register adds c, replacing any earlier connection of the same user, joins
// its role and personal rooms, greets it and flushes its queue.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[c.UserID]; ok && old != c {
		h.removeLocked(old)
	}
	h.clients[c.UserID] = c
	h.joinLocked(c.UserID, RoleRoom(c.Role))
	h.joinLocked(c.UserID, UserRoom(c.UserID))
	metrics.RealtimeConnectedClients.Set(float64(len(h.clients)))

	if f, err := frame(EventConnected, map[string]interface{}{
		"user_id":   c.UserID,
		"role":      c.Role,
		"timestamp": h.now(),
	}); err == nil {
		c.enqueue(f)
	}

	flushed := h.flushLocked(c)
	h.log.Info().
		Str("user_id", c.UserID).
		Str("role", c.Role).
		Int("flushed", flushed).
		Int("still_queued", len(h.pending[c.UserID])).
		Msg("client connected")
}

// Flush moves as much of c's queue as its buffer takes. The write pump calls
// it whenever the buffer runs empty, so a long queue drains in order.
func (h *Hub) Flush(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.UserID]; !ok || cur != c {
		return 0
	}
	return h.flushLocked(c)
}

// flushLocked moves queued notifications into c's buffer, oldest first,
// stopping at the first one that does not fit. Only moved entries leave the
// queue.
func (h *Hub) flushLocked(c *Client) int {
	queue := h.pending[c.UserID]
	moved := 0
	for _, q := range queue {
		f, err := frame(EventNotification, q.n)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", c.UserID).Msg("drop unencodable notification")
		} else if !c.tryEnqueue(f) {
			break
		}
		moved++
	}
	if moved == 0 {
		return 0
	}
	if moved == len(queue) {
		delete(h.pending, c.UserID)
	} else {
		h.pending[c.UserID] = queue[moved:]
	}
	h.queued -= moved
	metrics.RealtimeQueuedNotifications.Set(float64(h.queued))
	return moved
}

// Unregister removes c if it is still the user's current connection.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.UserID]; ok && cur == c {
		h.removeLocked(c)
		h.log.Info().Str("user_id", c.UserID).Msg("client disconnected")
	}
}

func (h *Hub) removeLocked(c *Client) {
	delete(h.clients, c.UserID)
	for room, members := range h.rooms {
		delete(members, c.UserID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.close()
	metrics.RealtimeConnectedClients.Set(float64(len(h.clients)))
}

func (h *Hub) joinLocked(userID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[userID] = struct{}{}
}

// JoinRoom adds a connected user to room.
func (h *Hub) JoinRoom(userID, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID]; !ok {
		return false
	}
	h.joinLocked(userID, room)
	return true
}

func (h *Hub) LeaveRoom(userID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether userID has joined room.
func (h *Hub) InRoom(userID, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[room][userID]
	return ok
}

// IsOnline reports whether userID has a live connection here.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[userID]
	return ok
}

// SendToUser delivers n to userID, or queues it when the user is offline,
// still has an undelivered backlog, or has a full buffer. It returns true
// when the notification went straight to a connection.
func (h *Hub) SendToUser(userID string, n Notification) bool {
	n = h.stamp(n)
	f, err := frame(EventNotification, n)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("encode notification")
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[userID]; ok && len(h.pending[userID]) == 0 && c.tryEnqueue(f) {
		return true
	}

	h.pending[userID] = append(h.pending[userID], queued{n: n, queuedAt: h.now()})
	h.queued++
	metrics.RealtimeQueuedNotifications.Set(float64(h.queued))
	return false
}

// SendToRooms delivers a notification to every member of the given rooms.
func (h *Hub) SendToRooms(rooms []string, n Notification) {
	h.Emit(rooms, "", EventNotification, h.stamp(n))
}

// SendToRole delivers a notification to every connected user with role.
func (h *Hub) SendToRole(role string, n Notification) {
	h.SendToRooms([]string{RoleRoom(role)}, n)
}

// Broadcast delivers a notification to everyone connected.
func (h *Hub) Broadcast(n Notification) {
	f, err := frame(EventNotification, h.stamp(n))
	if err != nil {
		h.log.Error().Err(err).Msg("encode broadcast")
		return
	}
	h.fanout(Outbound{All: true, Frame: f})
}

// Emit sends an arbitrary event to the members of rooms, skipping exclude.
func (h *Hub) Emit(rooms []string, exclude, event string, data interface{}) {
	f, err := frame(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode frame")
		return
	}
	h.fanout(Outbound{Rooms: rooms, Exclude: exclude, Frame: f})
}

func (h *Hub) fanout(msg Outbound) {
	h.mu.Lock()
	p := h.publisher
	h.mu.Unlock()

	if p != nil {
		err := p.Publish(msg)
		if err == nil {
			return
		}
		h.log.Warn().Err(err).Msg("publish failed, delivering locally")
	}
	h.Deliver(msg)
}

// Deliver hands an Outbound to the matching local connections. Each user
// receives the frame once even when they sit in several target rooms.
func (h *Hub) Deliver(msg Outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.All {
		for id, c := range h.clients {
			if id != msg.Exclude {
				c.enqueue(msg.Frame)
			}
		}
		return
	}

	seen := make(map[string]struct{})
	for _, room := range msg.Rooms {
		for id := range h.rooms[room] {
			if id == msg.Exclude {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if c, ok := h.clients[id]; ok {
				c.enqueue(msg.Frame)
			}
		}
	}
}

func (h *Hub) stamp(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = h.now()
	}
	return n
}

// Pending returns a copy of userID's queued notifications, oldest first.
func (h *Hub) Pending(userID string) []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, 0, len(h.pending[userID]))
	for _, q := range h.pending[userID] {
		out = append(out, q.n)
	}
	return out
}

// Cleanup drops queued notifications older than the configured horizon and
// returns how many were removed.
func (h *Hub) Cleanup() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-h.maxAge)
	removed := 0
	for user, queue := range h.pending {
		kept := queue[:0]
		for _, q := range queue {
			if q.queuedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, q)
		}
		if len(kept) == 0 {
			delete(h.pending, user)
		} else {
			h.pending[user] = kept
		}
	}
	h.queued -= removed
	metrics.RealtimeQueuedNotifications.Set(float64(h.queued))
	if removed > 0 {
		metrics.RealtimeDropped.Add(float64(removed))
		h.log.Info().Int("removed", removed).Msg("expired queued notifications")
	}
	return removed
}

// Run sweeps the offline queue every interval until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-ticker.C:
			h.Cleanup()
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.removeLocked(c)
	}
}

// Stats describes the live registry.
type Stats struct {
	TotalConnected int            `json:"total_connected"`
	UsersByRole    map[string]int `json:"users_by_role"`
	ActiveRooms    []string       `json:"active_rooms"`
	QueuedTotal    int            `json:"queued_notifications"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{
		TotalConnected: len(h.clients),
		UsersByRole:    make(map[string]int),
		ActiveRooms:    make([]string, 0, len(h.rooms)),
		QueuedTotal:    h.queued,
	}
	for _, c := range h.clients {
		s.UsersByRole[c.Role]++
	}
	for room := range h.rooms {
		s.ActiveRooms = append(s.ActiveRooms, room)
	}
	sort.Strings(s.ActiveRooms)
	return s
}
