package presencesvc

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/editor"
	"github.com/trezcool/ripoti/core/report"
)

// EventRoster carries the members currently viewing a report.
const EventRoster = "presence.roster"

var ErrHubStopped = errors.New("presence hub is stopped")

// Member is a user connected to a report room.
type Member struct {
	UserID string      `json:"user_id"`
	Name   string      `json:"name"`
	Avatar string      `json:"avatar,omitempty"`
	Role   report.Role `json:"role"`
}

type envelope struct {
	reportID string
	payload  []byte
}

// Hub keeps one room of clients per report and fans events out to them.
// It implements editor.Broadcaster.
type Hub struct {
	logger   core.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan envelope
	done       chan struct{}
	stopOnce   sync.Once
}

var _ editor.Broadcaster = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the API authenticates the connection before upgrading it
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms:      make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.done:
			return

		case c := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[c.reportID]
			if !ok {
				room = make(map[*client]struct{})
				h.rooms[c.reportID] = room
			}
			room[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("presence: member joined", map[string]interface{}{"report": c.reportID, "user": c.member.UserID})
			h.pushRoster(c.reportID)

		case c := <-h.unregister:
			if h.remove(c) {
				h.logger.Debug("presence: member left", map[string]interface{}{"report": c.reportID, "user": c.member.UserID})
				h.pushRoster(c.reportID)
			}

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

// Stop shuts the hub down; connected clients are disconnected.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Serve upgrades the request to a websocket and joins the report room.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, reportID string, m Member) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}
	return h.Join(reportID, m, conn)
}

// Join registers conn in the report room and starts its pumps.
func (h *Hub) Join(reportID string, m Member, conn Conn) error {
	c := newClient(h, conn, reportID, m)
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return ErrHubStopped
	}
	go c.writePump()
	go c.readPump()
	return nil
}

// Broadcast pushes ev to every client of the report room. It never blocks on slow clients.
func (h *Hub) Broadcast(reportID string, ev editor.Event) {
	ev.ReportID = reportID
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("presence: encoding event", err, map[string]interface{}{"type": ev.Type})
		return
	}
	select {
	case h.broadcast <- envelope{reportID: reportID, payload: payload}:
	case <-h.done:
	default:
		h.logger.Warn("presence: broadcast queue full, event dropped", map[string]interface{}{"report": reportID, "type": ev.Type})
	}
}

// Members lists the distinct users of a report room, sorted by name.
func (h *Hub) Members(reportID string) []Member {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	members := make([]Member, 0, len(h.rooms[reportID]))
	for c := range h.rooms[reportID] {
		if seen[c.member.UserID] {
			continue
		}
		seen[c.member.UserID] = true
		members = append(members, c.member)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].UserID < members[j].UserID
	})
	return members
}

func (h *Hub) pushRoster(reportID string) {
	payload, err := json.Marshal(editor.Event{Type: EventRoster, ReportID: reportID, Data: h.Members(reportID)})
	if err != nil {
		h.logger.Error("presence: encoding roster", err)
		return
	}
	h.deliver(envelope{reportID: reportID, payload: payload})
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	var slow []*client
	for c := range h.rooms[env.reportID] {
		select {
		case c.send <- env.payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("presence: client too slow, disconnecting", map[string]interface{}{"report": c.reportID, "user": c.member.UserID})
		h.remove(c)
	}
}

// remove drops c from its room and closes its send queue. Reports whether c was registered.
func (h *Hub) remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.reportID]
	if !ok {
		return false
	}
	if _, ok := room[c]; !ok {
		return false
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.reportID)
	}
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		for c := range room {
			close(c.send)
		}
		delete(h.rooms, id)
	}
}
