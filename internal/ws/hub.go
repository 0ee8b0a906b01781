package ws

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultFlushInterval paces buffered room delivery: per-update
// emission is traded for one coalesced emission per tick.
const DefaultFlushInterval = 250 * time.Millisecond

// Hub is the broadcast multiplexer. It owns room membership,
// permission-gated subscription, the periodic buffer flush, and
// point-to-point delivery into parameterized sub-rooms.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	members map[string]map[Conn]struct{}
	joined  map[Conn]map[string]struct{}

	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHub builds a hub over a fixed room set.
func NewHub(logger *zap.Logger, interval time.Duration, rooms ...*Room) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	hub := &Hub{
		rooms:    make(map[string]*Room, len(rooms)),
		members:  make(map[string]map[Conn]struct{}),
		joined:   make(map[Conn]map[string]struct{}),
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	for _, room := range rooms {
		hub.rooms[room.Name] = room
	}
	return hub
}

// Run drives the periodic flush until Stop is called.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Flush()
		case <-h.stop:
			return
		}
	}
}

// Stop terminates the flush loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Subscribe joins the connection to the requested rooms. Rooms the
// connection's authority cannot access are skipped silently; an
// authorization failure is never surfaced past the multiplexer. A
// parameterized room requires its parameter in the query and delivers
// that sub-room's current snapshot immediately. Pending buffers are
// flushed first so the initial payload is never duplicated by the next
// tick. Returns an error only when no room could be joined.
func (h *Hub) Subscribe(conn Conn, roomNames []string, query map[string]string) error {
	h.Flush()

	authority := conn.Authority()
	requested := dedupe(roomNames)

	var welcomeRooms []*Room

	h.mu.Lock()
	joinedAny := false
	for _, name := range requested {
		room, ok := h.rooms[name]
		if !ok {
			continue
		}
		if room.Permission != "" && (authority == nil || !authority.HasPermission(room.Permission)) {
			continue
		}

		path := room.Name
		if room.Parameterized {
			param := query[room.ParamKey]
			if param == "" {
				h.logger.Warn("subscription to parameterized room without parameter",
					zap.String("room", room.Name))
				continue
			}
			path = SubRoomPath(room.Name, param)
		}

		h.joinLocked(conn, path)
		joinedAny = true
		if room.InitialData != nil {
			welcomeRooms = append(welcomeRooms, room)
		}
	}
	h.mu.Unlock()

	if !joinedAny {
		return fmt.Errorf("no joinable room requested")
	}
	// InitialData reaches into state guarded by locks outside the hub,
	// so it must never run while h.mu is held.
	for _, room := range welcomeRooms {
		if err := conn.Emit(room.EventName, room.InitialData(query)); err != nil {
			h.dropConn(conn)
			return err
		}
	}
	return nil
}

// Unsubscribe removes the connection from every room.
func (h *Hub) Unsubscribe(conn Conn) {
	h.mu.Lock()
	h.leaveAllLocked(conn)
	h.mu.Unlock()
}

// Publish replaces a snapshot room's pending value; delivery happens at
// the next flush.
func (h *Hub) Publish(roomName string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomName]
	if !ok {
		return fmt.Errorf("unknown room %q", roomName)
	}
	return room.publish(value)
}

// Buffer appends to a cumulative room's pending state. A shape
// mismatch is a programming error and is returned as one.
func (h *Hub) Buffer(roomName string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomName]
	if !ok {
		return fmt.Errorf("unknown room %q", roomName)
	}
	return room.appendBuffer(value)
}

// Flush emits every room's pending state to its current members and
// resets the buffers. This is the only path by which buffered updates
// reach subscribers.
func (h *Hub) Flush() {
	type emission struct {
		eventName string
		data      any
		targets   []Conn
	}
	var emissions []emission

	h.mu.Lock()
	for _, room := range h.rooms {
		if room.Parameterized {
			continue
		}
		value, pending := room.takePending()
		if !pending {
			continue
		}
		targets := h.membersLocked(room.Name)
		if len(targets) == 0 {
			continue
		}
		emissions = append(emissions, emission{eventName: room.EventName, data: value, targets: targets})
	}
	h.mu.Unlock()

	for _, e := range emissions {
		h.emitAll(e.targets, e.eventName, e.data)
	}
}

// SendDirect delivers an event to the members of one exact sub-room
// immediately, bypassing the periodic flush.
func (h *Hub) SendDirect(path, eventName string, data any) {
	h.mu.Lock()
	targets := h.membersLocked(path)
	h.mu.Unlock()
	h.emitAll(targets, eventName, data)
}

// Reauthorize re-evaluates one connection's authority and drops it from
// rooms it may no longer access.
func (h *Hub) Reauthorize(conn Conn) {
	authority := conn.Authority()
	h.mu.Lock()
	for path := range h.joined[conn] {
		room, ok := h.rooms[baseRoomName(path)]
		if !ok {
			continue
		}
		if room.Permission != "" && (authority == nil || !authority.HasPermission(room.Permission)) {
			h.leaveLocked(conn, path)
		}
	}
	h.mu.Unlock()
}

// ReauthorizeAll sweeps every connection, used when the admin set
// changes.
func (h *Hub) ReauthorizeAll() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.joined))
	for conn := range h.joined {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		h.Reauthorize(conn)
	}
}

func (h *Hub) emitAll(targets []Conn, eventName string, data any) {
	for _, conn := range targets {
		if err := conn.Emit(eventName, data); err != nil {
			h.logger.Debug("dropping subscriber after failed emit",
				zap.String("conn", conn.ID()), zap.Error(err))
			h.dropConn(conn)
		}
	}
}

func (h *Hub) dropConn(conn Conn) {
	h.mu.Lock()
	h.leaveAllLocked(conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *Hub) joinLocked(conn Conn, path string) {
	if h.members[path] == nil {
		h.members[path] = make(map[Conn]struct{})
	}
	h.members[path][conn] = struct{}{}
	if h.joined[conn] == nil {
		h.joined[conn] = make(map[string]struct{})
	}
	h.joined[conn][path] = struct{}{}
}

func (h *Hub) leaveLocked(conn Conn, path string) {
	if set, ok := h.members[path]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.members, path)
		}
	}
	if set, ok := h.joined[conn]; ok {
		delete(set, path)
		if len(set) == 0 {
			delete(h.joined, conn)
		}
	}
}

func (h *Hub) leaveAllLocked(conn Conn) {
	for path := range h.joined[conn] {
		if set, ok := h.members[path]; ok {
			delete(set, conn)
			if len(set) == 0 {
				delete(h.members, path)
			}
		}
	}
	delete(h.joined, conn)
}

func (h *Hub) membersLocked(path string) []Conn {
	set := h.members[path]
	if len(set) == 0 {
		return nil
	}
	targets := make([]Conn, 0, len(set))
	for conn := range set {
		targets = append(targets, conn)
	}
	return targets
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}
