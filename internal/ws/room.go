package ws

import (
	"fmt"
	"strings"
)

// BufferKind selects a room's outbound buffering behavior. The kind is
// fixed at construction; a room never changes shape at runtime.
type BufferKind int

const (
	// BufferSnapshot holds exactly one current value, overwritten on
	// each publish and delivered whole at the next flush.
	BufferSnapshot BufferKind = iota
	// BufferList accumulates appended values and delivers them as one
	// batch per flush.
	BufferList
	// BufferText accumulates appended strings into one text chunk per
	// flush.
	BufferText
)

// InitialDataFunc computes the payload a subscriber receives on join.
// For parameterized rooms the query carries the sub-room parameters.
// The hub invokes it outside its own lock, so implementations may take
// service or entity locks.
type InitialDataFunc func(query map[string]string) any

// Room describes one broadcast channel. Parameterized rooms fan out
// into sub-rooms addressed as "name#<param>"; their initial data is
// computed on demand and they receive only direct deliveries, never
// flushed buffers.
type Room struct {
	Name          string
	EventName     string
	Permission    string // empty means no capability required
	Kind          BufferKind
	Parameterized bool
	ParamKey      string
	InitialData   InitialDataFunc

	snapshot    any
	hasSnapshot bool
	listBuf     []any
	textBuf     strings.Builder
}

func (r *Room) publish(value any) error {
	if r.Kind != BufferSnapshot {
		return fmt.Errorf("room %q does not hold snapshots", r.Name)
	}
	r.snapshot = value
	r.hasSnapshot = true
	return nil
}

func (r *Room) appendBuffer(value any) error {
	switch r.Kind {
	case BufferList:
		if values, ok := value.([]any); ok {
			r.listBuf = append(r.listBuf, values...)
			return nil
		}
		r.listBuf = append(r.listBuf, value)
		return nil
	case BufferText:
		text, ok := value.(string)
		if !ok {
			return fmt.Errorf("room %q buffers text, got %T", r.Name, value)
		}
		r.textBuf.WriteString(text)
		return nil
	default:
		return fmt.Errorf("room %q is not cumulative", r.Name)
	}
}

// takePending returns and clears the pending outbound state, reporting
// whether there was anything to send.
func (r *Room) takePending() (any, bool) {
	switch r.Kind {
	case BufferSnapshot:
		if !r.hasSnapshot {
			return nil, false
		}
		value := r.snapshot
		r.snapshot = nil
		r.hasSnapshot = false
		return value, true
	case BufferList:
		if len(r.listBuf) == 0 {
			return nil, false
		}
		values := r.listBuf
		r.listBuf = nil
		return values, true
	case BufferText:
		if r.textBuf.Len() == 0 {
			return nil, false
		}
		text := r.textBuf.String()
		r.textBuf.Reset()
		return text, true
	}
	return nil, false
}

// SubRoomPath builds the parameterized membership key, e.g. "report#<id>".
func SubRoomPath(name, param string) string {
	return name + "#" + param
}

// baseRoomName strips the sub-room parameter from a membership key.
func baseRoomName(path string) string {
	if i := strings.IndexByte(path, '#'); i >= 0 {
		return path[:i]
	}
	return path
}
