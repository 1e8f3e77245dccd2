// Package roslib is a minimal rosbridge WebSocket client: one socket per
// Ros instance, named lifecycle events, and topic subscribe/unsubscribe
// bookkeeping layered on top. Retry policy deliberately does not live
// here; the monitor owns reconnection.
package roslib

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Lifecycle event names dispatched to listeners registered with On.
const (
	EventConnection = "connection"
	EventError      = "error"
	EventClose      = "close"
)

// EventHandler receives a lifecycle event. The argument is nil for
// connection/close and the underlying error for error events.
type EventHandler func(err error)

// bridgeOp is the rosbridge protocol envelope. Only the fields this
// client emits or consumes are modeled.
type bridgeOp struct {
	Op    string          `json:"op"`
	ID    string          `json:"id,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Type  string          `json:"type,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
}

// Ros manages one WebSocket connection to a rosbridge peer. Connect may
// be called repeatedly; each call supersedes the previous socket. All
// methods are safe for concurrent use.
type Ros struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	epoch       uint64
	listeners   map[string][]*listenerEntry
	listenerSeq uint64
	topics      map[string]*Topic
	closed      bool
}

type listenerEntry struct {
	id      uint64
	handler EventHandler
}

// NewRos returns a client with no socket; call Connect to dial.
func NewRos() *Ros {
	return &Ros{
		listeners: make(map[string][]*listenerEntry),
		topics:    make(map[string]*Topic),
	}
}

// On registers a handler for one of the lifecycle events. Multiple
// handlers per event are supported; registration order is dispatch order.
// The returned id is accepted by Off.
func (r *Ros) On(event string, handler EventHandler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listenerSeq++
	entry := &listenerEntry{id: r.listenerSeq, handler: handler}
	r.listeners[event] = append(r.listeners[event], entry)
	return entry.id
}

// Off removes a previously registered handler by id. Unknown ids are
// ignored.
func (r *Ros) Off(event string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.listeners[event]
	for i, e := range entries {
		if e.id == id {
			r.listeners[event] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Connect dials the bridge URL. A socket already open is closed first so
// the newest Connect call always wins; its read loop tags messages with
// an epoch so a superseded socket can never dispatch into the new
// session. Dial failures surface as an error event, not a return error,
// matching the event-driven contract the monitor is built on.
func (r *Ros) Connect(url string) {
	r.mu.Lock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.closed = false
	r.epoch++
	epoch := r.epoch
	r.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		r.dispatch(EventError, fmt.Errorf("dial %s: %w", url, err))
		r.dispatch(EventClose, nil)
		return
	}

	r.mu.Lock()
	if epoch != r.epoch || r.closed {
		// A newer Connect or a Close raced us; this socket is already stale.
		r.mu.Unlock()
		conn.Close()
		return
	}
	r.conn = conn
	r.mu.Unlock()

	go r.readLoop(conn, epoch)
	r.dispatch(EventConnection, nil)
	r.resubscribeAll()
}

// Close tears down the socket and invalidates all subscriptions. A close
// event is dispatched if a socket was open.
func (r *Ros) Close() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.closed = true
	r.epoch++
	for _, t := range r.topics {
		t.dropHandles()
	}
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
		r.dispatch(EventClose, nil)
	}
}

// Connected reports whether a socket is currently open.
func (r *Ros) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

func (r *Ros) readLoop(conn *websocket.Conn, epoch uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			stale := epoch != r.epoch
			if !stale {
				r.conn = nil
			}
			r.mu.Unlock()
			if stale {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.dispatch(EventError, err)
			}
			r.dispatch(EventClose, nil)
			return
		}

		var op bridgeOp
		if err := json.Unmarshal(data, &op); err != nil {
			r.dispatch(EventError, fmt.Errorf("bad frame: %w", err))
			continue
		}
		if op.Op == "publish" {
			r.deliver(op.Topic, op.Msg)
		}
	}
}

func (r *Ros) deliver(topic string, msg json.RawMessage) {
	r.mu.Lock()
	t := r.topics[topic]
	r.mu.Unlock()
	if t != nil {
		t.deliver(msg)
	}
}

func (r *Ros) dispatch(event string, err error) {
	r.mu.Lock()
	entries := append([]*listenerEntry(nil), r.listeners[event]...)
	r.mu.Unlock()
	for _, e := range entries {
		e.handler(err)
	}
}

// send marshals and writes one protocol op. Errors surface as error
// events so callers stay fire-and-forget.
func (r *Ros) send(op bridgeOp) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return
	}
	data, err := json.Marshal(op)
	if err != nil {
		r.dispatch(EventError, err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		r.dispatch(EventError, err)
	}
}

// resubscribeAll re-announces every topic with live callbacks on the new
// socket, so subscriptions made before (re)connecting still take effect.
func (r *Ros) resubscribeAll() {
	r.mu.Lock()
	topics := make([]*Topic, 0, len(r.topics))
	for _, t := range r.topics {
		if t.handleCount() > 0 {
			topics = append(topics, t)
		}
	}
	r.mu.Unlock()
	for _, t := range topics {
		t.announce()
	}
}
