package roslib

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MessageHandler receives each decoded message published on a topic.
type MessageHandler func(msg json.RawMessage)

// Topic is client-side bookkeeping for one named topic on a shared Ros
// socket. Subscriptions are keyed by handle so Unsubscribe can target one
// callback without disturbing the rest.
type Topic struct {
	ros  *Ros
	name string
	typ  string

	mu      sync.Mutex
	handles map[string]MessageHandler
	subID   string
}

// NewTopic returns the Topic for name, creating and registering it on
// first use. The message type identifier is sent verbatim to the bridge,
// e.g. "diagnostic_msgs/DiagnosticArray".
func NewTopic(ros *Ros, name, messageType string) *Topic {
	ros.mu.Lock()
	defer ros.mu.Unlock()
	if t, ok := ros.topics[name]; ok {
		return t
	}
	t := &Topic{
		ros:     ros,
		name:    name,
		typ:     messageType,
		handles: make(map[string]MessageHandler),
	}
	ros.topics[name] = t
	return t
}

// Name returns the topic name.
func (t *Topic) Name() string { return t.name }

// Subscribe registers cb for every message published on the topic and
// returns a handle for Unsubscribe. The subscribe op goes to the bridge
// on the first live callback; later callbacks reuse the existing
// subscription.
func (t *Topic) Subscribe(cb MessageHandler) string {
	handle := uuid.NewString()
	t.mu.Lock()
	t.handles[handle] = cb
	first := len(t.handles) == 1
	if first {
		t.subID = fmt.Sprintf("subscribe:%s:%s", t.name, uuid.NewString())
	}
	subID := t.subID
	t.mu.Unlock()

	if first {
		t.ros.send(bridgeOp{Op: "subscribe", ID: subID, Topic: t.name, Type: t.typ})
	}
	return handle
}

// Unsubscribe cancels the subscription for handle, or every subscription
// on the topic when handle is empty. The bridge-level unsubscribe is sent
// once the last callback is gone.
func (t *Topic) Unsubscribe(handle string) {
	t.mu.Lock()
	if handle == "" {
		t.handles = make(map[string]MessageHandler)
	} else {
		delete(t.handles, handle)
	}
	last := len(t.handles) == 0 && t.subID != ""
	subID := t.subID
	if last {
		t.subID = ""
	}
	t.mu.Unlock()

	if last {
		t.ros.send(bridgeOp{Op: "unsubscribe", ID: subID, Topic: t.name})
	}
}

// Publish sends msg on the topic. rosdash only publishes for test
// harnesses and troubleshooting; the panel itself is read-only.
func (t *Topic) Publish(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", t.name, err)
	}
	t.ros.send(bridgeOp{
		Op:    "publish",
		ID:    fmt.Sprintf("publish:%s:%s", t.name, uuid.NewString()),
		Topic: t.name,
		Msg:   data,
	})
	return nil
}

func (t *Topic) deliver(msg json.RawMessage) {
	t.mu.Lock()
	cbs := make([]MessageHandler, 0, len(t.handles))
	for _, cb := range t.handles {
		cbs = append(cbs, cb)
	}
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(msg)
	}
}

// announce re-sends the subscribe op on a fresh socket.
func (t *Topic) announce() {
	t.mu.Lock()
	if len(t.handles) == 0 {
		t.mu.Unlock()
		return
	}
	if t.subID == "" {
		t.subID = fmt.Sprintf("subscribe:%s:%s", t.name, uuid.NewString())
	}
	subID := t.subID
	t.mu.Unlock()
	t.ros.send(bridgeOp{Op: "subscribe", ID: subID, Topic: t.name, Type: t.typ})
}

// dropHandles is called by Ros.Close with ros.mu held; it must not call
// back into Ros.
func (t *Topic) dropHandles() {
	t.mu.Lock()
	t.handles = make(map[string]MessageHandler)
	t.subID = ""
	t.mu.Unlock()
}

func (t *Topic) handleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}
