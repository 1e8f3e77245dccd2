package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rosdash/internal/diagnostics"
)

type bridgeFrame struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic,omitempty"`
	Type  string          `json:"type,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
}

// scriptedBridge plays the rosbridge side: it accepts connections,
// surfaces subscribe ops, and lets tests publish diagnostics or kill the
// link.
type scriptedBridge struct {
	srv        *httptest.Server
	subscribes chan bridgeFrame

	mu       sync.Mutex
	conns    []*websocket.Conn
	accepted int
}

func newScriptedBridge(t *testing.T) *scriptedBridge {
	t.Helper()
	b := &scriptedBridge{subscribes: make(chan bridgeFrame, 8)}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.accepted++
		b.mu.Unlock()
		for {
			var frame bridgeFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Op == "subscribe" {
				b.subscribes <- frame
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *scriptedBridge) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *scriptedBridge) acceptedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepted
}

func (b *scriptedBridge) publish(t *testing.T, topic string, msg interface{}) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		t.Fatalf("no bridge connection")
	}
	conn := b.conns[len(b.conns)-1]
	if err := conn.WriteJSON(bridgeFrame{Op: "publish", Topic: topic, Msg: data}); err != nil {
		t.Fatalf("bridge publish: %v", err)
	}
}

// closeNormal ends every session with a normal close frame, the way a
// bridge shutting down gracefully does.
func (b *scriptedBridge) closeNormal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
	b.conns = nil
}

func (b *scriptedBridge) dropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		conn.Close()
	}
	b.conns = nil
}

func (b *scriptedBridge) waitSubscribe(t *testing.T) bridgeFrame {
	t.Helper()
	select {
	case frame := <-b.subscribes:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for subscribe op")
		return bridgeFrame{}
	}
}

func diagArray(stampSec int64, statuses ...map[string]interface{}) map[string]interface{} {
	msg := map[string]interface{}{"status": statuses}
	if stampSec > 0 {
		msg["header"] = map[string]interface{}{
			"stamp": map[string]interface{}{"sec": stampSec, "nanosec": 0},
		}
	}
	return msg
}

func status(name, message string, level int) map[string]interface{} {
	return map[string]interface{}{"name": name, "message": message, "level": level}
}

func startMonitor(t *testing.T, b *scriptedBridge, opts Options) (*Monitor, chan Update) {
	t.Helper()
	opts.URL = b.url()
	if opts.Namespace == "" {
		opts.Namespace = "/robot"
	}
	m := New(opts)
	updates := make(chan Update, 64)
	m.Observe(func(u Update) { updates <- u })
	m.Start()
	t.Cleanup(m.Stop)
	return m, updates
}

func waitUpdate(t *testing.T, updates <-chan Update, match func(Update) bool, what string) Update {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case u := <-updates:
			if match(u) {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestConnectSubscribesAndDeliversSnapshot(t *testing.T) {
	bridge := newScriptedBridge(t)
	m, updates := startMonitor(t, bridge, Options{})

	frame := bridge.waitSubscribe(t)
	if frame.Topic != "/robot/diagnostics_agg" {
		t.Fatalf("expected subscription to /robot/diagnostics_agg, got %q", frame.Topic)
	}
	if frame.Type != DiagnosticsTopicType {
		t.Fatalf("expected message type %q, got %q", DiagnosticsTopicType, frame.Type)
	}

	bridge.publish(t, frame.Topic, diagArray(1700000000,
		status("/robot/battery", "OK", 0),
		status("/robot/battery/cell1", "Low", 1),
	))

	u := waitUpdate(t, updates, func(u Update) bool { return u.Snapshot != nil }, "snapshot update")
	if u.Snapshot.Level != diagnostics.LevelWarn {
		t.Fatalf("expected aggregate level 1, got %d", u.Snapshot.Level)
	}
	if u.Snapshot.TimestampMS != 1700000000*1000 {
		t.Fatalf("expected header stamp timestamp, got %d", u.Snapshot.TimestampMS)
	}
	if m.History().Len() != 1 {
		t.Fatalf("expected snapshot recorded in history, got %d", m.History().Len())
	}
	if m.Latest() != u.Snapshot {
		t.Fatalf("latest snapshot must match the delivered one")
	}
}

func TestNonArrayStatusDropped(t *testing.T) {
	bridge := newScriptedBridge(t)
	m, updates := startMonitor(t, bridge, Options{})
	frame := bridge.waitSubscribe(t)

	bridge.publish(t, frame.Topic, map[string]interface{}{"status": map[string]interface{}{"bogus": true}})
	bridge.publish(t, frame.Topic, diagArray(0, status("/robot/imu", "ok", 0)))

	u := waitUpdate(t, updates, func(u Update) bool { return u.Snapshot != nil }, "snapshot after malformed frame")
	if len(u.Snapshot.Entries) != 1 {
		t.Fatalf("expected only the valid message to produce a snapshot")
	}
	if m.State() != StateConnected {
		t.Fatalf("malformed payload must not affect connection state, got %s", m.State())
	}
	if m.History().Len() != 1 {
		t.Fatalf("malformed payload must not be recorded, history has %d", m.History().Len())
	}
}

func TestStaleWindowClearsThenRecovers(t *testing.T) {
	bridge := newScriptedBridge(t)
	m, updates := startMonitor(t, bridge, Options{StalePeriod: 80 * time.Millisecond})
	frame := bridge.waitSubscribe(t)

	bridge.publish(t, frame.Topic, diagArray(0, status("/robot/imu", "ok", 0)))
	waitUpdate(t, updates, func(u Update) bool { return u.Snapshot != nil }, "first snapshot")

	waitUpdate(t, updates, func(u Update) bool {
		return u.Cleared && u.Connected && u.Snapshot == nil
	}, "stale clear")
	if m.Latest() != nil {
		t.Fatalf("stale window must clear the live snapshot")
	}
	if m.History().Len() != 0 {
		t.Fatalf("stale window must clear history, got %d", m.History().Len())
	}
	if m.State() != StateConnected {
		t.Fatalf("staleness is not a transport fault; state is %s", m.State())
	}

	// A later message resumes normal accumulation.
	bridge.publish(t, frame.Topic, diagArray(0, status("/robot/imu", "back", 0)))
	waitUpdate(t, updates, func(u Update) bool { return u.Snapshot != nil }, "snapshot after stale period")
	if m.History().Len() != 1 {
		t.Fatalf("history must accumulate again after staleness, got %d", m.History().Len())
	}
}

func TestRetryAfterConnectionLoss(t *testing.T) {
	bridge := newScriptedBridge(t)
	_, updates := startMonitor(t, bridge, Options{RetryDelay: 50 * time.Millisecond})
	bridge.waitSubscribe(t)

	bridge.dropAll()
	waitUpdate(t, updates, func(u Update) bool { return u.State == StateReconnecting }, "reconnecting state")

	// The retry must re-dial and re-subscribe.
	bridge.waitSubscribe(t)
	waitUpdate(t, updates, func(u Update) bool { return u.State == StateConnected }, "reconnected state")

	if got := bridge.acceptedCount(); got != 2 {
		t.Fatalf("expected exactly one reconnect (2 connections total), got %d", got)
	}
}

func TestCleanCloseReconnectDeliversOnce(t *testing.T) {
	bridge := newScriptedBridge(t)
	m, updates := startMonitor(t, bridge, Options{RetryDelay: 50 * time.Millisecond})
	bridge.waitSubscribe(t)

	// A graceful bridge shutdown sends a normal close frame; no transport
	// error fires, only the close path runs.
	bridge.closeNormal()
	waitUpdate(t, updates, func(u Update) bool { return u.State == StateReconnecting }, "reconnecting state")

	frame := bridge.waitSubscribe(t)
	waitUpdate(t, updates, func(u Update) bool { return u.State == StateConnected }, "reconnected state")

	bridge.publish(t, frame.Topic, diagArray(0, status("/robot/imu", "ok", 0)))
	waitUpdate(t, updates, func(u Update) bool { return u.Snapshot != nil }, "snapshot after reconnect")

	// The dead session's callback must be gone: one message, one
	// processing pass.
	deadline := time.After(300 * time.Millisecond)
	for done := false; !done; {
		select {
		case u := <-updates:
			if u.Snapshot != nil {
				t.Fatalf("one message produced a second snapshot update")
			}
		case <-deadline:
			done = true
		}
	}
	if m.History().Len() != 1 {
		t.Fatalf("one message must be recorded once, history has %d", m.History().Len())
	}
}

func TestStopPreventsPendingRetry(t *testing.T) {
	bridge := newScriptedBridge(t)
	m, updates := startMonitor(t, bridge, Options{RetryDelay: 60 * time.Millisecond})
	bridge.waitSubscribe(t)
	before := bridge.acceptedCount()

	bridge.dropAll()
	waitUpdate(t, updates, func(u Update) bool { return u.State == StateReconnecting }, "reconnecting state")

	m.Stop()
	time.Sleep(150 * time.Millisecond)

	if got := bridge.acceptedCount(); got != before {
		t.Fatalf("a retry fired after Stop: %d connections, want %d", got, before)
	}
	if m.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", m.State())
	}
}

func TestConnectionClearsPreviousHistory(t *testing.T) {
	bridge := newScriptedBridge(t)
	m, updates := startMonitor(t, bridge, Options{RetryDelay: 50 * time.Millisecond})
	frame := bridge.waitSubscribe(t)

	bridge.publish(t, frame.Topic, diagArray(0, status("/robot/imu", "ok", 0)))
	waitUpdate(t, updates, func(u Update) bool { return u.Snapshot != nil }, "snapshot")

	bridge.dropAll()
	bridge.waitSubscribe(t)
	waitUpdate(t, updates, func(u Update) bool { return u.State == StateConnected }, "reconnected")

	if m.History().Len() != 0 {
		t.Fatalf("fresh connection must start with empty history, got %d", m.History().Len())
	}
	if m.Latest() != nil {
		t.Fatalf("fresh connection must start with no live snapshot")
	}
}

func TestStartWithoutURLStaysDisconnected(t *testing.T) {
	m := New(Options{Namespace: "/robot"})
	m.Start()
	if m.State() != StateDisconnected {
		t.Fatalf("no bridge URL must mean no connection attempt, got %s", m.State())
	}
}

func TestStampMillis(t *testing.T) {
	now := time.UnixMilli(4242)

	if got := stampMillis(&diagnostics.Stamp{Sec: 12, Nanosec: 345_678_901}, now); got != 12346 {
		t.Fatalf("expected rounded 12346, got %d", got)
	}
	if got := stampMillis(&diagnostics.Stamp{Sec: 12, Nanosec: 345_178_901}, now); got != 12345 {
		t.Fatalf("expected rounded 12345, got %d", got)
	}
	if got := stampMillis(nil, now); got != 4242 {
		t.Fatalf("expected wall-clock fallback, got %d", got)
	}
	if got := stampMillis(&diagnostics.Stamp{}, now); got != 4242 {
		t.Fatalf("zero stamp must fall back to capture time, got %d", got)
	}
}
