// Package monitor owns the lifecycle of the bridge connection: dialing,
// retry, staleness detection, and feeding built snapshots into the
// history buffer. It is the only writer of diagnostics state; everything
// downstream observes.
package monitor

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"rosdash/internal/diagnostics"
	"rosdash/internal/roslib"
	"rosdash/internal/utils"
)

// State is the connection manager's externally visible state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

// Defaults for the two timers. The stale window is deliberately a little
// longer than the aggregator's publish period. The retry delay is fixed,
// with no backoff growth and no attempt cap: a monitoring panel has no
// other way to recover, so it retries forever.
const (
	DefaultStalePeriod = 5 * time.Second
	DefaultRetryDelay  = 3 * time.Second
)

// DiagnosticsTopicType is the only message type the panel consumes.
const DiagnosticsTopicType = "diagnostic_msgs/DiagnosticArray"

// Update is delivered to observers on every state change, accepted
// snapshot, or data clear.
type Update struct {
	State     State
	Connected bool
	// Snapshot is the newly accepted snapshot, nil for pure state changes.
	Snapshot *diagnostics.Snapshot
	// Cleared is true when displayed/historical data was wiped (stale
	// window elapsed, connection lost, or reconnected).
	Cleared bool
}

// UpdateFunc observes monitor updates. Callbacks run on the monitor's
// event goroutines and must not block.
type UpdateFunc func(Update)

// Options configures a Monitor. Namespace and URL together identify one
// manager instance; changing either means stopping this monitor and
// starting a fresh one.
type Options struct {
	// URL is the bridge endpoint, e.g. "ws://robot:8765".
	URL string
	// Namespace prefixes the diagnostics topic: "<ns>/diagnostics_agg".
	Namespace   string
	StalePeriod time.Duration
	RetryDelay  time.Duration
	HistorySize int
	Logger      *utils.Logger
}

// Monitor is the connection state machine. All mutation happens under mu;
// timer callbacks are additionally guarded by a generation counter so a
// callback racing Stop can never touch a torn-down session.
type Monitor struct {
	opts Options

	mu         sync.Mutex
	ros        *roslib.Ros
	topic      *roslib.Topic
	subHandle  string
	state      State
	gen        uint64
	staleTimer *time.Timer
	retryTimer *time.Timer
	retry      bool
	latest     *diagnostics.Snapshot
	lastMsg    time.Time
	history    *diagnostics.History

	obsMu     sync.Mutex
	observers map[uint64]UpdateFunc
	obsSeq    uint64
}

// New builds a stopped monitor; Start begins connecting.
func New(opts Options) *Monitor {
	if opts.StalePeriod <= 0 {
		opts.StalePeriod = DefaultStalePeriod
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Monitor{
		opts:      opts,
		state:     StateDisconnected,
		history:   diagnostics.NewHistory(opts.HistorySize),
		observers: make(map[uint64]UpdateFunc),
	}
}

// TopicName returns the subscribed diagnostics topic for the namespace.
func (m *Monitor) TopicName() string {
	return m.opts.Namespace + "/diagnostics_agg"
}

// History exposes the rolling snapshot buffer. The presentation layer
// reads it and toggles pause; only the monitor appends or clears.
func (m *Monitor) History() *diagnostics.History {
	return m.history
}

// Observe registers cb for every update; the returned id is accepted by
// Unobserve.
func (m *Monitor) Observe(cb UpdateFunc) uint64 {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.obsSeq++
	m.observers[m.obsSeq] = cb
	return m.obsSeq
}

// Unobserve removes an observer registered with Observe.
func (m *Monitor) Unobserve(id uint64) {
	m.obsMu.Lock()
	delete(m.observers, id)
	m.obsMu.Unlock()
}

func (m *Monitor) notify(u Update) {
	m.obsMu.Lock()
	cbs := make([]UpdateFunc, 0, len(m.observers))
	for _, cb := range m.observers {
		cbs = append(cbs, cb)
	}
	m.obsMu.Unlock()
	for _, cb := range cbs {
		cb(u)
	}
}

// Start opens the transport and begins the connect/retry cycle. An empty
// URL means the bridge is not resolvable yet; the monitor stays
// disconnected and Start is a no-op.
func (m *Monitor) Start() {
	if m.opts.URL == "" {
		m.logf("monitor: no bridge URL, not connecting")
		return
	}

	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.retry = true
	m.state = StateConnecting
	ros := roslib.NewRos()
	m.ros = ros
	m.mu.Unlock()

	ros.On(roslib.EventConnection, func(error) { m.onConnection(ros) })
	ros.On(roslib.EventError, func(err error) { m.onError(ros, err) })
	ros.On(roslib.EventClose, func(error) { m.onClose(ros) })

	m.notify(Update{State: StateConnecting})
	go ros.Connect(m.opts.URL)
}

// Stop tears the session down: retries disabled, both timers cancelled,
// topic unsubscribed, socket closed. Bumping the generation first makes
// the teardown race-free: a timer or transport callback already in
// flight sees a stale generation and returns without touching state.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.gen++
	m.retry = false
	m.state = StateStopped
	m.cancelTimersLocked()
	ros := m.ros
	topic := m.topic
	handle := m.subHandle
	m.ros = nil
	m.topic = nil
	m.subHandle = ""
	m.latest = nil
	m.mu.Unlock()

	if topic != nil {
		topic.Unsubscribe(handle)
	}
	if ros != nil {
		ros.Close()
	}
	m.history.Clear()
	m.notify(Update{State: StateStopped, Cleared: true})
}

// State returns the current connection state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the manager currently has a live session.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// Latest returns the newest accepted snapshot, or nil when the display is
// empty (never connected, cleared by staleness, or disconnected).
func (m *Monitor) Latest() *diagnostics.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// LastMessageAt returns the arrival time of the last valid message, zero
// if none this session.
func (m *Monitor) LastMessageAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMsg
}

func (m *Monitor) onConnection(ros *roslib.Ros) {
	m.mu.Lock()
	if m.ros != ros {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	// A new bridge session may be a different robot entirely; the prior
	// session's history is not comparable.
	m.latest = nil
	gen := m.gen
	m.mu.Unlock()

	m.history.Clear()
	m.logf("monitor: connected to %s", m.opts.URL)

	topic := roslib.NewTopic(ros, m.TopicName(), DiagnosticsTopicType)
	handle := topic.Subscribe(func(msg json.RawMessage) { m.onMessage(gen, msg) })

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		topic.Unsubscribe(handle)
		return
	}
	m.topic = topic
	m.subHandle = handle
	m.mu.Unlock()

	m.notify(Update{State: StateConnected, Connected: true, Cleared: true})
}

func (m *Monitor) onMessage(gen uint64, raw json.RawMessage) {
	var msg diagnostics.ArrayMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.logf("monitor: undecodable diagnostics message: %v", err)
		return
	}

	var records []diagnostics.StatusRecord
	if err := json.Unmarshal(msg.Status, &records); err != nil {
		// Malformed payload, not a connection fault: drop and keep going.
		m.logf("monitor: diagnostics status is not an array, dropping")
		return
	}

	snapshot := &diagnostics.Snapshot{
		TimestampMS: stampMillis(msg.Header.Stamp, time.Now()),
		Entries:     diagnostics.BuildTree(records),
	}
	snapshot.Level = diagnostics.AggregateLevel(snapshot.Entries)

	m.mu.Lock()
	if m.gen != gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.lastMsg = time.Now()
	m.latest = snapshot
	m.resetStaleTimerLocked(gen)
	m.mu.Unlock()

	m.history.Update(snapshot)
	m.notify(Update{State: StateConnected, Connected: true, Snapshot: snapshot})
}

// onStale fires when no valid message arrived within the stale window.
// The data is untrustworthy, so the display and history are wiped, but
// the socket stays open: the bridge may be healthy with simply nothing
// publishing.
func (m *Monitor) onStale(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.latest = nil
	m.mu.Unlock()

	m.history.Clear()
	m.logf("monitor: no diagnostics for %s, clearing stale data", m.opts.StalePeriod)
	m.notify(Update{State: StateConnected, Connected: true, Cleared: true})
}

func (m *Monitor) onError(ros *roslib.Ros, err error) {
	m.mu.Lock()
	if m.ros != ros {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.logf("monitor: transport error: %v", err)
	// Force the close path; reconnection is handled there.
	ros.Close()
}

func (m *Monitor) onClose(ros *roslib.Ros) {
	m.mu.Lock()
	if m.ros != ros {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	m.latest = nil
	topic := m.topic
	handle := m.subHandle
	m.topic = nil
	m.subHandle = ""
	if m.staleTimer != nil {
		m.staleTimer.Stop()
		m.staleTimer = nil
	}
	retrying := m.retry
	if retrying {
		m.state = StateReconnecting
		// Clear any pending attempt before arming a new one, so rapid
		// close events can never stack reconnects.
		if m.retryTimer != nil {
			m.retryTimer.Stop()
		}
		m.retryTimer = time.AfterFunc(m.opts.RetryDelay, func() { m.onRetry(gen) })
	} else {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	// Drop the dead session's callback. A normal close never tears down
	// topic bookkeeping on its own, and the next connection subscribes a
	// fresh callback; leaving this one registered would deliver every
	// message twice after reconnecting.
	if topic != nil {
		topic.Unsubscribe(handle)
	}

	m.history.Clear()
	if retrying {
		m.logf("monitor: connection lost, retrying in %s", m.opts.RetryDelay)
		m.notify(Update{State: StateReconnecting, Cleared: true})
	} else {
		m.notify(Update{State: StateDisconnected, Cleared: true})
	}
}

func (m *Monitor) onRetry(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || !m.retry {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	ros := m.ros
	m.mu.Unlock()

	m.notify(Update{State: StateConnecting})
	go ros.Connect(m.opts.URL)
}

func (m *Monitor) resetStaleTimerLocked(gen uint64) {
	if m.staleTimer != nil {
		m.staleTimer.Stop()
	}
	m.staleTimer = time.AfterFunc(m.opts.StalePeriod, func() { m.onStale(gen) })
}

func (m *Monitor) cancelTimersLocked() {
	if m.staleTimer != nil {
		m.staleTimer.Stop()
		m.staleTimer = nil
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// stampMillis converts a header stamp to epoch milliseconds, falling back
// to the capture time when the message has no stamp.
func stampMillis(stamp *diagnostics.Stamp, now time.Time) int64 {
	if stamp == nil || (stamp.Sec == 0 && stamp.Nanosec == 0) {
		return now.UnixMilli()
	}
	return stamp.Sec*1000 + (stamp.Nanosec+500_000)/1_000_000
}

func (m *Monitor) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if m.opts.Logger != nil {
		m.opts.Logger.Write(msg)
		return
	}
	log.Println(msg)
}
