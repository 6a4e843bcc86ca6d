package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/obd2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/obd2mqtt/internal/obd"
)

var errBrokerDown = errors.New("broker down")

type publishedMessage struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// mockPublisher records publishes. Topics in failTopics return errBrokerDown.
type mockPublisher struct {
	mu         sync.Mutex
	connected  bool
	failTopics map[string]bool
	messages   []publishedMessage
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{connected: true, failTopics: map[string]bool{}}
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTopics[topic] {
		return errBrokerDown
	}
	m.messages = append(m.messages, publishedMessage{
		topic:    topic,
		payload:  string(payload),
		qos:      qos,
		retained: retained,
	})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *mockPublisher) fail(topic string) {
	m.mu.Lock()
	m.failTopics[topic] = true
	m.mu.Unlock()
}

func (m *mockPublisher) getMessages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedMessage(nil), m.messages...)
}

func (m *mockPublisher) onTopic(topic string) []publishedMessage {
	var out []publishedMessage
	for _, msg := range m.getMessages() {
		if msg.topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// statusScript is a status sequence shared by every connection a test dials.
// Once exhausted it repeats the last entry.
type statusScript struct {
	mu    sync.Mutex
	steps []statusStep
	calls int
}

type statusStep struct {
	status obd.Status
	err    error
	panic  bool
}

func (s *statusScript) next() statusStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i]
}

// fakeConn implements obd.Connection.
type fakeConn struct {
	script     *statusScript
	connectErr error
	supported  []obd.CommandID

	mu       sync.Mutex
	watchers map[obd.CommandID][]obd.Callback
	started  bool
	stopped  atomic.Int32
}

func (f *fakeConn) Connect(context.Context) error { return f.connectErr }

func (f *fakeConn) Status(context.Context) (obd.Status, error) {
	step := f.script.next()
	if step.panic {
		panic("adapter exploded")
	}
	return step.status, step.err
}

func (f *fakeConn) Supported() []obd.CommandID { return f.supported }

func (f *fakeConn) Watch(cmd obd.Command, cb obd.Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchers == nil {
		f.watchers = map[obd.CommandID][]obd.Callback{}
	}
	f.watchers[cmd.ID] = append(f.watchers[cmd.ID], cb)
}

func (f *fakeConn) Start() {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
}

func (f *fakeConn) Stop() error {
	f.stopped.Add(1)
	return nil
}

// emit delivers payload to every watcher of id.
func (f *fakeConn) emit(id obd.CommandID, payload []byte) {
	f.mu.Lock()
	cbs := append([]obd.Callback(nil), f.watchers[id]...)
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(obd.Response{Payload: payload})
	}
}

func (f *fakeConn) watchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, cbs := range f.watchers {
		n += len(cbs)
	}
	return n
}

// dialRecorder hands out fakeConns and remembers them.
type dialRecorder struct {
	mu    sync.Mutex
	conns []*fakeConn
	make  func() *fakeConn
}

func (d *dialRecorder) dial() obd.Connection {
	c := d.make()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c
}

func (d *dialRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *dialRecorder) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// mockSubscriber captures the handler registered for a topic.
type mockSubscriber struct {
	topic   string
	handler mqtt.MessageHandler
	err     error
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if m.err != nil {
		return m.err
	}
	m.topic = topic
	m.handler = handler
	return nil
}

type countingRepublisher struct {
	calls atomic.Int32
}

func (c *countingRepublisher) RepublishDiscovery() { c.calls.Add(1) }
