package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/teslashibe/go-pixel/pkg/pcm"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

// Mock is a Dialer for testing. Each Dial returns a new MockChannel.
type Mock struct {
	mu sync.Mutex

	// DialFunc overrides Dial when set.
	DialFunc func(ctx context.Context, setup Setup) (Channel, error)

	// DialErr makes Dial fail.
	DialErr error

	setups   []Setup
	channels []*MockChannel
}

// NewMock creates a mock dialer.
func NewMock() *Mock {
	return &Mock{}
}

// Dial implements Dialer.
func (m *Mock) Dial(ctx context.Context, setup Setup) (Channel, error) {
	m.mu.Lock()
	m.setups = append(m.setups, setup)
	fn, dialErr := m.DialFunc, m.DialErr
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, setup)
	}
	if dialErr != nil {
		return nil, dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := NewMockChannel()
	m.mu.Lock()
	m.channels = append(m.channels, ch)
	m.mu.Unlock()
	return ch, nil
}

// Dials returns how many times Dial was called.
func (m *Mock) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.setups)
}

// Setups returns the setups passed to Dial.
func (m *Mock) Setups() []Setup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Setup(nil), m.setups...)
}

// Last returns the most recently dialed channel, or nil.
func (m *Mock) Last() *MockChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.channels) == 0 {
		return nil
	}
	return m.channels[len(m.channels)-1]
}

type inbound struct {
	msg *ServerMessage
	err error
}

// MockChannel is a Channel for testing. Tests inject inbound traffic with
// Deliver/Fail/RemoteClose and inspect what was sent.
type MockChannel struct {
	mu sync.Mutex

	// SendErr makes sends fail.
	SendErr error

	// CloseErr is returned by Close.
	CloseErr error

	inbound    chan inbound
	closed     chan struct{}
	closeCalls int
	audio      []pcm.WireChunk
	results    []tools.Result
	notify     chan struct{}
}

// NewMockChannel creates an open mock channel.
func NewMockChannel() *MockChannel {
	return &MockChannel{
		inbound: make(chan inbound, 64),
		closed:  make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

func (c *MockChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *MockChannel) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// SendAudio implements Channel.
func (c *MockChannel) SendAudio(ctx context.Context, chunk pcm.WireChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.audio = append(c.audio, chunk)
	c.signal()
	return nil
}

// SendToolResults implements Channel.
func (c *MockChannel) SendToolResults(ctx context.Context, results ...tools.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.results = append(c.results, results...)
	c.signal()
	return nil
}

// Receive implements Channel.
func (c *MockChannel) Receive(ctx context.Context) (*ServerMessage, error) {
	select {
	case in := <-c.inbound:
		return in.msg, in.err
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Channel.
func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if !c.isClosed() {
		close(c.closed)
	}
	return c.CloseErr
}

// Test helpers

// Deliver queues an inbound message.
func (c *MockChannel) Deliver(msg *ServerMessage) {
	c.inbound <- inbound{msg: msg}
}

// Fail makes the next Receive return err.
func (c *MockChannel) Fail(err error) {
	c.inbound <- inbound{err: err}
}

// RemoteClose simulates an orderly close by the remote side.
func (c *MockChannel) RemoteClose() {
	c.inbound <- inbound{err: ErrClosed}
}

// Audio returns the audio chunks sent so far.
func (c *MockChannel) Audio() []pcm.WireChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pcm.WireChunk(nil), c.audio...)
}

// Results returns the tool results sent so far.
func (c *MockChannel) Results() []tools.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]tools.Result(nil), c.results...)
}

// Closed reports whether Close was called.
func (c *MockChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosed()
}

// CloseCalls returns how many times Close was called.
func (c *MockChannel) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// WaitFor blocks until cond holds or timeout elapses.
func (c *MockChannel) WaitFor(cond func(c *MockChannel) bool, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if cond(c) {
			return nil
		}
		select {
		case <-c.notify:
		case <-deadline.C:
			return errors.New("live: mock condition not met before timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

var _ Channel = (*MockChannel)(nil)
var _ Dialer = (*Mock)(nil)
