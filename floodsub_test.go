package floodsub

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal in-process Host used by tests. Two fakeHosts
// "connect" by one dialling the other through NewStream, backed by
// net.Pipe.
type fakeHost struct {
	id PeerID

	mu       sync.Mutex
	handlers map[string]StreamHandler
	peers    map[PeerID]*fakeHost
}

func newFakeHost(id PeerID) *fakeHost {
	return &fakeHost{
		id:       id,
		handlers: make(map[string]StreamHandler),
		peers:    make(map[PeerID]*fakeHost),
	}
}

func (h *fakeHost) ID() PeerID { return h.id }

func (h *fakeHost) SetStreamHandler(protocol string, fn StreamHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[protocol] = fn
}

func (h *fakeHost) RemoveStreamHandler(protocol string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, protocol)
}

// link registers other as directly dial-able from h. It is one-way;
// connect links both hosts to each other.
func (h *fakeHost) link(other *fakeHost) {
	h.mu.Lock()
	h.peers[other.id] = other
	h.mu.Unlock()
}

func (h *fakeHost) NewStream(peer PeerID, protocol string) (Stream, error) {
	h.mu.Lock()
	remote := h.peers[peer]
	h.mu.Unlock()
	if remote == nil {
		return nil, ErrUnknownPeer
	}

	clientConn, serverConn := net.Pipe()

	remote.mu.Lock()
	handler := remote.handlers[protocol]
	remote.mu.Unlock()
	if handler != nil {
		go handler(h.id, &pipeStream{Conn: serverConn})
	}
	return &pipeStream{Conn: clientConn}, nil
}

// pipeStream adapts a net.Conn (from net.Pipe) to the Stream interface.
type pipeStream struct {
	net.Conn
}

func (s *pipeStream) CloseWrite() error {
	return nil
}

func newTestService(t *testing.T, host *fakeHost, mockClock clock.Clock) *Service {
	t.Helper()
	opts := []Option{WithCacheTTL(time.Minute)}
	if mockClock != nil {
		opts = append(opts, WithClock(mockClock))
	}
	svc := New(host, opts...)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

// connect dials from a to b over the protocol both services were
// configured with, invoking OnPeerConnected on a's side exactly as a real
// substrate would after completing its own dial path.
func connect(t *testing.T, a, b *Service, aHost, bHost *fakeHost) {
	t.Helper()
	aHost.link(bHost)
	bHost.link(aHost)

	s, err := aHost.NewStream(bHost.id, protocolID)
	require.NoError(t, err)
	a.OnPeerConnected(bHost.id, nil, s)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

// TestTwoNodeSingleHopDelivery: B subscribes to "foo"; A publishes with
// hops=1; B receives the message exactly once and does not forward
// further.
func TestTwoNodeSingleHopDelivery(t *testing.T) {
	aHost, bHost := newFakeHost("A"), newFakeHost("B")
	a, b := newTestService(t, aHost, nil), newTestService(t, bHost, nil)

	var mu sync.Mutex
	var received []*Message
	require.NoError(t, b.Subscribe("foo", func(m *Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	}))

	connect(t, a, b, aHost, bHost)
	waitFor(t, time.Second, func() bool { return b.engine.peerCount() == 1 })

	require.NoError(t, a.Publish(context.Background(), []string{"foo"}, []byte{0x01}, 1))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	require.Len(t, received, 1)
	require.Equal(t, []byte{0x01}, received[0].Data)
	mu.Unlock()
}

func TestPublishBeforeStartFails(t *testing.T) {
	host := newFakeHost("A")
	svc := New(host)
	err := svc.Publish(context.Background(), []string{"foo"}, []byte{0x01}, 1)
	require.ErrorIs(t, err, ErrNotStarted)
}

// TestDuplicateSeqnoSuppressed: a second delivery of the same (from,
// seqno) pair within the cache window causes no second local emit.
func TestDuplicateSeqnoSuppressed(t *testing.T) {
	host := newFakeHost("A")
	svc := newTestService(t, host, nil)

	var count int
	require.NoError(t, svc.Subscribe("foo", func(m *Message) { count++ }))

	msg := &Message{From: "peer-x", Data: []byte{0x02}, Seqno: []byte{1, 2, 3, 4}, Hops: 1, TopicIDs: []string{"foo"}}
	svc.engine.handleMessage(msg)
	svc.engine.handleMessage(&Message{From: "peer-x", Data: []byte{0x02}, Seqno: []byte{1, 2, 3, 4}, Hops: 1, TopicIDs: []string{"foo"}})

	require.Equal(t, 1, count)
}

// TestValidatorRejection: a topic validator that rejects messages whose
// first byte is 0x00 keeps those messages from being forwarded while
// letting others through.
func TestValidatorRejection(t *testing.T) {
	aHost, bHost := newFakeHost("A"), newFakeHost("B")
	a, b := newTestService(t, aHost, nil), newTestService(t, bHost, nil)

	var mu sync.Mutex
	var received []*Message
	require.NoError(t, b.Subscribe("foo", func(m *Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	}))

	rejectZero := func(ctx context.Context, peer *PeerRecord, msg *Message) (bool, error) {
		return len(msg.Data) == 0 || msg.Data[0] != 0x00, nil
	}
	a.AddForwardValidators("foo", rejectZero)

	connect(t, a, b, aHost, bHost)
	waitFor(t, time.Second, func() bool { return b.engine.peerCount() == 1 })

	require.NoError(t, a.Publish(context.Background(), []string{"foo"}, []byte{0x00, 0xFF}, 1))
	require.NoError(t, a.Publish(context.Background(), []string{"foo"}, []byte{0x01}, 1))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	require.Len(t, received, 1)
	require.Equal(t, []byte{0x01}, received[0].Data)
	mu.Unlock()
}

func TestLsAndPeersReflectState(t *testing.T) {
	aHost, bHost := newFakeHost("A"), newFakeHost("B")
	a, b := newTestService(t, aHost, nil), newTestService(t, bHost, nil)

	require.NoError(t, b.Subscribe("foo", func(*Message) {}))

	topics, err := b.Ls()
	require.NoError(t, err)
	require.Equal(t, []string{"foo"}, topics)

	connect(t, a, b, aHost, bHost)

	// A learns B's interest in "foo" from B's connection-time announcement.
	waitFor(t, time.Second, func() bool {
		peers, err := a.Peers("foo")
		return err == nil && len(peers) == 1
	})

	all, err := a.Peers("")
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, all)
}

func TestFacadeFailsBeforeStart(t *testing.T) {
	svc := New(newFakeHost("A"))

	_, err := svc.Ls()
	require.ErrorIs(t, err, ErrNotStarted)
	_, err = svc.Peers("")
	require.ErrorIs(t, err, ErrNotStarted)
	require.ErrorIs(t, svc.Subscribe("foo", func(*Message) {}), ErrNotStarted)
}

// TestHopTermination: a message arriving with zero hops is still
// delivered locally.
func TestHopTermination(t *testing.T) {
	host := newFakeHost("A")
	svc := newTestService(t, host, nil)

	var count int
	require.NoError(t, svc.Subscribe("foo", func(m *Message) { count++ }))

	svc.engine.handleMessage(&Message{From: "peer-x", Data: []byte{0x01}, Seqno: []byte{9}, Hops: 0, TopicIDs: []string{"foo"}})
	require.Equal(t, 1, count)
}
