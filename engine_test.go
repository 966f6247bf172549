package floodsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestThreeNodeLineMultiHop: A-B-C in a line, all subscribe "foo", A
// publishes hops=2. B and C each receive once; A does not receive again.
func TestThreeNodeLineMultiHop(t *testing.T) {
	aHost, bHost, cHost := newFakeHost("A"), newFakeHost("B"), newFakeHost("C")
	a := newTestService(t, aHost, nil)
	b := newTestService(t, bHost, nil)
	c := newTestService(t, cHost, nil)

	var mu sync.Mutex
	var aRecv, bRecv, cRecv []*Message
	require.NoError(t, a.Subscribe("foo", func(m *Message) { mu.Lock(); aRecv = append(aRecv, m); mu.Unlock() }))
	require.NoError(t, b.Subscribe("foo", func(m *Message) { mu.Lock(); bRecv = append(bRecv, m); mu.Unlock() }))
	require.NoError(t, c.Subscribe("foo", func(m *Message) { mu.Lock(); cRecv = append(cRecv, m); mu.Unlock() }))

	connect(t, a, b, aHost, bHost)
	connect(t, b, c, bHost, cHost)

	waitFor(t, time.Second, func() bool {
		return a.engine.peerCount() == 1 && b.engine.peerCount() == 2 && c.engine.peerCount() == 1
	})

	require.NoError(t, a.Publish(context.Background(), []string{"foo"}, []byte{0x7A}, 2))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bRecv) == 1 && len(cRecv) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bRecv, 1)
	require.Len(t, cRecv, 1)
	require.Len(t, aRecv, 1, "the publisher receives its own message once, at publish time, and not again")
}

// TestSubscriptionMirror: after Subscribe completes and a peer connection
// exists, that peer's view of our subscriptions contains the topic; after
// Unsubscribe, it eventually does not.
func TestSubscriptionMirror(t *testing.T) {
	aHost, bHost := newFakeHost("A"), newFakeHost("B")
	a, b := newTestService(t, aHost, nil), newTestService(t, bHost, nil)

	connect(t, a, b, aHost, bHost)
	waitFor(t, time.Second, func() bool { return b.engine.peerCount() == 1 })

	handler := func(*Message) {}
	require.NoError(t, a.Subscribe("foo", handler))

	waitFor(t, time.Second, func() bool {
		b.engine.mu.Lock()
		defer b.engine.mu.Unlock()
		for _, p := range b.engine.peers {
			if p.hasAnyTopic([]string{"foo"}) {
				return true
			}
		}
		return false
	})

	require.NoError(t, a.Unsubscribe("foo", handler))

	waitFor(t, time.Second, func() bool {
		b.engine.mu.Lock()
		defer b.engine.mu.Unlock()
		for _, p := range b.engine.peers {
			if p.hasAnyTopic([]string{"foo"}) {
				return false
			}
		}
		return true
	})
}

// TestDisconnectMidForwardDoesNotErrorPublisher: a peer connection drops
// before a publish; no error surfaces to the publisher, and remaining
// peers still receive the message.
func TestDisconnectMidForwardDoesNotErrorPublisher(t *testing.T) {
	aHost, bHost, cHost := newFakeHost("A"), newFakeHost("B"), newFakeHost("C")
	a := newTestService(t, aHost, nil)
	b := newTestService(t, bHost, nil)
	c := newTestService(t, cHost, nil)

	var mu sync.Mutex
	var cRecv []*Message
	require.NoError(t, b.Subscribe("foo", func(m *Message) {}))
	require.NoError(t, c.Subscribe("foo", func(m *Message) { mu.Lock(); cRecv = append(cRecv, m); mu.Unlock() }))

	connect(t, a, b, aHost, bHost)
	connect(t, a, c, aHost, cHost)
	waitFor(t, time.Second, func() bool { return a.engine.peerCount() == 2 })

	// Drop B's connection before publishing.
	require.NoError(t, b.Stop())

	err := a.Publish(context.Background(), []string{"foo"}, []byte{0x09}, 1)
	require.NoError(t, err, "a dropped peer must not surface an error to the publisher")

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(cRecv) == 1
	})
}
