package floodsub

import (
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-floodsub/pb"
)

// PeerRecord is the per-connected-peer state: identity, the set of topics
// the remote peer has announced, a writable send channel while connected,
// reference-counted lifetime accounting, and connection/close lifecycle
// signals.
//
// isWritable holds iff send is non-nil; topics mutates only through
// updateSubscriptions; references is never negative.
type PeerRecord struct {
	id   PeerID
	info []string // addressing metadata, opaque to the core

	mu     sync.RWMutex
	topics map[string]struct{}

	sendMu    sync.Mutex
	send      chan *pb.RPC
	closeOnce *sync.Once // renewed per connection epoch, guarded by sendMu

	references int32 // atomic

	listenersMu  sync.Mutex
	onConnection []func()
	onClose      []func()
}

func newPeerRecord(id PeerID, info []string) *PeerRecord {
	return &PeerRecord{
		id:         id,
		info:       info,
		topics:     make(map[string]struct{}),
		references: 1,
		closeOnce:  new(sync.Once),
	}
}

// ID returns the peer's identifier.
func (p *PeerRecord) ID() PeerID { return p.id }

// Info returns the peer's addressing metadata.
func (p *PeerRecord) Info() []string { return p.info }

// Topics returns a snapshot of the topics this remote peer has announced.
func (p *PeerRecord) Topics() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.topics))
	for t := range p.topics {
		out = append(out, t)
	}
	return out
}

// hasAnyTopic reports whether the peer has announced any topic in ts.
func (p *PeerRecord) hasAnyTopic(ts []string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range ts {
		if _, ok := p.topics[t]; ok {
			return true
		}
	}
	return false
}

// intersectTopics returns the subset of ts the peer has announced.
func (p *PeerRecord) intersectTopics(ts []string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for _, t := range ts {
		if _, ok := p.topics[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// updateSubscriptions applies subscription deltas to the peer's announced
// topic set, in order.
func (p *PeerRecord) updateSubscriptions(deltas []*pb.SubOpts) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range deltas {
		topic := d.GetTopicCID()
		if d.GetSubscribe() {
			p.topics[topic] = struct{}{}
		} else {
			delete(p.topics, topic)
		}
	}
}

// isWritable reports whether the peer currently has an installed send
// channel.
func (p *PeerRecord) isWritable() bool {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.send != nil
}

// createStream installs a fresh send channel, fires every registered
// one-shot connection listener, and returns the channel for the outbound
// pipeline to drain.
func (p *PeerRecord) createStream(bufSize int) chan *pb.RPC {
	p.sendMu.Lock()
	ch := make(chan *pb.RPC, bufSize)
	p.send = ch
	p.closeOnce = new(sync.Once)
	p.sendMu.Unlock()

	p.listenersMu.Lock()
	listeners := p.onConnection
	p.onConnection = nil
	p.listenersMu.Unlock()
	for _, l := range listeners {
		l()
	}
	return ch
}

// onStreamEnd clears the send channel and fires every registered one-shot
// close listener. Idempotent within one connection epoch.
func (p *PeerRecord) onStreamEnd() {
	p.sendMu.Lock()
	once := p.closeOnce
	p.sendMu.Unlock()
	once.Do(func() {
		p.sendMu.Lock()
		ch := p.send
		p.send = nil
		p.sendMu.Unlock()
		if ch != nil {
			close(ch)
		}

		p.listenersMu.Lock()
		listeners := p.onClose
		p.onClose = nil
		p.listenersMu.Unlock()
		for _, l := range listeners {
			l()
		}
	})
}

// write pushes one framed record onto the peer's send channel. It returns
// ErrNoWritableConnection if the peer has no installed send channel, or
// if the send channel is full; flooding tolerates the loss.
func (p *PeerRecord) write(rpc *pb.RPC) error {
	p.sendMu.Lock()
	ch := p.send
	p.sendMu.Unlock()
	if ch == nil {
		return ErrNoWritableConnection
	}
	select {
	case ch <- rpc:
		return nil
	default:
		return ErrNoWritableConnection
	}
}

// sendSubscriptions emits a single subscribe-delta RPC record. No-op on
// empty input.
func (p *PeerRecord) sendSubscriptions(topics []string) error {
	return p.sendSubscriptionDeltas(topics, true)
}

// sendUnsubscriptions emits a single unsubscribe-delta RPC record. No-op
// on empty input.
func (p *PeerRecord) sendUnsubscriptions(topics []string) error {
	return p.sendSubscriptionDeltas(topics, false)
}

func (p *PeerRecord) sendSubscriptionDeltas(topics []string, subscribe bool) error {
	if len(topics) == 0 {
		return nil
	}
	subs := make([]*pb.SubOpts, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, &pb.SubOpts{Subscribe: pb.Bool(subscribe), TopicCID: pb.String(t)})
	}
	return p.write(&pb.RPC{Subscriptions: subs})
}

// sendMessages emits a single RPC record carrying msgs. No-op on empty
// input.
func (p *PeerRecord) sendMessages(msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	wire := make([]*pb.Message, 0, len(msgs))
	for _, m := range msgs {
		wire = append(wire, m.toWire())
	}
	return p.write(&pb.RPC{Msgs: wire})
}

// onConnected registers a one-shot listener fired the next time
// createStream installs a send channel. If the peer is already writable,
// the listener fires immediately.
func (p *PeerRecord) onConnected(f func()) {
	if p.isWritable() {
		f()
		return
	}
	p.listenersMu.Lock()
	p.onConnection = append(p.onConnection, f)
	p.listenersMu.Unlock()
}

// onDisconnected registers a one-shot listener fired the next time
// onStreamEnd runs.
func (p *PeerRecord) onDisconnected(f func()) {
	p.listenersMu.Lock()
	p.onClose = append(p.onClose, f)
	p.listenersMu.Unlock()
}

// addRef increments the reference count.
func (p *PeerRecord) addRef() { atomic.AddInt32(&p.references, 1) }

// release decrements the reference count and reports whether it reached
// zero.
func (p *PeerRecord) release() bool {
	return atomic.AddInt32(&p.references, -1) <= 0
}

// close sets references to 1 (forcing subsequent accounting to drop the
// record), ends the send channel if any, then invokes cb once the close
// listeners have run.
func (p *PeerRecord) close(cb func()) {
	atomic.StoreInt32(&p.references, 1)
	p.onStreamEnd()
	if cb != nil {
		cb()
	}
}

// connectToken is a cancellable handle to a registered one-shot
// onConnected listener, used by Subscribe/Unsubscribe's retry-then-cancel
// pattern: if the peer disconnects before the retry fires, the paired
// onDisconnected listener cancels the pending retry.
type connectToken struct {
	mu        sync.Mutex
	cancelled bool
}

func (t *connectToken) cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

func (t *connectToken) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// onConnectedOnceWithCancel registers f to run the next time the peer
// becomes writable, unless cancelled first by a paired onDisconnected
// listener. Subscribe and Unsubscribe use this for peers that are not yet
// writable at announcement time.
func (p *PeerRecord) onConnectedOnceWithCancel(f func()) {
	token := &connectToken{}
	p.onConnected(func() {
		if !token.isCancelled() {
			f()
		}
	})
	p.onDisconnected(func() {
		token.cancel()
	})
}
