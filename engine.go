package floodsub

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-floodsub/pb"
)

// MessageHandler receives locally-delivered messages for a topic a caller
// has subscribed to.
type MessageHandler func(*Message)

// Engine owns the peer map, the local subscription set, the per-topic
// forwarding-validator registry, and the receive/forward pipeline.
type Engine struct {
	host Host
	cfg  Config
	log  *slog.Logger

	running int32 // atomic, 0=stopped 1=started

	mu        sync.Mutex
	peers     map[PeerID]*PeerRecord
	localSubs map[string]struct{}
	handlers  map[string][]MessageHandler

	validators *validatorRegistry
	cache      *dedupCache
}

// newEngine constructs an Engine bound to host. It does not start the
// engine; call Start.
func newEngine(host Host, cfg Config) *Engine {
	return &Engine{
		host:       host,
		cfg:        cfg,
		log:        cfg.logger,
		peers:      make(map[PeerID]*PeerRecord),
		localSubs:  make(map[string]struct{}),
		handlers:   make(map[string][]MessageHandler),
		validators: newValidatorRegistry(),
		cache:      newDedupCache(cfg.cacheSize, cfg.cacheTTL, cfg.clock),
	}
}

// Start installs the protocol handler for incoming streams.
func (e *Engine) Start() error {
	if !atomic.CompareAndSwapInt32(&e.running, 0, 1) {
		return ErrAlreadyStarted
	}
	e.host.SetStreamHandler(e.cfg.protocolID, e.handleInboundStream)
	return nil
}

// Stop tears down all peer streams, then resets the local subscription
// set to empty. The validator registry and duplicate-suppression cache
// are not cleared; they may survive a subsequent Start.
func (e *Engine) Stop() error {
	if !atomic.CompareAndSwapInt32(&e.running, 1, 0) {
		return nil
	}
	e.host.RemoveStreamHandler(e.cfg.protocolID)

	e.mu.Lock()
	peers := make([]*PeerRecord, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.localSubs = make(map[string]struct{})
	e.mu.Unlock()

	for _, p := range peers {
		p.close(nil)
	}
	return nil
}

func (e *Engine) isStarted() bool {
	return atomic.LoadInt32(&e.running) == 1
}

// handleInboundStream is installed as the substrate's StreamHandler; it
// wires a fresh PeerRecord, starts the decode loop, and announces the
// local subscription snapshot back over the new stream. Both ends of a
// connection announce once on establishment; no request/response
// exchange takes place.
func (e *Engine) handleInboundStream(peer PeerID, s Stream) {
	rec := e.peerRecord(peer, nil)
	e.wireStream(rec, s)
	e.pushSubscriptions(rec)
}

// OnPeerConnected is the dial hook: upon completion of the substrate's
// dial path for peer, it wires the stream and immediately pushes the
// local subscription set as a single subscribe-delta RPC.
func (e *Engine) OnPeerConnected(peer PeerID, info []string, s Stream) {
	rec := e.peerRecord(peer, info)
	e.wireStream(rec, s)
	e.pushSubscriptions(rec)
}

// pushSubscriptions sends the current local subscription snapshot to rec
// as one subscribe-delta RPC. A failed push is dropped; the peer will
// re-synchronize on its next connection.
func (e *Engine) pushSubscriptions(rec *PeerRecord) {
	e.mu.Lock()
	topics := make([]string, 0, len(e.localSubs))
	for t := range e.localSubs {
		topics = append(topics, t)
	}
	e.mu.Unlock()

	if err := rec.sendSubscriptions(topics); err != nil {
		e.log.Debug("subscription push dropped", "peer", rec.ID().String(), "err", err)
	}
}

func (e *Engine) wireStream(rec *PeerRecord, s Stream) {
	ch := rec.createStream(e.cfg.sendBuffer)
	id := rec.ID()
	rec.onDisconnected(func() { e.removePeer(id) })
	go runInbound(id, s, rec, e.log, e.onRPC)
	go runOutbound(id, s, rec, ch, e.log)
}

// peerRecord returns the existing record for peer, or creates one.
func (e *Engine) peerRecord(peer PeerID, info []string) *PeerRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.peers[peer]; ok {
		rec.addRef()
		return rec
	}
	rec := newPeerRecord(peer, info)
	e.peers[peer] = rec
	return rec
}

// removePeer drops peer's record once its reference count reaches zero.
func (e *Engine) removePeer(peer PeerID) {
	e.mu.Lock()
	rec, ok := e.peers[peer]
	if ok && rec.release() {
		delete(e.peers, peer)
	}
	e.mu.Unlock()
}

// peerCount returns the number of live peer records.
func (e *Engine) peerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.peers)
}

// onRPC is the head of the receive pipeline, invoked by runInbound once
// per decoded RPC record.
func (e *Engine) onRPC(peer PeerID, rpc *pb.RPC) {
	if rpc == nil {
		return
	}

	e.mu.Lock()
	rec, ok := e.peers[peer]
	e.mu.Unlock()
	if !ok {
		return
	}

	if len(rpc.GetSubscriptions()) > 0 {
		rec.updateSubscriptions(rpc.GetSubscriptions())
	}

	if len(rpc.GetMsgs()) > 0 {
		for _, wireMsg := range rpc.GetMsgs() {
			e.handleMessage(fromWire(wireMsg))
		}
	}
}

// handleMessage runs one message through dedup, local emit, hop
// accounting, and forwarding. The check-then-insert on the dedup cache is
// serialized behind e.mu so it is atomic relative to other inbound
// deliveries of the same message identifier.
func (e *Engine) handleMessage(msg *Message) {
	id := msg.id()

	e.mu.Lock()
	if e.cache.Has(id) {
		e.mu.Unlock()
		return
	}
	e.cache.Add(id)

	localTopics := make([]string, 0, len(msg.TopicIDs))
	for _, t := range msg.TopicIDs {
		if _, subscribed := e.localSubs[t]; subscribed {
			localTopics = append(localTopics, t)
		}
	}
	e.mu.Unlock()

	// Local emit: one delivery per matching locally-subscribed topic.
	for _, t := range localTopics {
		e.deliverLocal(t, msg)
	}

	// Zero hops: deliver locally but never forward. Negative hops came
	// off the wire and pass through undecremented.
	if msg.Hops == 0 {
		return
	}
	if msg.Hops > 0 {
		msg.Hops--
	}

	e.forward(msg.TopicIDs, []*Message{msg})
}

// deliverLocal invokes every registered handler for topic with msg.
func (e *Engine) deliverLocal(topic string, msg *Message) {
	e.mu.Lock()
	hs := append([]MessageHandler(nil), e.handlers[topic]...)
	e.mu.Unlock()
	for _, h := range hs {
		h(msg)
	}
}

// forward sends msgs to every writable peer whose announced topics
// intersect topics, evaluating that peer's per-topic forwarding
// validators for every message and sending the survivors as a single RPC
// record.
func (e *Engine) forward(topics []string, msgs []*Message) {
	e.mu.Lock()
	peers := make([]*PeerRecord, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()

	for _, q := range peers {
		e.forwardToPeer(q, topics, msgs)
	}
}

func (e *Engine) forwardToPeer(q *PeerRecord, topics []string, msgs []*Message) {
	if !q.isWritable() {
		return
	}
	candidateTopics := q.intersectTopics(topics)
	if len(candidateTopics) == 0 {
		return
	}

	var surviving []*Message
	for _, m := range msgs {
		mTopics := intersectStrings(candidateTopics, m.TopicIDs)
		if len(mTopics) == 0 {
			continue
		}
		passed, errs := e.validators.evaluateTopics(context.Background(), mTopics, q, m)
		for _, err := range errs {
			e.log.Warn("forwarding validator error, dropping for peer", "peer", q.ID().String(), "err", err)
		}
		if passed {
			surviving = append(surviving, m)
		}
	}
	if len(surviving) == 0 {
		return
	}

	// A peer that disconnected mid-evaluation, or whose send buffer is
	// full, fails this write silently.
	if err := q.sendMessages(surviving); err != nil {
		e.log.Debug("forward send dropped", "peer", q.ID().String(), "err", err)
	}
}

func intersectStrings(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Publish builds one message per payload and disseminates it: local emit
// to own listeners first, then the forward procedure.
func (e *Engine) Publish(topics []string, payloads [][]byte, hops int32) error {
	if !e.isStarted() {
		return ErrNotStarted
	}
	if len(topics) == 0 || len(payloads) == 0 {
		return ErrBadArgument
	}

	msgs := make([]*Message, 0, len(payloads))
	e.mu.Lock()
	for _, data := range payloads {
		m := &Message{
			From:     e.host.ID(),
			Data:     data,
			Seqno:    randomSeqno(),
			Hops:     hops,
			TopicIDs: topics,
		}
		// Insert before dissemination so an echo from a peer cannot
		// cause a second local delivery.
		e.cache.Add(m.id())
		msgs = append(msgs, m)
	}

	localTopics := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, subscribed := e.localSubs[t]; subscribed {
			localTopics = append(localTopics, t)
		}
	}
	e.mu.Unlock()

	for _, m := range msgs {
		for _, t := range localTopics {
			e.deliverLocal(t, m)
		}
	}

	e.forward(topics, msgs)
	return nil
}

// Subscribe adds topic to the local subscription set, registers handler,
// and announces the subscription to every known peer: immediately if the
// peer is writable now, otherwise deferred through the retry-then-cancel
// pattern.
func (e *Engine) Subscribe(topic string, handler MessageHandler) error {
	if !e.isStarted() {
		return ErrNotStarted
	}

	e.mu.Lock()
	_, already := e.localSubs[topic]
	e.localSubs[topic] = struct{}{}
	e.handlers[topic] = append(e.handlers[topic], handler)
	peers := make([]*PeerRecord, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()

	if already {
		return nil
	}

	for _, p := range peers {
		e.announceSubscription(p, topic, true)
	}
	return nil
}

// Unsubscribe removes handler from topic's listeners; once no listeners
// remain, removes topic from the local subscription set and announces
// the removal the same way Subscribe announces additions. If the engine
// is not started, it returns silently rather than racing shutdown.
func (e *Engine) Unsubscribe(topic string, handler MessageHandler) error {
	if !e.isStarted() {
		return nil
	}

	e.mu.Lock()
	hs := e.handlers[topic]
	filtered := hs[:0:0]
	for _, h := range hs {
		if !sameHandler(h, handler) {
			filtered = append(filtered, h)
		}
	}
	lastRemoved := len(filtered) == 0
	if lastRemoved {
		delete(e.handlers, topic)
		delete(e.localSubs, topic)
	} else {
		e.handlers[topic] = filtered
	}
	var peers []*PeerRecord
	if lastRemoved {
		peers = make([]*PeerRecord, 0, len(e.peers))
		for _, p := range e.peers {
			peers = append(peers, p)
		}
	}
	e.mu.Unlock()

	if !lastRemoved {
		return nil
	}
	for _, p := range peers {
		e.announceSubscription(p, topic, false)
	}
	return nil
}

func sameHandler(a, b MessageHandler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func (e *Engine) announceSubscription(p *PeerRecord, topic string, subscribe bool) {
	send := func() {
		var err error
		if subscribe {
			err = p.sendSubscriptions([]string{topic})
		} else {
			err = p.sendUnsubscriptions([]string{topic})
		}
		if err != nil {
			e.log.Debug("subscription announcement dropped", "peer", p.ID().String(), "topic", topic, "err", err)
		}
	}
	if p.isWritable() {
		send()
		return
	}
	p.onConnectedOnceWithCancel(send)
}

// Ls returns the current local subscription topic list.
func (e *Engine) Ls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.localSubs))
	for t := range e.localSubs {
		out = append(out, t)
	}
	return out
}

// Peers returns the textual identifiers of connected peers, optionally
// filtered to those that have announced topic.
func (e *Engine) Peers(topic string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.peers))
	for id, p := range e.peers {
		if topic == "" || p.hasAnyTopic([]string{topic}) {
			out = append(out, id.String())
		}
	}
	return out
}

// AddForwardValidators bulk-registers validators for topic.
func (e *Engine) AddForwardValidators(topic string, vs ...ForwardValidator) {
	e.validators.Add(topic, vs...)
}

// RemoveForwardValidators bulk-unregisters validators for topic.
func (e *Engine) RemoveForwardValidators(topic string, vs ...ForwardValidator) {
	e.validators.Remove(topic, vs...)
}
