// Package floodsub implements a flood-style publish/subscribe
// dissemination core atop a peer-to-peer networking substrate (a Host).
// Peers announce topic subscriptions to one another; messages published
// on a topic are forwarded hop-limited through the overlay so that every
// subscriber eventually receives each message at most once.
package floodsub

import "context"

// Service is the thin API surface that adapts engine events to registered
// handlers. Subscribe, Publish, Ls and Peers fail with ErrNotStarted
// before Start or after Stop; Unsubscribe then returns nil without doing
// anything, and OnPeerConnected, AddForwardValidators and
// RemoveForwardValidators do not check the started state.
type Service struct {
	engine *Engine
}

// New constructs a Service bound to host. Call Start before using it.
func New(host Host, opts ...Option) *Service {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{engine: newEngine(host, cfg)}
}

// Start installs the protocol handler for incoming streams.
func (f *Service) Start(ctx context.Context) error {
	return f.engine.Start()
}

// Stop tears down every peer stream and empties the local subscription
// set. The duplicate-suppression cache and the validator registry
// survive Stop and may be reused across a subsequent Start.
func (f *Service) Stop() error {
	return f.engine.Stop()
}

// OnPeerConnected is the dial hook applications call once their own
// substrate's dial path completes for peer: it wires the stream and
// immediately pushes the local subscription snapshot.
func (f *Service) OnPeerConnected(peer PeerID, info []string, s Stream) {
	f.engine.OnPeerConnected(peer, info, s)
}

// Subscribe registers handler as a listener for topic, installing
// validators (if any) and announcing the subscription on first interest
// in the topic.
func (f *Service) Subscribe(topic string, handler MessageHandler, opts ...SubscribeOption) error {
	if !f.engine.isStarted() {
		return ErrNotStarted
	}
	var so subscribeOptions
	for _, o := range opts {
		o(&so)
	}
	if len(so.validators) > 0 {
		f.engine.AddForwardValidators(topic, so.validators...)
	}
	return f.engine.Subscribe(topic, handler)
}

// Unsubscribe removes handler from topic's listeners; on the last
// listener, announces the removal.
func (f *Service) Unsubscribe(topic string, handler MessageHandler) error {
	return f.engine.Unsubscribe(topic, handler)
}

// Publish disseminates data on topics with hops remaining forwards. The
// payload is opaque; it is never inspected.
func (f *Service) Publish(ctx context.Context, topics []string, data []byte, hops int32) error {
	return f.engine.Publish(topics, [][]byte{data}, hops)
}

// Ls yields the current local subscription topic list.
func (f *Service) Ls() ([]string, error) {
	if !f.engine.isStarted() {
		return nil, ErrNotStarted
	}
	return f.engine.Ls(), nil
}

// Peers yields textual identifiers of connected peers, optionally
// filtered to those subscribed to topic. Pass "" for no filter.
func (f *Service) Peers(topic string) ([]string, error) {
	if !f.engine.isStarted() {
		return nil, ErrNotStarted
	}
	return f.engine.Peers(topic), nil
}

// AddForwardValidators bulk-registers validators for topic.
func (f *Service) AddForwardValidators(topic string, vs ...ForwardValidator) {
	f.engine.AddForwardValidators(topic, vs...)
}

// RemoveForwardValidators bulk-unregisters validators for topic.
func (f *Service) RemoveForwardValidators(topic string, vs ...ForwardValidator) {
	f.engine.RemoveForwardValidators(topic, vs...)
}

// SubscribeOption configures a Subscribe call.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	validators []ForwardValidator
}

// WithValidators installs forwarding validators for the topic being
// subscribed to.
func WithValidators(vs ...ForwardValidator) SubscribeOption {
	return func(o *subscribeOptions) { o.validators = append(o.validators, vs...) }
}
