package floodsub

import (
	"context"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"
)

// reflectFuncPtr returns a stable identity for a ForwardValidator value,
// used to match registrations for Remove since Go func values are not
// comparable with ==.
func reflectFuncPtr(v ForwardValidator) uintptr {
	return reflect.ValueOf(v).Pointer()
}

// ForwardValidator is a per-topic forwarding predicate consulted before a
// message is sent to a specific peer. It may block: a validator that
// needs to do asynchronous work simply waits inside the call, so no
// separate sync/async registration path exists.
type ForwardValidator func(ctx context.Context, peer *PeerRecord, msg *Message) (bool, error)

// validatorRegistry maps topic to the validators registered against it.
// Multiple validators for one topic are combined by logical conjunction
// with short-circuit semantics.
type validatorRegistry struct {
	mu      sync.RWMutex
	byTopic map[string][]ForwardValidator
}

func newValidatorRegistry() *validatorRegistry {
	return &validatorRegistry{byTopic: make(map[string][]ForwardValidator)}
}

// Add registers vs against topic.
func (r *validatorRegistry) Add(topic string, vs ...ForwardValidator) {
	if len(vs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTopic[topic] = append(r.byTopic[topic], vs...)
}

// Remove unregisters vs from topic, matched by function pointer identity.
func (r *validatorRegistry) Remove(topic string, vs ...ForwardValidator) {
	if len(vs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.byTopic[topic]
	if len(existing) == 0 {
		return
	}
	remove := make(map[uintptr]struct{}, len(vs))
	for _, v := range vs {
		remove[reflectFuncPtr(v)] = struct{}{}
	}
	kept := existing[:0:0]
	for _, v := range existing {
		if _, drop := remove[reflectFuncPtr(v)]; !drop {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		delete(r.byTopic, topic)
		return
	}
	r.byTopic[topic] = kept
}

// Evaluate runs every validator registered for topic against (peer, msg),
// short-circuiting on the first rejection or error. A topic with no
// registered validators passes trivially. Errors surface to the caller;
// the drop-and-log decision lives in engine.go, not here.
func (r *validatorRegistry) Evaluate(ctx context.Context, topic string, peer *PeerRecord, msg *Message) (bool, error) {
	r.mu.RLock()
	vs := r.byTopic[topic]
	r.mu.RUnlock()
	for _, v := range vs {
		ok, err := v(ctx, peer, msg)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evaluateTopics runs Evaluate concurrently across candidateTopics via
// errgroup; the message survives if it passes at least one candidate
// topic, so a peer subscribed to several overlapping topics still
// receives a broadcast when any matching topic permits it. A per-topic
// validator error never aborts sibling topic evaluations: it is treated
// as "does not pass for that topic" and returned alongside so the caller
// can log it.
func (r *validatorRegistry) evaluateTopics(ctx context.Context, candidateTopics []string, peer *PeerRecord, msg *Message) (passed bool, errs []error) {
	if len(candidateTopics) == 0 {
		return false, nil
	}
	results := make([]bool, len(candidateTopics))
	errsSlice := make([]error, len(candidateTopics))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range candidateTopics {
		i, t := i, t
		g.Go(func() error {
			ok, err := r.Evaluate(gctx, t, peer, msg)
			results[i] = ok
			errsSlice[i] = err
			return nil
		})
	}
	_ = g.Wait()
	for i, ok := range results {
		if errsSlice[i] != nil {
			errs = append(errs, errsSlice[i])
		}
		if ok {
			passed = true
		}
	}
	return passed, errs
}
