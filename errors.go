package floodsub

import "errors"

// Sentinel errors for the public API and the internal engine/peer-record
// plumbing.
var (
	// ErrNotStarted is returned by Subscribe, Publish, Ls and Peers when
	// called before Start or after Stop.
	ErrNotStarted = errors.New("floodsub: not started")

	// ErrNoWritableConnection is returned by PeerRecord.write when the
	// peer's send channel is absent.
	ErrNoWritableConnection = errors.New("floodsub: no writable connection")

	// ErrCodecFailure names a decode or encode failure on a stream. The
	// framing adapter does not return it: runInbound and runOutbound log
	// such a failure and end only the one affected stream.
	ErrCodecFailure = errors.New("floodsub: codec failure")

	// ErrBadArgument is returned by Publish when called with no topics or
	// no payloads.
	ErrBadArgument = errors.New("floodsub: bad argument")

	// ErrAlreadyStarted is returned by Start when called twice.
	ErrAlreadyStarted = errors.New("floodsub: already started")

	// ErrUnknownPeer reports a peer that is not known. No Engine or
	// Service operation returns it; it is available to Host
	// implementations, such as NewStream for a peer they cannot reach.
	ErrUnknownPeer = errors.New("floodsub: unknown peer")
)
