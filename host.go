package floodsub

import (
	"io"

	"github.com/mr-tron/base58"
)

// PeerID is an opaque, comparable, hashable peer identity: the Base58
// textual form of a cryptographic peer id. It is used directly as the key
// of the engine's peer map.
type PeerID string

// String returns the textual form of the identifier.
func (id PeerID) String() string { return string(id) }

// Bytes decodes the identifier's Base58 textual form back to the raw
// identity bytes the substrate originally supplied.
func (id PeerID) Bytes() ([]byte, error) {
	return base58.Decode(string(id))
}

// PeerIDFromBytes renders raw identity bytes as their Base58 textual
// PeerID form.
func PeerIDFromBytes(raw []byte) PeerID {
	return PeerID(base58.Encode(raw))
}

// Stream is a bidirectional byte channel to one identified peer, as
// supplied by the substrate. The core only ever reads, writes, and closes
// it; it never interprets addressing or transport-level metadata.
type Stream interface {
	io.Reader
	io.Writer

	// Close ends both halves of the stream.
	Close() error

	// CloseWrite half-closes the outbound side once all pending writes
	// have been flushed, signalling end-of-stream to the remote peer
	// without discarding anything still in flight on the inbound side.
	CloseWrite() error
}

// StreamHandler is invoked by the substrate once per accepted inbound
// stream on the registered protocol identifier.
type StreamHandler func(peer PeerID, s Stream)

// Host is the transport and peer-dialling substrate this package
// consumes. It is implemented by the embedding application, not here.
type Host interface {
	// ID returns the local peer identity.
	ID() PeerID

	// SetStreamHandler registers h to be invoked for every inbound stream
	// opened against protocol on this host.
	SetStreamHandler(protocol string, h StreamHandler)

	// RemoveStreamHandler undoes a prior SetStreamHandler.
	RemoveStreamHandler(protocol string)

	// NewStream opens a bidirectional byte stream to peer on the given
	// protocol identifier.
	NewStream(peer PeerID, protocol string) (Stream, error)
}
