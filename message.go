package floodsub

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/dep2p/go-floodsub/pb"
)

// Message is one dissemination record. Hops is the number of remaining
// forwards: zero means deliver locally but do not forward; a received
// negative value is passed through unchanged rather than decremented.
type Message struct {
	From     PeerID
	Data     []byte
	Seqno    []byte
	Hops     int32
	TopicIDs []string
}

// msgID derives the duplicate-suppression cache key: the concatenation of
// the originating peer identifier and the hex text of the sequence
// number.
func msgID(from PeerID, seqno []byte) string {
	return string(from) + hex.EncodeToString(seqno)
}

// id returns this message's duplicate-suppression cache key.
func (m *Message) id() string {
	return msgID(m.From, m.Seqno)
}

// randomSeqno returns a fresh 8-byte sequence number for a
// locally-published message, drawn from a cryptographically-strong
// source.
func randomSeqno() []byte {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable, which means the process environment is broken
		// beyond anything this core can recover from.
		panic("floodsub: crypto/rand unavailable: " + err.Error())
	}
	return b
}

// toWire converts m to its protobuf wire representation.
func (m *Message) toWire() *pb.Message {
	return &pb.Message{
		From:     []byte(m.From),
		Data:     m.Data,
		Seqno:    m.Seqno,
		Hops:     pb.Int32(m.Hops),
		TopicIDs: m.TopicIDs,
	}
}

// fromWire converts a decoded protobuf message into the core's Message
// type.
func fromWire(w *pb.Message) *Message {
	return &Message{
		From:     PeerID(w.GetFrom()),
		Data:     w.GetData(),
		Seqno:    w.GetSeqno(),
		Hops:     w.GetHops(),
		TopicIDs: w.GetTopicIDs(),
	}
}
