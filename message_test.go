package floodsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgIDConcatenatesFromAndSeqno(t *testing.T) {
	id := msgID("peer-a", []byte{0x01, 0x02})
	assert.Equal(t, "peer-a0102", id)
}

func TestRandomSeqnoIsEightBytesAndVaries(t *testing.T) {
	a := randomSeqno()
	b := randomSeqno()
	require.Len(t, a, 8)
	require.Len(t, b, 8)
	assert.NotEqual(t, a, b)
}

func TestMessageWireRoundTrip(t *testing.T) {
	m := &Message{
		From:     "peer-a",
		Data:     []byte("hello"),
		Seqno:    []byte{1, 2, 3, 4},
		Hops:     3,
		TopicIDs: []string{"foo", "bar"},
	}

	w := m.toWire()
	got := fromWire(w)

	assert.Equal(t, m.From, got.From)
	assert.Equal(t, m.Data, got.Data)
	assert.Equal(t, m.Seqno, got.Seqno)
	assert.Equal(t, m.Hops, got.Hops)
	assert.Equal(t, m.TopicIDs, got.TopicIDs)
}

func TestPeerIDBase58RoundTrip(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	id := PeerIDFromBytes(raw)

	decoded, err := id.Bytes()
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}
