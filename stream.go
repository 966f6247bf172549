package floodsub

import (
	"io"
	"log/slog"

	ggio "github.com/gogo/protobuf/io"

	"github.com/dep2p/go-floodsub/pb"
)

// maxRPCSize bounds a single decoded RPC record, guarding against a
// hostile or buggy peer claiming an unbounded length prefix.
const maxRPCSize = 8 * 1024 * 1024

// runInbound decodes RPC records from s, one per call to onRPC, until the
// stream ends or a decode failure occurs, then tears down the peer record
// via onStreamEnd. Decode failures terminate this stream only.
func runInbound(peer PeerID, s Stream, rec *PeerRecord, log *slog.Logger, onRPC func(PeerID, *pb.RPC)) {
	defer rec.onStreamEnd()

	r := ggio.NewDelimitedReader(s, maxRPCSize)
	for {
		rpc := &pb.RPC{}
		if err := r.ReadMsg(rpc); err != nil {
			if err != io.EOF {
				log.Debug("inbound decode failed, ending stream", "peer", peer.String(), "err", err)
			}
			return
		}
		onRPC(peer, rpc)
	}
}

// runOutbound drains ch, writing each queued RPC record to s via
// delimited protobuf framing, until ch is closed or a write fails. Either
// way the peer transitions through onStreamEnd.
func runOutbound(peer PeerID, s Stream, rec *PeerRecord, ch <-chan *pb.RPC, log *slog.Logger) {
	defer rec.onStreamEnd()

	w := ggio.NewDelimitedWriter(s)
	for rpc := range ch {
		if err := w.WriteMsg(rpc); err != nil {
			log.Debug("outbound encode failed, ending stream", "peer", peer.String(), "err", err)
			return
		}
	}
	_ = s.CloseWrite()
}
