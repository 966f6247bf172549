// Package pb holds the wire schema for the flood-dissemination RPC
// exchanged between two connected peers.
package pb

import "fmt"

// RPC is the top-level record carried on the wire, length-prefixed with an
// unsigned varint and framed by gogo/protobuf/io's delimited reader/writer.
type RPC struct {
	Subscriptions []*SubOpts `protobuf:"bytes,1,rep,name=subscriptions" json:"subscriptions,omitempty"`
	Msgs          []*Message `protobuf:"bytes,2,rep,name=msgs" json:"msgs,omitempty"`
}

func (m *RPC) Reset()         { *m = RPC{} }
func (m *RPC) String() string { return fmt.Sprintf("%+v", *m) }
func (m *RPC) ProtoMessage()  {}

func (m *RPC) GetSubscriptions() []*SubOpts {
	if m != nil {
		return m.Subscriptions
	}
	return nil
}

func (m *RPC) GetMsgs() []*Message {
	if m != nil {
		return m.Msgs
	}
	return nil
}

// SubOpts is a single subscription delta: subscribe-or-unsubscribe from a
// named topic.
type SubOpts struct {
	Subscribe *bool   `protobuf:"varint,1,opt,name=subscribe" json:"subscribe,omitempty"`
	TopicCID  *string `protobuf:"bytes,2,opt,name=topicCID" json:"topicCID,omitempty"`
}

func (m *SubOpts) Reset()         { *m = SubOpts{} }
func (m *SubOpts) String() string { return fmt.Sprintf("%+v", *m) }
func (m *SubOpts) ProtoMessage()  {}

func (m *SubOpts) GetSubscribe() bool {
	if m != nil && m.Subscribe != nil {
		return *m.Subscribe
	}
	return false
}

func (m *SubOpts) GetTopicCID() string {
	if m != nil && m.TopicCID != nil {
		return *m.TopicCID
	}
	return ""
}

// Message is a single dissemination record.
type Message struct {
	From     []byte   `protobuf:"bytes,1,opt,name=from" json:"from,omitempty"`
	Data     []byte   `protobuf:"bytes,2,opt,name=data" json:"data,omitempty"`
	Seqno    []byte   `protobuf:"bytes,3,opt,name=seqno" json:"seqno,omitempty"`
	Hops     *int32   `protobuf:"varint,4,opt,name=hops" json:"hops,omitempty"`
	TopicIDs []string `protobuf:"bytes,5,rep,name=topicIDs" json:"topicIDs,omitempty"`
}

func (m *Message) Reset()         { *m = Message{} }
func (m *Message) String() string { return fmt.Sprintf("%+v", *m) }
func (m *Message) ProtoMessage()  {}

func (m *Message) GetFrom() []byte {
	if m != nil {
		return m.From
	}
	return nil
}

func (m *Message) GetData() []byte {
	if m != nil {
		return m.Data
	}
	return nil
}

func (m *Message) GetSeqno() []byte {
	if m != nil {
		return m.Seqno
	}
	return nil
}

func (m *Message) GetHops() int32 {
	if m != nil && m.Hops != nil {
		return *m.Hops
	}
	return 0
}

func (m *Message) GetTopicIDs() []string {
	if m != nil {
		return m.TopicIDs
	}
	return nil
}

// Bool and Int32 are small helpers for building optional-field literals
// without spelling out a local variable at every call site.
func Bool(b bool) *bool    { return &b }
func Int32(i int32) *int32 { return &i }
func String(s string) *string { return &s }
