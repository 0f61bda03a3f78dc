package websocket

import "github.com/prappser/prappser_cdn/internal/transport"

type FrameType string

const (
	FrameTypePut                FrameType = "put"
	FrameTypeDelete             FrameType = "delete"
	FrameTypeSubscribe          FrameType = "subscribe"
	FrameTypeUnsubscribe        FrameType = "unsubscribe"
	FrameTypeSample             FrameType = "sample"
	FrameTypeDeclareQueryable   FrameType = "declare_queryable"
	FrameTypeUndeclareQueryable FrameType = "undeclare_queryable"
	FrameTypeGet                FrameType = "get"
	FrameTypeQuery              FrameType = "query"
	FrameTypeReply              FrameType = "reply"
	FrameTypeQueryDone          FrameType = "query_done"
	FrameTypeGetDone            FrameType = "get_done"
	FrameTypeError              FrameType = "error"
)

// Frame is the single wire message exchanged between sessions and the
// broker. ID correlates subscriptions, queryables and gets chosen by the
// session; for query frames it is the broker's query id and Target names the
// session's queryable.
type Frame struct {
	Type       FrameType `cbor:"type"`
	ID         string    `cbor:"id,omitempty"`
	Target     string    `cbor:"target,omitempty"`
	Key        string    `cbor:"key,omitempty"`
	Kind       uint8     `cbor:"kind,omitempty"`
	Encoding   uint8     `cbor:"encoding,omitempty"`
	Payload    []byte    `cbor:"payload,omitempty"`
	Compressed bool      `cbor:"compressed,omitempty"`
	Error      string    `cbor:"error,omitempty"`
}

func (f *Frame) value() transport.Value {
	return transport.Value{Payload: f.Payload, Encoding: transport.Encoding(f.Encoding)}
}

func (f *Frame) change() transport.Change {
	return transport.Change{Key: f.Key, Value: f.value(), Kind: transport.ChangeKind(f.Kind)}
}

func valueFrame(t FrameType, id, key string, v transport.Value) *Frame {
	return &Frame{Type: t, ID: id, Key: key, Encoding: uint8(v.Encoding), Payload: v.Payload}
}
