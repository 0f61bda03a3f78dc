package websocket

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	// Payloads below this size are sent as-is.
	compressThreshold = 4 << 10
	maxDecodedPayload = 64 << 20
	frameOverhead     = 64 << 10

	// MaxPayloadSize is the largest value a frame can carry within the
	// peer's read limit. Chunk sizes above it cannot be transferred.
	MaxPayloadSize = maxMessageSize - frameOverhead
)

var ErrPayloadTooLarge = errors.New("payload too large")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("websocket: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("websocket: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("websocket: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedPayload))
	if err != nil {
		panic("websocket: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeFrame serializes f. With compress set, large payloads are zstd
// compressed when that makes them smaller. f itself is not modified.
func encodeFrame(f *Frame, compress bool) ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s frame for %q carries %d bytes, limit is %d", ErrPayloadTooLarge, f.Type, f.Key, len(f.Payload), MaxPayloadSize)
	}
	out := *f
	if compress && len(out.Payload) >= compressThreshold {
		packed := zstdEncoder.EncodeAll(out.Payload, make([]byte, 0, len(out.Payload)/2))
		if len(packed) < len(out.Payload) {
			out.Payload = packed
			out.Compressed = true
		}
	}

	data, err := encMode.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", f.Type, err)
	}
	return data, nil
}

func decodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := decMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Compressed {
		payload, err := zstdDecoder.DecodeAll(f.Payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s frame: %w", f.Type, err)
		}
		f.Payload = payload
		f.Compressed = false
	}
	return &f, nil
}
