// Package payload turns arbitrary in-memory values into byte sequences and
// back. It is the object-serialization engine below the wire protocol: the
// framing layer treats its output as opaque bytes.
//
// A Codec produces a primary stream plus an ordered list of out-of-band
// buffers. Large binary values wrapped in [Blob] can be lifted out of the
// primary stream and transferred as separate buffers, so image, tensor and
// point-cloud memory is never copied into the encoded stream. Decoding takes
// the same buffer list back and reconstructs the original value.
package payload

import "errors"

var (
	ErrDecode           = errors.New("payload: malformed primary stream")
	ErrBufferOutOfRange = errors.New("payload: reference to a missing out-of-band buffer")
)

// Codec encodes a value into a primary byte stream plus zero or more
// out-of-band buffers referenced by position from the primary stream.
//
// An implementation may also keep every buffer inline, in which case the
// returned buffer list is empty and the primary stream is self-contained.
// Decode must accept the output of either strategy.
type Codec interface {
	Encode(v any) (primary []byte, buffers [][]byte, err error)
	Decode(primary []byte, buffers [][]byte) (any, error)
}

// Blob marks a byte slice as a large binary payload. The zero-copy codec
// lifts blobs reachable through dynamic containers (any, []any, maps) out of
// the primary stream; everywhere else a blob is encoded inline.
type Blob []byte
