package payload

import (
	"bytes"
	"fmt"
	"io"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/encoding/protowire"
)

// Msgpack extension ids claimed by this package. Both sides of a link must
// agree on them, so they are fixed forever.
const (
	extBlob      = 42
	extBufferRef = 43
)

// The ext hooks are registered value-based: the Marshaler route would wrap
// them in an addressability check, and blobs routinely sit in
// non-addressable positions (map elements, interface slots).
func init() {
	msgpack.RegisterExtEncoder(extBlob, Blob(nil), encodeBlobExt)
	msgpack.RegisterExtDecoder(extBlob, (*Blob)(nil), decodeBlobExt)
	msgpack.RegisterExtEncoder(extBufferRef, bufferRef{}, encodeBufferRefExt)
	msgpack.RegisterExtDecoder(extBufferRef, bufferRef{}, decodeBufferRefExt)
}

// encodeBlobExt inlines the blob bytes into the primary stream. It runs
// when the copying codec is in use, or when the zero-copy path could not
// lift the blob out of the value graph (e.g. a typed struct field).
func encodeBlobExt(_ *msgpack.Encoder, v reflect.Value) ([]byte, error) {
	return v.Bytes(), nil
}

func decodeBlobExt(d *msgpack.Decoder, v reflect.Value, extLen int) error {
	b := make([]byte, extLen)
	if _, err := io.ReadFull(d.Buffered(), b); err != nil {
		return err
	}
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	v.SetBytes(b)
	return nil
}

// bufferRef is the on-wire stand-in for a lifted blob: a varint index into
// the out-of-band buffer list that travels alongside the primary stream.
type bufferRef struct {
	index uint64
}

func encodeBufferRefExt(_ *msgpack.Encoder, v reflect.Value) ([]byte, error) {
	ref := v.Interface().(bufferRef)
	return protowire.AppendVarint(nil, ref.index), nil
}

func decodeBufferRefExt(d *msgpack.Decoder, v reflect.Value, extLen int) error {
	b := make([]byte, extLen)
	if _, err := io.ReadFull(d.Buffered(), b); err != nil {
		return err
	}
	idx, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return fmt.Errorf("%w: truncated buffer reference", ErrDecode)
	}
	v.Addr().Interface().(*bufferRef).index = idx
	return nil
}

// MsgpackCodec implements Codec on top of msgpack.
//
// The default mode is zero-copy: every [Blob] reachable through dynamic
// containers is replaced by a positional reference and appended to the
// buffer list, so blob memory never enters the primary stream. The inline
// mode copies blobs into the primary stream instead, producing a
// self-contained message that predates the out-of-band format on the wire.
// One Decode handles the output of both modes.
type MsgpackCodec struct {
	inline bool
}

// NewMsgpackCodec returns the zero-copy codec.
func NewMsgpackCodec() MsgpackCodec {
	return MsgpackCodec{}
}

// NewInlineMsgpackCodec returns the copying codec used by publishers that
// must stay readable by subscribers which predate out-of-band buffers.
func NewInlineMsgpackCodec() MsgpackCodec {
	return MsgpackCodec{inline: true}
}

func (c MsgpackCodec) Encode(v any) ([]byte, [][]byte, error) {
	var buffers [][]byte
	if !c.inline {
		v, buffers = lift(v, nil)
	}
	primary, err := msgpack.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return primary, buffers, nil
}

func (c MsgpackCodec) Decode(primary []byte, buffers [][]byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(primary))
	dec.UseLooseInterfaceDecoding(true)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err)
	}
	return resolve(v, buffers)
}

// lift rewrites dynamic containers so that every reachable Blob is replaced
// by a bufferRef, appending the blob to the buffer list. Containers holding
// no blobs are returned untouched. Typed struct fields are left to the
// inline path: a Blob-typed field cannot hold a reference.
func lift(v any, buffers [][]byte) (any, [][]byte) {
	switch val := v.(type) {
	case Blob:
		buffers = append(buffers, val)
		return bufferRef{index: uint64(len(buffers) - 1)}, buffers
	case []any:
		var out []any
		for i, elem := range val {
			lifted, next := lift(elem, buffers)
			if len(next) != len(buffers) && out == nil {
				out = make([]any, len(val))
				copy(out, val)
			}
			buffers = next
			if out != nil {
				out[i] = lifted
			}
		}
		if out != nil {
			return out, buffers
		}
		return val, buffers
	case map[string]any:
		var out map[string]any
		for k, elem := range val {
			lifted, next := lift(elem, buffers)
			if len(next) != len(buffers) && out == nil {
				out = make(map[string]any, len(val))
				for ck, cv := range val {
					out[ck] = cv
				}
			}
			buffers = next
			if out != nil {
				out[k] = lifted
			}
		}
		if out != nil {
			return out, buffers
		}
		return val, buffers
	}
	return liftReflect(v, buffers)
}

var blobType = reflect.TypeOf(Blob(nil))

// liftReflect covers homogeneous blob containers ([]Blob, map[string]Blob).
// They are rebuilt as their dynamic equivalents, which is also the shape
// they decode back into.
func liftReflect(v any, buffers [][]byte) (any, [][]byte) {
	rv := reflect.ValueOf(v)
	switch {
	case rv.Kind() == reflect.Slice && rv.Type().Elem() == blobType:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i], buffers = lift(rv.Index(i).Interface(), buffers)
		}
		return out, buffers
	case rv.Kind() == reflect.Map && rv.Type().Elem() == blobType && rv.Type().Key().Kind() == reflect.String:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()], buffers = lift(iter.Value().Interface(), buffers)
		}
		return out, buffers
	}
	return v, buffers
}

// resolve substitutes every bufferRef in a decoded value with the buffer it
// points at. Containers are patched in place.
func resolve(v any, buffers [][]byte) (any, error) {
	switch val := v.(type) {
	case bufferRef:
		return resolveRef(val.index, buffers)
	case *bufferRef:
		return resolveRef(val.index, buffers)
	case *Blob:
		return *val, nil
	case []any:
		for i, elem := range val {
			resolved, err := resolve(elem, buffers)
			if err != nil {
				return nil, err
			}
			val[i] = resolved
		}
		return val, nil
	case map[string]any:
		for k, elem := range val {
			resolved, err := resolve(elem, buffers)
			if err != nil {
				return nil, err
			}
			val[k] = resolved
		}
		return val, nil
	case map[any]any:
		for k, elem := range val {
			resolved, err := resolve(elem, buffers)
			if err != nil {
				return nil, err
			}
			val[k] = resolved
		}
		return val, nil
	}
	return v, nil
}

func resolveRef(index uint64, buffers [][]byte) (any, error) {
	if index >= uint64(len(buffers)) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrBufferOutOfRange, index, len(buffers))
	}
	return Blob(buffers[index]), nil
}
