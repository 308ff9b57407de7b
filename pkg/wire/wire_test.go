package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeffacce/commlink/pkg/payload"
)

func TestDetectFormat(t *testing.T) {
	_, err := DetectFormat(nil)
	require.ErrorIs(t, err, ErrMalformedMessage)

	f, err := DetectFormat([][]byte{[]byte("one")})
	require.NoError(t, err)
	require.Equal(t, FormatSingleFrameLegacy, f)

	f, err = DetectFormat([][]byte{[]byte("t"), []byte("p")})
	require.NoError(t, err)
	require.Equal(t, FormatTwoFrame, f)

	f, err = DetectFormat([][]byte{[]byte("t"), []byte("p"), []byte("b")})
	require.NoError(t, err)
	require.Equal(t, FormatMultiFrame, f)
}

func TestValidateTopic(t *testing.T) {
	require.NoError(t, ValidateTopic("sensor.lidar-0"))
	require.ErrorIs(t, ValidateTopic("bad topic"), ErrTopicInvalid)
}

func TestEncode_RejectsSpacedTopic(t *testing.T) {
	_, err := Encode("no spaces", "v", payload.NewMsgpackCodec())
	require.ErrorIs(t, err, ErrTopicInvalid)
}

func TestRoundTrip_BothModes(t *testing.T) {
	v := map[string]any{
		"img":  payload.Blob("not really an image"),
		"note": "frame 1",
	}

	for name, codec := range map[string]payload.Codec{
		"default": payload.NewMsgpackCodec(),
		"legacy":  payload.NewInlineMsgpackCodec(),
	} {
		frames, err := Encode("cam0", v, codec)
		require.NoError(t, err, name)

		topic, got, err := Decode(frames, payload.NewMsgpackCodec())
		require.NoError(t, err, name)
		require.Equal(t, "cam0", topic, name)
		m := got.(map[string]any)
		require.Equal(t, payload.Blob("not really an image"), m["img"], name)
		require.Equal(t, "frame 1", m["note"], name)
	}
}

func TestRoundTrip_DefaultProducesBufferFrames(t *testing.T) {
	frames, err := Encode("cam0", map[string]any{"img": payload.Blob("xxxx")}, payload.NewMsgpackCodec())
	require.NoError(t, err)
	require.Len(t, frames, 3, "topic + primary + one buffer")
	require.Equal(t, []byte("xxxx"), frames[2])
}

func TestRoundTrip_LegacyProducesTwoFrames(t *testing.T) {
	frames, err := Encode("cam0", map[string]any{"img": payload.Blob("xxxx")}, payload.NewInlineMsgpackCodec())
	require.NoError(t, err)
	require.Len(t, frames, 2)
}

func TestDecode_SingleFrameLegacyEquivalence(t *testing.T) {
	codec := payload.NewInlineMsgpackCodec()
	frames, err := Encode("alpha", "payload-value", codec)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	// Very old publishers concatenate topic and payload with a space.
	joined := append(append(append([]byte{}, frames[0]...), ' '), frames[1]...)

	topicA, valueA, err := Decode(frames, codec)
	require.NoError(t, err)
	topicB, valueB, err := Decode([][]byte{joined}, codec)
	require.NoError(t, err)

	require.Equal(t, topicA, topicB)
	require.Equal(t, valueA, valueB)
	require.Equal(t, "alpha", topicB)
	require.Equal(t, "payload-value", valueB)
}

func TestDecode_SingleFrameWithoutDelimiter(t *testing.T) {
	_, _, err := Decode([][]byte{[]byte("nodelimiterhere")}, payload.NewMsgpackCodec())
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecode_BadBufferReference(t *testing.T) {
	frames, err := Encode("cam0", payload.Blob("abc"), payload.NewMsgpackCodec())
	require.NoError(t, err)
	require.Len(t, frames, 3)

	// Drop the buffer frame: the primary stream now references a buffer
	// that does not exist.
	_, _, err = Decode(frames[:2], payload.NewMsgpackCodec())
	require.ErrorIs(t, err, payload.ErrBufferOutOfRange)
}
