// Package wire implements the frame-level pub/sub protocol. It is pure: no
// I/O, no state, just conversion between a (topic, value) pair and the
// ordered frame sequence that crosses the transport.
//
// Three wire formats coexist and a decoder must accept all of them without
// prior knowledge of which publisher generation produced a message:
//
//   - single-frame legacy: one frame of "<topic> <payload>", split on the
//     first 0x20 byte. Produced only by very old publishers.
//   - two-frame legacy: [topic, payload], payload self-contained.
//   - multi-frame: [topic, payload, buffer 1, ..., buffer k], where the
//     payload references the trailing buffers by position.
//
// The two multipart forms share one decode path: frame 0 is the topic,
// frame 1 the primary payload, everything after that the out-of-band buffer
// list, possibly empty. No version byte is embedded; [DetectFormat] makes
// the variant dispatch explicit.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/jeffacce/commlink/pkg/payload"
)

var (
	ErrTopicInvalid     = errors.New("wire: topic must not contain a space")
	ErrMalformedMessage = errors.New("wire: message cannot be split into topic and payload")
)

// topicDelimiter separates topic and payload in the single-frame legacy
// format. It is the reason topics may not contain spaces.
const topicDelimiter = ' '

// Format identifies one of the coexisting wire formats.
type Format int

const (
	FormatSingleFrameLegacy Format = iota
	FormatTwoFrame
	FormatMultiFrame
)

func (f Format) String() string {
	switch f {
	case FormatSingleFrameLegacy:
		return "single-frame-legacy"
	case FormatTwoFrame:
		return "two-frame"
	case FormatMultiFrame:
		return "multi-frame"
	default:
		return "unknown"
	}
}

// DetectFormat classifies a frame sequence by frame count alone.
func DetectFormat(frames [][]byte) (Format, error) {
	switch len(frames) {
	case 0:
		return 0, fmt.Errorf("%w: empty frame sequence", ErrMalformedMessage)
	case 1:
		return FormatSingleFrameLegacy, nil
	case 2:
		return FormatTwoFrame, nil
	default:
		return FormatMultiFrame, nil
	}
}

// ValidateTopic rejects topics that would collide with the single-frame
// legacy delimiter.
func ValidateTopic(topic string) error {
	if strings.ContainsRune(topic, topicDelimiter) {
		return fmt.Errorf("%w: %q", ErrTopicInvalid, topic)
	}
	return nil
}

// Encode builds the frame sequence for one message. A codec that keeps its
// buffers inline yields the two-frame layout; one that lifts them yields the
// multi-frame layout. The decision lives entirely in the codec.
func Encode(topic string, v any, c payload.Codec) ([][]byte, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	primary, buffers, err := c.Encode(v)
	if err != nil {
		return nil, err
	}
	frames := make([][]byte, 0, 2+len(buffers))
	frames = append(frames, []byte(topic), primary)
	return append(frames, buffers...), nil
}

// Decode parses a frame sequence back into its topic and value.
func Decode(frames [][]byte, c payload.Codec) (string, any, error) {
	format, err := DetectFormat(frames)
	if err != nil {
		return "", nil, err
	}

	switch format {
	case FormatSingleFrameLegacy:
		topic, primary, found := bytes.Cut(frames[0], []byte{topicDelimiter})
		if !found {
			return "", nil, fmt.Errorf("%w: single-frame message has no topic delimiter", ErrMalformedMessage)
		}
		v, err := c.Decode(primary, nil)
		if err != nil {
			return "", nil, err
		}
		return string(topic), v, nil
	default:
		// Two-frame and multi-frame differ only in the length of the
		// buffer list, so one path covers both.
		v, err := c.Decode(frames[1], frames[2:])
		if err != nil {
			return "", nil, err
		}
		return string(frames[0]), v, nil
	}
}
