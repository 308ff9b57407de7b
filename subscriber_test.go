package commlink

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeffacce/commlink/pkg/payload"
	"github.com/jeffacce/commlink/pkg/transport"
	"github.com/jeffacce/commlink/pkg/wire"
)

var nextPort atomic.Int64

func testPort() int {
	return int(5000 + nextPort.Add(1))
}

// newLink wires a publisher and a subscriber together over a private
// in-process transport.
func newLink(t *testing.T, topics []string, pubOpts, subOpts []Option) (*Publisher, *Subscriber) {
	t.Helper()
	tr := transport.NewInproc()
	port := testPort()

	pub, err := NewPublisher("127.0.0.1", port, append([]Option{WithTransport(tr)}, pubOpts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })

	sub, err := NewSubscriber("127.0.0.1", port, topics, append([]Option{WithTransport(tr)}, subOpts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return pub, sub
}

func TestSubscriber_ConflationUnderBurst(t *testing.T) {
	pub, sub := newLink(t, []string{"alpha"}, nil, nil)

	require.NoError(t, pub.Publish("alpha", "first"))
	require.NoError(t, pub.Publish("alpha", "second"))

	topic, value, err := sub.Get(context.Background(), "alpha")
	require.NoError(t, err)
	require.Equal(t, "alpha", topic)
	require.Equal(t, "second", value)
}

func TestSubscriber_PerTopicSocketsKeepLatest(t *testing.T) {
	pub, sub := newLink(t, []string{"alpha", "beta"}, nil, nil)

	require.NoError(t, pub.Publish("alpha", "first-alpha"))
	require.NoError(t, pub.Publish("beta", "first-beta"))
	require.NoError(t, pub.Publish("alpha", "second-alpha"))
	require.NoError(t, pub.Publish("beta", "second-beta"))

	topic, value, err := sub.Get(context.Background(), "alpha")
	require.NoError(t, err)
	require.Equal(t, "alpha", topic)
	require.Equal(t, "second-alpha", value)

	topic, value, err = sub.Get(context.Background(), "beta")
	require.NoError(t, err)
	require.Equal(t, "beta", topic)
	require.Equal(t, "second-beta", value)
}

func TestSubscriber_CachePersistsOnStarvation(t *testing.T) {
	pub, sub := newLink(t, []string{"alpha"}, nil, nil)

	require.NoError(t, pub.Publish("alpha", "only"))

	_, value, err := sub.Get(context.Background(), "alpha")
	require.NoError(t, err)
	require.Equal(t, "only", value)

	// No new data: Get must return the cached value without blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, value, err = sub.Get(context.Background(), "alpha")
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Get blocked despite a cached value")
	}
	require.NoError(t, err)
	require.Equal(t, "only", value)
}

func TestSubscriber_UnknownTopicRejected(t *testing.T) {
	_, sub := newLink(t, []string{"alpha"}, nil, nil)

	_, _, err := sub.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrTopicNotRegistered)
}

func TestSubscriber_GlobalKeepOldReceivesAllTopics(t *testing.T) {
	pub, sub := newLink(t, []string{"one", "two"}, nil, []Option{WithKeepOld(true)})

	require.NoError(t, pub.Publish("one", 1))
	require.NoError(t, pub.Publish("two", 2))

	seen := map[string]any{}
	for i := 0; i < 2; i++ {
		topic, value, err := sub.Get(context.Background(), GlobalTopic)
		require.NoError(t, err)
		seen[topic] = value
	}
	require.Len(t, seen, 2)
	require.EqualValues(t, 1, seen["one"])
	require.EqualValues(t, 2, seen["two"])
}

func TestSubscriber_GlobalConflationCachesPair(t *testing.T) {
	pub, sub := newLink(t, []string{"alpha"}, nil, nil)

	require.NoError(t, pub.Publish("alpha", "v1"))

	topic, value, err := sub.Get(context.Background(), GlobalTopic)
	require.NoError(t, err)
	require.Equal(t, "alpha", topic)
	require.Equal(t, "v1", value)

	// Starved global Get must return the cached (topic, value) pair.
	topic, value, err = sub.Get(context.Background(), GlobalTopic)
	require.NoError(t, err)
	require.Equal(t, "alpha", topic)
	require.Equal(t, "v1", value)
}

func TestSubscriber_FirstGetBlocksUntilData(t *testing.T) {
	pub, sub := newLink(t, []string{"alpha"}, nil, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		pub.Publish("alpha", "late")
	}()

	topic, value, err := sub.Get(context.Background(), "alpha")
	require.NoError(t, err)
	require.Equal(t, "alpha", topic)
	require.Equal(t, "late", value)
}

func TestSubscriber_RecvTimeoutSurfaces(t *testing.T) {
	_, sub := newLink(t, []string{"alpha"}, nil, []Option{WithRecvTimeout(10 * time.Millisecond)})

	_, _, err := sub.Get(context.Background(), "alpha")
	require.ErrorIs(t, err, transport.ErrWouldBlock)
}

func TestSubscriber_ContextCancelsBlockingGet(t *testing.T) {
	_, sub := newLink(t, []string{"alpha"}, nil, []Option{WithKeepOld(true)})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := sub.Get(ctx, "alpha")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscriber_DuplicateTopicsDeduplicated(t *testing.T) {
	pub, sub := newLink(t, []string{"alpha", "alpha"}, nil, nil)

	require.NoError(t, pub.Publish("alpha", "x"))
	_, value, err := sub.Get(context.Background(), "alpha")
	require.NoError(t, err)
	require.Equal(t, "x", value)
}

func TestSubscriber_InvalidTopics(t *testing.T) {
	tr := transport.NewInproc()

	_, err := NewSubscriber("127.0.0.1", testPort(), []string{"has space"}, WithTransport(tr))
	require.ErrorIs(t, err, wire.ErrTopicInvalid)

	_, err = NewSubscriber("127.0.0.1", testPort(), []string{""}, WithTransport(tr))
	require.ErrorIs(t, err, wire.ErrTopicInvalid)
}

func TestSubscriber_GetAfterCloseFails(t *testing.T) {
	_, sub := newLink(t, []string{"alpha"}, nil, nil)

	require.NoError(t, sub.Close())
	_, _, err := sub.Get(context.Background(), "alpha")
	require.ErrorIs(t, err, ErrSubscriberClosed)
}

func TestSubscriber_LegacyPublisherInterop(t *testing.T) {
	pub, sub := newLink(t, []string{"alpha"}, []Option{WithLegacyEncoding()}, nil)

	require.NoError(t, pub.Publish("alpha", map[string]any{"img": payload.Blob("bytes")}))

	topic, value, err := sub.Get(context.Background(), "alpha")
	require.NoError(t, err)
	require.Equal(t, "alpha", topic)
	m := value.(map[string]any)
	require.Equal(t, payload.Blob("bytes"), m["img"])
}

func TestSubscriber_SingleFrameLegacyInterop(t *testing.T) {
	tr := transport.NewInproc()
	port := testPort()
	endpoint := fmt.Sprintf("tcp://127.0.0.1:%d", port)

	// A very old publisher: one frame, "topic<space>payload".
	raw, err := tr.Bind(endpoint)
	require.NoError(t, err)
	defer raw.Close()

	sub, err := NewSubscriber("127.0.0.1", port, []string{"alpha"}, WithTransport(tr))
	require.NoError(t, err)
	defer sub.Close()

	frames, err := wire.Encode("alpha", "old-style", payload.NewInlineMsgpackCodec())
	require.NoError(t, err)
	joined := append(append(append([]byte{}, frames[0]...), ' '), frames[1]...)
	require.NoError(t, raw.Send([][]byte{joined}))

	topic, value, err := sub.Get(context.Background(), "alpha")
	require.NoError(t, err)
	require.Equal(t, "alpha", topic)
	require.Equal(t, "old-style", value)
}

func TestSubscriber_DrainSkipsUndecodableMessages(t *testing.T) {
	tr := transport.NewInproc()
	port := testPort()
	endpoint := fmt.Sprintf("tcp://127.0.0.1:%d", port)

	raw, err := tr.Bind(endpoint)
	require.NoError(t, err)
	defer raw.Close()

	sub, err := NewSubscriber("127.0.0.1", port, []string{"alpha"}, WithTransport(tr))
	require.NoError(t, err)
	defer sub.Close()

	good, err := wire.Encode("alpha", "good", payload.NewMsgpackCodec())
	require.NoError(t, err)

	require.NoError(t, raw.Send(good))
	require.NoError(t, raw.Send([][]byte{[]byte("alpha"), {0xc1}})) // undecodable payload

	// The undecodable message arrived last but must not shadow the good
	// one: the drain skips it and keeps the newest decodable value.
	topic, value, err := sub.Get(context.Background(), "alpha")
	require.NoError(t, err)
	require.Equal(t, "alpha", topic)
	require.Equal(t, "good", value)
}
