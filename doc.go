// Package commlink is a topic-based publish/subscribe layer for moving
// structured values, including large binary payloads, between processes.
//
// A `Publisher` binds one outbound socket and fans messages out to every
// connected subscriber whose topic filter matches. A `Subscriber` connects
// one socket subscribed to everything plus one dedicated socket per topic
// named at construction, and exposes a pull-based `Get`.
//
// ## Wire format
//
// A message is an atomic multipart transmission: frame 0 the topic, frame 1
// the msgpack-encoded payload, frames 2..N optional out-of-band buffers the
// payload references by position. Large binary values wrapped in
// `payload.Blob` travel in those trailing frames and are never copied into
// the encoded stream, which keeps images, tensors and point clouds cheap to
// move.
//
// Two older formats stay decodable forever: the two-frame layout produced
// by `WithLegacyEncoding` publishers, and the single-frame
// "topic<space>payload" layout produced by publishers that predate
// multipart framing. One decoder accepts all three, distinguished only by
// frame count, so old and new publishers can share subscribers without
// negotiation. Topics therefore must not contain a space.
//
// ## Freshness
//
// By default a subscriber conflates: `Get` returns the most recent message
// for the topic, and once anything has been received for a topic, `Get`
// never blocks again for it; with no new data it returns the cached last
// value. The transport's native keep-only-newest mode cannot represent
// multi-frame messages, so conflation is emulated by draining the socket
// and keeping the last decodable message. `WithKeepOld(true)` disables all
// of that and turns `Get` into a plain blocking receive.
//
// ## Transports
//
// The socket layer is pluggable (`pkg/transport`). Builds with the "zmq"
// tag publish over ZeroMQ PUB/SUB sockets; without it the default transport
// is a process-local exchange, which is also what the tests and examples
// use.
//
// Publisher and Subscriber instances are single-owner: no method on the
// same instance may be called concurrently without external
// synchronization. Distinct instances are independent.
package commlink
