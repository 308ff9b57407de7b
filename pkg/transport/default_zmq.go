//go:build zmq

package transport

// Default returns the transport used when none is configured explicitly:
// ZeroMQ in builds with the "zmq" tag.
func Default() Transport {
	return ZMQ{}
}
