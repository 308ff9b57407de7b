//go:build !zmq

package transport

var shared = NewInproc()

// Default returns the transport used when none is configured explicitly: a
// process-wide in-process exchange. Builds with the "zmq" tag return the
// ZeroMQ transport instead.
func Default() Transport {
	return shared
}
