package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	discovery "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"

	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
	"github.com/xds-controlplane/control-plane/pkg/xds/hash"
)

// DiscoveryStream is the minimal surface every one of the five gRPC
// streaming methods presents once adapted to a common shape. ADS and
// the four single-typed services all satisfy this (grpc-go generates a
// distinct named type per RPC, so the five handler methods each wrap
// their generated stream in a trivial adapter before calling into the
// shared state machine).
type DiscoveryStream interface {
	Send(*discovery.DiscoveryResponse) error
	Recv() (*discovery.DiscoveryRequest, error)
	Context() context.Context
}

// typeState is the per-(stream, type URL) bookkeeping the state machine
// in server.go needs: the currently parked watch (nil if none), and the
// nonce of the last response sent for that type, used to detect stale
// requests per §4.6.
type typeState struct {
	watch      *cache.Watch
	lastNonce  string
	knownNames map[string]struct{}
}

// connection holds everything the state machine needs for one open
// stream: identity resolved from the first request's Node, and one
// typeState per type URL seen on the stream. Sends are serialized
// through sendMu, matching the single-writer-per-stream rule gRPC
// streams require.
type connection struct {
	peerAddr string
	node     hash.Node
	group    string

	stream DiscoveryStream

	sendMu sync.Mutex

	mu     sync.Mutex
	states map[string]*typeState

	// nonceSeq is this stream's nonce counter, per §4.6: nonces emitted
	// on a stream form the sequence 0, 1, 2, ... starting at the first
	// response pushed on that stream. It is never shared across streams.
	nonceSeq int64
}

func newConnection(peerAddr string, stream DiscoveryStream) *connection {
	return &connection{
		peerAddr: peerAddr,
		stream:   stream,
		states:   make(map[string]*typeState),
	}
}

func (c *connection) stateFor(typeURL string) *typeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[typeURL]
	if !ok {
		st = &typeState{}
		c.states[typeURL] = st
	}
	return st
}

// nextNonce returns this stream's next nonce, starting at "0".
func (c *connection) nextNonce() string {
	return fmt.Sprintf("%d", atomic.AddInt64(&c.nonceSeq, 1)-1)
}

// send serializes writes to the underlying stream; grpc-go streams are
// not safe for concurrent Send calls from multiple goroutines. In
// server.go only the Stream loop calls send (parked-watch goroutines
// hand their responses to that loop over a channel); the lock keeps
// writes serialized regardless of the caller.
func (c *connection) send(resp *discovery.DiscoveryResponse) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.stream.Send(resp)
}
