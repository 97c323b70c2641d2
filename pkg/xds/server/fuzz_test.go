package server

import (
	"testing"

	fuzzheaders "github.com/AdaLogics/go-fuzz-headers"
	core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	discovery "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	"github.com/google/gofuzz"

	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
	"github.com/xds-controlplane/control-plane/pkg/xds/hash"
	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

// TestRequestNonceHandlingNeverPanics exercises processRequest's
// nonce/version staleness check against a wide range of randomly
// generated nonces and resource name sets, asserting the nonce
// acceptance property (P7) that a malformed or adversarial nonce is
// only ever ignored, never fatal.
func TestRequestNonceHandlingNeverPanics(t *testing.T) {
	f := fuzz.New().NilChance(0.2).NumElements(0, 8)

	for i := 0; i < 200; i++ {
		var nonce, version string
		var names []string
		f.Fuzz(&nonce)
		f.Fuzz(&version)
		f.Fuzz(&names)

		req := &discovery.DiscoveryRequest{
			Node:          &core.Node{Id: "fuzz-node"},
			TypeUrl:       v3.ClusterType,
			ResponseNonce: nonce,
			VersionInfo:   version,
			ResourceNames: names,
		}
		assertNoPanic(t, req)
	}
}

func assertNoPanic(t *testing.T, req *discovery.DiscoveryRequest) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("processRequest panicked on %+v: %v", req, r)
		}
	}()

	stream := newFakeStream()
	defer stream.close()
	s := New(cache.NewSnapshotCache(true, hash.IDHash{}), hash.IDHash{}, nil, nil)
	con := newConnection("fuzz", stream)
	if err := s.processRequest(con, req, v3.ClusterType, make(chan taggedResponse, 1)); err != nil {
		t.Fatalf("processRequest failed on %+v: %v", req, err)
	}
}

// TestFuzzByteConsumerOverRequestBytes sanity-checks that building a
// DiscoveryRequest out of arbitrary byte input (as a malicious or
// corrupted client might send at the transport layer, before protobuf
// unmarshalling even succeeds) never panics; it only builds the
// request and does not pass it to the server.
func TestFuzzByteConsumerOverRequestBytes(t *testing.T) {
	data := []byte("arbitrary-seed-bytes-for-the-fuzz-consumer-0123456789")
	fc := fuzzheaders.NewConsumer(data)

	nodeID, err := fc.GetString()
	if err != nil {
		t.Skip("not enough fuzz bytes")
	}

	req := &discovery.DiscoveryRequest{}
	if nodeID != "" {
		req.Node = &core.Node{Id: nodeID}
	}
	_ = req
}
