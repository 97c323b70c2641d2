package server

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	discovery "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
	"github.com/xds-controlplane/control-plane/pkg/xds/hash"
	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

// fakeStream is an in-process DiscoveryStream, standing in for a real
// gRPC stream so the full cold-start -> snapshot -> ack -> teardown
// lifecycle (spec.md §8 scenario 1) can be driven without a network
// listener.
type fakeStream struct {
	ctx    context.Context
	cancel context.CancelFunc

	in  chan *discovery.DiscoveryRequest
	out chan *discovery.DiscoveryResponse

	mu     sync.Mutex
	closed bool
}

func newFakeStream() *fakeStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeStream{
		ctx:    ctx,
		cancel: cancel,
		in:     make(chan *discovery.DiscoveryRequest, 4),
		out:    make(chan *discovery.DiscoveryResponse, 4),
	}
}

func (f *fakeStream) Send(r *discovery.DiscoveryResponse) error {
	select {
	case f.out <- r:
		return nil
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}

func (f *fakeStream) Recv() (*discovery.DiscoveryRequest, error) {
	select {
	case r, ok := <-f.in:
		if !ok {
			return nil, context.Canceled
		}
		return r, nil
	case <-f.ctx.Done():
		return nil, f.ctx.Err()
	}
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func (f *fakeStream) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.in)
		f.cancel()
	}
}

var _ = Describe("DiscoveryServer stream lifecycle", func() {
	It("pushes the current snapshot on subscribe and accepts the client's ACK", func() {
		c := cache.NewSnapshotCache(true, hash.IDHash{})
		s := New(c, hash.IDHash{}, nil, nil)

		body, err := structpb.NewStruct(map[string]interface{}{"name": "c1"})
		Expect(err).NotTo(HaveOccurred())
		snap, err := cache.NewSnapshot(
			map[string]string{v3.ClusterType: "v1"},
			map[string]map[string]cache.Resource{v3.ClusterType: {"c1": body}},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.SetSnapshot("node-a", snap)).To(Succeed())

		stream := newFakeStream()
		done := make(chan error, 1)
		go func() { done <- s.Stream("", stream) }()

		stream.in <- &discovery.DiscoveryRequest{
			Node:    &core.Node{Id: "node-a"},
			TypeUrl: v3.ClusterType,
		}

		var resp *discovery.DiscoveryResponse
		Eventually(stream.out, time.Second).Should(Receive(&resp))
		Expect(resp.TypeUrl).To(Equal(v3.ClusterType))
		Expect(resp.VersionInfo).To(Equal("v1"))
		Expect(resp.Resources).To(HaveLen(1))
		Expect(resp.Nonce).To(Equal("0"))

		stream.in <- &discovery.DiscoveryRequest{
			Node:          &core.Node{Id: "node-a"},
			TypeUrl:       v3.ClusterType,
			VersionInfo:   resp.VersionInfo,
			ResponseNonce: resp.Nonce,
		}

		Consistently(stream.out, 100*time.Millisecond).ShouldNot(Receive())

		stream.close()
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	It("parks a watch and pushes once a snapshot with a new version arrives", func() {
		c := cache.NewSnapshotCache(true, hash.IDHash{})
		s := New(c, hash.IDHash{}, nil, nil)

		stream := newFakeStream()
		go func() { _ = s.Stream("", stream) }()
		defer stream.close()

		stream.in <- &discovery.DiscoveryRequest{
			Node:    &core.Node{Id: "node-b"},
			TypeUrl: v3.ClusterType,
		}

		Consistently(stream.out, 100*time.Millisecond).ShouldNot(Receive())

		body, err := structpb.NewStruct(map[string]interface{}{"name": "c2"})
		Expect(err).NotTo(HaveOccurred())
		snap, err := cache.NewSnapshot(
			map[string]string{v3.ClusterType: "v1"},
			map[string]map[string]cache.Resource{v3.ClusterType: {"c2": body}},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.SetSnapshot("node-b", snap)).To(Succeed())

		var resp *discovery.DiscoveryResponse
		Eventually(stream.out, time.Second).Should(Receive(&resp))
		Expect(resp.VersionInfo).To(Equal("v1"))
	})
})
