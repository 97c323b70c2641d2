// Command xds-client-demo is a minimal ADS client exercising the server
// end to end: it connects, subscribes to clusters, ACKs every push,
// and reconnects with backoff on failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	discovery "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

var (
	addr   = flag.String("addr", "127.0.0.1:18000", "xDS gRPC server address")
	nodeID = flag.String("node-id", "xds-client-demo", "node id to present to the server")
)

func main() {
	flag.Parse()

	var streamsOpened atomic.Int64
	var pushesReceived atomic.Int64

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // retry forever; this is a demo client, not production.

	_ = backoff.Retry(func() error {
		err := runStream(*addr, *nodeID, &streamsOpened, &pushesReceived)
		log.Printf("stream ended (streams_opened=%d pushes_received=%d): %v", streamsOpened.Load(), pushesReceived.Load(), err)
		return err
	}, b)
}

func runStream(addr, nodeID string, streamsOpened, pushesReceived *atomic.Int64) error {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	client := discovery.NewAggregatedDiscoveryServiceClient(conn)
	stream, err := client.StreamAggregatedResources(context.Background())
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	streamsOpened.Inc()

	req := &discovery.DiscoveryRequest{
		Node:    &core.Node{Id: nodeID},
		TypeUrl: v3.ClusterType,
	}
	if err := stream.Send(req); err != nil {
		return fmt.Errorf("sending initial request: %w", err)
	}

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receiving: %w", err)
		}
		pushesReceived.Inc()
		log.Printf("received %s version=%s resources=%d", resp.TypeUrl, resp.VersionInfo, len(resp.Resources))

		ack := &discovery.DiscoveryRequest{
			Node:          &core.Node{Id: nodeID},
			TypeUrl:       resp.TypeUrl,
			VersionInfo:   resp.VersionInfo,
			ResponseNonce: resp.Nonce,
		}
		if err := stream.Send(ack); err != nil {
			return fmt.Errorf("sending ack: %w", err)
		}

		time.Sleep(10 * time.Millisecond)
	}
}
