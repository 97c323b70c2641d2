// Package server implements C6: one per-stream request/response state
// machine, shared by the ADS endpoint and the four single-typed
// discovery services.
package server

import (
	"context"
	"errors"
	"io"

	discovery "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"

	clog "github.com/xds-controlplane/control-plane/pkg/log"
	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
	"github.com/xds-controlplane/control-plane/pkg/xds/hash"
	"github.com/xds-controlplane/control-plane/pkg/xds/payloadcache"
	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
	xdsversion "github.com/xds-controlplane/control-plane/pkg/xds/version"
)

// DiscoveryServer is the shared implementation behind all five xDS
// streaming RPCs. It holds no per-stream state itself; every field here
// is read-only after construction.
type DiscoveryServer struct {
	cache    cache.SnapshotCache
	nodeHash hash.NodeHash
	minVer   *xdsversion.MinSupported
	payloads *payloadcache.Cache
}

// New builds a DiscoveryServer. minVer may be nil to disable the
// version gate (D5); payloads may be nil to disable payload memoization
// (D4) and always marshal fresh.
func New(c cache.SnapshotCache, nh hash.NodeHash, minVer *xdsversion.MinSupported, payloads *payloadcache.Cache) *DiscoveryServer {
	return &DiscoveryServer{cache: c, nodeHash: nh, minVer: minVer, payloads: payloads}
}

// taggedResponse pairs a cache.Response with the type URL of the watch
// it came from, so the select loop in Stream knows which watch slot to
// retire.
type taggedResponse struct {
	typeURL string
	resp    cache.Response
}

// Stream drives the per-stream state machine for one open connection.
// defaultTypeURL is "" for the aggregated endpoint (the type URL comes
// from each DiscoveryRequest) and one of the four fixed type URLs for
// the single-typed endpoints (requests on those streams never carry a
// TypeUrl; it is implied by which RPC was called).
func (s *DiscoveryServer) Stream(defaultTypeURL string, stream DiscoveryStream) error {
	peerAddr := "unknown"
	if p, ok := peer.FromContext(stream.Context()); ok {
		peerAddr = p.Addr.String()
	}
	con := newConnection(peerAddr, stream)

	reqCh := make(chan *discovery.DiscoveryRequest)
	errCh := make(chan error, 1)
	go s.receive(con, reqCh, errCh)

	responses := make(chan taggedResponse, 8)

	for {
		select {
		case req, ok := <-reqCh:
			if !ok {
				return <-errCh
			}
			typeURL := defaultTypeURL
			if typeURL == "" {
				typeURL = req.TypeUrl
				if typeURL == "" {
					return status.Error(codes.Unknown, "type URL is required for ADS")
				}
			}
			if err := s.processRequest(con, req, typeURL, responses); err != nil {
				return err
			}

		case tagged := <-responses:
			if err := s.pushResponse(con, tagged); err != nil {
				return err
			}

		case <-stream.Context().Done():
			return nil
		}
	}
}

// receive owns the blocking Recv loop and is the only goroutine that
// reads from the underlying stream, matching grpc-go's single-reader
// requirement.
func (s *DiscoveryServer) receive(con *connection, reqCh chan<- *discovery.DiscoveryRequest, errCh chan<- error) {
	defer close(reqCh)
	for {
		req, err := con.stream.Recv()
		if err != nil {
			if isExpectedGRPCError(err) {
				errCh <- nil
			} else {
				errCh <- err
			}
			return
		}
		select {
		case reqCh <- req:
		case <-con.stream.Context().Done():
			errCh <- nil
			return
		}
	}
}

func isExpectedGRPCError(err error) bool {
	if err == io.EOF {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Canceled, codes.DeadlineExceeded:
			return true
		}
	}
	return false
}

// processRequest implements §4.6 steps 1-5: resolve node identity on
// the first request, version-gate it, classify ACK/NACK/fresh-
// subscription via nonce comparison, and either immediately respond
// from the current snapshot or park a watch.
func (s *DiscoveryServer) processRequest(con *connection, req *discovery.DiscoveryRequest, typeURL string, responses chan<- taggedResponse) error {
	if con.group == "" {
		if req.Node == nil || req.Node.Id == "" {
			return status.Error(codes.InvalidArgument, "first request must carry a node with a non-empty id")
		}
		node := hash.Node{ID: req.Node.Id}
		if req.Node.Metadata != nil {
			if f := req.Node.Metadata.Fields["ADDRESS"]; f != nil {
				node.Address = f.GetStringValue()
			}
		}
		if s.minVer != nil {
			if err := s.minVer.Check(node.ID, req.Node.UserAgentVersion); err != nil {
				return status.Error(codes.Unknown, err.Error())
			}
		}
		con.node = node
		con.group = s.nodeHash.ID(node)
		clog.Server.Infof("stream opened: peer=%s group=%s", con.peerAddr, con.group)
	}

	if !v3.IsWildcardType(typeURL) {
		// Unknown type URL: ignore per §4.6 step 3, no watch changed.
		clog.Server.Warnf("ignoring request for unknown type URL %q from group=%s", typeURL, con.group)
		return nil
	}

	st := con.stateFor(typeURL)

	if req.ErrorDetail != nil {
		clog.Server.Warnf("NACK from group=%s type=%s: %s", con.group, typeURL, req.ErrorDetail.Message)
		return nil
	}

	if req.ResponseNonce != "" && req.ResponseNonce != st.lastNonce {
		// Stale request racing an in-flight push; ignore per the Open
		// Question decision in DESIGN.md.
		return nil
	}

	names := make(map[string]struct{}, len(req.ResourceNames))
	for _, n := range req.ResourceNames {
		names[n] = struct{}{}
	}

	if st.watch != nil {
		st.watch.Cancel()
		st.watch = nil
	}

	watch := s.cache.CreateWatch(con.group, typeURL, req.VersionInfo, names)
	st.watch = watch
	st.knownNames = names

	select {
	case resp, ok := <-watch.Value:
		if ok {
			return s.pushResponse(con, taggedResponse{typeURL: typeURL, resp: resp})
		}
	default:
		go s.waitForWatch(con.stream.Context(), typeURL, watch, responses)
	}
	return nil
}

// waitForWatch forwards a parked watch's eventual Response onto the
// shared responses channel, or exits silently if the stream ends first
// (in which case it cancels the watch so the cache stops holding it).
func (s *DiscoveryServer) waitForWatch(ctx context.Context, typeURL string, w *cache.Watch, responses chan<- taggedResponse) {
	select {
	case resp, ok := <-w.Value:
		if ok {
			select {
			case responses <- taggedResponse{typeURL: typeURL, resp: resp}:
			case <-ctx.Done():
			}
		}
	case <-ctx.Done():
		w.Cancel()
	}
}

func (s *DiscoveryServer) pushResponse(con *connection, tagged taggedResponse) error {
	st := con.stateFor(tagged.typeURL)
	st.watch = nil

	resources := make([]*anypb.Any, 0, len(tagged.resp.Resources))
	names := make([]string, 0, len(tagged.resp.Resources))
	for name, msg := range tagged.resp.Resources {
		names = append(names, name)
		var (
			any *anypb.Any
			err error
		)
		if s.payloads != nil {
			any, err = s.payloads.Marshal(tagged.typeURL, name, tagged.resp.Version, msg)
		} else {
			any, err = anypb.New(msg)
		}
		if err != nil {
			return status.Errorf(codes.Internal, "marshal %s/%s: %v", tagged.typeURL, name, err)
		}
		resources = append(resources, any)
	}

	nonce := con.nextNonce()
	out := &discovery.DiscoveryResponse{
		VersionInfo: tagged.resp.Version,
		TypeUrl:     tagged.typeURL,
		Resources:   resources,
		Nonce:       nonce,
	}

	if err := con.send(out); err != nil {
		return err
	}

	st.lastNonce = nonce
	clog.Server.Debugf("pushed group=%s type=%s version=%s resources=%d nonce=%s",
		con.group, tagged.typeURL, tagged.resp.Version, len(names), nonce)
	return nil
}
