package server

import (
	"context"

	cluster "github.com/envoyproxy/go-control-plane/envoy/service/cluster/v3"
	discoverygrpc "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	endpoint "github.com/envoyproxy/go-control-plane/envoy/service/endpoint/v3"
	listener "github.com/envoyproxy/go-control-plane/envoy/service/listener/v3"
	route "github.com/envoyproxy/go-control-plane/envoy/service/route/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

// Register wires this DiscoveryServer against all five xDS gRPC
// services on grpcServer: the aggregated endpoint (type URL carried per
// request) and the four single-typed endpoints (type URL implied by
// which service was called), per the Design Notes in spec.md §9 —
// one handler type, registered five times, rather than five handler
// implementations.
func Register(grpcServer *grpc.Server, s *DiscoveryServer) {
	discoverygrpc.RegisterAggregatedDiscoveryServiceServer(grpcServer, &adsHandler{s})
	cluster.RegisterClusterDiscoveryServiceServer(grpcServer, &typedHandler{s, v3.ClusterType})
	endpoint.RegisterEndpointDiscoveryServiceServer(grpcServer, &typedHandler{s, v3.EndpointType})
	listener.RegisterListenerDiscoveryServiceServer(grpcServer, &typedHandler{s, v3.ListenerType})
	route.RegisterRouteDiscoveryServiceServer(grpcServer, &typedHandler{s, v3.RouteType})
}

var errDeltaUnimplemented = status.Error(codes.Unimplemented, "incremental (delta) xDS is not implemented")

var errFetchUnimplemented = status.Error(codes.Unimplemented, "unary fetch xDS is not implemented")

type adsHandler struct{ s *DiscoveryServer }

func (h *adsHandler) StreamAggregatedResources(stream discoverygrpc.AggregatedDiscoveryService_StreamAggregatedResourcesServer) error {
	return h.s.Stream("", stream)
}

func (h *adsHandler) DeltaAggregatedResources(discoverygrpc.AggregatedDiscoveryService_DeltaAggregatedResourcesServer) error {
	return errDeltaUnimplemented
}

// typedHandler backs the four single-typed services. Each embeds the
// generated "UnimplementedXServer" would normally be embedded for
// forward compatibility, but go-control-plane's v3 stubs are small
// enough that implementing every method directly keeps the five
// services visibly symmetric.
type typedHandler struct {
	s       *DiscoveryServer
	typeURL string
}

func (h *typedHandler) StreamClusters(stream cluster.ClusterDiscoveryService_StreamClustersServer) error {
	return h.s.Stream(h.typeURL, stream)
}

func (h *typedHandler) DeltaClusters(cluster.ClusterDiscoveryService_DeltaClustersServer) error {
	return errDeltaUnimplemented
}

func (h *typedHandler) FetchClusters(context.Context, *discoverygrpc.DiscoveryRequest) (*discoverygrpc.DiscoveryResponse, error) {
	return nil, errFetchUnimplemented
}

func (h *typedHandler) StreamEndpoints(stream endpoint.EndpointDiscoveryService_StreamEndpointsServer) error {
	return h.s.Stream(h.typeURL, stream)
}

func (h *typedHandler) DeltaEndpoints(endpoint.EndpointDiscoveryService_DeltaEndpointsServer) error {
	return errDeltaUnimplemented
}

func (h *typedHandler) FetchEndpoints(context.Context, *discoverygrpc.DiscoveryRequest) (*discoverygrpc.DiscoveryResponse, error) {
	return nil, errFetchUnimplemented
}

func (h *typedHandler) StreamListeners(stream listener.ListenerDiscoveryService_StreamListenersServer) error {
	return h.s.Stream(h.typeURL, stream)
}

func (h *typedHandler) DeltaListeners(listener.ListenerDiscoveryService_DeltaListenersServer) error {
	return errDeltaUnimplemented
}

func (h *typedHandler) FetchListeners(context.Context, *discoverygrpc.DiscoveryRequest) (*discoverygrpc.DiscoveryResponse, error) {
	return nil, errFetchUnimplemented
}

func (h *typedHandler) StreamRoutes(stream route.RouteDiscoveryService_StreamRoutesServer) error {
	return h.s.Stream(h.typeURL, stream)
}

func (h *typedHandler) DeltaRoutes(route.RouteDiscoveryService_DeltaRoutesServer) error {
	return errDeltaUnimplemented
}

func (h *typedHandler) FetchRoutes(context.Context, *discoverygrpc.DiscoveryRequest) (*discoverygrpc.DiscoveryResponse, error) {
	return nil, errFetchUnimplemented
}
