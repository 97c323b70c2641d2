package server

import (
	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcrecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"

	clog "github.com/xds-controlplane/control-plane/pkg/log"
)

// ServerOptions returns the interceptor chain every xDS gRPC server
// should be constructed with: per-RPC Prometheus histograms first (so
// they time the whole call including recovery), then panic recovery so
// a bug in one stream's handling never takes the process down.
func ServerOptions() []grpc.ServerOption {
	recoveryOpt := grpcrecovery.WithRecoveryHandler(func(p interface{}) error {
		clog.Server.Errorf("recovered from panic in stream handler: %v", p)
		return nil
	})

	return []grpc.ServerOption{
		grpc.StreamInterceptor(grpcmiddleware.ChainStreamServer(
			grpcprometheus.StreamServerInterceptor,
			grpcrecovery.StreamServerInterceptor(recoveryOpt),
		)),
		grpc.UnaryInterceptor(grpcmiddleware.ChainUnaryServer(
			grpcprometheus.UnaryServerInterceptor,
			grpcrecovery.UnaryServerInterceptor(recoveryOpt),
		)),
	}
}

// RegisterMetrics enables per-method histograms for every service
// registered on grpcServer. Call after Register, before Serve.
func RegisterMetrics(grpcServer *grpc.Server) {
	grpcprometheus.Register(grpcServer)
	grpcprometheus.EnableHandlingTimeHistogram()
}
