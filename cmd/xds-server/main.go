// Command xds-server runs the xDS control-plane gRPC server and its
// admin/introspection sidecar.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/xds-controlplane/control-plane/pkg/admin"
	"github.com/xds-controlplane/control-plane/pkg/config"
	clog "github.com/xds-controlplane/control-plane/pkg/log"
	"github.com/xds-controlplane/control-plane/pkg/snapshotsource/file"
	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
	"github.com/xds-controlplane/control-plane/pkg/xds/hash"
	xdsserver "github.com/xds-controlplane/control-plane/pkg/xds/server"
	xdsversion "github.com/xds-controlplane/control-plane/pkg/xds/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xds-server",
		Short: "xDS aggregated discovery service control plane",
		RunE:  run,
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	banner := "xds-server starting"
	if isatty.IsTerminal(os.Stdout.Fd()) {
		banner = color.New(color.FgGreen, color.Bold).Sprint(banner)
	}
	fmt.Println(banner)

	var nodeHash hash.NodeHash = hash.IDHash{}
	if len(cfg.CIDRGroups) > 0 {
		h, err := hash.NewCIDRHash(cfg.CIDRGroups)
		if err != nil {
			return fmt.Errorf("building CIDR hash: %w", err)
		}
		nodeHash = h
	}

	var minVer *xdsversion.MinSupported
	if cfg.MinProxyVersion != "" {
		minVer, err = xdsversion.NewMinSupported(cfg.MinProxyVersion)
		if err != nil {
			return fmt.Errorf("parsing min-proxy-version: %w", err)
		}
	}

	snapshotCache := cache.NewSnapshotCache(cfg.ADS, nodeHash)

	if cfg.SourceDir != "" {
		src, err := file.New(cfg.SourceDir, snapshotCache, nodeHash)
		if err != nil {
			return fmt.Errorf("starting file snapshot source: %w", err)
		}
		defer src.Close()
	}

	discoveryServer := xdsserver.New(snapshotCache, nodeHash, minVer, nil)

	grpcServer := grpc.NewServer(xdsserver.ServerOptions()...)
	xdsserver.Register(grpcServer, discoveryServer)
	xdsserver.RegisterMetrics(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.GRPCAddr, err)
	}

	adminServer := admin.New(snapshotCache)
	go func() {
		clog.Server.Infof("admin server listening on %s", cfg.AdminAddr)
		if err := http.ListenAndServe(cfg.AdminAddr, adminServer.Handler()); err != nil {
			clog.Server.Errorf("admin server stopped: %v", err)
		}
	}()

	clog.Server.Infof("xDS gRPC server listening on %s", cfg.GRPCAddr)
	return grpcServer.Serve(lis)
}
