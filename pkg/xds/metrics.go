package xds

import (
	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats/view"

	"istio.io/pkg/monitoring"
)

// The metrics below are declared here only; no code in this repository
// records them.
var (
	// RequestsTotal counts every DiscoveryRequest processed. It carries
	// no labels.
	RequestsTotal = monitoring.NewSum(
		"xds_requests_total",
		"Number of discovery requests processed.",
	)

	// PushesTotal counts every DiscoveryResponse sent.
	PushesTotal = monitoring.NewSum(
		"xds_pushes_total",
		"Number of discovery responses sent.",
	)

	// NACKsTotal counts requests carrying an ErrorDetail.
	NACKsTotal = monitoring.NewSum(
		"xds_nacks_total",
		"Number of NACKed discovery requests.",
	)

	// ActiveStreams tracks the number of open gRPC streams.
	ActiveStreams = monitoring.NewGauge(
		"xds_active_streams",
		"Number of currently open xDS streams.",
	)

	// ActiveWatches tracks the number of currently parked cache watches.
	ActiveWatches = monitoring.NewGauge(
		"xds_active_watches",
		"Number of currently parked snapshot cache watches.",
	)

	// VersionRejections counts streams refused by the client version
	// gate (D5).
	VersionRejections = monitoring.NewSum(
		"xds_version_rejections_total",
		"Number of streams rejected for an unsupported proxy version.",
	)
)

// NewPrometheusExporter wires the istio.io/pkg/monitoring (OpenCensus)
// views to a Prometheus scrape handler, so every metric declared above
// is exposed over HTTP without a second, parallel metrics registry.
func NewPrometheusExporter(namespace string) (*prometheus.Exporter, error) {
	exporter, err := prometheus.NewExporter(prometheus.Options{Namespace: namespace})
	if err != nil {
		return nil, err
	}
	view.RegisterExporter(exporter)
	return exporter, nil
}
