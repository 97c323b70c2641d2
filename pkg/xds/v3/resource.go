// Package v3 defines the fixed xDS type URL taxonomy shared by the cache
// and server packages.
package v3

const (
	// ClusterType is the resource type URL for CDS.
	ClusterType = "type.googleapis.com/envoy.config.cluster.v3.Cluster"
	// EndpointType is the resource type URL for EDS.
	EndpointType = "type.googleapis.com/envoy.config.endpoint.v3.ClusterLoadAssignment"
	// ListenerType is the resource type URL for LDS.
	ListenerType = "type.googleapis.com/envoy.config.listener.v3.Listener"
	// RouteType is the resource type URL for RDS.
	RouteType = "type.googleapis.com/envoy.config.route.v3.RouteConfiguration"
)

// Types lists every resource type URL the server understands, in the
// order a full ADS push should be sequenced: clusters before the
// endpoints they reference, listeners before the routes they reference.
var Types = []string{ClusterType, EndpointType, ListenerType, RouteType}

// IsWildcardType reports whether typeURL is one the server recognizes.
// An unknown type URL is not an error (see DiscoveryServer dispatch) but
// callers use this to decide whether to even look at a request.
func IsWildcardType(typeURL string) bool {
	for _, t := range Types {
		if t == typeURL {
			return true
		}
	}
	return false
}
