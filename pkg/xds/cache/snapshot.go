package cache

import (
	"github.com/mitchellh/copystructure"
	"google.golang.org/protobuf/proto"

	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

// Resource is a single named payload. The cache never interprets it
// beyond this interface; it only tracks name and version. Any Envoy
// xDS proto message (Cluster, ClusterLoadAssignment, Listener,
// RouteConfiguration) satisfies it.
type Resource = proto.Message

// Snapshot is an immutable, versioned bundle of resources for every type
// URL a node group cares about. A Snapshot is never mutated after
// construction: SetSnapshot always replaces the whole value for a group,
// never edits one in place.
type Snapshot struct {
	resources map[string]map[string]Resource
	versions  map[string]string
}

// NewSnapshot builds a Snapshot from a version string per type URL and a
// name->payload map per type URL. The resource maps are deep-copied so
// that a caller who mutates its own map after this call cannot violate
// the immutability invariant.
func NewSnapshot(versions map[string]string, resources map[string]map[string]Resource) (Snapshot, error) {
	copied, err := copystructure.Copy(resources)
	if err != nil {
		return Snapshot{}, err
	}

	v := make(map[string]string, len(versions))
	for k, val := range versions {
		v[k] = val
	}

	return Snapshot{
		resources: copied.(map[string]map[string]Resource),
		versions:  v,
	}, nil
}

// GetVersion returns the version of typeURL in this snapshot, or "" if
// the snapshot carries nothing for that type.
func (s Snapshot) GetVersion(typeURL string) string {
	return s.versions[typeURL]
}

// GetResources returns the name->payload map for typeURL. The returned
// map must be treated as read-only by callers.
func (s Snapshot) GetResources(typeURL string) map[string]Resource {
	return s.resources[typeURL]
}

// GetResourceNames returns the set of resource names for typeURL, as an
// unordered map.
func (s Snapshot) GetResourceNames(typeURL string) map[string]struct{} {
	out := make(map[string]struct{}, len(s.resources[typeURL]))
	for name := range s.resources[typeURL] {
		out[name] = struct{}{}
	}
	return out
}

// Consistent reports whether every type URL in v3.Types that has a
// non-empty version also carries a non-nil resource map. This is a
// construction-time sanity check, not an enforced invariant — the cache
// accepts inconsistent snapshots (Non-goal: snapshot correctness is the
// operator's responsibility), and nothing in the cache calls this check.
func (s Snapshot) Consistent() bool {
	for _, t := range v3.Types {
		if s.versions[t] != "" && s.resources[t] == nil {
			return false
		}
	}
	return true
}
