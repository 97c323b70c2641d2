// Package hash implements NodeGroup<T>.hash: the pluggable policy that
// maps a connected proxy's node descriptor to a cache group key.
package hash

import (
	"net"

	"github.com/yl2chen/cidranger"
)

// Node is the subset of an xDS node descriptor the hashing policies
// need. The server fills this in from the DiscoveryRequest's Node
// field on the first request of a stream.
type Node struct {
	ID      string
	Address string
}

// NodeHash maps a Node to the group key used to key the SnapshotCache.
type NodeHash interface {
	ID(node Node) string
}

// IDHash is the spec-faithful default: one group per distinct node ID.
type IDHash struct{}

func (IDHash) ID(node Node) string {
	if node.ID == "" {
		return "unknown"
	}
	return node.ID
}

// CIDRHash groups nodes by the CIDR block their address falls into, so
// that a fleet of proxies in the same subnet share one snapshot. Nodes
// whose address doesn't match any configured block fall back to IDHash,
// so CIDRHash never errors and never groups unrelated nodes together.
type CIDRHash struct {
	ranger cidranger.Ranger
	labels map[string]string
	byID   IDHash
}

// NewCIDRHash builds a CIDRHash from a set of CIDR blocks, each labelled
// with the group key proxies in that block should share.
func NewCIDRHash(blocks map[string]string) (*CIDRHash, error) {
	ranger := cidranger.NewPCTrieRanger()
	labels := make(map[string]string, len(blocks))
	for cidr, label := range blocks {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, err
		}
		if err := ranger.Insert(cidranger.NewBasicRangerEntry(*network)); err != nil {
			return nil, err
		}
		labels[network.String()] = label
	}
	return &CIDRHash{ranger: ranger, labels: labels}, nil
}

func (c *CIDRHash) ID(node Node) string {
	ip := net.ParseIP(node.Address)
	if ip == nil {
		return c.byID.ID(node)
	}
	nets, err := c.ranger.ContainingNetworks(ip)
	if err != nil || len(nets) == 0 {
		return c.byID.ID(node)
	}
	entry := nets[0].Network()
	if label, ok := c.labels[entry.String()]; ok {
		return label
	}
	return c.byID.ID(node)
}
