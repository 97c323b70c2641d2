package cache

import "time"

// StatusInfo is the cache's per-node-group bookkeeping: when it last
// heard a watch request, and which watches are currently parked for it.
// All mutation happens under the owning SnapshotCache's write lock;
// StatusInfo itself holds no lock of its own.
type StatusInfo struct {
	node                 string
	lastWatchRequestTime time.Time
	watches              map[int64]*Watch
}

func newStatusInfo(node string) *StatusInfo {
	return &StatusInfo{
		node:    node,
		watches: make(map[int64]*Watch),
	}
}

// LastWatchRequestTime returns the last time any watch request arrived
// for this node group, across every type URL.
func (s *StatusInfo) LastWatchRequestTime() time.Time {
	return s.lastWatchRequestTime
}

// NumWatches returns the count of currently parked watches, for
// admin/introspection use.
func (s *StatusInfo) NumWatches() int {
	return len(s.watches)
}
