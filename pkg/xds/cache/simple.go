package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"istio.io/pkg/log"

	"github.com/xds-controlplane/control-plane/pkg/xds/hash"
)

var scope = log.RegisterScope("cache", "xDS snapshot cache")

// SnapshotCache is the public contract of C5: a versioned, per-node-group
// store of Snapshots, with a watch mechanism for the server to park
// requests against until new content arrives.
type SnapshotCache interface {
	// SetSnapshot replaces the Snapshot for a node group and notifies any
	// parked watch whose requested version differs from the new one.
	SetSnapshot(group string, snapshot Snapshot) error

	// GetSnapshot returns the current Snapshot for a node group, if any.
	GetSnapshot(group string) (Snapshot, error)

	// ClearSnapshot removes a node group's snapshot and status entirely.
	// Parked watches are not notified; callers that want them woken
	// first should SetSnapshot an empty Snapshot before clearing.
	ClearSnapshot(group string)

	// CreateWatch registers a watch for a (typeURL, group) pair given
	// the client's last-known version and resource-name set. If the
	// current snapshot already satisfies the request it responds
	// immediately (synchronously, before returning) and the returned
	// Watch.Value will already have a Response buffered. Otherwise the
	// watch is parked until SetSnapshot or Cancel.
	CreateWatch(group, typeURL, versionInfo string, resourceNames map[string]struct{}) *Watch

	// GetStatusInfo returns the bookkeeping for one node group.
	GetStatusInfo(group string) *StatusInfo

	// GetStatusKeys returns every node group the cache currently knows
	// about, in no particular order.
	GetStatusKeys() []string
}

type snapshotCache struct {
	mu sync.RWMutex

	ads bool
	nodeHash hash.NodeHash

	snapshots map[string]Snapshot
	status    map[string]*StatusInfo

	watchCount int64
}

// NewSnapshotCache constructs a SnapshotCache. When ads is true the
// cache enforces the ADS "superset" rule: a watch that names resources
// is only satisfied by a snapshot whose resource set for the watch's
// type URL contains every name the watch requested (see respond below);
// until then the watch stays parked.
func NewSnapshotCache(ads bool, nodeHash hash.NodeHash) SnapshotCache {
	return &snapshotCache{
		ads:       ads,
		nodeHash:  nodeHash,
		snapshots: make(map[string]Snapshot),
		status:    make(map[string]*StatusInfo),
	}
}

func (c *snapshotCache) SetSnapshot(group string, snapshot Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, hadPrev := c.snapshots[group]
	c.snapshots[group] = snapshot

	info, ok := c.status[group]
	if !ok {
		info = newStatusInfo(group)
		c.status[group] = info
	}

	if hadPrev {
		logSnapshotDiff(group, prev, snapshot)
	}

	for id, w := range info.watches {
		if snapshot.GetVersion(w.typeURL) == w.requestVersion {
			continue
		}
		if c.respond(w, snapshot, w.typeURL) {
			delete(info.watches, id)
		}
	}

	return nil
}

func (c *snapshotCache) respond(w *Watch, snapshot Snapshot, typeURL string) bool {
	names := snapshot.GetResourceNames(typeURL)

	if c.ads && !superset(w.requestNames, names) {
		scope.Debugf("ADS watch for %s not satisfied: snapshot resource set is not a superset of the request", typeURL)
		return false
	}

	resources := make(map[string]Resource, len(w.requestNames))
	all := snapshot.GetResources(typeURL)
	if len(w.requestNames) == 0 {
		for name, r := range all {
			resources[name] = r
		}
	} else {
		for name := range w.requestNames {
			if r, ok := all[name]; ok {
				resources[name] = r
			}
		}
	}

	select {
	case w.Value <- Response{TypeURL: typeURL, Version: snapshot.GetVersion(typeURL), Resources: resources}:
		return true
	default:
		// A watch channel is always created with buffer 1 and written
		// to exactly once (single-shot); a default branch here means
		// this watch already delivered a response and is stale
		// bookkeeping left behind by a racing Cancel. Treat as done.
		return true
	}
}

// superset reports whether have is a superset of want. An empty want
// set (wildcard subscription) is always satisfied.
func superset(want, have map[string]struct{}) bool {
	for name := range want {
		if _, ok := have[name]; !ok {
			return false
		}
	}
	return true
}

func (c *snapshotCache) GetSnapshot(group string) (Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[group]
	if !ok {
		return Snapshot{}, errNoSnapshot(group)
	}
	return snap, nil
}

func (c *snapshotCache) ClearSnapshot(group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, group)
	delete(c.status, group)
}

func (c *snapshotCache) CreateWatch(group, typeURL, versionInfo string, resourceNames map[string]struct{}) *Watch {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.status[group]
	if !ok {
		info = newStatusInfo(group)
		c.status[group] = info
	}
	info.lastWatchRequestTime = time.Now()

	w := &Watch{
		Value:          make(chan Response, 1),
		requestVersion: versionInfo,
		requestNames:   resourceNames,
		typeURL:        typeURL,
	}

	snapshot, hasSnapshot := c.snapshots[group]
	if hasSnapshot && snapshot.GetVersion(typeURL) != versionInfo {
		if c.respond(w, snapshot, typeURL) {
			w.Cancel = func() {}
			return w
		}
	}

	id := atomic.AddInt64(&c.watchCount, 1)
	info.watches[id] = w
	w.Cancel = func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(info.watches, id)
	}
	return w
}

func (c *snapshotCache) GetStatusInfo(group string) *StatusInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status[group]
}

func (c *snapshotCache) GetStatusKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.status))
	for k := range c.status {
		keys = append(keys, k)
	}
	return keys
}
