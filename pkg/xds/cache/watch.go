package cache

// Response is what a Watch delivers exactly once: a type URL, the
// snapshot version that triggered it, and the resources matching the
// request's resource-name filter at that version.
type Response struct {
	TypeURL   string
	Version   string
	Resources map[string]Resource
}

// Watch is a single-shot, cancellable subscription for one type URL on
// one node group. At most one Response is ever sent on Value. The
// cache holds the send side; the server holds the receive side and the
// Cancel func.
//
// A Watch is parked (no Response sent yet) until SetSnapshot observes a
// version different from what the originating request already had, or
// until the caller cancels it. There is no timeout inside the cache
// itself (Open Question, see DESIGN.md) — a caller that wants one must
// race Value against its own timer and call Cancel on the losing side.
type Watch struct {
	Value  chan Response
	Cancel func()

	// request echoes the fields of the DiscoveryRequest that created
	// this watch, needed by respond() to decide whether a new snapshot
	// version actually satisfies it.
	typeURL        string
	requestVersion string
	requestNames   map[string]struct{}
}
