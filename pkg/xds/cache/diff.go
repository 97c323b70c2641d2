package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"

	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

// logSnapshotDiff logs, at debug level, a human-readable summary of
// which resource names were added or removed for each type URL between
// two snapshots of the same node group. This is pure observability: it
// never influences whether a parked watch is notified.
func logSnapshotDiff(group string, prev, next Snapshot) {
	if !scope.DebugEnabled() {
		return
	}
	for _, typeURL := range v3.Types {
		summary, err := diffNames(prev.GetResourceNames(typeURL), next.GetResourceNames(typeURL))
		if err != nil {
			scope.Debugf("snapshot diff for %s/%s: %v", group, typeURL, err)
			continue
		}
		if summary == "" {
			continue
		}
		scope.Debugf("snapshot %s/%s: %s (version %s -> %s)",
			group, typeURL, summary, prev.GetVersion(typeURL), next.GetVersion(typeURL))
	}
}

func diffNames(prev, next map[string]struct{}) (string, error) {
	prevDoc, err := json.Marshal(sortedKeys(prev))
	if err != nil {
		return "", err
	}
	nextDoc, err := json.Marshal(sortedKeys(next))
	if err != nil {
		return "", err
	}
	patch, err := jsonpatch.CreateMergePatch(prevDoc, nextDoc)
	if err != nil {
		return "", err
	}
	if string(patch) == "{}" || string(patch) == "null" {
		return "", nil
	}

	var added, removed []string
	for name := range next {
		if _, ok := prev[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range prev {
		if _, ok := next[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	var b strings.Builder
	if len(added) > 0 {
		fmt.Fprintf(&b, "+%v", added)
	}
	if len(removed) > 0 {
		fmt.Fprintf(&b, " -%v", removed)
	}
	return strings.TrimSpace(b.String()), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
