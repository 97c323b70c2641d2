package cache

import "fmt"

// errNoSnapshot is returned by GetSnapshot for a node group the cache
// has never seen a SetSnapshot call for.
func errNoSnapshot(group string) error {
	return fmt.Errorf("no snapshot for node group %q", group)
}
