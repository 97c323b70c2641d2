package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xds-controlplane/control-plane/pkg/xds/hash"
	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

func mustStruct(t *testing.T) Resource {
	t.Helper()
	s, err := structpb.NewStruct(map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	return s
}

func TestCreateWatchRespondsImmediatelyWhenVersionDiffers(t *testing.T) {
	c := NewSnapshotCache(false, hash.IDHash{})

	snap, err := NewSnapshot(
		map[string]string{v3.ClusterType: "v1"},
		map[string]map[string]Resource{v3.ClusterType: {"c1": mustStruct(t)}},
	)
	require.NoError(t, err)
	require.NoError(t, c.SetSnapshot("group-a", snap))

	w := c.CreateWatch("group-a", v3.ClusterType, "", nil)
	select {
	case resp := <-w.Value:
		assert.Equal(t, "v1", resp.Version)
		assert.Len(t, resp.Resources, 1)
	case <-time.After(time.Second):
		t.Fatal("expected an immediate response")
	}
}

func TestCreateWatchParksUntilVersionChanges(t *testing.T) {
	c := NewSnapshotCache(false, hash.IDHash{})

	snap, err := NewSnapshot(
		map[string]string{v3.ClusterType: "v1"},
		map[string]map[string]Resource{v3.ClusterType: {"c1": mustStruct(t)}},
	)
	require.NoError(t, err)
	require.NoError(t, c.SetSnapshot("group-a", snap))

	// Already at v1: the watch should park, not respond immediately.
	w := c.CreateWatch("group-a", v3.ClusterType, "v1", nil)
	select {
	case <-w.Value:
		t.Fatal("watch should not have responded yet")
	case <-time.After(50 * time.Millisecond):
	}

	snap2, err := NewSnapshot(
		map[string]string{v3.ClusterType: "v2"},
		map[string]map[string]Resource{v3.ClusterType: {"c1": mustStruct(t)}},
	)
	require.NoError(t, err)
	require.NoError(t, c.SetSnapshot("group-a", snap2))

	select {
	case resp := <-w.Value:
		assert.Equal(t, "v2", resp.Version)
	case <-time.After(time.Second):
		t.Fatal("expected a response after SetSnapshot with a new version")
	}
}

func TestCancelRemovesParkedWatch(t *testing.T) {
	c := NewSnapshotCache(false, hash.IDHash{})
	w := c.CreateWatch("group-a", v3.ClusterType, "v1", nil)
	w.Cancel()

	info := c.GetStatusInfo("group-a")
	require.NotNil(t, info)
	assert.Equal(t, 0, info.NumWatches())
}

func TestADSWatchRequiresSupersetOfRequestedNames(t *testing.T) {
	c := NewSnapshotCache(true, hash.IDHash{})

	snap, err := NewSnapshot(
		map[string]string{v3.ClusterType: "v1"},
		map[string]map[string]Resource{v3.ClusterType: {"c1": mustStruct(t)}},
	)
	require.NoError(t, err)
	require.NoError(t, c.SetSnapshot("group-a", snap))

	// Requests c2, which the snapshot doesn't have: ADS rule says this
	// should not be satisfied, so the watch must park rather than
	// respond with a resource set that silently omits c2.
	w := c.CreateWatch("group-a", v3.ClusterType, "", map[string]struct{}{"c2": {}})
	select {
	case <-w.Value:
		t.Fatal("ADS watch should not have been satisfied")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGetSnapshotReturnsErrorForUnknownGroup(t *testing.T) {
	c := NewSnapshotCache(false, hash.IDHash{})
	_, err := c.GetSnapshot("nonexistent")
	assert.Error(t, err)
}

func TestClearSnapshotRemovesGroup(t *testing.T) {
	c := NewSnapshotCache(false, hash.IDHash{})
	snap, err := NewSnapshot(nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.SetSnapshot("group-a", snap))

	c.ClearSnapshot("group-a")
	_, err = c.GetSnapshot("group-a")
	assert.Error(t, err)
}
