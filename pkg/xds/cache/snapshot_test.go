package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

func TestNewSnapshotDeepCopiesInputMap(t *testing.T) {
	body, err := structpb.NewStruct(map[string]interface{}{"k": "v"})
	require.NoError(t, err)

	resources := map[string]map[string]Resource{v3.ClusterType: {"c1": body}}
	snap, err := NewSnapshot(map[string]string{v3.ClusterType: "v1"}, resources)
	require.NoError(t, err)

	// Mutating the caller's map after construction must not affect the
	// snapshot: Snapshot is immutable from the moment NewSnapshot returns.
	delete(resources[v3.ClusterType], "c1")

	assert.Len(t, snap.GetResources(v3.ClusterType), 1)
}

func TestConsistentDetectsVersionWithoutResources(t *testing.T) {
	snap, err := NewSnapshot(map[string]string{v3.ClusterType: "v1"}, nil)
	require.NoError(t, err)
	assert.False(t, snap.Consistent())

	snap2, err := NewSnapshot(nil, nil)
	require.NoError(t, err)
	assert.True(t, snap2.Consistent())
}

func TestGetResourceNames(t *testing.T) {
	body, err := structpb.NewStruct(nil)
	require.NoError(t, err)
	snap, err := NewSnapshot(
		map[string]string{v3.ClusterType: "v1"},
		map[string]map[string]Resource{v3.ClusterType: {"c1": body, "c2": body}},
	)
	require.NoError(t, err)

	names := snap.GetResourceNames(v3.ClusterType)
	assert.Len(t, names, 2)
	_, ok := names["c1"]
	assert.True(t, ok)
}
