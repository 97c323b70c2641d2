package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
	"github.com/xds-controlplane/control-plane/pkg/xds/hash"
	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

const validBundle = `
version: "v1"
resources:
  type.googleapis.com/envoy.config.cluster.v3.Cluster:
    c1:
      name: c1
`

func TestInstallBundleInstallsValidDocument(t *testing.T) {
	c := cache.NewSnapshotCache(false, hash.IDHash{})
	require.NoError(t, InstallBundle(c, "group-a", []byte(validBundle)))

	snap, err := c.GetSnapshot("group-a")
	require.NoError(t, err)
	assert.Equal(t, "v1", snap.GetVersion(v3.ClusterType))
	assert.Len(t, snap.GetResources(v3.ClusterType), 1)
}

func TestInstallBundleRejectsMissingVersion(t *testing.T) {
	c := cache.NewSnapshotCache(false, hash.IDHash{})
	err := InstallBundle(c, "group-a", []byte("resources: {}"))
	assert.Error(t, err)

	_, err = c.GetSnapshot("group-a")
	assert.Error(t, err, "a failed install must never create a partial snapshot")
}

func TestInstallBundleLeavesPreviousSnapshotOnSubsequentFailure(t *testing.T) {
	c := cache.NewSnapshotCache(false, hash.IDHash{})
	require.NoError(t, InstallBundle(c, "group-a", []byte(validBundle)))

	err := InstallBundle(c, "group-a", []byte("not: [valid, bundle"))
	assert.Error(t, err)

	snap, err := c.GetSnapshot("group-a")
	require.NoError(t, err)
	assert.Equal(t, "v1", snap.GetVersion(v3.ClusterType), "previous snapshot must survive a bad update (P11)")
}

func TestInstallBundleSupportsTemplating(t *testing.T) {
	c := cache.NewSnapshotCache(false, hash.IDHash{})
	doc := `
version: {{ "v2" | quote }}
resources:
  type.googleapis.com/envoy.config.cluster.v3.Cluster:
    c1:
      name: c1
`
	require.NoError(t, InstallBundle(c, "group-a", []byte(doc)))

	snap, err := c.GetSnapshot("group-a")
	require.NoError(t, err)
	assert.Equal(t, "v2", snap.GetVersion(v3.ClusterType))
}
