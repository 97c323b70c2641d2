package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRejectsMissingNodeID(t *testing.T) {
	err := (&MinSupported{}).Check("", "")
	assert.Error(t, err)
}

func TestCheckRejectsBelowFloor(t *testing.T) {
	m, err := NewMinSupported(">= 1.18.0")
	require.NoError(t, err)

	err = m.Check("node-a", "1.17.0")
	assert.Error(t, err)
}

func TestCheckAcceptsAtOrAboveFloor(t *testing.T) {
	m, err := NewMinSupported(">= 1.18.0")
	require.NoError(t, err)

	assert.NoError(t, m.Check("node-a", "1.18.0"))
	assert.NoError(t, m.Check("node-a", "2.0.0"))
}

func TestCheckCombinesMultipleFailures(t *testing.T) {
	m, err := NewMinSupported(">= 1.18.0")
	require.NoError(t, err)

	err = m.Check("", "1.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing node id")
	assert.Contains(t, err.Error(), "does not satisfy")
}

func TestCheckSkipsVersionGateWhenNil(t *testing.T) {
	var m *MinSupported
	assert.NoError(t, m.Check("node-a", "whatever-not-semver"))
}
