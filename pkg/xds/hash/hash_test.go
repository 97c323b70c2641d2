package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDHashUsesNodeID(t *testing.T) {
	h := IDHash{}
	assert.Equal(t, "proxy-1", h.ID(Node{ID: "proxy-1"}))
	assert.Equal(t, "unknown", h.ID(Node{}))
}

func TestCIDRHashGroupsByBlock(t *testing.T) {
	h, err := NewCIDRHash(map[string]string{
		"10.0.0.0/24": "rack-a",
		"10.0.1.0/24": "rack-b",
	})
	require.NoError(t, err)

	assert.Equal(t, "rack-a", h.ID(Node{ID: "p1", Address: "10.0.0.5"}))
	assert.Equal(t, "rack-b", h.ID(Node{ID: "p2", Address: "10.0.1.5"}))
}

func TestCIDRHashFallsBackToIDOutsideAnyBlock(t *testing.T) {
	h, err := NewCIDRHash(map[string]string{"10.0.0.0/24": "rack-a"})
	require.NoError(t, err)

	assert.Equal(t, "p3", h.ID(Node{ID: "p3", Address: "192.168.1.1"}))
}

func TestCIDRHashFallsBackOnUnparseableAddress(t *testing.T) {
	h, err := NewCIDRHash(map[string]string{"10.0.0.0/24": "rack-a"})
	require.NoError(t, err)

	assert.Equal(t, "p4", h.ID(Node{ID: "p4", Address: "not-an-ip"}))
}
