package escrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracleRegistryRegister(t *testing.T) {
	registry := NewOracleRegistry(newTestDB(t))

	registered, err := registry.Register("oracle-1", "addr-1", "addr-1")
	require.NoError(t, err)
	assert.True(t, registered)

	t.Run("duplicate key is a reported no-op", func(t *testing.T) {
		registered, err := registry.Register("oracle-1", "addr-other", "addr-other")
		require.NoError(t, err)
		assert.False(t, registered)

		entries := registry.ListAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "addr-1", entries[0].Address,
			"duplicate registration must not overwrite the original entry")
	})

	t.Run("duplicate bumps last seen", func(t *testing.T) {
		before := registry.ListAll()[0].LastSeenAt

		_, err := registry.Register("oracle-1", "addr-1", "addr-1")
		require.NoError(t, err)

		after := registry.ListAll()[0].LastSeenAt
		assert.GreaterOrEqual(t, after, before)
	})

	t.Run("distinct keys register independently", func(t *testing.T) {
		registered, err := registry.Register("oracle-2", "addr-2", "addr-2")
		require.NoError(t, err)
		assert.True(t, registered)
		assert.Equal(t, int64(2), registry.Count())
	})
}

func TestOracleRegistryEmpty(t *testing.T) {
	registry := NewOracleRegistry(newTestDB(t))

	assert.Empty(t, registry.ListAll())
	assert.Equal(t, int64(0), registry.Count())
}
