package topic

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	t.Run("first registration gets id 1", func(t *testing.T) {
		reg := NewRegistry()
		id, isNew, err := reg.Register("client1", "sensor/temperature")
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.Equal(t, uint16(1), id)
	})

	t.Run("repeat registration is idempotent", func(t *testing.T) {
		reg := NewRegistry()
		id1, isNew1, err := reg.Register("client1", "sensor/temperature")
		require.NoError(t, err)
		require.True(t, isNew1)

		id2, isNew2, err := reg.Register("client1", "sensor/temperature")
		require.NoError(t, err)
		assert.False(t, isNew2)
		assert.Equal(t, id1, id2)
	})

	t.Run("distinct names get distinct ids", func(t *testing.T) {
		reg := NewRegistry()
		id1, _, err := reg.Register("client1", "sensor/temperature")
		require.NoError(t, err)
		id2, _, err := reg.Register("client1", "sensor/humidity")
		require.NoError(t, err)

		assert.NotEqual(t, id1, id2)
	})

	t.Run("ids are scoped per client", func(t *testing.T) {
		reg := NewRegistry()
		id1, _, err := reg.Register("client1", "sensor/temperature")
		require.NoError(t, err)
		id2, _, err := reg.Register("client2", "sensor/temperature")
		require.NoError(t, err)

		assert.Equal(t, id1, id2)
	})

	t.Run("allocation reuses the smallest freed id", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register("client1", "a")
		reg.Register("client1", "b")
		reg.Register("client1", "c")

		reg.DropSession("client1")
		id, _, err := reg.Register("client1", "d")
		require.NoError(t, err)
		assert.Equal(t, uint16(1), id)
	})
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	id, _, err := reg.Register("client1", "sensor/temperature")
	require.NoError(t, err)

	t.Run("resolve name from id", func(t *testing.T) {
		name, ok := reg.ResolveName("client1", id)
		require.True(t, ok)
		assert.Equal(t, "sensor/temperature", name)
	})

	t.Run("resolve id from name", func(t *testing.T) {
		gotID, ok := reg.ResolveID("client1", "sensor/temperature")
		require.True(t, ok)
		assert.Equal(t, id, gotID)
	})

	t.Run("resolve unknown id", func(t *testing.T) {
		_, ok := reg.ResolveName("client1", 999)
		assert.False(t, ok)
	})

	t.Run("resolve unknown name", func(t *testing.T) {
		_, ok := reg.ResolveID("client1", "nope")
		assert.False(t, ok)
	})

	t.Run("resolve for unknown client", func(t *testing.T) {
		_, ok := reg.ResolveName("client999", id)
		assert.False(t, ok)

		_, ok = reg.ResolveID("client999", "sensor/temperature")
		assert.False(t, ok)
	})
}

func TestRegistryDropSession(t *testing.T) {
	reg := NewRegistry()
	reg.Register("client1", "sensor/temperature")
	reg.Register("client1", "sensor/humidity")
	require.Equal(t, 2, reg.Count("client1"))

	reg.DropSession("client1")
	assert.Equal(t, 0, reg.Count("client1"))

	_, ok := reg.ResolveID("client1", "sensor/temperature")
	assert.False(t, ok)
}

func TestRegistryCount(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 0, reg.Count("client1"))

	reg.Register("client1", "a")
	assert.Equal(t, 1, reg.Count("client1"))

	reg.Register("client1", "b")
	assert.Equal(t, 2, reg.Count("client1"))

	reg.Register("client1", "a")
	assert.Equal(t, 2, reg.Count("client1"))
}

func TestRegistryExhaustion(t *testing.T) {
	reg := NewRegistry()
	for id := minNormalTopicID; id <= maxNormalTopicID; id++ {
		_, _, err := reg.Register("client1", fmt.Sprintf("topic/%d", id))
		require.NoError(t, err)
	}

	_, _, err := reg.Register("client1", "one/too/many")
	assert.ErrorIs(t, err, ErrRegistryFull)
}

func BenchmarkRegistryRegister(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.Register("client1", fmt.Sprintf("topic/%d", i%1000))
	}
}

func BenchmarkRegistryResolveName(b *testing.B) {
	reg := NewRegistry()
	id, _, _ := reg.Register("client1", "sensor/temperature")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.ResolveName("client1", id)
	}
}
