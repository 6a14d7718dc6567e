package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowlistAuthHookAdmitsProvisionedClient(t *testing.T) {
	h := NewAllowlistAuthHook(false)
	h.AddClient("sensor-1")

	assert.True(t, h.Authenticate("sensor-1", "10.0.0.5:1000"))
	assert.True(t, h.HasClient("sensor-1"))
}

func TestAllowlistAuthHookDeniesUnknownClientByDefault(t *testing.T) {
	h := NewAllowlistAuthHook(false)
	assert.False(t, h.Authenticate("sensor-x", "10.0.0.5:1000"))
}

func TestAllowlistAuthHookAllowUnknownAdmitsAnyClient(t *testing.T) {
	h := NewAllowlistAuthHook(true)
	assert.True(t, h.Authenticate("sensor-x", "10.0.0.5:1000"))
}

func TestAllowlistAuthHookRemoveClient(t *testing.T) {
	h := NewAllowlistAuthHook(false)
	h.AddClient("sensor-1")
	h.RemoveClient("sensor-1")

	assert.False(t, h.HasClient("sensor-1"))
	assert.False(t, h.Authenticate("sensor-1", "10.0.0.5:1000"))
}

func TestAllowlistAuthHookProvides(t *testing.T) {
	h := NewAllowlistAuthHook(false)
	assert.True(t, h.Provides(OnConnectAuthenticate))
	assert.False(t, h.Provides(OnPublishRateLimit))
}
