package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryCfgValidate(t *testing.T) {
	cfg := DefaultDiscoveryCfg()
	assert.NoError(t, cfg.Validate(), "disabled config always validates")

	cfg.Enabled = true
	cfg.AdvertiseAddr = "10.0.0.5"
	cfg.AdvertisePort = 8391
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Address = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.ServiceName = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.AdvertisePort = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.AdvertisePort = 70000
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.TTLSec = 0
	assert.Error(t, bad.Validate())
}

func TestDiscoveryCfgTTL(t *testing.T) {
	cfg := &DiscoveryCfg{TTLSec: 15}
	assert.Equal(t, 15*time.Second, cfg.TTL())
	assert.Equal(t, "discovery", cfg.GetName())
}

func TestDisabledRegistrarIsNoOp(t *testing.T) {
	r, err := NewRegistrar(&DiscoveryCfg{Enabled: false})
	require.NoError(t, err)

	// No Consul agent is running in the test environment; a disabled
	// registrar must never try to reach one.
	assert.NoError(t, r.Start())
	assert.NoError(t, r.Stop())
}

func TestNilCfgSelectsDefaults(t *testing.T) {
	r, err := NewRegistrar(nil)
	require.NoError(t, err)
	assert.NoError(t, r.Start())
}

func TestServiceIDGenerated(t *testing.T) {
	cfg := &DiscoveryCfg{
		Enabled:       true,
		Address:       "127.0.0.1:8500",
		ServiceName:   "pixelbridge",
		AdvertiseAddr: "127.0.0.1",
		AdvertisePort: 8391,
		TTLSec:        15,
	}
	r1, err := NewRegistrar(cfg)
	require.NoError(t, err)
	r2, err := NewRegistrar(cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, r1.ServiceID())
	assert.NotEqual(t, r1.ServiceID(), r2.ServiceID())

	cfg.ServiceID = "pinned-id"
	r3, err := NewRegistrar(cfg)
	require.NoError(t, err)
	assert.Equal(t, "pinned-id", r3.ServiceID())
}
