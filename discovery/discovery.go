// Package discovery registers the bridge endpoint in HashiCorp Consul so
// collaborating services can locate the WebSocket ingress for a given
// deployment. Registration uses a TTL health check refreshed by a
// background loop; a crashed process goes critical and is reaped by Consul
// without any cooperation from this side.
package discovery

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/consul/api"
	"github.com/lcx/pixelbridge/config"
	"github.com/lcx/pixelbridge/log"
	"github.com/lcx/pixelbridge/metrics"
)

// DiscoveryCfg configures Consul registration.
type DiscoveryCfg struct {
	// Enabled turns registration on. A disabled registrar is a no-op so
	// development setups run without a Consul agent.
	Enabled bool `mapstructure:"enabled"`

	// Address is the Consul agent address, host:port.
	Address string `mapstructure:"address"`

	// ServiceName is the logical service name to register under.
	ServiceName string `mapstructure:"serviceName"`

	// ServiceID identifies this instance. Empty generates a unique id.
	ServiceID string `mapstructure:"serviceID"`

	// AdvertiseAddr and AdvertisePort are the endpoint coordinates
	// published to Consul.
	AdvertiseAddr string `mapstructure:"advertiseAddr"`
	AdvertisePort int    `mapstructure:"advertisePort"`

	// Tags are attached to the registration.
	Tags []string `mapstructure:"tags"`

	// TTLSec is the health check TTL. The refresh loop reports passing at
	// half this period.
	TTLSec int `mapstructure:"ttlSec"`
}

// GetName returns the configuration name for DiscoveryCfg.
func (c *DiscoveryCfg) GetName() string {
	return "discovery"
}

// Validate validates the DiscoveryCfg parameters.
func (c *DiscoveryCfg) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("serviceName cannot be empty")
	}
	if c.AdvertisePort <= 0 || c.AdvertisePort > 65535 {
		return fmt.Errorf("advertisePort must be in (0, 65535]")
	}
	if c.TTLSec <= 0 {
		return fmt.Errorf("ttlSec must be positive")
	}
	return nil
}

// TTL returns the health check TTL as a duration.
func (c *DiscoveryCfg) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// DefaultDiscoveryCfg returns a disabled configuration.
func DefaultDiscoveryCfg() *DiscoveryCfg {
	return &DiscoveryCfg{
		Enabled:     false,
		Address:     "127.0.0.1:8500",
		ServiceName: "pixelbridge",
		TTLSec:      15,
	}
}

// Registrar maintains one Consul service registration for the lifetime of
// the process.
type Registrar struct {
	cfg    *DiscoveryCfg
	client *api.Client

	serviceID string
	checkID   string

	mu      sync.Mutex
	stopCh  chan struct{}
	started bool
}

// NewRegistrar creates a registrar. The Consul client is only constructed
// when the configuration enables registration.
func NewRegistrar(cfg *DiscoveryCfg) (*Registrar, error) {
	if cfg == nil {
		cfg = DefaultDiscoveryCfg()
	}
	r := &Registrar{cfg: cfg}
	if !cfg.Enabled {
		return r, nil
	}

	client, err := api.NewClient(&api.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	r.client = client

	r.serviceID = cfg.ServiceID
	if r.serviceID == "" {
		r.serviceID = fmt.Sprintf("%s-%s", cfg.ServiceName, uuid.NewString())
	}
	r.checkID = "service:" + r.serviceID
	return r, nil
}

// NewRegistrarWithConfigManager creates a registrar from the "discovery"
// configuration.
func NewRegistrarWithConfigManager(configManager config.ConfigManager) (*Registrar, error) {
	if configManager == nil {
		return nil, errors.New("configManager cannot be nil")
	}
	cfg := &DiscoveryCfg{}
	if err := configManager.LoadConfig("discovery", cfg); err != nil {
		return nil, fmt.Errorf("failed to load discovery config: %w", err)
	}
	return NewRegistrar(cfg)
}

// ServiceID returns the effective instance id.
func (r *Registrar) ServiceID() string {
	return r.serviceID
}

// Start registers the service and launches the TTL refresh loop. No-op when
// registration is disabled.
func (r *Registrar) Start() error {
	if !r.cfg.Enabled {
		log.Debug().Msg("service discovery disabled")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	reg := &api.AgentServiceRegistration{
		ID:      r.serviceID,
		Name:    r.cfg.ServiceName,
		Address: r.cfg.AdvertiseAddr,
		Port:    r.cfg.AdvertisePort,
		Tags:    r.cfg.Tags,
		Check: &api.AgentServiceCheck{
			CheckID: r.checkID,
			TTL:     r.cfg.TTL().String(),
			// Reap instances that stay critical, such as after a crash.
			DeregisterCriticalServiceAfter: (3 * r.cfg.TTL()).String(),
		},
	}
	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	r.stopCh = make(chan struct{})
	go r.serveTTL(r.stopCh)
	r.started = true

	log.Info().Str("service", r.cfg.ServiceName).Str("id", r.serviceID).
		Str("consul", r.cfg.Address).Msg("service registered")
	return nil
}

// Stop deregisters the service and terminates the refresh loop. Safe to
// call on a registrar that never started.
func (r *Registrar) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	close(r.stopCh)
	r.started = false

	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	log.Info().Str("id", r.serviceID).Msg("service deregistered")
	return nil
}

// serveTTL reports the TTL check passing at half the TTL period until
// stopped. A failed refresh is logged and retried on the next tick; Consul
// marks the check critical only after the full TTL lapses.
func (r *Registrar) serveTTL(stop chan struct{}) {
	ticker := time.NewTicker(r.cfg.TTL() / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.client.Agent().UpdateTTL(r.checkID, "", api.HealthPassing); err != nil {
				metrics.IncrCounterWithGroup("discovery", "ttl_refresh_error_total", 1)
				log.Warn().Str("check", r.checkID).Err(err).Msg("ttl refresh failed")
			}
		}
	}
}
