// Package config provides configuration management for the bridge process.
// Configurations are named yaml documents loaded through viper with
// environment-variable override, validated before use, and watched with
// fsnotify so a changed file swaps the in-memory config without a restart.
package config

// Config interface defines the basic configuration contract.
type Config interface {
	GetName() string
	Validate() error
}

// ValidatorFunc is an additional validation function registered per config
// name, run after the config's own Validate.
type ValidatorFunc func(Config) error

// HookFunc is a configuration change hook. A non-nil error from any hook
// aborts the swap and keeps the old configuration.
type HookFunc func(oldVal, newVal Config) error

// ConfigChangeListener is implemented by components that react to
// configuration hot reload. Listeners are notified after a successful swap.
type ConfigChangeListener interface {
	// OnConfigChanged is called with the changed config name and both
	// the new and previous values.
	OnConfigChanged(configName string, newConfig, oldConfig Config) error

	// GetConfigName returns the config name the listener cares about.
	GetConfigName() string
}
